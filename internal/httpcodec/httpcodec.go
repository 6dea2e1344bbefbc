// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpcodec serves JPEG decoding and encoding over HTTP:
//
//	POST /decode/<format>?output=raw|zst|png|bmp|tiff&policy=auto
//	POST /encode/<format>?width=W&height=H[&pitch=P][&quality=Q]
//	GET  /status
//
// Decode requests carry a JPEG file as request body. Encode requests carry a
// raw surface (zstd-compressed with Content-Encoding: zstd) or a PNG, BMP or
// TIFF file, which is converted to <format> before encoding.
package httpcodec

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stapelberg/shjpeg"
	"github.com/stapelberg/shjpeg/internal/httperr"
	"github.com/stapelberg/shjpeg/internal/imagefile"
	"github.com/stapelberg/shjpeg/internal/softconv"
	"github.com/stapelberg/shjpeg/internal/stream"
	"golang.org/x/net/trace"
)

const maxBodySize = 64 << 20

// Server handles codec requests, each with its own shjpeg.Context.
type Server struct {
	Manager *shjpeg.Manager

	// Policy is the default for requests without a policy parameter.
	Policy shjpeg.Policy

	Verbose bool

	// Quality is the default software encoder quality.
	Quality int

	// OnResult, if non-nil, is called after every codec request.
	OnResult func(Result)

	mu    sync.Mutex
	stats Stats
}

// Result describes one codec request.
type Result struct {
	Job      string        `json:"job"`
	Op       string        `json:"op"`
	Format   string        `json:"format"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Software bool          `json:"software"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type Stats struct {
	Decodes  int     `json:"decodes"`
	Encodes  int     `json:"encodes"`
	Software int     `json:"software"`
	Errors   int     `json:"errors"`
	Last     *Result `json:"last,omitempty"`
}

// SetPolicy changes the default policy of subsequent requests.
func (s *Server) SetPolicy(p shjpeg.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Policy = p
}

func (s *Server) policy() shjpeg.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Policy
}

// Stats returns the counters since the Server was created.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if st.Last != nil {
		last := *st.Last
		st.Last = &last
	}
	return st
}

func (s *Server) record(res Result) {
	s.mu.Lock()
	switch res.Op {
	case "decode":
		s.stats.Decodes++
	case "encode":
		s.stats.Encodes++
	}
	if res.Software {
		s.stats.Software++
	}
	if res.Error != "" {
		s.stats.Errors++
	}
	s.stats.Last = &res
	s.mu.Unlock()
	if s.OnResult != nil {
		s.OnResult(res)
	}
}

// ServeMux returns the request routes of s.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/decode/", httperr.Handle(s.codecHandler("decode", s.decode)))
	mux.Handle("/encode/", httperr.Handle(s.codecHandler("encode", s.encode)))
	mux.Handle("/status", httperr.Handle(s.status))
	return mux
}

// shiftPath splits off the first component of p, which will be cleaned of
// relative components before processing. head will never contain a slash and
// tail will always be a rooted path without trailing slash.
func shiftPath(p string) (head, tail string) {
	p = path.Clean("/" + p)
	i := strings.Index(p[1:], "/") + 1
	if i <= 0 {
		return p[1:], "/"
	}
	return p[1:i], p[i:]
}

type codecFunc func(tr trace.Trace, ctx *shjpeg.Context, format shjpeg.PixelFormat, w http.ResponseWriter, r *http.Request, res *Result) error

func (s *Server) codecHandler(op string, fn codecFunc) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) (err error) {
		if r.Method != "POST" && r.Method != "PUT" {
			return httperr.Error(http.StatusMethodNotAllowed, fmt.Errorf("%s requires POST", op))
		}
		_, tail := shiftPath(r.URL.Path)
		name, _ := shiftPath(tail)
		format, err := shjpeg.ParseFormat(name)
		if err != nil {
			return httperr.Error(http.StatusNotFound, err)
		}

		ctx, err := shjpeg.NewContext(s.Manager, s.Verbose)
		if err != nil {
			return httperr.Error(http.StatusServiceUnavailable, err)
		}
		defer shjpeg.Shutdown(ctx)
		ctx.Policy = s.policy()
		if p := r.URL.Query().Get("policy"); p != "" {
			if ctx.Policy, err = shjpeg.ParsePolicy(p); err != nil {
				return httperr.Error(http.StatusBadRequest, err)
			}
		}

		tr := trace.New("httpcodec."+op, r.URL.Path)
		defer tr.Finish()
		tr.LazyPrintf("job %s, policy %v", ctx.ID(), ctx.Policy)
		w.Header().Set("X-Shjpeg-Job", ctx.ID())

		start := time.Now()
		res := Result{Job: ctx.ID(), Op: op, Format: format.String()}
		defer func() {
			res.Duration = time.Since(start)
			res.Software = ctx.SoftwareUsed
			if err != nil {
				res.Error = err.Error()
				tr.LazyPrintf("error: %v", err)
				tr.SetError()
			}
			s.record(res)
		}()
		return classify(fn(tr, ctx, format, w, r, &res))
	}
}

// classify assigns HTTP status codes to codec errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var he *httperr.Err
	if errors.As(err, &he) {
		return err
	}
	var (
		se *shjpeg.StreamError
		ce *shjpeg.SoftwareCodecError
		hw *shjpeg.HardwareError
	)
	switch {
	case errors.As(err, &se), errors.Is(err, shjpeg.ErrInvalidArgument):
		return httperr.Error(http.StatusBadRequest, err)
	case errors.As(err, &ce), errors.Is(err, shjpeg.ErrUnsupported):
		return httperr.Error(http.StatusUnprocessableEntity, err)
	case errors.As(err, &hw),
		errors.Is(err, shjpeg.ErrHardwareTimeout),
		errors.Is(err, shjpeg.ErrResourceUnavailable):
		return httperr.Error(http.StatusServiceUnavailable, err)
	}
	return err
}

// alignedPitch returns the smallest pitch for width pixels of format which
// the hardware can process.
func alignedPitch(format shjpeg.PixelFormat, width int) int {
	return (width*format.PitchMultiplier() + 7) &^ 7
}

// surface returns a buffer for the image, preferring contiguous memory. The
// returned function releases the buffer.
func surface(ctx *shjpeg.Context, format shjpeg.PixelFormat, width, height, pitch int) (shjpeg.Buffer, func(), error) {
	if ctx.Policy != shjpeg.PolicySoftwareOnly {
		buf, err := shjpeg.Malloc(ctx, format, width, height, pitch)
		if err == nil {
			return buf, func() { shjpeg.Free(ctx, buf) }, nil
		}
		if !errors.Is(err, shjpeg.ErrOutOfMemory) {
			return shjpeg.Buffer{}, nil, err
		}
	}
	buf, err := shjpeg.NewBuffer(format, width, height, pitch)
	return buf, func() {}, err
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, httperr.Error(http.StatusBadRequest, fmt.Errorf("parameter %s: %v", name, err))
	}
	return i, nil
}

func (s *Server) decode(tr trace.Trace, ctx *shjpeg.Context, format shjpeg.PixelFormat, w http.ResponseWriter, r *http.Request, res *Result) error {
	kind, err := imagefile.ParseKind(r.URL.Query().Get("output"))
	if err != nil {
		return httperr.Error(http.StatusBadRequest, err)
	}
	if kind == imagefile.Raw && r.URL.Query().Get("compress") == "zstd" {
		kind = imagefile.RawZstd
	}

	ctx.Stream = stream.NewReaderSource(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := shjpeg.DecodeInit(ctx); err != nil {
		return err
	}
	defer shjpeg.DecodeShutdown(ctx)
	res.Width, res.Height = ctx.Width, ctx.Height
	tr.LazyPrintf("%dx%d JPEG, 4:2:0 %v", ctx.Width, ctx.Height, ctx.Mode420)

	pitch, err := intParam(r, "pitch", alignedPitch(format, ctx.Width))
	if err != nil {
		return err
	}
	buf, free, err := surface(ctx, format, ctx.Width, ctx.Height, pitch)
	if err != nil {
		return err
	}
	defer free()
	if err := shjpeg.DecodeRun(ctx, format, buf, ctx.Width, ctx.Height, pitch); err != nil {
		return err
	}
	tr.LazyPrintf("decoded, software %v", ctx.SoftwareUsed)

	im, err := softconv.NewImage(format, buf.B, ctx.Width, ctx.Height, pitch)
	if err != nil {
		return err
	}
	h := w.Header()
	h.Set("Content-Type", kind.ContentType())
	h.Set("X-Shjpeg-Width", strconv.Itoa(ctx.Width))
	h.Set("X-Shjpeg-Height", strconv.Itoa(ctx.Height))
	h.Set("X-Shjpeg-Pitch", strconv.Itoa(pitch))
	h.Set("X-Shjpeg-Software", strconv.FormatBool(ctx.SoftwareUsed))
	cw := &countingWriter{w: w}
	err = imagefile.Write(cw, kind, im)
	res.Bytes = cw.n
	return err
}

// inputKind returns the kind of an encode request body.
func inputKind(r *http.Request) imagefile.Kind {
	switch r.Header.Get("Content-Type") {
	case "image/png":
		return imagefile.PNG
	case "image/bmp":
		return imagefile.BMP
	case "image/tiff":
		return imagefile.TIFF
	}
	if r.Header.Get("Content-Encoding") == "zstd" {
		return imagefile.RawZstd
	}
	return imagefile.Raw
}

func (s *Server) encode(tr trace.Trace, ctx *shjpeg.Context, format shjpeg.PixelFormat, w http.ResponseWriter, r *http.Request, res *Result) error {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	kind := inputKind(r)

	var (
		img           image.Image
		width, height int
		err           error
	)
	if kind.Compressed() && kind != imagefile.RawZstd {
		if img, err = imagefile.Decode(body); err != nil {
			return httperr.Error(http.StatusBadRequest, err)
		}
		width, height = img.Bounds().Dx(), img.Bounds().Dy()
	} else {
		if width, err = intParam(r, "width", 0); err != nil {
			return err
		}
		if height, err = intParam(r, "height", 0); err != nil {
			return err
		}
	}
	res.Width, res.Height = width, height
	if width <= 0 || height <= 0 {
		return httperr.Error(http.StatusBadRequest, fmt.Errorf("invalid size %dx%d", width, height))
	}
	pitch, err := intParam(r, "pitch", alignedPitch(format, width))
	if err != nil {
		return err
	}
	if ctx.Quality, err = intParam(r, "quality", s.Quality); err != nil {
		return err
	}
	ctx.Mode444 = r.URL.Query().Get("sampling") == "444"

	buf, free, err := surface(ctx, format, width, height, pitch)
	if err != nil {
		return err
	}
	defer free()
	if img != nil {
		im, err := softconv.NewImage(format, buf.B, width, height, pitch)
		if err != nil {
			return err
		}
		softconv.Draw(im, img)
	} else {
		size := format.PlaneBytes(height, pitch)
		if err := imagefile.ReadRaw(body, kind, buf.B[:size]); err != nil {
			return httperr.Error(http.StatusBadRequest, fmt.Errorf("reading %d bytes of %v: %v", size, format, err))
		}
	}
	tr.LazyPrintf("encoding %dx%d %v (pitch %d) from %s input", width, height, format, pitch, kind)

	sink := &stream.MemorySink{}
	ctx.Stream = sink
	if err := shjpeg.Encode(ctx, format, buf, width, height, pitch); err != nil {
		return err
	}
	tr.LazyPrintf("encoded %d bytes, software %v", len(sink.Bytes()), ctx.SoftwareUsed)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Shjpeg-Software", strconv.FormatBool(ctx.SoftwareUsed))
	res.Bytes = len(sink.Bytes())
	_, err = w.Write(sink.Bytes())
	return err
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(s.Stats())
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
