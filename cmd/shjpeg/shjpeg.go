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

// Program shjpeg decodes JPEG files into raw surfaces or image files, and
// encodes raw surfaces or image files into JPEG files, using the JPU when
// available.
//
// Files ending in .jpg or .jpeg are decoded, all others are encoded:
//
//	shjpeg -format=nv12 -output_type=png photo.jpg
//	shjpeg -format=rgb32 -width=640 -height=480 frame.raw
//	shjpeg -format=nv16 scan.png
//
// The input file "-" reads stdin and writes to stdout.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/stapelberg/shjpeg"
	"github.com/stapelberg/shjpeg/internal/imagefile"
	"github.com/stapelberg/shjpeg/internal/jpusim"
	"github.com/stapelberg/shjpeg/internal/softconv"
	"github.com/stapelberg/shjpeg/internal/stream"
	"golang.org/x/sync/errgroup"
)

type config struct {
	manager    *shjpeg.Manager
	format     shjpeg.PixelFormat
	policy     shjpeg.Policy
	outputType imagefile.Kind
	outputDir  string
	decode     bool
	width      int
	height     int
	pitch      int
	quality    int
	sampling   string
	verbose    bool
}

func isJPEG(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// outputPath returns where the result for input is written.
func (c *config) outputPath(input, ext string) string {
	if input == "-" {
		return "-"
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ext
	if c.outputDir != "" {
		return filepath.Join(c.outputDir, base)
	}
	return filepath.Join(filepath.Dir(input), base)
}

// surface returns a buffer for an image, preferring contiguous memory. The
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

func (c *config) newContext() (*shjpeg.Context, error) {
	ctx, err := shjpeg.NewContext(c.manager, c.verbose)
	if err != nil {
		return nil, err
	}
	ctx.Policy = c.policy
	ctx.Quality = c.quality
	return ctx, nil
}

func (c *config) pitchFor(width int) int {
	if c.pitch != 0 {
		return c.pitch
	}
	return (width*c.format.PitchMultiplier() + 7) &^ 7
}

func (c *config) decodeFile(input string) error {
	ctx, err := c.newContext()
	if err != nil {
		return err
	}
	defer shjpeg.Shutdown(ctx)

	if input == "-" {
		ctx.Stream = stream.NewReaderSource(os.Stdin)
	} else {
		ctx.Stream = &stream.FileSource{Path: input}
	}
	if err := shjpeg.DecodeInit(ctx); err != nil {
		return err
	}
	defer shjpeg.DecodeShutdown(ctx)

	width, height := ctx.Width, ctx.Height
	pitch := c.pitchFor(width)
	buf, free, err := surface(ctx, c.format, width, height, pitch)
	if err != nil {
		return err
	}
	defer free()
	start := time.Now()
	if err := shjpeg.DecodeRun(ctx, c.format, buf, width, height, pitch); err != nil {
		return err
	}
	im, err := softconv.NewImage(c.format, buf.B, width, height, pitch)
	if err != nil {
		return err
	}

	output := c.outputPath(input, c.outputType.Ext())
	if output == "-" {
		if err := imagefile.Write(os.Stdout, c.outputType, im); err != nil {
			return err
		}
	} else {
		f, err := renameio.TempFile("", output)
		if err != nil {
			return err
		}
		defer f.Cleanup()
		if err := imagefile.Write(f, c.outputType, im); err != nil {
			return err
		}
		if err := f.CloseAtomicallyReplace(); err != nil {
			return err
		}
	}
	log.Printf("%s: decoded %dx%d (pitch %d) %v in %v, software: %v -> %s",
		input, width, height, pitch, c.format, time.Since(start), ctx.SoftwareUsed, output)
	return nil
}

// load fills a surface with the contents of input, which is either an
// image file or a raw surface of -format.
func (c *config) load(ctx *shjpeg.Context, input string) (buf shjpeg.Buffer, free func(), width, height, pitch int, err error) {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return shjpeg.Buffer{}, nil, 0, 0, 0, err
		}
		defer f.Close()
		r = f
	}
	kind := imagefile.KindFromPath(input)
	if kind == imagefile.Raw || kind == imagefile.RawZstd {
		width, height = c.width, c.height
		if width <= 0 || height <= 0 {
			return shjpeg.Buffer{}, nil, 0, 0, 0, fmt.Errorf("%s: raw input requires -width and -height", input)
		}
		pitch = c.pitchFor(width)
		buf, free, err = surface(ctx, c.format, width, height, pitch)
		if err != nil {
			return shjpeg.Buffer{}, nil, 0, 0, 0, err
		}
		if err := imagefile.ReadRaw(r, kind, buf.B[:c.format.PlaneBytes(height, pitch)]); err != nil {
			free()
			return shjpeg.Buffer{}, nil, 0, 0, 0, fmt.Errorf("%s: %v", input, err)
		}
		return buf, free, width, height, pitch, nil
	}

	img, err := imagefile.Decode(r)
	if err != nil {
		return shjpeg.Buffer{}, nil, 0, 0, 0, fmt.Errorf("%s: %v", input, err)
	}
	width, height = img.Bounds().Dx(), img.Bounds().Dy()
	pitch = c.pitchFor(width)
	buf, free, err = surface(ctx, c.format, width, height, pitch)
	if err != nil {
		return shjpeg.Buffer{}, nil, 0, 0, 0, err
	}
	im, err := softconv.NewImage(c.format, buf.B, width, height, pitch)
	if err != nil {
		free()
		return shjpeg.Buffer{}, nil, 0, 0, 0, err
	}
	softconv.Draw(im, img)
	return buf, free, width, height, pitch, nil
}

func (c *config) encodeFile(input string) error {
	ctx, err := c.newContext()
	if err != nil {
		return err
	}
	defer shjpeg.Shutdown(ctx)
	ctx.Mode444 = c.sampling == "444"

	buf, free, width, height, pitch, err := c.load(ctx, input)
	if err != nil {
		return err
	}
	defer free()

	output := c.outputPath(input, ".jpg")
	var (
		mem  *stream.MemorySink
		sink interface{ Err() error }
	)
	switch {
	case output != "-":
		fs := &stream.FileSink{Path: output}
		ctx.Stream, sink = fs, fs
	case c.policy == shjpeg.PolicyAuto:
		// a software retry restarts the output, which stdout cannot do
		mem = &stream.MemorySink{}
		ctx.Stream = mem
	default:
		ws := stream.NewWriterSink(os.Stdout)
		ctx.Stream, sink = ws, ws
	}
	start := time.Now()
	if err := shjpeg.Encode(ctx, c.format, buf, width, height, pitch); err != nil {
		return err
	}
	if sink != nil {
		if err := sink.Err(); err != nil {
			return err
		}
	}
	if mem != nil {
		if _, err := os.Stdout.Write(mem.Bytes()); err != nil {
			return err
		}
	}
	log.Printf("%s: encoded %dx%d (pitch %d) %v in %v, software: %v -> %s",
		input, width, height, pitch, c.format, time.Since(start), ctx.SoftwareUsed, output)
	return nil
}

func logic() error {
	var (
		format = flag.String("format",
			"rgb32",
			"pixel format of the uncompressed side: rgb16, rgb24, rgb32, nv12, nv16 or ycbcr")

		policy = flag.String("policy",
			"auto",
			"auto uses the JPU and falls back to software, hardware never falls back, software never uses the JPU")

		outputType = flag.String("output_type",
			"raw",
			"file type of decoded images: raw, zst (zstd-compressed raw), png, bmp or tiff")

		outputDir = flag.String("output_dir",
			"",
			"directory to write results to. Defaults to the directory of each input file")

		width   = flag.Int("width", 0, "width of raw input files")
		height  = flag.Int("height", 0, "height of raw input files")
		pitch   = flag.Int("pitch", 0, "bytes per line of the surface. Defaults to the width, rounded up to 8 bytes")
		quality = flag.Int("quality", 0, "JPEG quality of the software encoder (1-100, 0 for the default)")

		sampling = flag.String("sampling",
			"",
			"set to 444 to encode 4:4:4 JPEG files (software only)")

		decode   = flag.Bool("decode", false, "decode stdin (input file -) instead of encoding it")
		jobs     = flag.Int("jobs", runtime.NumCPU(), "number of files to process in parallel")
		simulate = flag.Bool("simulate", false, "use a simulated JPU instead of the hardware of this machine")
		verbose  = flag.Bool("verbose", false, "log every codec operation")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		return fmt.Errorf("syntax: shjpeg [flags] <file>...")
	}

	c := &config{
		width:     *width,
		height:    *height,
		pitch:     *pitch,
		quality:   *quality,
		sampling:  *sampling,
		outputDir: *outputDir,
		verbose:   *verbose,
		decode:    *decode,
	}
	var err error
	if c.format, err = shjpeg.ParseFormat(*format); err != nil {
		return err
	}
	if c.policy, err = shjpeg.ParsePolicy(*policy); err != nil {
		return err
	}
	if c.outputType, err = imagefile.ParseKind(*outputType); err != nil {
		return err
	}
	if *simulate {
		c.manager = shjpeg.NewManager(jpusim.New(jpusim.Options{}).Open)
	} else {
		c.manager = shjpeg.DefaultManager()
	}

	// Keep the hardware open for all files.
	keep, err := shjpeg.NewContext(c.manager, c.verbose)
	if err != nil {
		return fmt.Errorf("%v (use -simulate on machines without a JPU)", err)
	}
	defer shjpeg.Shutdown(keep)

	if *jobs < 1 {
		*jobs = 1
	}
	sem := make(chan struct{}, *jobs)
	var eg errgroup.Group
	for _, input := range flag.Args() {
		input := input // copy
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()
			process := c.encodeFile
			if isJPEG(input) || (input == "-" && c.decode) {
				process = c.decodeFile
			}
			if err := process(input); err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func main() {
	if err := logic(); err != nil {
		log.Fatal(err)
	}
}
