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

package shjpeg

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/stapelberg/shjpeg/internal/resource"
	"github.com/stapelberg/shjpeg/internal/stream"
	"github.com/stapelberg/shjpeg/internal/swcodec"
)

// Context holds the state of one decode or encode. A Context must not be
// used by multiple goroutines at the same time; use one Context per
// goroutine instead.
type Context struct {
	// Width and Height are the image size, set by DecodeInit.
	Width, Height int

	// Mode420 is set by DecodeInit for 4:2:0 images.
	Mode420 bool

	// Mode444 is set by DecodeInit for 4:4:4 images and cleared by
	// DecodeShutdown. Set it before Encode to request a 4:4:4 JPEG, which
	// only the software encoder produces.
	Mode444 bool

	Stream StreamOps

	// Private is not used by shjpeg.
	Private interface{}

	Policy Policy

	// SoftwareUsed reports whether the last DecodeRun or Encode was
	// processed in software.
	SoftwareUsed bool

	// Verbose enables log messages about every operation.
	Verbose bool

	// Quality is the JPEG quality of the software encoder, 1 to 100. Zero
	// selects a default. The hardware always uses its fixed tables.
	Quality int

	id      string
	manager *Manager
	group   *resource.Group

	busy     int32
	released bool

	// decode state, between DecodeInit and DecodeShutdown
	recorder *stream.Recorder
	header   *swcodec.Header
}

var (
	defaultManagerOnce sync.Once
	defaultManager     *Manager
)

// Init returns a Context using the hardware of this machine. The hardware is
// opened by the first call and closed by the Shutdown of the last Context.
func Init(verbose bool) (*Context, error) {
	return NewContext(DefaultManager(), verbose)
}

// DefaultManager returns the Manager of the hardware of this machine.
func DefaultManager() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager(openDevice)
	})
	return defaultManager
}

// NewContext returns a Context using the hardware managed by m.
func NewContext(m *Manager, verbose bool) (*Context, error) {
	g, err := m.Acquire()
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		Verbose: verbose,
		id:      uuid.New().String(),
		manager: m,
		group:   g,
	}
	ctx.logf("context created (%d in use)", m.Refs())
	return ctx, nil
}

// Shutdown releases ctx. The hardware is closed when the last Context is
// shut down.
func Shutdown(ctx *Context) error {
	if err := ctx.begin(); err != nil {
		return err
	}
	defer ctx.end()
	if ctx.recorder != nil {
		ctx.finishDecode()
	}
	ctx.released = true
	ctx.group = nil
	ctx.logf("context released")
	return ctx.manager.Release()
}

// ID identifies ctx in log messages and traces.
func (ctx *Context) ID() string { return ctx.id }

func (ctx *Context) logf(format string, v ...interface{}) {
	if !ctx.Verbose {
		return
	}
	log.Printf("shjpeg %s: "+format, append([]interface{}{ctx.id}, v...)...)
}

// begin marks ctx as in use for the duration of one operation.
func (ctx *Context) begin() error {
	if ctx == nil || ctx.released {
		return ErrInvalidContext
	}
	if !atomic.CompareAndSwapInt32(&ctx.busy, 0, 1) {
		return fmt.Errorf("%w: concurrent use", ErrInvalidContext)
	}
	return nil
}

func (ctx *Context) end() { atomic.StoreInt32(&ctx.busy, 0) }

// GetFrameBuffer returns the contiguous memory which the hardware does not
// use itself. Buffers returned by Malloc are carved out of the same memory,
// so callers must use either GetFrameBuffer or Malloc.
func GetFrameBuffer(ctx *Context) (Buffer, error) {
	if ctx == nil || ctx.released {
		return Buffer{}, ErrInvalidContext
	}
	return ctx.group.FrameBuffer(), nil
}

// Malloc allocates contiguous memory for a surface of the given format and
// size.
func Malloc(ctx *Context, format PixelFormat, width, height, pitch int) (Buffer, error) {
	if ctx == nil || ctx.released {
		return Buffer{}, ErrInvalidContext
	}
	if err := checkGeometry(format, width, height, pitch); err != nil {
		return Buffer{}, err
	}
	b, err := ctx.group.Malloc(format.PlaneBytes(height, pitch))
	if err != nil {
		return Buffer{}, err
	}
	ctx.logf("allocated %d bytes at %#x for %dx%d %v", len(b.B), b.Phys, width, height, format)
	return b, nil
}

// Free returns a buffer obtained from Malloc.
func Free(ctx *Context, b Buffer) error {
	if ctx == nil || ctx.released {
		return ErrInvalidContext
	}
	return ctx.group.Free(b)
}

// NewBuffer returns a buffer in ordinary memory, which is always processed
// in software.
func NewBuffer(format PixelFormat, width, height, pitch int) (Buffer, error) {
	if err := checkGeometry(format, width, height, pitch); err != nil {
		return Buffer{}, err
	}
	return Buffer{B: make([]byte, format.PlaneBytes(height, pitch))}, nil
}

func checkGeometry(format PixelFormat, width, height, pitch int) error {
	if !format.Valid() {
		return fmt.Errorf("%w: pixel format %v", ErrInvalidArgument, format)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidArgument, width, height)
	}
	minPitch := width * format.PitchMultiplier()
	if format.Planar() {
		minPitch = (width + 1) &^ 1
	}
	if pitch < minPitch {
		return fmt.Errorf("%w: pitch %d < %d for %d pixels of %v", ErrInvalidArgument, pitch, minPitch, width, format)
	}
	return nil
}

func checkSurface(format PixelFormat, b Buffer, width, height, pitch int) error {
	if err := checkGeometry(format, width, height, pitch); err != nil {
		return err
	}
	if need := format.PlaneBytes(height, pitch); len(b.B) < need {
		return fmt.Errorf("%w: buffer of %d bytes too small for %dx%d %v (%d bytes)",
			ErrInvalidArgument, len(b.B), width, height, format, need)
	}
	return nil
}

// streamReader reports read errors of the stream as *StreamError.
type streamReader struct {
	r stream.Reader
}

func newStreamReader(ops StreamOps) *streamReader {
	return &streamReader{r: stream.Reader{Ops: ops}}
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = &StreamError{Op: "read", Err: err}
	}
	return n, err
}

// streamWriter reports write errors of the stream as *StreamError.
type streamWriter struct {
	ops StreamOps
}

func (s streamWriter) Write(p []byte) (int, error) {
	if err := s.ops.Write(p); err != nil {
		return 0, &StreamError{Op: "write", Err: err}
	}
	return len(p), nil
}
