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
	"errors"
	"fmt"

	"golang.org/x/net/trace"

	"github.com/stapelberg/shjpeg/internal/convert"
	"github.com/stapelberg/shjpeg/internal/jpu"
	"github.com/stapelberg/shjpeg/internal/softconv"
	"github.com/stapelberg/shjpeg/internal/stream"
	"github.com/stapelberg/shjpeg/internal/swcodec"
)

// DecodeInit initializes ctx.Stream and reads the JPEG header, setting
// ctx.Width, ctx.Height, ctx.Mode420 and ctx.Mode444.
func DecodeInit(ctx *Context) error {
	if err := ctx.begin(); err != nil {
		return err
	}
	defer ctx.end()
	if ctx.Stream == nil {
		return fmt.Errorf("%w: no stream", ErrInvalidArgument)
	}
	if ctx.recorder != nil {
		ctx.finishDecode()
	}
	if err := ctx.Stream.Init(); err != nil {
		ctx.Stream.Finalize()
		return &StreamError{Op: "init", Err: err}
	}
	// The bytes read here are replayed to DecodeRun.
	rec := stream.NewRecorder(ctx.Stream)
	hdr, err := swcodec.ReadHeader(newStreamReader(rec))
	if err != nil {
		ctx.Stream.Finalize()
		return codecError(err)
	}
	ctx.recorder = rec
	ctx.header = hdr
	ctx.Width = hdr.Width
	ctx.Height = hdr.Height
	ctx.Mode420 = hdr.Mode420()
	ctx.Mode444 = hdr.Mode444()
	ctx.logf("header: %dx%d, %d components, sampling %v, baseline %v",
		hdr.Width, hdr.Height, hdr.Components, hdr.Sampling, hdr.Baseline)
	return nil
}

// DecodeShutdown finalizes ctx.Stream. ctx can be used for another
// DecodeInit afterwards.
func DecodeShutdown(ctx *Context) error {
	if err := ctx.begin(); err != nil {
		return err
	}
	defer ctx.end()
	ctx.finishDecode()
	return nil
}

func (ctx *Context) finishDecode() {
	if ctx.recorder == nil {
		return
	}
	ctx.Stream.Finalize()
	ctx.recorder = nil
	ctx.header = nil
	// a later Encode must not inherit the sampling of this image
	ctx.Mode444 = false
}

// DecodeRun decodes the image into dst, a surface of the given format and
// size, which must be at least as large as the image. The image is placed in
// the top left corner.
func DecodeRun(ctx *Context, format PixelFormat, dst Buffer, width, height, pitch int) error {
	if err := ctx.begin(); err != nil {
		return err
	}
	defer ctx.end()
	if ctx.recorder == nil {
		return fmt.Errorf("%w: DecodeInit was not called", ErrInvalidContext)
	}
	if err := checkSurface(format, dst, width, height, pitch); err != nil {
		return err
	}
	if width < ctx.Width || height < ctx.Height {
		return fmt.Errorf("%w: %dx%d surface too small for %dx%d image",
			ErrInvalidArgument, width, height, ctx.Width, ctx.Height)
	}

	tr := trace.New("shjpeg.Decode", ctx.id)
	defer tr.Finish()
	tr.LazyPrintf("%dx%d image into %dx%d %v (pitch %d, phys %#x), policy %v",
		ctx.Width, ctx.Height, width, height, format, pitch, dst.Phys, ctx.Policy)

	ctx.SoftwareUsed = false
	if ctx.Policy != PolicySoftwareOnly {
		err := ctx.decodeHardware(tr, format, dst, width, height, pitch)
		if err == nil {
			ctx.logf("decoded %dx%d %v in hardware", width, height, format)
			return nil
		}
		tr.LazyPrintf("hardware: %v", err)
		if ctx.Policy == PolicyHardwareOnly {
			tr.SetError()
			return err
		}
		if !errors.Is(err, ErrUnsupported) {
			ctx.logf("hardware decode failed, retrying in software: %v", err)
		}
	}

	if err := ctx.decodeSoftware(format, dst, width, height, pitch); err != nil {
		tr.LazyPrintf("software: %v", err)
		tr.SetError()
		return err
	}
	ctx.SoftwareUsed = true
	ctx.logf("decoded %dx%d %v in software", width, height, format)
	return nil
}

// frameMode reports whether the JPU can write the image to a surface of
// format directly, without line buffers.
func (ctx *Context) frameMode(format PixelFormat) bool {
	return (ctx.header.Mode420() && format == NV12) ||
		(ctx.header.Mode422() && format == NV16)
}

func (ctx *Context) checkDecodeHardware(format PixelFormat, dst Buffer, width, height, pitch int) error {
	hdr := ctx.header
	switch {
	case !dst.Hardware():
		return fmt.Errorf("%w: destination not in contiguous memory", ErrUnsupported)
	case hdr.Components != 3:
		return fmt.Errorf("%w: %d components", ErrUnsupported, hdr.Components)
	case !hdr.Mode420() && !hdr.Mode422():
		return fmt.Errorf("%w: sampling factors %v", ErrUnsupported, hdr.Sampling)
	case !hdr.Baseline:
		return fmt.Errorf("%w: not a baseline JPEG", ErrUnsupported)
	case width != ctx.Width || height != ctx.Height:
		return fmt.Errorf("%w: surface size %dx%d differs from image size %dx%d",
			ErrUnsupported, width, height, ctx.Width, ctx.Height)
	}
	if ctx.frameMode(format) {
		if pitch%8 != 0 {
			return fmt.Errorf("%w: pitch %d not a multiple of 8", ErrUnsupported, pitch)
		}
		return nil
	}
	if width > jpu.LineBufferPitch {
		return fmt.Errorf("%w: width %d exceeds line buffer", ErrUnsupported, width)
	}
	if format != YCbCr && ctx.group.VEU == nil {
		return fmt.Errorf("%w: converting to %v requires the VEU", ErrUnsupported, format)
	}
	return nil
}

func (ctx *Context) decodeHardware(tr trace.Trace, format PixelFormat, dst Buffer, width, height, pitch int) error {
	if err := ctx.checkDecodeHardware(format, dst, width, height, pitch); err != nil {
		return err
	}

	g := ctx.group
	g.Lock()
	defer g.Unlock()
	tr.LazyPrintf("acquired hardware")

	ctx.recorder.Rewind()
	fill := func(slot jpu.Slot) (int, error) {
		n, err := ctx.recorder.Read(g.ReloadBuffer(slot))
		if err != nil {
			return n, &StreamError{Op: "read", Err: err}
		}
		return n, nil
	}
	n, err := fill(0)
	if err != nil {
		return err
	}

	cfg := jpu.DecodeConfig{
		Buffers:      g.Buffers(),
		Length:       n,
		ReloadEnable: n == jpu.ReloadSize,
		LineMode:     !ctx.frameMode(format),
		Dst: jpu.Frame{
			Y:     dst.Phys,
			C:     dst.Phys + uint32(pitch*height),
			Pitch: pitch,
		},
	}
	run := jpu.Run{State: jpu.StateStart, Buffers: 1}
	if cfg.ReloadEnable {
		run.Flags |= jpu.FlagReload
	}

	var conv jpu.Converter
	if cfg.LineMode {
		mode := convert.Hardware
		if format == YCbCr {
			mode = convert.Software
		}
		stage, err := convert.New(convert.Config{
			Mode:    mode,
			Mode420: ctx.header.Mode420(),
			Format:  format,
			Width:   width,
			Height:  height,
			Pitch:   pitch,
			Surface: dst,
			Group:   g,
		})
		if err != nil {
			return err
		}
		if mode == convert.Hardware {
			defer g.VEU.Stop()
		}
		conv = stage
		run.Flags |= jpu.FlagConvert
		tr.LazyPrintf("line buffer mode, %v conversion", mode)
	} else {
		tr.LazyPrintf("frame mode")
	}

	jpu.ProgramDecode(g.Regs, cfg)
	ctl := jpu.NewController(g.Regs, g.IRQ, conv, tr.LazyPrintf)
	return ctl.Decode(&run, fill)
}

func (ctx *Context) decodeSoftware(format PixelFormat, dst Buffer, width, height, pitch int) error {
	im, err := softconv.NewImage(format, dst.B, width, height, pitch)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	ctx.recorder.Rewind()
	if err := swcodec.Decode(newStreamReader(ctx.recorder), im); err != nil {
		return codecError(err)
	}
	return nil
}
