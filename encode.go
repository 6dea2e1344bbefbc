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

// maxEncodePitch is the largest source pitch JIFESMW can express.
const maxEncodePitch = 0xff8

// Encode encodes src, a surface of the given format and size, as JPEG into
// ctx.Stream. The stream is initialized before and finalized after encoding.
func Encode(ctx *Context, format PixelFormat, src Buffer, width, height, pitch int) (err error) {
	if err := ctx.begin(); err != nil {
		return err
	}
	defer ctx.end()
	if ctx.Stream == nil {
		return fmt.Errorf("%w: no stream", ErrInvalidArgument)
	}
	if err := checkSurface(format, src, width, height, pitch); err != nil {
		return err
	}

	tr := trace.New("shjpeg.Encode", ctx.id)
	defer tr.Finish()
	tr.LazyPrintf("%dx%d %v (pitch %d, phys %#x), policy %v, 4:4:4 %v",
		width, height, format, pitch, src.Phys, ctx.Policy, ctx.Mode444)

	if err := ctx.Stream.Init(); err != nil {
		ctx.Stream.Finalize()
		return &StreamError{Op: "init", Err: err}
	}
	defer func() {
		if err != nil {
			tr.SetError()
			if a, ok := ctx.Stream.(stream.Aborter); ok {
				a.Abort()
			}
		}
		ctx.Stream.Finalize()
	}()

	ctx.Width = width
	ctx.Height = height
	ctx.SoftwareUsed = false
	if ctx.Policy != PolicySoftwareOnly {
		err = ctx.encodeHardware(tr, format, src, width, height, pitch)
		if err == nil {
			ctx.logf("encoded %dx%d %v in hardware", width, height, format)
			return nil
		}
		tr.LazyPrintf("hardware: %v", err)
		if ctx.Policy == PolicyHardwareOnly {
			return err
		}
		if !errors.Is(err, ErrUnsupported) {
			ctx.logf("hardware encode failed, retrying in software: %v", err)
		}
		// discard partial output of the hardware attempt
		if err = ctx.Stream.Init(); err != nil {
			return &StreamError{Op: "init", Err: err}
		}
	}

	im, err := softconv.NewImage(format, src.B, width, height, pitch)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err = swcodec.Encode(streamWriter{ops: ctx.Stream}, im, ctx.Quality); err != nil {
		tr.LazyPrintf("software: %v", err)
		return codecError(err)
	}
	ctx.SoftwareUsed = true
	ctx.logf("encoded %dx%d %v in software", width, height, format)
	return nil
}

func encodeFrameMode(format PixelFormat) bool {
	return format == NV12 || format == NV16
}

func (ctx *Context) checkEncodeHardware(format PixelFormat, src Buffer, width, height, pitch int) error {
	switch {
	case ctx.Mode444:
		return fmt.Errorf("%w: 4:4:4 output", ErrUnsupported)
	case !src.Hardware():
		return fmt.Errorf("%w: source not in contiguous memory", ErrUnsupported)
	case width > 0xffff || height > 0xffff:
		return fmt.Errorf("%w: size %dx%d", ErrUnsupported, width, height)
	}
	if encodeFrameMode(format) {
		if pitch%8 != 0 || pitch > maxEncodePitch {
			return fmt.Errorf("%w: pitch %d", ErrUnsupported, pitch)
		}
		return nil
	}
	if width > jpu.LineBufferPitch {
		return fmt.Errorf("%w: width %d exceeds line buffer", ErrUnsupported, width)
	}
	if format != YCbCr && ctx.group.VEU == nil {
		return fmt.Errorf("%w: converting from %v requires the VEU", ErrUnsupported, format)
	}
	return nil
}

func (ctx *Context) encodeHardware(tr trace.Trace, format PixelFormat, src Buffer, width, height, pitch int) error {
	if err := ctx.checkEncodeHardware(format, src, width, height, pitch); err != nil {
		return err
	}

	g := ctx.group
	g.Lock()
	defer g.Unlock()
	tr.LazyPrintf("acquired hardware")

	frame := encodeFrameMode(format)
	cfg := jpu.EncodeConfig{
		Buffers:  g.Buffers(),
		Width:    width,
		Height:   height,
		Mode420:  frame && format == NV12,
		LineMode: !frame,
		Src: jpu.Frame{
			Y:     src.Phys,
			C:     src.Phys + uint32(pitch*height),
			Pitch: pitch,
		},
	}
	run := jpu.Run{
		State:   jpu.StateStart,
		Flags:   jpu.FlagEncode | jpu.FlagReload,
		Buffers: 3,
	}

	var conv jpu.Converter
	if cfg.LineMode {
		mode := convert.Hardware
		if format == YCbCr {
			mode = convert.Software
		}
		stage, err := convert.New(convert.Config{
			Mode:    mode,
			Encode:  true,
			Format:  format,
			Width:   width,
			Height:  height,
			Pitch:   pitch,
			Surface: src,
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
		tr.LazyPrintf("frame mode, 4:2:0 %v", cfg.Mode420)
	}

	jpu.ProgramEncode(g.Regs, cfg)
	ctl := jpu.NewController(g.Regs, g.IRQ, conv, tr.LazyPrintf)
	return ctl.Encode(&run, func(slot jpu.Slot, n int) error {
		if err := ctx.Stream.Write(g.ReloadBuffer(slot)[:n]); err != nil {
			return &StreamError{Op: "write", Err: err}
		}
		return nil
	})
}
