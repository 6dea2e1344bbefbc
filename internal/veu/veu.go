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

// Package veu drives the video engine unit (VEU) of SH-Mobile SoCs, which
// converts images between YCbCr and RGB layouts using DMA.
package veu

import (
	"fmt"
	"time"

	"github.com/stapelberg/shjpeg/internal/pixfmt"
	"github.com/stapelberg/shjpeg/internal/uio"
)

// Register offsets within the VEU register window.
const (
	VESTR = 0x00 // start
	VESWR = 0x10 // source memory width
	VESSR = 0x14 // source size
	VSAYR = 0x18 // source Y address
	VSACR = 0x1c // source C address
	VBSSR = 0x20 // bundle source size
	VEDWR = 0x30 // destination memory width
	VDAYR = 0x34 // destination Y address
	VDACR = 0x38 // destination C address
	VTRCR = 0x50 // transform control
	VRFCR = 0x54 // resize scale
	VRFSR = 0x58 // resize clip
	VENHR = 0x5c // enhancer
	VFMCR = 0x70 // filter mode
	VAPCR = 0x80 // color key
	VSWPR = 0x94 // swap
	VEIER = 0xa0 // interrupt enable
	VEVTR = 0xa4 // event
	VSTAR = 0xb0 // status
	VBSRR = 0xb4 // reset
	VRPBR = 0xc8 // resize passband
)

const (
	VESTR_START  = 1 << 0
	VESTR_BUNDLE = 1 << 8

	VTRCR_CONVERT = 1 << 0
)

// Format is a pixel layout understood by the VEU. The value is stored in the
// VTRCR source and destination fields.
type Format uint32

const (
	YCbCr420 Format = iota
	YCbCr422
	RGB565
	RGB888
	RGBX8888
)

// FormatOf returns the VEU layout of f. Packed YCbCr has no VEU layout.
func FormatOf(f pixfmt.Format) (Format, bool) {
	switch f {
	case pixfmt.NV12:
		return YCbCr420, true
	case pixfmt.NV16:
		return YCbCr422, true
	case pixfmt.RGB16:
		return RGB565, true
	case pixfmt.RGB24:
		return RGB888, true
	case pixfmt.RGB32:
		return RGBX8888, true
	}
	return 0, false
}

// Pixel returns the pixel format which corresponds to f.
func (f Format) Pixel() pixfmt.Format {
	switch f {
	case YCbCr420:
		return pixfmt.NV12
	case YCbCr422:
		return pixfmt.NV16
	case RGB565:
		return pixfmt.RGB16
	case RGB888:
		return pixfmt.RGB24
	case RGBX8888:
		return pixfmt.RGB32
	}
	return pixfmt.None
}

// Plane describes one side of a conversion.
type Plane struct {
	Width, Height int
	Pitch         int
	Y, C          uint32
}

// Config is the setup of a sequence of conversions.
type Config struct {
	Src, Dst             Plane
	SrcFormat, DstFormat Format
	// BundleLines is the number of source lines read per start in bundle
	// mode.
	BundleLines int
}

// Engine is a VEU.
type Engine struct {
	regs uio.Registers
	irq  uio.Interrupt
}

func New(regs uio.Registers, irq uio.Interrupt) *Engine {
	return &Engine{regs: regs, irq: irq}
}

// Setup resets the engine and programs a conversion from cfg.Src to cfg.Dst
// without scaling.
func (e *Engine) Setup(cfg Config) {
	e.regs.Write32(VBSRR, 0x100)

	e.regs.Write32(VESWR, uint32(cfg.Src.Pitch))
	e.regs.Write32(VESSR, uint32(cfg.Src.Height)<<16|uint32(cfg.Src.Width))
	e.regs.Write32(VSAYR, cfg.Src.Y)
	e.regs.Write32(VSACR, cfg.Src.C)
	e.regs.Write32(VBSSR, uint32(cfg.BundleLines))

	e.regs.Write32(VEDWR, uint32(cfg.Dst.Pitch))
	e.regs.Write32(VDAYR, cfg.Dst.Y)
	e.regs.Write32(VDACR, cfg.Dst.C)

	e.regs.Write32(VTRCR, uint32(cfg.DstFormat)<<16|uint32(cfg.SrcFormat)<<8|VTRCR_CONVERT)
	e.regs.Write32(VRFCR, 0)
	e.regs.Write32(VRFSR, uint32(cfg.Dst.Height)<<16|uint32(cfg.Dst.Width))
	e.regs.Write32(VENHR, 0)
	e.regs.Write32(VFMCR, 0)
	e.regs.Write32(VAPCR, 0)
	e.regs.Write32(VSWPR, 0)

	e.regs.Write32(VRPBR, 0x00400040)
	e.regs.Write32(VEIER, 0x101)
}

func (e *Engine) SetSrc(y, c uint32) {
	e.regs.Write32(VSAYR, y)
	e.regs.Write32(VSACR, c)
}

func (e *Engine) SetDst(y, c uint32) {
	e.regs.Write32(VDAYR, y)
	e.regs.Write32(VDACR, c)
}

// SetSourceSize changes the source size, e.g. for the last strip of an image.
func (e *Engine) SetSourceSize(width, height int) {
	e.regs.Write32(VESSR, uint32(height)<<16|uint32(width))
}

// Start triggers a conversion. In bundle mode the engine continues writing
// the destination where the previous bundle ended.
func (e *Engine) Start(bundle bool) {
	v := uint32(VESTR_START)
	if bundle {
		v |= VESTR_BUNDLE
	}
	e.regs.Write32(VESTR, v)
}

// Wait blocks until the current conversion completed.
func (e *Engine) Wait(timeout time.Duration) error {
	if err := e.irq.Wait(timeout); err != nil {
		return fmt.Errorf("veu: %w", err)
	}
	e.regs.Write32(VEVTR, 0)
	return e.irq.Enable()
}

// Stop disables the engine's interrupts.
func (e *Engine) Stop() {
	e.regs.Write32(VEIER, 0)
}
