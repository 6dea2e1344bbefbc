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

// Package shjpeg decodes and encodes JPEG images with the JPEG processing
// unit (JPU) of Renesas SH-Mobile SoCs. Images the JPU cannot handle, and
// operations which fail in hardware, are transparently processed in software
// instead; Context.SoftwareUsed tells callers which path was taken.
//
// A typical decode looks like this:
//
//	ctx, err := shjpeg.Init(false)
//	// …
//	defer shjpeg.Shutdown(ctx)
//	ctx.Stream = &stream.FileSource{Path: "in.jpg"}
//	if err := shjpeg.DecodeInit(ctx); err != nil {
//		// …
//	}
//	defer shjpeg.DecodeShutdown(ctx)
//	buf, err := shjpeg.Malloc(ctx, shjpeg.RGB32, ctx.Width, ctx.Height, 4*ctx.Width)
//	// …
//	err = shjpeg.DecodeRun(ctx, shjpeg.RGB32, buf, ctx.Width, ctx.Height, 4*ctx.Width)
package shjpeg

import (
	"fmt"

	"github.com/stapelberg/shjpeg/internal/pixfmt"
	"github.com/stapelberg/shjpeg/internal/resource"
	"github.com/stapelberg/shjpeg/internal/stream"
)

// PixelFormat is the layout of an uncompressed surface. Its value packs the
// pitch multiplier, bits per pixel and plane size (see PlaneBytes).
type PixelFormat = pixfmt.Format

const (
	FormatNone = pixfmt.None
	RGB16      = pixfmt.RGB16
	RGB24      = pixfmt.RGB24
	RGB32      = pixfmt.RGB32
	NV12       = pixfmt.NV12
	NV16       = pixfmt.NV16
	YCbCr      = pixfmt.YCbCr
)

// ParseFormat returns the format called s, e.g. "rgb32" or "nv12".
func ParseFormat(s string) (PixelFormat, error) { return pixfmt.Parse(s) }

// Buffer is a surface in memory. Buffers with a non-zero Phys address are
// physically contiguous and can be accessed by the hardware; others are
// processed in software.
type Buffer = resource.Buffer

// StreamOps is the I/O contract of a Context: decodes read the JPEG data
// from it, encodes write the JPEG data to it. See package stream for
// ready-made sources and sinks.
type StreamOps = stream.Ops

// Manager hands out the shared hardware resources, opening them on first
// use and closing them when the last Context was shut down.
type Manager = resource.Manager

// Opener opens the hardware resources of a Manager.
type Opener = resource.Opener

// NewManager returns a Manager which calls open on first use.
func NewManager(open Opener) *Manager { return resource.NewManager(open) }

// Policy selects between the hardware and the software implementation.
type Policy int

const (
	// PolicyAuto uses the hardware when possible and falls back to
	// software on failure.
	PolicyAuto Policy = iota

	// PolicyHardwareOnly returns hardware failures instead of falling back
	// to software.
	PolicyHardwareOnly

	// PolicySoftwareOnly never uses the hardware.
	PolicySoftwareOnly
)

func (p Policy) String() string {
	switch p {
	case PolicyAuto:
		return "auto"
	case PolicyHardwareOnly:
		return "hardware"
	case PolicySoftwareOnly:
		return "software"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses the String representation of a Policy.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range []Policy{PolicyAuto, PolicyHardwareOnly, PolicySoftwareOnly} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown policy %q (want auto, hardware or software)", s)
}
