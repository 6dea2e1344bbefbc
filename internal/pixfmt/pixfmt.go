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

// Package pixfmt describes the pixel formats understood by the JPEG unit and
// its software fallback.
//
// A format is a packed integer: id<<24 | pitch<<16 | bpp<<8 | planes. The
// pitch multiplier is the number of bytes per pixel in the first plane, planes
// is the total plane size in units of half a luma plane.
package pixfmt

import (
	"fmt"
	"strings"
)

type Format uint32

const (
	None  Format = 0
	RGB16 Format = 1<<24 | 2<<16 | 16<<8 | 2
	RGB24 Format = 2<<24 | 3<<16 | 24<<8 | 2
	RGB32 Format = 3<<24 | 4<<16 | 32<<8 | 2
	NV12  Format = 4<<24 | 1<<16 | 12<<8 | 3 // 4:2:0, Y plane followed by interleaved CbCr
	NV16  Format = 5<<24 | 1<<16 | 16<<8 | 4 // 4:2:2, Y plane followed by interleaved CbCr
	YCbCr Format = 7<<24 | 3<<16 | 24<<8 | 2 // packed 4:4:4
)

// All lists every supported format, in id order.
var All = []Format{RGB16, RGB24, RGB32, NV12, NV16, YCbCr}

func (f Format) ID() int { return int(f >> 24) }

// PitchMultiplier returns the number of bytes per pixel in the first plane.
func (f Format) PitchMultiplier() int { return int(f>>16) & 0xff }

func (f Format) BPP() int { return int(f>>8) & 0xff }

func (f Format) PlaneMultiplier() int { return int(f) & 0xff }

// PlaneBytes returns the number of bytes a surface of the given height and
// pitch occupies, including all planes.
func (f Format) PlaneBytes(height, pitch int) int {
	return f.PlaneMultiplier() * height / 2 * pitch
}

// Planar reports whether f stores chroma in a separate plane after luma.
func (f Format) Planar() bool { return f == NV12 || f == NV16 }

func (f Format) Valid() bool {
	for _, v := range All {
		if f == v {
			return true
		}
	}
	return false
}

func (f Format) String() string {
	switch f {
	case None:
		return "none"
	case RGB16:
		return "rgb16"
	case RGB24:
		return "rgb24"
	case RGB32:
		return "rgb32"
	case NV12:
		return "nv12"
	case NV16:
		return "nv16"
	case YCbCr:
		return "ycbcr"
	default:
		return fmt.Sprintf("format(%#08x)", uint32(f))
	}
}

// Parse returns the format named s (case-insensitive), as printed by String.
func Parse(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, f := range All {
		if f.String() == s {
			return f, nil
		}
	}
	return None, fmt.Errorf("unknown pixel format %q", s)
}
