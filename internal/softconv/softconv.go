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

// Package softconv converts pixel data between the layouts supported by the
// codec on the CPU. All conversions go through rows of packed YCbCr 4:4:4
// (three bytes per pixel, full range as in JFIF).
package softconv

import (
	"encoding/binary"
	"fmt"
	"image/color"

	"github.com/stapelberg/shjpeg/internal/pixfmt"
)

// Image is a surface in one of the pixfmt layouts. For NV12 and NV16, Y holds
// the luma plane and C the interleaved Cb/Cr plane, both Pitch bytes per
// line. For all other layouts C is unused.
type Image struct {
	Format        pixfmt.Format
	Width, Height int
	Pitch         int
	Y, C          []byte
}

// NewImage returns an Image describing buf, with the chroma plane of NV12
// and NV16 following the luma plane as in a frame buffer.
func NewImage(format pixfmt.Format, buf []byte, width, height, pitch int) (*Image, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("invalid pixel format %v", format)
	}
	if need := format.PlaneBytes(height, pitch); len(buf) < need {
		return nil, fmt.Errorf("buffer too small for %dx%d %v (pitch %d): %d < %d bytes",
			width, height, format, pitch, len(buf), need)
	}
	minPitch := width * format.PitchMultiplier()
	if format.Planar() {
		minPitch = evenWidth(width)
	}
	if pitch < minPitch {
		return nil, fmt.Errorf("pitch %d too small for %d pixels of %v", pitch, width, format)
	}
	im := &Image{
		Format: format,
		Width:  width,
		Height: height,
		Pitch:  pitch,
		Y:      buf,
	}
	if format.Planar() {
		im.Y = buf[:pitch*height]
		im.C = buf[pitch*height:]
	}
	return im, nil
}

// RowBytes returns the size of a packed YCbCr row for this image.
func (im *Image) RowBytes() int { return 3 * im.Width }

// evenWidth rounds up to a multiple of two, the chroma granularity of the
// planar layouts.
func evenWidth(w int) int { return (w + 1) &^ 1 }

// Row reads line y into row as packed YCbCr.
func (im *Image) Row(y int, row []byte) {
	w := im.Width
	switch im.Format {
	case pixfmt.YCbCr:
		copy(row[:3*w], im.Y[y*im.Pitch:])

	case pixfmt.NV12, pixfmt.NV16:
		cy := y
		if im.Format == pixfmt.NV12 {
			cy = y / 2
			// odd heights share the last complete chroma line
			if cy > 0 && cy*im.Pitch+evenWidth(w) > len(im.C) {
				cy--
			}
		}
		luma := im.Y[y*im.Pitch:]
		chroma := im.C[cy*im.Pitch:]
		for x := 0; x < w; x++ {
			row[3*x+0] = luma[x]
			row[3*x+1] = chroma[x&^1]
			row[3*x+2] = chroma[x&^1+1]
		}

	case pixfmt.RGB16:
		src := im.Y[y*im.Pitch:]
		for x := 0; x < w; x++ {
			v := binary.LittleEndian.Uint16(src[2*x:])
			r := uint8(v>>8) & 0xf8
			g := uint8(v>>3) & 0xfc
			b := uint8(v << 3)
			// replicate the high bits into the low bits
			r |= r >> 5
			g |= g >> 6
			b |= b >> 5
			row[3*x+0], row[3*x+1], row[3*x+2] = color.RGBToYCbCr(r, g, b)
		}

	case pixfmt.RGB24:
		src := im.Y[y*im.Pitch:]
		for x := 0; x < w; x++ {
			row[3*x+0], row[3*x+1], row[3*x+2] = color.RGBToYCbCr(src[3*x+0], src[3*x+1], src[3*x+2])
		}

	case pixfmt.RGB32:
		src := im.Y[y*im.Pitch:]
		for x := 0; x < w; x++ {
			v := binary.LittleEndian.Uint32(src[4*x:])
			row[3*x+0], row[3*x+1], row[3*x+2] = color.RGBToYCbCr(uint8(v>>16), uint8(v>>8), uint8(v))
		}
	}
}

// SetRow writes the packed YCbCr row to line y. For NV16 the chroma of each
// pixel pair is averaged; NV12 takes its chroma from the even lines only.
func (im *Image) SetRow(y int, row []byte) {
	w := im.Width
	switch im.Format {
	case pixfmt.YCbCr:
		copy(im.Y[y*im.Pitch:], row[:3*w])

	case pixfmt.NV12, pixfmt.NV16:
		luma := im.Y[y*im.Pitch:]
		for x := 0; x < w; x++ {
			luma[x] = row[3*x]
		}
		if im.Format == pixfmt.NV12 && y%2 == 1 {
			return
		}
		cy := y
		if im.Format == pixfmt.NV12 {
			cy = y / 2
		}
		if cy*im.Pitch+evenWidth(w) > len(im.C) {
			return
		}
		chroma := im.C[cy*im.Pitch:]
		for x := 0; x < evenWidth(w); x += 2 {
			x1 := x + 1
			if x1 >= w {
				x1 = x
			}
			chroma[x+0] = uint8((uint(row[3*x+1]) + uint(row[3*x1+1])) >> 1)
			chroma[x+1] = uint8((uint(row[3*x+2]) + uint(row[3*x1+2])) >> 1)
		}

	case pixfmt.RGB16:
		dst := im.Y[y*im.Pitch:]
		for x := 0; x < w; x++ {
			r, g, b := color.YCbCrToRGB(row[3*x+0], row[3*x+1], row[3*x+2])
			binary.LittleEndian.PutUint16(dst[2*x:], PixelRGB16(r, g, b))
		}

	case pixfmt.RGB24:
		dst := im.Y[y*im.Pitch:]
		for x := 0; x < w; x++ {
			dst[3*x+0], dst[3*x+1], dst[3*x+2] = color.YCbCrToRGB(row[3*x+0], row[3*x+1], row[3*x+2])
		}

	case pixfmt.RGB32:
		dst := im.Y[y*im.Pitch:]
		for x := 0; x < w; x++ {
			r, g, b := color.YCbCrToRGB(row[3*x+0], row[3*x+1], row[3*x+2])
			binary.LittleEndian.PutUint32(dst[4*x:], PixelRGB32(r, g, b))
		}
	}
}

// PixelRGB16 packs r, g and b into 5:6:5 bits.
func PixelRGB16(r, g, b uint8) uint16 {
	return uint16(r&0xf8)<<8 | uint16(g&0xfc)<<3 | uint16(b>>3)
}

// PixelRGB32 packs r, g and b into the low 24 bits.
func PixelRGB32(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// Convert copies lines lines, starting at line srcY of src, to dst starting
// at line dstY, converting the layout as necessary. The images must be of
// equal width.
func Convert(dst *Image, dstY int, src *Image, srcY int, lines int) {
	row := make([]byte, src.RowBytes())
	for i := 0; i < lines; i++ {
		src.Row(srcY+i, row)
		dst.SetRow(dstY+i, row)
	}
}
