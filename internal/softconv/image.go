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

package softconv

import (
	"image"
	"image/color"
)

// Draw writes img into im, which must be at least as large as img.
func Draw(im *Image, img image.Image) {
	b := img.Bounds()
	row := make([]byte, 3*im.Width)
	for y := 0; y < b.Dy() && y < im.Height; y++ {
		w := b.Dx()
		if w > im.Width {
			w = im.Width
		}
		if w == 0 {
			return
		}
		switch m := img.(type) {
		case *image.YCbCr:
			for x := 0; x < w; x++ {
				c := m.YCbCrAt(b.Min.X+x, b.Min.Y+y)
				row[3*x+0], row[3*x+1], row[3*x+2] = c.Y, c.Cb, c.Cr
			}
		case *image.Gray:
			for x := 0; x < w; x++ {
				row[3*x+0] = m.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				row[3*x+1], row[3*x+2] = 128, 128
			}
		default:
			for x := 0; x < w; x++ {
				c := color.YCbCrModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.YCbCr)
				row[3*x+0], row[3*x+1], row[3*x+2] = c.Y, c.Cb, c.Cr
			}
		}
		// replicate the last pixel if img is narrower than im
		for x := w; x < im.Width; x++ {
			copy(row[3*x:3*x+3], row[3*(w-1):3*w])
		}
		im.SetRow(y, row)
	}
}

// YCbCr returns a copy of im as a 4:4:4 image.
func (im *Image) YCbCr() *image.YCbCr {
	m := image.NewYCbCr(image.Rect(0, 0, im.Width, im.Height), image.YCbCrSubsampleRatio444)
	row := make([]byte, im.RowBytes())
	for y := 0; y < im.Height; y++ {
		im.Row(y, row)
		for x := 0; x < im.Width; x++ {
			m.Y[y*m.YStride+x] = row[3*x+0]
			m.Cb[y*m.CStride+x] = row[3*x+1]
			m.Cr[y*m.CStride+x] = row[3*x+2]
		}
	}
	return m
}

// RGB returns a copy of im as an RGBA image, e.g. for encoding into other
// image file formats.
func (im *Image) RGB() *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	row := make([]byte, im.RowBytes())
	for y := 0; y < im.Height; y++ {
		im.Row(y, row)
		pix := m.Pix[y*m.Stride:]
		for x := 0; x < im.Width; x++ {
			r, g, b := color.YCbCrToRGB(row[3*x+0], row[3*x+1], row[3*x+2])
			pix[4*x+0], pix[4*x+1], pix[4*x+2], pix[4*x+3] = r, g, b, 0xff
		}
	}
	return m
}

// RGB24Rows converts lines lines starting at line y into packed RGB
// (three bytes per pixel) in dst.
func (im *Image) RGB24Rows(dst []byte, y, lines int) {
	row := make([]byte, im.RowBytes())
	for i := 0; i < lines; i++ {
		im.Row(y+i, row)
		out := dst[i*3*im.Width:]
		for x := 0; x < im.Width; x++ {
			out[3*x+0], out[3*x+1], out[3*x+2] = color.YCbCrToRGB(row[3*x+0], row[3*x+1], row[3*x+2])
		}
	}
}
