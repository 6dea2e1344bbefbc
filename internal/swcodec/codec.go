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

package swcodec

import (
	"fmt"
	"image/jpeg"
	"io"

	"github.com/stapelberg/shjpeg/internal/jpu"
	"github.com/stapelberg/shjpeg/internal/softconv"
)

// DefaultQuality is used when the caller does not specify a quality.
const DefaultQuality = 75 // like scanimage(1)

// Decode decodes the JPEG stream r into dst.
func Decode(r io.Reader, dst *softconv.Image) error {
	img, err := jpeg.Decode(r)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() > dst.Width || b.Dy() > dst.Height {
		return fmt.Errorf("image of %dx%d does not fit into %dx%d", b.Dx(), b.Dy(), dst.Width, dst.Height)
	}
	softconv.Draw(dst, img)
	return nil
}

// Encode encodes src as JPEG into w.
func Encode(w io.Writer, src *softconv.Image, quality int) error {
	if quality <= 0 {
		quality = DefaultQuality
	}
	enc, err := newEncoder(w, quality, src.Width, src.Height)
	if err != nil {
		return err
	}
	// Hand the pixels to the encoder in strips like the hardware.
	const lines = jpu.LineBufferHeight
	strip := make([]byte, lines*3*src.Width)
	for y := 0; y < src.Height; y += lines {
		n := lines
		if y+n > src.Height {
			n = src.Height - y
		}
		src.RGB24Rows(strip, y, n)
		// pad the last strip by repeating its last line
		for i := n; i < lines; i++ {
			copy(strip[i*3*src.Width:(i+1)*3*src.Width], strip[(n-1)*3*src.Width:n*3*src.Width])
		}
		enc.EncodePixels(strip, n)
	}
	return enc.Flush()
}
