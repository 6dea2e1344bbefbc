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

// Package imagefile reads and writes uncompressed surfaces as image files:
// raw dumps (optionally zstd-compressed) and PNG, BMP or TIFF.
package imagefile

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/stapelberg/shjpeg/internal/softconv"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	_ "image/jpeg"
)

// Kind is an image file type.
type Kind string

const (
	Raw     Kind = "raw"
	RawZstd Kind = "zst"
	PNG     Kind = "png"
	BMP     Kind = "bmp"
	TIFF    Kind = "tiff"
)

var kinds = []Kind{Raw, RawZstd, PNG, BMP, TIFF}

// ParseKind returns the kind named s. The empty string means Raw.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Raw, nil
	}
	if s == "tif" {
		return TIFF, nil
	}
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown image file type %q", s)
}

// KindFromPath derives the kind from the file name extension. Unknown
// extensions are treated as Raw.
func KindFromPath(path string) Kind {
	k, err := ParseKind(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return Raw
	}
	return k
}

// Ext returns the file name extension for k, including the dot.
func (k Kind) Ext() string { return "." + string(k) }

func (k Kind) ContentType() string {
	switch k {
	case PNG:
		return "image/png"
	case BMP:
		return "image/bmp"
	case TIFF:
		return "image/tiff"
	case RawZstd:
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

// Compressed reports whether k holds pixel data in another representation
// than the surface layout.
func (k Kind) Compressed() bool { return k != Raw }

// rawBytes returns the bytes of im in buffer order, all planes included.
func rawBytes(im *softconv.Image) []byte {
	n := im.Format.PlaneBytes(im.Height, im.Pitch)
	if !im.Format.Planar() {
		return im.Y[:n]
	}
	luma := im.Pitch * im.Height
	c := n - luma
	if c > len(im.C) {
		c = len(im.C)
	}
	out := make([]byte, 0, luma+c)
	out = append(out, im.Y[:luma]...)
	return append(out, im.C[:c]...)
}

// Write encodes im as k to w.
func Write(w io.Writer, k Kind, im *softconv.Image) error {
	switch k {
	case Raw:
		_, err := w.Write(rawBytes(im))
		return err
	case RawZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := enc.Write(rawBytes(im)); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	case PNG:
		return png.Encode(w, im.RGB())
	case BMP:
		return bmp.Encode(w, im.RGB())
	case TIFF:
		return tiff.Encode(w, im.RGB(), &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("unknown image file type %q", k)
}

// ReadRaw fills dst with raw surface data of kind Raw or RawZstd.
func ReadRaw(r io.Reader, k Kind, dst []byte) error {
	switch k {
	case Raw:
		_, err := io.ReadFull(r, dst)
		return err
	case RawZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer dec.Close()
		_, err = io.ReadFull(dec, dst)
		return err
	}
	return fmt.Errorf("%q is not a raw image file type", k)
}

// Decode decodes an image file in any registered format, which includes
// PNG, BMP, TIFF and JPEG.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

// Load decodes the image file at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
