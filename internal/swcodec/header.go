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

// Package swcodec is the software JPEG codec used when the hardware cannot
// process an image.
package swcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Header holds the frame parameters of a JPEG image.
type Header struct {
	Width, Height int
	Components    int
	// Sampling holds the horizontal and vertical sampling factors of each
	// component.
	Sampling [][2]int
	// Baseline is true for baseline sequential DCT images (SOF0).
	Baseline bool
	// Progressive is true for progressive DCT images.
	Progressive bool
}

// Mode420 reports whether the chroma components are subsampled by two in
// both directions.
func (h *Header) Mode420() bool {
	return h.Components == 3 &&
		h.Sampling[0] == [2]int{2, 2} &&
		h.Sampling[1] == [2]int{1, 1} &&
		h.Sampling[2] == [2]int{1, 1}
}

// Mode422 reports whether the chroma components are subsampled by two
// horizontally.
func (h *Header) Mode422() bool {
	return h.Components == 3 &&
		h.Sampling[0] == [2]int{2, 1} &&
		h.Sampling[1] == [2]int{1, 1} &&
		h.Sampling[2] == [2]int{1, 1}
}

// Mode444 reports whether all components use the same sampling factors.
func (h *Header) Mode444() bool {
	for _, s := range h.Sampling[1:] {
		if s != h.Sampling[0] {
			return false
		}
	}
	return h.Components == 3
}

var (
	ErrNotJPEG  = errors.New("not a JPEG image (missing SOI marker)")
	ErrNoFrame  = errors.New("no frame header before the image data")
	errBadFrame = errors.New("invalid frame header")
)

const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerDHT  = 0xc4
	markerJPG  = 0xc8
	markerDAC  = 0xcc
	markerSOF0 = 0xc0
	markerSOF2 = 0xc2
)

// ReadHeader parses the markers of a JPEG stream up to and including the
// frame header.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("reading SOI: %w", err)
	}
	if buf[0] != 0xff || buf[1] != markerSOI {
		return nil, ErrNotJPEG
	}
	for {
		marker, err := nextMarker(r)
		if err != nil {
			return nil, err
		}
		switch {
		case marker == markerSOS, marker == markerEOI:
			return nil, ErrNoFrame
		case marker >= 0xd0 && marker <= 0xd7, marker == 0x01:
			// markers without a length
			continue
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("reading segment length: %w", err)
		}
		length := int(binary.BigEndian.Uint16(buf[:])) - 2
		if length < 0 {
			return nil, fmt.Errorf("invalid segment length %d", length+2)
		}
		seg := make([]byte, length)
		if _, err := io.ReadFull(r, seg); err != nil {
			return nil, fmt.Errorf("reading segment %#x: %w", marker, err)
		}
		if marker < 0xc0 || marker > 0xcf || marker == markerDHT || marker == markerJPG || marker == markerDAC {
			continue
		}
		return parseFrame(marker, seg)
	}
}

// nextMarker skips to the next marker and returns its code.
func nextMarker(r io.Reader) (byte, error) {
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("reading marker: %w", err)
		}
		if b[0] != 0xff {
			continue
		}
		// skip fill bytes
		for b[0] == 0xff {
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return 0, fmt.Errorf("reading marker: %w", err)
			}
		}
		if b[0] != 0 {
			return b[0], nil
		}
	}
}

func parseFrame(marker byte, seg []byte) (*Header, error) {
	if len(seg) < 6 {
		return nil, errBadFrame
	}
	h := &Header{
		Height:      int(binary.BigEndian.Uint16(seg[1:])),
		Width:       int(binary.BigEndian.Uint16(seg[3:])),
		Components:  int(seg[5]),
		Baseline:    marker == markerSOF0,
		Progressive: marker == markerSOF2,
	}
	if len(seg) < 6+3*h.Components || h.Components == 0 {
		return nil, errBadFrame
	}
	for i := 0; i < h.Components; i++ {
		s := seg[6+3*i+1]
		h.Sampling = append(h.Sampling, [2]int{int(s >> 4), int(s & 0xf)})
	}
	if h.Width == 0 || h.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", errBadFrame, h.Width, h.Height)
	}
	return h, nil
}
