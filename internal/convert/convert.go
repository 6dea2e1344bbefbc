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

// Package convert moves image data between the JPU line buffers and the
// caller's surface, one 16 line strip at a time.
package convert

import (
	"fmt"

	"github.com/stapelberg/shjpeg/internal/jpu"
	"github.com/stapelberg/shjpeg/internal/pixfmt"
	"github.com/stapelberg/shjpeg/internal/resource"
	"github.com/stapelberg/shjpeg/internal/softconv"
	"github.com/stapelberg/shjpeg/internal/veu"
)

// Mode selects how strips are converted.
type Mode int

const (
	// Hardware converts strips with the VEU.
	Hardware Mode = iota
	// Software converts strips on the CPU.
	Software
)

func (m Mode) String() string {
	switch m {
	case Hardware:
		return "hardware"
	case Software:
		return "software"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Config describes the conversions of one operation.
type Config struct {
	Mode   Mode
	Encode bool
	// Mode420 selects the NV12 line buffer layout (decode only; the encoder
	// always reads NV16 line buffers).
	Mode420 bool

	Format        pixfmt.Format
	Width, Height int
	Pitch         int
	Surface       resource.Buffer

	Group *resource.Group
}

// Stage implements jpu.Converter.
type Stage struct {
	mode   Mode
	encode bool
	width  int
	height int
	pitch  int
	strips int
	done   int
	line   int
	slot   jpu.Slot

	// Hardware
	engine     *veu.Engine
	lb         [2]uint32
	srcY, srcC uint32
	incC       uint32

	// Software
	surface *softconv.Image
	strip   [2]*softconv.Image
}

// New returns a Stage for cfg. Hardware mode programs the VEU.
func New(cfg Config) (*Stage, error) {
	s := &Stage{
		mode:   cfg.Mode,
		encode: cfg.Encode,
		width:  cfg.Width,
		height: cfg.Height,
		pitch:  cfg.Pitch,
		strips: (cfg.Height + jpu.LineBufferHeight - 1) / jpu.LineBufferHeight,
	}
	lbFormat := pixfmt.NV16
	if cfg.Mode420 && !cfg.Encode {
		lbFormat = pixfmt.NV12
	}

	switch cfg.Mode {
	case Software:
		surface, err := softconv.NewImage(cfg.Format, cfg.Surface.B, cfg.Width, cfg.Height, cfg.Pitch)
		if err != nil {
			return nil, err
		}
		s.surface = surface
		for i := range s.strip {
			lb := cfg.Group.LineBuffer(jpu.Slot(i))
			s.strip[i] = &softconv.Image{
				Format: lbFormat,
				Width:  cfg.Width,
				Height: jpu.LineBufferHeight,
				Pitch:  jpu.LineBufferPitch,
				Y:      lb[:jpu.LineBufferSizeY],
				C:      lb[jpu.LineBufferSizeY:],
			}
		}

	case Hardware:
		if cfg.Group.VEU == nil {
			return nil, fmt.Errorf("no VEU available")
		}
		frameFormat, ok := veu.FormatOf(cfg.Format)
		if !ok {
			return nil, fmt.Errorf("%v cannot be converted by the VEU", cfg.Format)
		}
		lbFormat, _ := veu.FormatOf(lbFormat)
		s.engine = cfg.Group.VEU
		s.lb = cfg.Group.Buffers().LineBuffer
		frame := veu.Plane{
			Width:  cfg.Width,
			Height: cfg.Height,
			Pitch:  cfg.Pitch,
			Y:      cfg.Surface.Phys,
			C:      cfg.Surface.Phys + uint32(cfg.Pitch*cfg.Height),
		}
		lb := veu.Plane{
			Width:  cfg.Width,
			Height: cfg.Height,
			Pitch:  jpu.LineBufferPitch,
			Y:      s.lb[0],
			C:      s.lb[0] + jpu.LineBufferSizeY,
		}
		if cfg.Encode {
			lb.Height = jpu.LineBufferHeight
			frame.Height = jpu.LineBufferHeight
			s.engine.Setup(veu.Config{
				Src:       frame,
				Dst:       lb,
				SrcFormat: frameFormat,
				DstFormat: lbFormat,
			})
			s.srcY = cfg.Surface.Phys
			s.srcC = cfg.Surface.Phys + uint32(cfg.Pitch*cfg.Height)
			switch cfg.Format {
			case pixfmt.NV16:
				s.incC = uint32(cfg.Pitch * jpu.LineBufferHeight)
			case pixfmt.NV12:
				s.incC = uint32(cfg.Pitch * jpu.LineBufferHeight / 2)
			}
		} else {
			s.engine.Setup(veu.Config{
				Src:         lb,
				Dst:         frame,
				SrcFormat:   lbFormat,
				DstFormat:   frameFormat,
				BundleLines: jpu.LineBufferHeight,
			})
		}

	default:
		return nil, fmt.Errorf("invalid conversion mode %v", cfg.Mode)
	}
	return s, nil
}

func (s *Stage) Mode() Mode { return s.mode }

func (s *Stage) Done() int { return s.done }

func (s *Stage) Exhausted() bool { return s.done >= s.strips }

// Convert processes the strip in the current line buffer and advances to the
// other line buffer.
func (s *Stage) Convert() error {
	switch s.mode {
	case Hardware:
		return s.convertHardware()

	case Software:
		lines := s.height - s.line
		if lines > jpu.LineBufferHeight {
			lines = jpu.LineBufferHeight
		}
		if lines <= 0 {
			return nil
		}
		if s.encode {
			softconv.Convert(s.strip[s.slot], 0, s.surface, s.line, lines)
		} else {
			softconv.Convert(s.surface, s.line, s.strip[s.slot], 0, lines)
		}
		s.line += lines
		s.slot = s.slot.Next()
		s.done++
		return nil
	}
	return fmt.Errorf("invalid conversion mode %v", s.mode)
}

func (s *Stage) convertHardware() error {
	lb := s.lb[s.slot]
	if s.encode {
		lines := s.height - s.line
		if lines > jpu.LineBufferHeight {
			lines = jpu.LineBufferHeight
		}
		s.engine.SetSrc(s.srcY, s.srcC)
		s.engine.SetDst(lb, lb+jpu.LineBufferSizeY)
		s.engine.SetSourceSize(s.width, lines)
		s.engine.Start(false)
		s.srcY += uint32(s.pitch * jpu.LineBufferHeight)
		s.srcC += s.incC
		s.line += lines
	} else {
		s.engine.SetSrc(lb, lb+jpu.LineBufferSizeY)
		s.engine.Start(true)
	}
	if err := s.engine.Wait(jpu.InterruptTimeout); err != nil {
		return err
	}
	s.slot = s.slot.Next()
	s.done++
	return nil
}
