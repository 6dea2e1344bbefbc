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

package jpusim

import (
	"fmt"
	"time"

	"github.com/stapelberg/shjpeg/internal/softconv"
	"github.com/stapelberg/shjpeg/internal/uio"
	"github.com/stapelberg/shjpeg/internal/veu"
)

// VEU simulates the video engine unit. It implements uio.Registers and
// uio.Interrupt. Conversions complete immediately when started.
type VEU struct {
	sim  *Sim
	regs map[uint32]uint32

	bundleLine int
}

func (v *VEU) Read32(offset uint32) uint32 {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	return v.regs[offset]
}

func (v *VEU) Write32(offset, value uint32) {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	switch offset {
	case veu.VESTR:
		if value&veu.VESTR_START != 0 {
			if err := v.convert(value&veu.VESTR_BUNDLE != 0); err != nil {
				// no completion event, the caller times out
				return
			}
			v.sim.conversions++
			v.regs[veu.VEVTR] = 1
		}
	case veu.VBSRR:
		v.regs = make(map[uint32]uint32)
		v.bundleLine = 0
	default:
		v.regs[offset] = value
	}
}

func (v *VEU) Wait(timeout time.Duration) error {
	v.sim.mu.Lock()
	defer v.sim.mu.Unlock()
	if v.regs[veu.VEVTR] == 0 || v.regs[veu.VEIER] == 0 {
		return uio.ErrTimeout
	}
	return nil
}

func (v *VEU) Enable() error { return nil }

func (v *VEU) image(format veu.Format, yAddr, cAddr uint32, width, height, pitch int) (*softconv.Image, error) {
	pf := format.Pixel()
	im := &softconv.Image{
		Format: pf,
		Width:  width,
		Height: height,
		Pitch:  pitch,
	}
	var err error
	im.Y, err = v.sim.slice(yAddr, pitch*height)
	if err != nil {
		return nil, err
	}
	if pf.Planar() {
		crows := height
		if format == veu.YCbCr420 {
			crows = (height + 1) / 2
		}
		im.C, err = v.sim.slice(cAddr, pitch*crows)
		if err != nil {
			return nil, err
		}
	}
	return im, nil
}

// convert performs the programmed conversion. In bundle mode the source is
// one bundle of lines, written to the destination where the previous bundle
// ended.
func (v *VEU) convert(bundle bool) error {
	if v.regs[veu.VTRCR]&veu.VTRCR_CONVERT == 0 {
		return fmt.Errorf("conversion disabled")
	}
	srcFormat := veu.Format(v.regs[veu.VTRCR] >> 8 & 0xff)
	dstFormat := veu.Format(v.regs[veu.VTRCR] >> 16 & 0xff)
	size := v.regs[veu.VESSR]
	width, height := int(size&0xffff), int(size>>16)
	dstHeight := int(v.regs[veu.VRFSR] >> 16)

	lines, dstY := height, 0
	if bundle {
		lines = int(v.regs[veu.VBSSR])
		if rem := height - v.bundleLine; lines > rem {
			lines = rem
		}
		dstY = v.bundleLine
	}
	if lines <= 0 {
		return nil
	}

	src, err := v.image(srcFormat, v.regs[veu.VSAYR], v.regs[veu.VSACR], width, lines, int(v.regs[veu.VESWR]))
	if err != nil {
		return err
	}
	if !bundle {
		dstHeight = lines
	}
	dst, err := v.image(dstFormat, v.regs[veu.VDAYR], v.regs[veu.VDACR], width, dstHeight, int(v.regs[veu.VEDWR]))
	if err != nil {
		return err
	}
	softconv.Convert(dst, dstY, src, 0, lines)
	if bundle {
		v.bundleLine += lines
	}
	return nil
}
