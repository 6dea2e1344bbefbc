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

package jpu

import "github.com/stapelberg/shjpeg/internal/uio"

// Frame describes a surface in contiguous memory: the luma plane at Y and the
// chroma plane at C, both Pitch bytes per line.
type Frame struct {
	Y, C  uint32
	Pitch int
}

// Buffers are the physical addresses of the JPU working memory.
type Buffers struct {
	Reload     [2]uint32
	LineBuffer [2]uint32
}

// DecodeConfig is the register setup of a decode run.
type DecodeConfig struct {
	Buffers
	// Length is the number of bytes in the first reload buffer.
	Length       int
	ReloadEnable bool
	// LineMode decodes into the line buffers instead of Dst.
	LineMode bool
	Dst      Frame
}

// ProgramDecode resets the JPU and programs it for decoding.
func ProgramDecode(regs uio.Registers, cfg DecodeConfig) {
	Reset(regs)

	var reload, reloadInt uint32
	if cfg.ReloadEnable {
		reload = JIFCNT_RELOAD_ENABLE
		reloadInt = JINTS_INS14_RELOAD
	}

	regs.Write32(JCMOD, JCMOD_INPUT_CTRL|JCMOD_DSP_DECODE)
	regs.Write32(JIFCNT, JIFCNT_VJSEL_JPU)
	regs.Write32(JIFECNT, JIFCNT_SWAP_4321)
	regs.Write32(JIFDSA1, cfg.Buffers.Reload[0])
	regs.Write32(JIFDSA2, cfg.Buffers.Reload[1])
	regs.Write32(JIFDDRSZ, (uint32(cfg.Length)+255)&0x00ffff00)

	if !cfg.LineMode {
		regs.Write32(JINTE, JINTS_INS5_ERROR|JINTS_INS6_DONE|JINTS_INS10_XFER_DONE|reloadInt)
		regs.Write32(JIFDCNT, JIFCNT_SWAP_4321|reload)
		regs.Write32(JIFDDYA1, cfg.Dst.Y)
		regs.Write32(JIFDDCA1, cfg.Dst.C)
		regs.Write32(JIFDDMW, (uint32(cfg.Dst.Pitch)+7)&^7)
		return
	}

	regs.Write32(JINTE, JINTS_INS5_ERROR|JINTS_INS6_DONE|JINTS_INS10_XFER_DONE|
		JINTS_INS11_LINEBUF0|JINTS_INS12_LINEBUF1|reloadInt)
	regs.Write32(JIFDCNT, JIFCNT_LINEBUF_MODE|LineBufferHeight<<16|JIFCNT_SWAP_4321|reload)
	regs.Write32(JIFDDYA1, cfg.LineBuffer[0])
	regs.Write32(JIFDDCA1, cfg.LineBuffer[0]+LineBufferSizeY)
	regs.Write32(JIFDDYA2, cfg.LineBuffer[1])
	regs.Write32(JIFDDCA2, cfg.LineBuffer[1]+LineBufferSizeY)
	regs.Write32(JIFDDMW, LineBufferPitch)
}

// EncodeConfig is the register setup of an encode run.
type EncodeConfig struct {
	Buffers
	Width, Height int
	Mode420       bool
	// LineMode reads strips from the line buffers instead of Src.
	LineMode bool
	Src      Frame
}

// ProgramEncode resets the JPU, programs it for encoding and loads the
// quantization and huffman tables.
func ProgramEncode(regs uio.Registers, cfg EncodeConfig) {
	Reset(regs)

	mode := uint32(JCMOD_422)
	var sub uint32
	if cfg.Mode420 {
		mode = JCMOD_420
		sub = JIFCNT_420
	}
	w, h := uint32(cfg.Width), uint32(cfg.Height)

	regs.Write32(JCMOD, JCMOD_INPUT_CTRL|JCMOD_DSP_ENCODE|mode)
	regs.Write32(JCQTN, 0x14)
	regs.Write32(JCHTN, 0x3c)
	regs.Write32(JCDRIU, 0x02)
	regs.Write32(JCDRID, 0x00)
	regs.Write32(JCHSZU, w>>8)
	regs.Write32(JCHSZD, w&0xff)
	regs.Write32(JCVSZU, h>>8)
	regs.Write32(JCVSZD, h&0xff)
	regs.Write32(JIFCNT, JIFCNT_VJSEL_JPU)
	regs.Write32(JIFDCNT, JIFCNT_SWAP_4321)
	regs.Write32(JIFEDA1, cfg.Buffers.Reload[0])
	regs.Write32(JIFEDA2, cfg.Buffers.Reload[1])
	regs.Write32(JIFEDRSZ, ReloadSize)
	regs.Write32(JIFESHSZ, (w+3)&0xffc)
	regs.Write32(JIFESVSZ, (h+3)&0xffc)

	if !cfg.LineMode {
		regs.Write32(JINTE, JINTS_INS10_XFER_DONE|JINTS_INS13_LOADED)
		regs.Write32(JIFECNT, JIFCNT_SWAP_4321|JIFCNT_RELOAD_ENABLE|sub)
		regs.Write32(JIFESYA1, cfg.Src.Y)
		regs.Write32(JIFESCA1, cfg.Src.C)
		regs.Write32(JIFESMW, (uint32(cfg.Src.Pitch)+7)&0xff8)
	} else {
		regs.Write32(JINTE, JINTS_INS11_LINEBUF0|JINTS_INS12_LINEBUF1|
			JINTS_INS10_XFER_DONE|JINTS_INS13_LOADED)
		regs.Write32(JIFECNT, JIFCNT_LINEBUF_MODE|LineBufferHeight<<16|
			JIFCNT_SWAP_4321|JIFCNT_RELOAD_ENABLE|sub)
		regs.Write32(JIFESYA1, cfg.LineBuffer[0])
		regs.Write32(JIFESCA1, cfg.LineBuffer[0]+LineBufferSizeY)
		regs.Write32(JIFESYA2, cfg.LineBuffer[1])
		regs.Write32(JIFESCA2, cfg.LineBuffer[1]+LineBufferSizeY)
		regs.Write32(JIFESMW, LineBufferPitch)
	}

	InitTables(regs)
}
