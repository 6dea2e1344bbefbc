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

// Package jpu drives the JPEG processing unit of SH-Mobile SoCs: it programs
// the unit's registers and runs the state machine which moves compressed data
// through two reload buffers and image data through two line buffers.
package jpu

// Register offsets within the JPU register window.
const (
	JCMOD  = 0x00 // mode
	JCCMD  = 0x04 // command
	JCSTS  = 0x08 // status
	JCQTN  = 0x0c // quantization table number
	JCHTN  = 0x10 // huffman table number
	JCDRIU = 0x14 // restart interval (upper)
	JCDRID = 0x18 // restart interval (lower)
	JCVSZU = 0x1c // image height (upper)
	JCVSZD = 0x20 // image height (lower)
	JCHSZU = 0x24 // image width (upper)
	JCHSZD = 0x28 // image width (lower)
	JCDTCU = 0x2c // coded data amount (upper)
	JCDTCM = 0x30 // coded data amount (middle)
	JCDTCD = 0x34 // coded data amount (lower)
	JINTE  = 0x38 // interrupt enable
	JINTS  = 0x3c // interrupt status
	JCDERR = 0x40 // decode error code
	JCRST  = 0x44 // reset

	JIFCNT = 0x60 // interface control

	JIFECNT  = 0x70 // encode interface control
	JIFESYA1 = 0x74 // encode source Y address 1
	JIFESCA1 = 0x78 // encode source C address 1
	JIFESYA2 = 0x7c // encode source Y address 2
	JIFESCA2 = 0x80 // encode source C address 2
	JIFESMW  = 0x84 // encode source memory width
	JIFESVSZ = 0x88 // encode source height
	JIFESHSZ = 0x8c // encode source width
	JIFEDA1  = 0x90 // encode destination address 1
	JIFEDA2  = 0x94 // encode destination address 2
	JIFEDRSZ = 0x98 // encode destination reload size

	JIFDCNT  = 0xa0 // decode interface control
	JIFDSA1  = 0xa4 // decode source address 1
	JIFDSA2  = 0xa8 // decode source address 2
	JIFDDRSZ = 0xac // decode source reload size
	JIFDDMW  = 0xb0 // decode destination memory width
	JIFDDVSZ = 0xb4 // decode destination height
	JIFDDHSZ = 0xb8 // decode destination width
	JIFDDYA1 = 0xbc // decode destination Y address 1
	JIFDDCA1 = 0xc0 // decode destination C address 1
	JIFDDYA2 = 0xc4 // decode destination Y address 2
	JIFDDCA2 = 0xc8 // decode destination C address 2
)

// JCQTBL returns the offset of word i of quantization table n.
func JCQTBL(n, i int) uint32 { return 0x10000 + uint32(n)*0x40 + uint32(i)*4 }

// JCHTBD returns the offset of word i of DC huffman table n.
func JCHTBD(n, i int) uint32 { return 0x10100 + uint32(n)*0x100 + uint32(i)*4 }

// JCHTBA returns the offset of word i of AC huffman table n.
func JCHTBA(n, i int) uint32 { return 0x10120 + uint32(n)*0x100 + uint32(i)*4 }

const (
	JCMOD_INPUT_CTRL = 1 << 7
	JCMOD_DSP_ENCODE = 0 << 3
	JCMOD_DSP_DECODE = 1 << 3
	JCMOD_422        = 1
	JCMOD_420        = 2
)

const (
	JCCMD_START         = 1 << 0
	JCCMD_RESTART       = 1 << 1
	JCCMD_END           = 1 << 2
	JCCMD_CLR_INTERRUPT = 1 << 7
	JCCMD_LCMD1         = 1 << 8
	JCCMD_LCMD2         = 1 << 9
	JCCMD_READ_RESTART  = 1 << 10
	JCCMD_WRITE_RESTART = 1 << 11
	JCCMD_SRST          = 1 << 12
)

const (
	JINTS_INS3_HEADER     = 1 << 3
	JINTS_INS5_ERROR      = 1 << 5
	JINTS_INS6_DONE       = 1 << 6
	JINTS_INS10_XFER_DONE = 1 << 10
	JINTS_INS11_LINEBUF0  = 1 << 11
	JINTS_INS12_LINEBUF1  = 1 << 12
	JINTS_INS13_LOADED    = 1 << 13
	JINTS_INS14_RELOAD    = 1 << 14

	JINTS_MASK = JINTS_INS3_HEADER | JINTS_INS5_ERROR | JINTS_INS6_DONE |
		JINTS_INS10_XFER_DONE | JINTS_INS11_LINEBUF0 | JINTS_INS12_LINEBUF1 |
		JINTS_INS13_LOADED | JINTS_INS14_RELOAD
)

const JIFCNT_VJSEL_JPU = 1 << 1

// Bits shared by JIFECNT and JIFDCNT. The line buffer height lives in bits
// 16 to 23.
const (
	JIFCNT_420           = 1 << 0
	JIFCNT_SWAP_4321     = 7 << 4
	JIFCNT_LINEBUF_MODE  = 1 << 8
	JIFCNT_RELOAD_ENABLE = 1 << 12
)

// Memory layout constants.
const (
	ReloadSize = 64 * 1024

	LineBufferPitch  = 2560
	LineBufferHeight = 16
	LineBufferSizeY  = LineBufferPitch * LineBufferHeight
	LineBufferSize   = LineBufferSizeY * 2

	// Size is the amount of contiguous memory the JPU itself needs: two
	// reload buffers and two line buffers.
	Size = LineBufferSize*2 + ReloadSize*2
)
