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

// Package resource manages the hardware shared by all codec contexts: the
// JPU and VEU register windows, their interrupts and the physically
// contiguous memory they operate on.
package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stapelberg/shjpeg/internal/jpu"
	"github.com/stapelberg/shjpeg/internal/uio"
	"github.com/stapelberg/shjpeg/internal/veu"
)

var (
	// ErrUnavailable is returned when the hardware could not be opened, or
	// when it is used without being acquired.
	ErrUnavailable = errors.New("hardware resources unavailable")

	// ErrOutOfMemory is returned when the contiguous memory pool cannot
	// satisfy an allocation.
	ErrOutOfMemory = errors.New("out of contiguous memory")
)

// Buffer is a region of memory which may be handed to the hardware. Phys is
// the physical address of B[0], or 0 if the memory is not physically
// contiguous (e.g. a Go slice), in which case only software processing is
// possible.
type Buffer struct {
	Phys uint32
	B    []byte
}

// Hardware reports whether the buffer is accessible to DMA engines.
func (b Buffer) Hardware() bool { return b.Phys != 0 }

// Group is an opened set of hardware resources.
type Group struct {
	Regs uio.Registers
	IRQ  uio.Interrupt
	// VEU is nil if the SoC has no (usable) VEU.
	VEU *veu.Engine

	mem   []byte
	phys  uint32
	close func() error

	hw   sync.Mutex
	pool *pool
}

// NewGroup returns a group operating on the contiguous memory mem, whose
// first byte is at physical address phys. The first jpu.Size bytes hold the
// reload and line buffers, the rest is available to callers. closer is called
// when the last user releases the group and may be nil.
func NewGroup(regs uio.Registers, irq uio.Interrupt, v *veu.Engine, mem []byte, phys uint32, closer func() error) (*Group, error) {
	if len(mem) < jpu.Size {
		return nil, fmt.Errorf("%w: %d bytes of contiguous memory, need at least %d", ErrUnavailable, len(mem), jpu.Size)
	}
	return &Group{
		Regs:  regs,
		IRQ:   irq,
		VEU:   v,
		mem:   mem,
		phys:  phys,
		close: closer,
		pool:  newPool(jpu.Size, len(mem)),
	}, nil
}

// Lock grants exclusive use of the JPU and VEU until Unlock is called.
func (g *Group) Lock() { g.hw.Lock() }

func (g *Group) Unlock() { g.hw.Unlock() }

// Buffers returns the physical addresses of the JPU working memory.
func (g *Group) Buffers() jpu.Buffers {
	return jpu.Buffers{
		Reload: [2]uint32{
			g.phys,
			g.phys + jpu.ReloadSize,
		},
		LineBuffer: [2]uint32{
			g.phys + 2*jpu.ReloadSize,
			g.phys + 2*jpu.ReloadSize + jpu.LineBufferSize,
		},
	}
}

// ReloadBuffer returns the memory of reload buffer slot.
func (g *Group) ReloadBuffer(slot jpu.Slot) []byte {
	off := int(slot) * jpu.ReloadSize
	return g.mem[off : off+jpu.ReloadSize : off+jpu.ReloadSize]
}

// LineBuffer returns the memory of line buffer slot: the luma plane followed
// by the chroma plane.
func (g *Group) LineBuffer(slot jpu.Slot) []byte {
	off := 2*jpu.ReloadSize + int(slot)*jpu.LineBufferSize
	return g.mem[off : off+jpu.LineBufferSize : off+jpu.LineBufferSize]
}

// FrameBuffer returns the contiguous memory which is not used by the JPU.
// Allocations made with Malloc are carved out of the same region.
func (g *Group) FrameBuffer() Buffer {
	return Buffer{
		Phys: g.phys + jpu.Size,
		B:    g.mem[jpu.Size:],
	}
}

// Malloc allocates size bytes of contiguous memory, aligned to 8 bytes.
func (g *Group) Malloc(size int) (Buffer, error) {
	off, err := g.pool.alloc(size)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{
		Phys: g.phys + uint32(off),
		B:    g.mem[off : off+size : off+size],
	}, nil
}

// Free returns a buffer obtained from Malloc to the pool.
func (g *Group) Free(b Buffer) error {
	if b.Phys < g.phys || b.Phys >= g.phys+uint32(len(g.mem)) {
		return fmt.Errorf("free: buffer %#x not within contiguous memory", b.Phys)
	}
	return g.pool.free(int(b.Phys - g.phys))
}

// Available returns the number of free bytes in the pool.
func (g *Group) Available() int { return g.pool.available() }
