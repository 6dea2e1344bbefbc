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

// Package jpusim simulates the JPU and VEU hardware blocks at the register
// level, backed by image/jpeg. It lets the codec run its hardware code paths
// on machines without an SH-Mobile SoC, and injects faults for tests.
package jpusim

import (
	"fmt"
	"sync"

	"github.com/stapelberg/shjpeg/internal/resource"
	"github.com/stapelberg/shjpeg/internal/veu"
)

// Options configure a Sim.
type Options struct {
	// MemSize is the amount of contiguous memory. Defaults to 8 MiB.
	MemSize int
	// Phys is the physical address of the contiguous memory.
	Phys uint32
	// NoVEU simulates a SoC without VEU.
	NoVEU bool
	// Quality is the JPEG quality of encoded images. Defaults to 90.
	Quality int
}

// Sim is a simulated JPU and VEU sharing one contiguous memory region.
type Sim struct {
	opts Options
	phys uint32

	mu          sync.Mutex
	mem         []byte
	stall       bool
	errorCode   uint32
	opened      int
	closed      int
	active      int
	runs        int
	overlaps    int
	conversions int

	jpu *JPU
	veu *VEU
}

func New(opts Options) *Sim {
	if opts.MemSize == 0 {
		opts.MemSize = 8 << 20
	}
	if opts.Phys == 0 {
		opts.Phys = 0x50000000
	}
	if opts.Quality == 0 {
		opts.Quality = 90
	}
	s := &Sim{
		opts: opts,
		phys: opts.Phys,
		mem:  make([]byte, opts.MemSize),
	}
	s.jpu = &JPU{sim: s, regs: make(map[uint32]uint32)}
	s.veu = &VEU{sim: s, regs: make(map[uint32]uint32)}
	return s
}

// Open returns a resource group backed by the simulation. It is a
// resource.Opener.
func (s *Sim) Open() (*resource.Group, error) {
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	var v *veu.Engine
	if !s.opts.NoVEU {
		v = veu.New(s.veu, s.veu)
	}
	return resource.NewGroup(s.jpu, s.jpu, v, s.mem, s.phys, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed++
		return nil
	})
}

// SetStall makes the JPU stop raising interrupts, so that every wait times
// out.
func (s *Sim) SetStall(stall bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall = stall
}

// SetErrorCode makes every subsequent decode fail with the JCDERR code.
// Zero disables the fault.
func (s *Sim) SetErrorCode(code uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCode = code
}

// Stats are counters describing how the simulation was used.
type Stats struct {
	Opened, Closed int
	// Runs is the number of started JPU operations.
	Runs int
	// Overlaps counts operations which were started while another one was
	// still active.
	Overlaps int
	// Conversions is the number of completed VEU conversions.
	Conversions int
}

func (s *Sim) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Opened:      s.opened,
		Closed:      s.closed,
		Runs:        s.runs,
		Overlaps:    s.overlaps,
		Conversions: s.conversions,
	}
}

// slice returns the memory starting at physical address phys. Called with
// s.mu held.
func (s *Sim) slice(phys uint32, length int) ([]byte, error) {
	if phys < s.phys {
		return nil, fmt.Errorf("address %#x below contiguous memory", phys)
	}
	off := int(phys - s.phys)
	if length < 0 || off+length > len(s.mem) {
		return nil, fmt.Errorf("access of %d bytes at %#x beyond contiguous memory", length, phys)
	}
	return s.mem[off : off+length], nil
}

func (s *Sim) begin() {
	s.runs++
	s.active++
	if s.active > 1 {
		s.overlaps++
	}
}

func (s *Sim) end() {
	if s.active > 0 {
		s.active--
	}
}
