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

import (
	"fmt"
	"time"

	"github.com/stapelberg/shjpeg/internal/uio"
)

// InterruptTimeout bounds every wait for a JPU interrupt.
const InterruptTimeout = 1 * time.Second

// State is the state of a Run.
type State int

const (
	StateStart State = iota
	StateRunning
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRunning:
		return "running"
	case StateEnd:
		return "end"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Flags select the kind of a Run.
type Flags uint8

const (
	// FlagReload marks that more compressed data is available (decode) or
	// that the output buffers are recycled (encode).
	FlagReload Flags = 1 << iota
	// FlagConvert enables line buffer mode: every strip passes through the
	// Converter.
	FlagConvert
	// FlagEncode selects encoding.
	FlagEncode
)

// Run is the caller-visible part of the state machine. Buffers is a bitmask
// of reload buffers: on input the buffers the caller loaded (decode) or
// emptied (encode), on output the buffers the caller must reload or empty.
type Run struct {
	State   State
	Flags   Flags
	Buffers uint8
	Err     uint32
}

// Slot indexes one of the two reload buffers or one of the two line buffers.
type Slot int

// Next returns the other slot.
func (s Slot) Next() Slot { return s ^ 1 }

func (s Slot) bit() uint8 { return 1 << uint(s) }

// Converter moves image data between line buffers and the frame, one strip
// per call.
type Converter interface {
	Convert() error
	// Done returns the number of strips converted so far.
	Done() int
	// Exhausted reports whether all strips of the frame were converted.
	Exhausted() bool
}

// Controller runs the JPU state machine for one operation at a time.
type Controller struct {
	regs uio.Registers
	irq  uio.Interrupt
	conv Converter
	logf func(format string, v ...interface{})

	encode   bool
	lineMode bool
	end      bool
	errCode  uint32
	done     bool

	buffer  Slot  // reload buffer the JPU works on
	buffers uint8 // reload buffers owned by the JPU

	linebuf Slot // line buffer the JPU works on
	pending int  // line buffers handed to the JPU
	jpuDone int  // line buffers the JPU finished

	drainSlot Slot
	written   int
}

// NewController returns a controller driving regs and irq. conv may be nil if
// no Run uses FlagConvert. logf receives progress messages and may be nil.
func NewController(regs uio.Registers, irq uio.Interrupt, conv Converter, logf func(string, ...interface{})) *Controller {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Controller{
		regs: regs,
		irq:  irq,
		conv: conv,
		logf: logf,
	}
}

// Coded returns the number of bytes the JPU has encoded so far.
func (c *Controller) Coded() int {
	return int(c.regs.Read32(JCDTCU)&0xff)<<16 |
		int(c.regs.Read32(JCDTCM)&0xff)<<8 |
		int(c.regs.Read32(JCDTCD)&0xff)
}

// Step advances the state machine until the caller has to service reload
// buffers or the run ends. Errors reported by the JPU end the run with
// run.Err set; a non-nil error means the JPU could not be driven at all.
func (c *Controller) Step(run *Run) error {
	switch run.State {
	case StateStart:
		c.logf("start (buffers %#x, flags %#x)", run.Buffers, run.Flags)
		c.encode = run.Flags&FlagEncode != 0
		c.lineMode = run.Flags&FlagConvert != 0
		if c.lineMode && c.conv == nil {
			return fmt.Errorf("jpu: line buffer mode requires a converter")
		}
		c.end = false
		c.errCode = 0
		c.buffer = 0
		c.buffers = run.Buffers
		c.linebuf = 0
		c.pending = 2
		if c.encode {
			c.pending = 0
		}
		c.jpuDone = 0
		c.drainSlot = 0
		c.written = 0
		run.State = StateRunning
		run.Err = 0
		c.regs.Write32(JCCMD, JCCMD_START)

	case StateRunning:
		c.logf("run (buffers %#x)", run.Buffers)
		c.buffers |= run.Buffers
		if c.encode {
			c.regs.Write32(JCCMD, JCCMD_WRITE_RESTART)
		} else if c.buffers != 0 {
			// The JPU continues with the next loaded buffer, which may have
			// been loaded by an earlier Step.
			c.regs.Write32(JCCMD, JCCMD_READ_RESTART)
		}

	default:
		return fmt.Errorf("jpu: invalid state %v (status %#x, ints %#x)",
			run.State, c.regs.Read32(JCSTS), c.regs.Read32(JINTS))
	}

	c.done = false
	var err error
	if c.encode {
		err = c.encodeLoop()
	} else {
		err = c.decodeLoop()
	}
	if err != nil {
		c.regs.Write32(JCCMD, JCCMD_END)
		run.State = StateEnd
		return err
	}

	if c.errCode != 0 {
		c.logf("-> error %#x", c.errCode)
		run.State = StateEnd
		run.Err = c.errCode
		return nil
	}
	run.Buffers = c.buffers ^ 3
	if c.end {
		c.logf("-> end")
		run.State = StateEnd
		run.Buffers |= c.buffer.bit()
	} else if c.encode {
		c.logf("-> loaded (%#x)", run.Buffers)
	} else {
		c.logf("-> reload (%#x)", run.Buffers)
	}
	return nil
}

func (c *Controller) startLine() {
	c.logf("start line buffer %d", c.linebuf)
	c.regs.Write32(JCCMD, JCCMD_LCMD1|JCCMD_LCMD2)
	if c.encode {
		c.pending++
	} else {
		// the decoder fills both line buffers again
		c.pending = 2
	}
}

func (c *Controller) convert() error {
	if err := c.conv.Convert(); err != nil {
		return fmt.Errorf("converting strip %d: %w", c.conv.Done(), err)
	}
	return nil
}

func (c *Controller) decodeLoop() error {
	for !c.done {
		if c.lineMode {
			if c.jpuDone > c.conv.Done() {
				if err := c.convert(); err != nil {
					return err
				}
			}
			// LCMD1|LCMD2 hands both line buffers to the JPU, so it is only
			// issued once the JPU returned both of them.
			if !c.end && c.pending == 0 {
				c.startLine()
			}
		}
		if !c.end && c.pending > 0 {
			if err := c.wait(); err != nil {
				return err
			}
		}
	}
	if c.lineMode && c.errCode == 0 {
		for c.jpuDone > c.conv.Done() {
			if err := c.convert(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) encodeLoop() error {
	for !c.done {
		if c.lineMode {
			// strips converted but not yet handed to the JPU
			for c.conv.Done()-c.jpuDone-c.pending > 0 {
				c.startLine()
			}
			if c.conv.Done()-c.jpuDone < 2 && !c.conv.Exhausted() {
				if err := c.convert(); err != nil {
					return err
				}
				continue
			}
		}
		if err := c.wait(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) wait() error {
	if err := c.irq.Wait(InterruptTimeout); err != nil {
		return fmt.Errorf("jpu: waiting for interrupt: %w", err)
	}

	ints := c.regs.Read32(JINTS)
	c.regs.Write32(JINTS, ^ints&JINTS_MASK)
	c.logf("interrupt %#08x (line buffer %d, buffers %#x)", ints, c.linebuf, c.buffers)

	for _, ev := range DecodeEvents(ints) {
		switch ev {
		case EventHeader:
			c.logf("header %dx%d", c.regs.Read32(JIFDDHSZ), c.regs.Read32(JIFDDVSZ))

		case EventError:
			c.errCode = c.regs.Read32(JCDERR)
			c.done = true

		case EventDone:
			if ints&JINTS_INS10_XFER_DONE == 0 {
				c.logf("done without transfer completion")
			}

		case EventTransferDone:
			c.end = true
			c.done = true

		case EventLineBuffer:
			c.logf("finished line buffer %d", c.linebuf)
			c.linebuf = c.linebuf.Next()
			c.pending--
			c.jpuDone++

		case EventLoaded, EventReload:
			c.logf("%v (%d)", ev, c.buffer)
			c.buffers &^= c.buffer.bit()
			c.buffer = c.buffer.Next()
			c.done = true
		}
	}

	if ints&(JINTS_INS3_HEADER|JINTS_INS5_ERROR|JINTS_INS10_XFER_DONE) != 0 {
		c.regs.Write32(JCCMD, JCCMD_END)
	}

	if err := c.irq.Enable(); err != nil {
		return fmt.Errorf("jpu: re-enabling interrupt: %w", err)
	}
	return nil
}

// Decode drives a decode run to completion. fill loads the next chunk of
// compressed data into reload buffer slot and returns its length; a short
// chunk marks the end of the stream.
func (c *Controller) Decode(run *Run, fill func(slot Slot) (int, error)) error {
	for {
		if err := c.Step(run); err != nil {
			return err
		}
		if run.State == StateEnd {
			if run.Err != 0 {
				return &HardwareError{Code: run.Err}
			}
			return nil
		}
		// Slot 1 is refilled first: after the first reload both buffers are
		// returned and the JPU continues with slot 1.
		for _, slot := range []Slot{1, 0} {
			bit := slot.bit()
			if run.Buffers&bit == 0 {
				continue
			}
			if run.Flags&FlagReload == 0 {
				run.Buffers &^= bit
				continue
			}
			n, err := fill(slot)
			if err != nil {
				c.regs.Write32(JCCMD, JCCMD_END)
				return err
			}
			c.logf("%d/%d bytes filled (buffer %d)", n, ReloadSize, slot)
			if n < ReloadSize {
				run.Flags &^= FlagReload
			}
			if n == 0 {
				// nothing to hand over; the JPU must not read a stale buffer
				run.Buffers &^= bit
			}
		}
	}
}

// Encode drives an encode run to completion. drain receives the encoded data
// of reload buffer slot in production order.
func (c *Controller) Encode(run *Run, drain func(slot Slot, n int) error) error {
	for {
		if err := c.Step(run); err != nil {
			return err
		}
		if run.Err != 0 {
			return &HardwareError{Code: run.Err}
		}
		coded := c.Coded()
		for i := 0; i < 2; i++ {
			if run.Buffers&c.drainSlot.bit() == 0 {
				break
			}
			amount := coded - c.written
			if amount > ReloadSize {
				amount = ReloadSize
			}
			if amount > 0 {
				c.logf("coded data amount: + %5d (buffer %d)", amount, c.drainSlot)
				if err := drain(c.drainSlot, amount); err != nil {
					c.regs.Write32(JCCMD, JCCMD_END)
					return err
				}
				c.written += amount
			}
			c.drainSlot = c.drainSlot.Next()
		}
		if run.State == StateEnd {
			c.logf("coded data amount: = %5d (written: %d)", coded, c.written)
			return nil
		}
	}
}
