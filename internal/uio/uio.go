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

// Package uio is a minimal library which uses Linux's userspace I/O (UIO)
// framework to access memory-mapped hardware blocks: register windows,
// physically contiguous memory and interrupts.
package uio

import (
	"errors"
	"time"
)

// ErrTimeout is returned by Interrupt.Wait when no interrupt arrived within
// the timeout.
var ErrTimeout = errors.New("timeout waiting for interrupt")

// Registers is a window of 32-bit hardware registers.
type Registers interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// Interrupt is the interrupt line of a hardware block.
type Interrupt interface {
	// Wait blocks until the interrupt fires or timeout elapses, in which case
	// ErrTimeout is returned. The interrupt stays masked until Enable is
	// called.
	Wait(timeout time.Duration) error

	// Enable unmasks the interrupt after it was handled.
	Enable() error
}
