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

package shjpeg

import (
	"errors"
	"fmt"

	"github.com/stapelberg/shjpeg/internal/jpu"
	"github.com/stapelberg/shjpeg/internal/resource"
	"github.com/stapelberg/shjpeg/internal/uio"
)

var (
	// ErrResourceUnavailable is returned by Init when the hardware could
	// not be opened.
	ErrResourceUnavailable = resource.ErrUnavailable

	// ErrOutOfMemory is returned by Malloc when the contiguous memory is
	// exhausted.
	ErrOutOfMemory = resource.ErrOutOfMemory

	// ErrHardwareTimeout means that the hardware did not signal an
	// interrupt in time.
	ErrHardwareTimeout = uio.ErrTimeout

	// ErrInvalidContext is returned for operations on a Context which was
	// shut down, not prepared for the operation or is in use by another
	// goroutine.
	ErrInvalidContext = errors.New("invalid context")

	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupported means that the hardware cannot process an image. It is
	// only returned with PolicyHardwareOnly; otherwise such images are
	// processed in software.
	ErrUnsupported = errors.New("not supported by the hardware")
)

// HardwareError is returned when the JPU reports a decoding error.
type HardwareError = jpu.HardwareError

// StreamError is returned when the Context's StreamOps fail.
type StreamError struct {
	Op  string // init, read or write
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// SoftwareCodecError is returned when the software codec fails, e.g. on a
// corrupt JPEG stream. There is no further fallback.
type SoftwareCodecError struct {
	Err error
}

func (e *SoftwareCodecError) Error() string {
	return fmt.Sprintf("software codec: %v", e.Err)
}

func (e *SoftwareCodecError) Unwrap() error { return e.Err }

// codecError wraps err as SoftwareCodecError unless it originates from the
// stream.
func codecError(err error) error {
	var serr *StreamError
	if errors.As(err, &serr) {
		return err
	}
	return &SoftwareCodecError{Err: err}
}
