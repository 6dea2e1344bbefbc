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

// Package stream implements the pull-based I/O contract through which the
// codec reads compressed data and writes encoded data, plus the common
// sources and sinks.
package stream

import (
	"errors"
	"io"
)

// Ops is the I/O contract of a codec context.
type Ops interface {
	// Init prepares the stream. For sinks, calling Init again discards
	// everything written so far.
	Init() error

	// Read fills p completely, or returns fewer bytes to signal the end of
	// the stream. Read may be called again after a short read.
	Read(p []byte) (int, error)

	// Write consumes all of p, whatever its size.
	Write(p []byte) error

	// Finalize is called exactly once when the stream is torn down, also
	// after errors.
	Finalize()
}

// Aborter is implemented by sinks which can discard their output, e.g. after
// a failed encode. Abort is called before Finalize.
type Aborter interface {
	Abort()
}

var (
	ErrNotReadable = errors.New("stream is not readable")
	ErrNotWritable = errors.New("stream is not writable")
)

// Reader adapts Ops to io.Reader.
type Reader struct {
	Ops Ops
	eos bool
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.eos {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.Ops.Read(p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		r.eos = true
		if n == 0 {
			return 0, io.EOF
		}
	}
	return n, nil
}

// Writer adapts Ops to io.Writer.
type Writer struct {
	Ops Ops
}

func (w *Writer) Write(p []byte) (int, error) {
	if err := w.Ops.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// readFull reads from r until p is full or r is exhausted, converting
// io.EOF into a short read.
func readFull(r io.Reader, p []byte) (int, error) {
	n, err := io.ReadFull(r, p)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}
