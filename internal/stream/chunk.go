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

package stream

import (
	"bufio"
	"io"
)

// ChunkWriter copies arbitrarily sized writes into a fixed-capacity buffer,
// emptying it through Flush whenever it is full.
type ChunkWriter struct {
	Buf   []byte
	Flush func(b []byte) error
	n     int
}

func (w *ChunkWriter) Write(p []byte) error {
	for len(p) > 0 {
		if w.n == len(w.Buf) {
			if err := w.Flush(w.Buf); err != nil {
				return err
			}
			w.n = 0
		}
		c := copy(w.Buf[w.n:], p)
		w.n += c
		p = p[c:]
	}
	return nil
}

// Sync flushes the buffered data.
func (w *ChunkWriter) Sync() error {
	if w.n == 0 {
		return nil
	}
	err := w.Flush(w.Buf[:w.n])
	w.n = 0
	return err
}

// Reset discards the buffered data.
func (w *ChunkWriter) Reset() { w.n = 0 }

// WriterSink is a write-only Ops writing to an io.Writer in chunks of
// bufio.MaxScanTokenSize bytes. As data which has reached the io.Writer
// cannot be taken back, Init fails once data was flushed.
type WriterSink struct {
	w       io.Writer
	cw      ChunkWriter
	flushed bool
	err     error
}

func NewWriterSink(w io.Writer) *WriterSink {
	s := &WriterSink{w: w}
	s.cw = ChunkWriter{
		Buf: make([]byte, bufio.MaxScanTokenSize),
		Flush: func(b []byte) error {
			s.flushed = true
			_, err := s.w.Write(b)
			return err
		},
	}
	return s
}

func (s *WriterSink) Init() error {
	if s.flushed {
		return errNotRestartable
	}
	s.cw.Reset()
	return nil
}

func (s *WriterSink) Read(p []byte) (int, error) { return 0, ErrNotReadable }

func (s *WriterSink) Write(p []byte) error { return s.cw.Write(p) }

// Abort discards buffered data which was not yet flushed.
func (s *WriterSink) Abort() { s.cw.Reset() }

func (s *WriterSink) Finalize() { s.err = s.cw.Sync() }

// Err returns the error of the final flush, if any.
func (s *WriterSink) Err() error { return s.err }
