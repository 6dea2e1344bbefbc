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

import "bytes"

// MemorySource reads from a byte slice.
type MemorySource struct {
	Data []byte
	off  int
}

func (s *MemorySource) Init() error {
	s.off = 0
	return nil
}

func (s *MemorySource) Read(p []byte) (int, error) {
	n := copy(p, s.Data[s.off:])
	s.off += n
	return n, nil
}

func (s *MemorySource) Write(p []byte) error { return ErrNotWritable }

func (s *MemorySource) Finalize() {}

// MemorySink collects everything written into memory.
type MemorySink struct {
	buf       bytes.Buffer
	finalized int
}

func (s *MemorySink) Init() error {
	s.buf.Reset()
	return nil
}

func (s *MemorySink) Read(p []byte) (int, error) { return 0, ErrNotReadable }

func (s *MemorySink) Write(p []byte) error {
	s.buf.Write(p)
	return nil
}

func (s *MemorySink) Finalize() { s.finalized++ }

// Bytes returns the data written since the last Init.
func (s *MemorySink) Bytes() []byte { return s.buf.Bytes() }

// Finalized returns how often Finalize was called.
func (s *MemorySink) Finalized() int { return s.finalized }
