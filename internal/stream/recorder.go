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

// Recorder wraps a source and keeps every byte read from it, so that the
// data can be read again from the start after Rewind, e.g. by a software
// decoder retrying what the hardware failed to decode.
type Recorder struct {
	src  Ops
	data []byte
	pos  int
	eos  bool
}

func NewRecorder(src Ops) *Recorder {
	return &Recorder{src: src}
}

// Init initializes the underlying source and drops the recording.
func (r *Recorder) Init() error {
	r.data = r.data[:0]
	r.pos = 0
	r.eos = false
	return r.src.Init()
}

func (r *Recorder) Read(p []byte) (int, error) {
	n := copy(p, r.data[r.pos:])
	r.pos += n
	if n == len(p) || r.eos {
		return n, nil
	}
	m, err := r.src.Read(p[n:])
	r.data = append(r.data, p[n:n+m]...)
	r.pos += m
	if err != nil {
		return n + m, err
	}
	if n+m < len(p) {
		r.eos = true
	}
	return n + m, nil
}

func (r *Recorder) Write(p []byte) error { return ErrNotWritable }

func (r *Recorder) Finalize() { r.src.Finalize() }

// Rewind restarts reading at the first byte.
func (r *Recorder) Rewind() { r.pos = 0 }

// Len returns the number of bytes recorded so far.
func (r *Recorder) Len() int { return len(r.data) }
