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
	"errors"
	"io"
)

const (
	markerPrefix = 0xff
	markerEOI    = 0xd9
)

// ChunkSource produces compressed data in chunks of its own choosing. An
// empty chunk (or io.EOF) marks the end of the data.
type ChunkSource interface {
	Fill() ([]byte, error)
}

// EOIReader turns a ChunkSource, which cannot signal the end of the data by
// itself, into a Read which returns short exactly at the end of the image:
// it looks for the end of image marker in the last two bytes of every chunk.
//
// When the marker ends exactly where the read request ends, the final 0xd9
// is held back and replaced by a 0xff fill byte, so that the short read
// happens in the next call instead of one call too late.
type EOIReader struct {
	Src ChunkSource
	buf []byte
}

func (r *EOIReader) fill() error {
	b, err := r.Src.Fill()
	if err == io.EOF {
		err = nil
	}
	r.buf = b
	return err
}

func (r *EOIReader) Read(p []byte) (int, error) {
	want := len(p)
	var n int
	if len(r.buf) == 0 {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	for len(r.buf) <= want {
		m := len(r.buf)
		if m == 0 {
			return n, nil
		}
		if m == 1 {
			if r.buf[0] == markerEOI {
				want = m
				break
			}
		} else if r.buf[m-2] == markerPrefix && r.buf[m-1] == markerEOI {
			if want == m {
				copy(p[n:], r.buf[:m-1])
				p[n+m-1] = markerPrefix
				r.buf = r.buf[m-1:]
				return n + m, nil
			}
			want = m
			break
		}
		copy(p[n:], r.buf)
		n += m
		want -= m
		if err := r.fill(); err != nil {
			return n, err
		}
	}
	copy(p[n:], r.buf[:want])
	r.buf = r.buf[want:]
	return n + want, nil
}

// ReaderChunks is a ChunkSource reading chunks of up to Size bytes from R.
type ReaderChunks struct {
	R    io.Reader
	Size int
	buf  []byte
}

func (c *ReaderChunks) Fill() ([]byte, error) {
	if c.buf == nil {
		size := c.Size
		if size <= 0 {
			size = 4096
		}
		c.buf = make([]byte, size)
	}
	n, err := c.R.Read(c.buf)
	if n > 0 {
		return c.buf[:n], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return nil, err
}

// ReaderSource is a read-only Ops reading a JPEG stream from an io.Reader.
// It cannot be restarted: Init only succeeds before the first Read.
type ReaderSource struct {
	r       EOIReader
	started bool
	closer  io.Closer
}

// NewReaderSource returns a source reading from r. If r is an io.Closer, it
// is closed in Finalize.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{r: EOIReader{Src: &ReaderChunks{R: r}}}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

var errNotRestartable = errors.New("stream cannot be restarted")

func (s *ReaderSource) Init() error {
	if s.started {
		return errNotRestartable
	}
	return nil
}

func (s *ReaderSource) Read(p []byte) (int, error) {
	s.started = true
	return s.r.Read(p)
}

func (s *ReaderSource) Write(p []byte) error { return ErrNotWritable }

func (s *ReaderSource) Finalize() {
	if s.closer != nil {
		s.closer.Close()
	}
}
