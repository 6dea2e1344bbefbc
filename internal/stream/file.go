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
	"fmt"
	"os"

	"github.com/google/renameio"
)

// FileSource reads a file.
type FileSource struct {
	Path string
	f    *os.File
}

func (s *FileSource) Init() error {
	if s.f != nil {
		s.f.Close()
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	s.f = f
	return nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	if s.f == nil {
		return 0, fmt.Errorf("%s: not opened", s.Path)
	}
	return readFull(s.f, p)
}

func (s *FileSource) Write(p []byte) error { return ErrNotWritable }

func (s *FileSource) Finalize() {
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
}

// FileSink writes a file. The file is replaced atomically in Finalize, so
// readers never observe partial output.
type FileSink struct {
	Path string
	t    *renameio.PendingFile
	err  error
}

func (s *FileSink) Init() error {
	if s.t != nil {
		s.t.Cleanup()
	}
	t, err := renameio.TempFile("", s.Path)
	if err != nil {
		return err
	}
	s.t = t
	s.err = nil
	return nil
}

func (s *FileSink) Read(p []byte) (int, error) { return 0, ErrNotReadable }

func (s *FileSink) Write(p []byte) error {
	if s.t == nil {
		return fmt.Errorf("%s: not opened", s.Path)
	}
	_, err := s.t.Write(p)
	return err
}

// Abort discards the output.
func (s *FileSink) Abort() {
	if s.t != nil {
		s.t.Cleanup()
		s.t = nil
	}
}

func (s *FileSink) Finalize() {
	if s.t == nil {
		return
	}
	s.err = s.t.CloseAtomicallyReplace()
	if s.err != nil {
		s.t.Cleanup()
	}
	s.t = nil
}

// Err returns the error which occurred when committing the file, if any.
func (s *FileSink) Err() error { return s.err }
