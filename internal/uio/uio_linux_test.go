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

package uio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func tempDevice(t *testing.T) *Device {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "uio0"), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(int64(os.Getpagesize())); err != nil {
		t.Fatal(err)
	}
	return &Device{Name: "test", name: "uio0", f: f}
}

func TestClose(t *testing.T) {
	d := tempDevice(t)
	mem, err := unix.Mmap(int(d.f.Fd()), 0, os.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		t.Fatal(err)
	}
	d.maps = append(d.maps, &Map{Mem: mem})
	f := d.f
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("closing the device file again: got %v, want %v", err, os.ErrClosed)
	}
}

func TestCloseUnmapFailure(t *testing.T) {
	d := tempDevice(t)
	// never mapped, so munmap fails
	d.maps = append(d.maps, &Map{Mem: make([]byte, 16)})
	f := d.f
	if err := d.Close(); err == nil {
		t.Fatalf("Close unexpectedly succeeded")
	}
	if err := f.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("device file left open: closing it again got %v, want %v", err, os.ErrClosed)
	}
}
