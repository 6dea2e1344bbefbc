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
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const classRoot = "/sys/class/uio"

// Map is one memory region of a UIO device, mapped into our address space.
type Map struct {
	// Phys is the physical (bus) address of the region, as seen by DMA
	// engines.
	Phys uint32
	Mem  []byte
}

func (m *Map) Read32(offset uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&m.Mem[offset])))
}

func (m *Map) Write32(offset uint32, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&m.Mem[offset])), value)
}

// Device represents an opened /dev/uioN device.
type Device struct {
	Name string
	name string // within classRoot, e.g. uio0
	f    *os.File
	maps []*Map
}

func (d *Device) sysPath(elem ...string) string {
	return filepath.Join(append([]string{classRoot, d.name}, elem...)...)
}

func readHex(path string) (uint64, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimPrefix(strings.TrimSpace(string(b)), "0x")
	return strconv.ParseUint(s, 16, 64)
}

// Open returns the UIO device whose name (as reported in
// /sys/class/uio/uioN/name) equals name.
func Open(name string) (*Device, error) {
	f, err := os.Open(classRoot)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		b, err := ioutil.ReadFile(filepath.Join(classRoot, n, "name"))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(b)) != name {
			continue
		}
		dev := &Device{Name: name, name: n}
		dev.f, err = os.OpenFile(filepath.Join("/dev", n), os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	return nil, fmt.Errorf("uio device %q not found in %s", name, classRoot)
}

// Map maps memory region i of the device.
func (d *Device) Map(i int) (*Map, error) {
	dir := d.sysPath("maps", fmt.Sprintf("map%d", i))
	addr, err := readHex(filepath.Join(dir, "addr"))
	if err != nil {
		return nil, err
	}
	size, err := readHex(filepath.Join(dir, "size"))
	if err != nil {
		return nil, err
	}
	// UIO selects the region by the mmap offset: region i lives at page i.
	mem, err := unix.Mmap(int(d.f.Fd()), int64(i*os.Getpagesize()), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s map%d: %v", d.name, i, err)
	}
	m := &Map{Phys: uint32(addr), Mem: mem}
	d.maps = append(d.maps, m)
	return m, nil
}

// Wait blocks until the device signals an interrupt, or timeout elapses.
func (d *Device) Wait(timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(d.f.Fd()), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll(%s): %v", d.name, err)
		}
		if n == 0 {
			return ErrTimeout
		}
		break
	}
	// read the number of interrupts so far, which also acknowledges the event
	var count [4]byte
	if _, err := d.f.Read(count[:]); err != nil {
		return fmt.Errorf("reading interrupt count: %v", err)
	}
	return nil
}

// Enable re-enables the interrupt of the device.
func (d *Device) Enable() error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], 1)
	if _, err := d.f.Write(b[:]); err != nil {
		return fmt.Errorf("re-enabling interrupt: %v", err)
	}
	return nil
}

// Close unmaps all regions and closes the device. The Device must not be used
// after calling Close.
func (d *Device) Close() error {
	var firstErr error
	for _, m := range d.maps {
		if err := unix.Munmap(m.Mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap %s: %v", d.name, err)
		}
	}
	d.maps = nil
	if err := d.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
