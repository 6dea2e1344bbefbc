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

//go:build !linux

package uio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("uio access is only supported on Linux")

type Map struct {
	Phys uint32
	Mem  []byte
}

func (m *Map) Read32(offset uint32) uint32 { return 0 }

func (m *Map) Write32(offset uint32, value uint32) {}

type Device struct {
	Name string
}

func Open(name string) (*Device, error) {
	return nil, errUnsupported
}

func (d *Device) Map(i int) (*Map, error) {
	return nil, errUnsupported
}

func (d *Device) Wait(timeout time.Duration) error {
	return errUnsupported
}

func (d *Device) Enable() error {
	return errUnsupported
}

func (d *Device) Close() error {
	return nil
}
