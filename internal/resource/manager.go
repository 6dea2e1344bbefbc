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

package resource

import (
	"fmt"
	"sync"
)

// Opener opens the hardware resources. It is called when the first user
// acquires a Manager.
type Opener func() (*Group, error)

// Manager shares one Group between all users, opening it on the first
// Acquire and closing it when the last user calls Release.
type Manager struct {
	open Opener

	mu    sync.Mutex
	refs  int
	group *Group
}

func NewManager(open Opener) *Manager {
	return &Manager{open: open}
}

// Acquire returns the shared group, opening it if necessary. A failure to
// open is returned to the caller and leaves the Manager unacquired.
func (m *Manager) Acquire() (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs > 0 {
		m.refs++
		return m.group, nil
	}
	if m.open == nil {
		return nil, fmt.Errorf("%w: no opener", ErrUnavailable)
	}
	g, err := m.open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	m.group = g
	m.refs = 1
	return g, nil
}

// Release drops one reference. The group is closed when the last reference
// is dropped.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs == 0 {
		return fmt.Errorf("release: %w: not acquired", ErrUnavailable)
	}
	m.refs--
	if m.refs > 0 {
		return nil
	}
	g := m.group
	m.group = nil
	if g.close != nil {
		if err := g.close(); err != nil {
			return fmt.Errorf("closing hardware: %v", err)
		}
	}
	return nil
}

// Current returns the shared group without acquiring a reference. It fails
// if nobody holds a reference.
func (m *Manager) Current() (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs == 0 {
		return nil, ErrUnavailable
	}
	return m.group, nil
}

// Refs returns the number of outstanding references.
func (m *Manager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}
