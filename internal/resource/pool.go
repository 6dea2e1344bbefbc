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
	"sort"
	"sync"
)

const align = 8

type extent struct {
	off, size int
}

// pool is a first-fit allocator over the byte range [start, end).
type pool struct {
	mu        sync.Mutex
	extents   []extent // sorted by offset, adjacent extents merged
	allocated map[int]int
}

func newPool(start, end int) *pool {
	start = (start + align - 1) &^ (align - 1)
	p := &pool{allocated: make(map[int]int)}
	if end > start {
		p.extents = []extent{{start, end - start}}
	}
	return p
}

func (p *pool) alloc(size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("malloc: invalid size %d", size)
	}
	rounded := (size + align - 1) &^ (align - 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.extents {
		if e.size < rounded {
			continue
		}
		if e.size == rounded {
			p.extents = append(p.extents[:i], p.extents[i+1:]...)
		} else {
			p.extents[i] = extent{e.off + rounded, e.size - rounded}
		}
		p.allocated[e.off] = rounded
		return e.off, nil
	}
	return 0, fmt.Errorf("malloc %d bytes: %w", size, ErrOutOfMemory)
}

func (p *pool) free(off int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	size, ok := p.allocated[off]
	if !ok {
		return fmt.Errorf("free: no allocation at offset %#x", off)
	}
	delete(p.allocated, off)
	i := sort.Search(len(p.extents), func(i int) bool { return p.extents[i].off > off })
	p.extents = append(p.extents, extent{})
	copy(p.extents[i+1:], p.extents[i:])
	p.extents[i] = extent{off, size}
	// merge with the following and the preceding extent
	if i+1 < len(p.extents) && p.extents[i].off+p.extents[i].size == p.extents[i+1].off {
		p.extents[i].size += p.extents[i+1].size
		p.extents = append(p.extents[:i+1], p.extents[i+2:]...)
	}
	if i > 0 && p.extents[i-1].off+p.extents[i-1].size == p.extents[i].off {
		p.extents[i-1].size += p.extents[i].size
		p.extents = append(p.extents[:i], p.extents[i+1:]...)
	}
	return nil
}

func (p *pool) available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int
	for _, e := range p.extents {
		n += e.size
	}
	return n
}
