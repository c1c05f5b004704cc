/*
Copyright 2024 The Strusgo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// Mem is an in-memory KV, mostly useful for tests. It keeps keys ordered
// in a github.com/google/btree tree so SeekUpperBound is O(log n) rather
// than a linear scan over a freshly sorted slice.
type Mem struct {
	mu   sync.Mutex
	tree *btree.BTree
}

type memItem struct {
	key, value []byte
}

func (a *memItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(*memItem).key) < 0
}

// NewMem returns an empty in-memory KV.
func NewMem() *Mem {
	return &Mem{tree: btree.New(32)}
}

func (m *Mem) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.tree.Get(&memItem{key: key})
	if it == nil {
		return nil, ErrNotFound
	}
	v := it.(*memItem).value
	return append([]byte(nil), v...), nil
}

func (m *Mem) Write(b *Batch, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range b.Puts() {
		m.tree.ReplaceOrInsert(&memItem{key: p.Key, value: p.Value})
	}
	for _, d := range b.Deletes() {
		m.tree.Delete(&memItem{key: d})
	}
	return nil
}

func (m *Mem) Close() error { return nil }

func (m *Mem) NewCursor() Cursor {
	return &memCursor{m: m}
}

type memCursor struct {
	m       *Mem
	keys    [][]byte
	values  [][]byte
	pos     int
	started bool
}

func (c *memCursor) SeekUpperBound(seek []byte) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.keys = c.keys[:0]
	c.values = c.values[:0]
	pivot := &memItem{key: seek}
	c.m.tree.AscendGreaterOrEqual(pivot, func(it btree.Item) bool {
		mi := it.(*memItem)
		c.keys = append(c.keys, append([]byte(nil), mi.key...))
		c.values = append(c.values, append([]byte(nil), mi.value...))
		return true
	})
	c.pos = -1
	c.started = true
	return nil
}

func (c *memCursor) Next() bool {
	if !c.started {
		return false
	}
	c.pos++
	return c.pos < len(c.keys)
}

func (c *memCursor) Key() []byte   { return c.keys[c.pos] }
func (c *memCursor) Value() []byte { return c.values[c.pos] }
func (c *memCursor) Close() error  { return nil }

var _ KV = (*Mem)(nil)
