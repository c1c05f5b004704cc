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

// Package keymap interns name strings (term types, term values, doc
// ids, user names, attribute names) to stable positive 32-bit indices.
// Unknown names referenced inside an open transaction are handed out
// local ids above UnknownValueHandleStart; a commit rewrites them to
// persisted, stable ids via a rename map.
package keymap

import (
	"sync"

	"strusgo/pkg/ixerr"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/store"
	"strusgo/pkg/varint"
)

// UnknownValueHandleStart is the threshold above which an id is a
// transaction-local placeholder, not yet persisted.
const UnknownValueHandleStart = 1 << 30

// IsUnknown reports whether v is a transaction-local placeholder id.
func IsUnknown(v uint32) bool { return v > UnknownValueHandleStart }

// Map interns strings for a single family (term type, term value, doc id,
// user name, or attribute name) over a shared store.KV, with a
// process-wide atomic counter handing out stable ids at commit.
type Map struct {
	kv     store.KV
	family keyschema.Family
	keyFn  func(idx uint32) []byte

	next *Counter

	mu      sync.Mutex
	local   map[string]uint32 // name -> id, either stable (looked up) or unknown-local
	unknown uint32            // count of unknown ids allocated this "session"
}

// New returns a Map over family, using keyFn to build the persisted
// string-table key for a given index (e.g. keyschema.TermType).
func New(kv store.KV, family keyschema.Family, keyFn func(uint32) []byte, next *Counter) *Map {
	return &Map{
		kv:     kv,
		family: family,
		keyFn:  keyFn,
		next:   next,
		local:  make(map[string]uint32),
	}
}

// LookUp returns the persisted id of name, or ixerr.NotFound if absent.
// It never allocates.
func (m *Map) LookUp(name string) (uint32, error) {
	m.mu.Lock()
	if id, ok := m.local[name]; ok && !IsUnknown(id) {
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()
	return m.load(name)
}

func (m *Map) load(name string) (uint32, error) {
	it := m.reverseScan(name)
	if it != 0 {
		return it, nil
	}
	return 0, ixerr.Newf(ixerr.NotFound, "keymap: name %q not found", name)
}

// reverseScan looks the name up by value equality with a full scan of
// the family: the forward table is keyed by id, not by name. LookUp and
// GetOrCreate consult the map's local entries first; those entries only
// live until Clear, which a transaction calls after every commit, so in
// a freshly created or cleared Map every lookup scans.
func (m *Map) reverseScan(name string) uint32 {
	c := m.kv.NewCursor()
	defer c.Close()
	if err := c.SeekUpperBound([]byte{byte(m.family)}); err != nil {
		return 0
	}
	for c.Next() {
		key := c.Key()
		if len(key) == 0 || keyschema.Family(key[0]) != m.family {
			break
		}
		if string(c.Value()) == name {
			idx, _, err := varint.Unpack(keyschema.Tail(key))
			if err != nil {
				return 0
			}
			return idx
		}
	}
	return 0
}

// GetOrCreate returns name's id, allocating a transaction-local unknown
// id if name is new. isNew reports whether this call allocated it.
func (m *Map) GetOrCreate(name string) (id uint32, isNew bool, err error) {
	m.mu.Lock()
	if id, ok := m.local[name]; ok {
		m.mu.Unlock()
		return id, false, nil
	}
	m.mu.Unlock()

	if stable, lerr := m.load(name); lerr == nil {
		m.mu.Lock()
		m.local[name] = stable
		m.mu.Unlock()
		return stable, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.local[name]; ok {
		return id, false, nil
	}
	m.unknown++
	if m.unknown >= UnknownValueHandleStart {
		return 0, false, ixerr.New(ixerr.ResourceExhausted, "keymap: too many elements in keymap")
	}
	id = UnknownValueHandleStart + m.unknown
	m.local[name] = id
	return id, true, nil
}

// Pending returns the (name, localID) pairs of every unknown id
// allocated by GetOrCreate this session, for use by a transaction's
// commit-time rename pass.
func (m *Map) Pending() map[string]uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint32, len(m.local))
	for name, id := range m.local {
		if IsUnknown(id) {
			out[name] = id
		}
	}
	return out
}

// Resolve stages a put for name -> stableID into batch and returns the
// family key written, so the caller can keep the write inside the same
// batched commit.
func (m *Map) Resolve(batch *store.Batch, name string, stableID uint32) []byte {
	key := m.keyFn(stableID)
	batch.Put(key, []byte(name))
	return key
}

// Clear discards all staged local state (used by Rollback and after a
// successful Commit has flushed Pending through Resolve).
func (m *Map) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local = make(map[string]uint32)
	m.unknown = 0
}

// Counter is a process-wide atomic next-id allocator shared by every
// Map writing stable ids into the store at commit.
type Counter struct {
	mu      sync.Mutex
	current uint32
}

// NewCounter returns a Counter seeded at start (the last persisted
// value read from the 'v'-prefixed Variable family on open).
func NewCounter(start uint32) *Counter { return &Counter{current: start} }

// Alloc returns the next stable id and bumps the counter.
func (c *Counter) Alloc() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// Current returns the counter's current value without allocating.
func (c *Counter) Current() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
