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

// Package store defines the ordered byte-key/byte-value map the storage
// engine is built on: Get, a
// forward cursor with upper-bound seek, and a batched atomic write.
package store

import "errors"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// KV is an ordered, enumerable byte-key/byte-value store with batched
// mutations. Implementations must be safe for concurrent readers; writers
// serialize among themselves (the storage engine additionally holds its
// own transaction lock around the critical section, see pkg/txn).
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// NewCursor returns a forward cursor. SeekUpperBound positions it
	// before the first key/value pair with key >= seek before any
	// iteration happens.
	NewCursor() Cursor

	// Write commits puts and deletes atomically. sync requests the
	// store durably fsync the write before returning.
	Write(batch *Batch, sync bool) error

	// Close releases underlying resources.
	Close() error
}

// Cursor walks key/value pairs in ascending key order.
type Cursor interface {
	// SeekUpperBound positions the cursor before the first key >= seek.
	SeekUpperBound(seek []byte) error

	// Next advances the cursor and reports whether a pair is available.
	Next() bool

	Key() []byte
	Value() []byte

	// Close releases the cursor. Safe to call multiple times.
	Close() error
}

// Batch accumulates puts and deletes for a single atomic Write.
type Batch struct {
	puts    []kv
	deletes [][]byte
}

type kv struct {
	key, value []byte
}

// Put stages a key/value write.
func (b *Batch) Put(key, value []byte) {
	b.puts = append(b.puts, kv{append([]byte(nil), key...), append([]byte(nil), value...)})
}

// Delete stages a key deletion.
func (b *Batch) Delete(key []byte) {
	b.deletes = append(b.deletes, append([]byte(nil), key...))
}

// Len returns the number of staged mutations.
func (b *Batch) Len() int { return len(b.puts) + len(b.deletes) }

// Puts returns the staged puts, in append order.
func (b *Batch) Puts() []struct{ Key, Value []byte } {
	out := make([]struct{ Key, Value []byte }, len(b.puts))
	for i, p := range b.puts {
		out[i] = struct{ Key, Value []byte }{p.key, p.value}
	}
	return out
}

// Deletes returns the staged deletes, in append order.
func (b *Batch) Deletes() [][]byte {
	out := make([][]byte, len(b.deletes))
	copy(out, b.deletes)
	return out
}
