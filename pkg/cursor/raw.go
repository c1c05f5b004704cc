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

package cursor

import (
	"bytes"

	"strusgo/pkg/ixerr"
	"strusgo/pkg/store"
	"strusgo/pkg/varint"
)

// RawCursor walks the blocks of a single family+grouping-prefix (e.g. one
// (typeno,termno) posting) keyed by "prefix ∥ packed(addrHi)", where
// addrHi is the largest address (docno, or position for the forward
// index) contained in the block.
type RawCursor struct {
	kv     store.KV
	prefix []byte
	cur    store.Cursor
}

// NewRawCursor returns a cursor over blocks sharing the given key prefix.
func NewRawCursor(kv store.KV, prefix []byte) *RawCursor {
	return &RawCursor{kv: kv, prefix: append([]byte(nil), prefix...)}
}

// Close releases the underlying store cursor, if any.
func (c *RawCursor) Close() error {
	if c.cur != nil {
		err := c.cur.Close()
		c.cur = nil
		return err
	}
	return nil
}

func (c *RawCursor) decodeKey(key []byte) (uint32, bool) {
	if !bytes.HasPrefix(key, c.prefix) {
		return 0, false
	}
	tail := key[len(c.prefix):]
	hi, n, err := varint.Unpack(tail)
	if err != nil || n != len(tail) {
		return 0, false
	}
	return hi, true
}

// SeekUpperBound repositions the cursor at the first block whose addrHi
// is >= target, returning its addrHi and raw value.
func (c *RawCursor) SeekUpperBound(target uint32) (addrHi uint32, value []byte, ok bool, err error) {
	if err := c.Close(); err != nil {
		return 0, nil, false, err
	}
	seekKey := append(append([]byte(nil), c.prefix...), varint.Pack(nil, target)...)
	c.cur = c.kv.NewCursor()
	if err := c.cur.SeekUpperBound(seekKey); err != nil {
		return 0, nil, false, err
	}
	if !c.cur.Next() {
		return 0, nil, false, nil
	}
	hi, okPrefix := c.decodeKey(c.cur.Key())
	if !okPrefix {
		return 0, nil, false, nil
	}
	return hi, append([]byte(nil), c.cur.Value()...), true, nil
}

// Next advances to the following block in the same family+prefix.
func (c *RawCursor) Next() (addrHi uint32, value []byte, ok bool, err error) {
	if c.cur == nil {
		return 0, nil, false, ixerr.New(ixerr.InvalidArgument, "cursor: Next called before a seek")
	}
	if !c.cur.Next() {
		return 0, nil, false, nil
	}
	hi, okPrefix := c.decodeKey(c.cur.Key())
	if !okPrefix {
		return 0, nil, false, nil
	}
	return hi, append([]byte(nil), c.cur.Value()...), true, nil
}
