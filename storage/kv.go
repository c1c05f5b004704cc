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

package storage

import (
	"strusgo/pkg/block"
	"strusgo/pkg/store"
)

// compressedKV is a store.KV view that compresses every value on write
// and decompresses on read, so the whole engine above it stays
// compression-agnostic. Selected by the `compression: yes` option; a
// storage must be opened with the same setting it was created with.
type compressedKV struct {
	inner store.KV
}

func newCompressedKV(inner store.KV) store.KV { return &compressedKV{inner: inner} }

func (z *compressedKV) Get(key []byte) ([]byte, error) {
	raw, err := z.inner.Get(key)
	if err != nil {
		return nil, err
	}
	return block.Decompress(raw)
}

func (z *compressedKV) Write(b *store.Batch, sync bool) error {
	nb := &store.Batch{}
	for _, p := range b.Puts() {
		nb.Put(p.Key, block.Compress(p.Value))
	}
	for _, k := range b.Deletes() {
		nb.Delete(k)
	}
	return z.inner.Write(nb, sync)
}

func (z *compressedKV) Close() error { return z.inner.Close() }

func (z *compressedKV) NewCursor() store.Cursor {
	return &compressedCursor{inner: z.inner.NewCursor()}
}

type compressedCursor struct {
	inner store.Cursor
	value []byte
	err   error
}

func (c *compressedCursor) SeekUpperBound(seek []byte) error {
	return c.inner.SeekUpperBound(seek)
}

// Next decompresses the value eagerly; a decode failure ends the
// iteration and is reported by Close, mirroring the error discipline of
// the leveldb iterator underneath.
func (c *compressedCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.inner.Next() {
		return false
	}
	c.value, c.err = block.Decompress(c.inner.Value())
	return c.err == nil
}

func (c *compressedCursor) Key() []byte   { return c.inner.Key() }
func (c *compressedCursor) Value() []byte { return c.value }

func (c *compressedCursor) Close() error {
	if err := c.inner.Close(); err != nil {
		return err
	}
	return c.err
}

var _ store.KV = (*compressedKV)(nil)
