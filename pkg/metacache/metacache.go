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

// Package metacache caches decoded MetaData blocks (1024 docs per
// block), shared across concurrent readers and invalidated by a
// transaction's commit-time refresh list. A container/list-backed LRU
// keyed by uint32 block number; concurrent misses on the same block
// collapse onto one load via golang.org/x/sync/singleflight.
package metacache

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"

	"strusgo/pkg/block"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/store"
)

// Loader fetches and decodes the raw MetaData block with the given
// block number from the backing store.
type Loader func(blockNo uint32) (*block.MetaDataBlock, error)

// Cache is an LRU of decoded MetaData blocks, bounded by maxEntries.
type Cache struct {
	maxEntries int
	load       Loader

	group singleflight.Group

	mu    sync.Mutex
	ll    *list.List
	items map[uint32]*list.Element
}

type entry struct {
	blockNo uint32
	blk     *block.MetaDataBlock
}

// New returns a Cache of at most maxEntries decoded blocks, using load
// to fill misses.
func New(maxEntries int, load Loader) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		maxEntries: maxEntries,
		load:       load,
		ll:         list.New(),
		items:      make(map[uint32]*list.Element),
	}
}

// Get returns the decoded block for blockNo, loading it on a miss.
// Concurrent Get calls for the same blockNo collapse onto a single
// Loader invocation.
func (c *Cache) Get(blockNo uint32) (*block.MetaDataBlock, error) {
	c.mu.Lock()
	if el, ok := c.items[blockNo]; ok {
		c.ll.MoveToFront(el)
		blk := el.Value.(*entry).blk
		c.mu.Unlock()
		return blk, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(blockKey(blockNo), func() (interface{}, error) {
		blk, err := c.load(blockNo)
		if err != nil {
			return nil, err
		}
		c.add(blockNo, blk)
		return blk, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*block.MetaDataBlock), nil
}

func (c *Cache) add(blockNo uint32, blk *block.MetaDataBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[blockNo]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*entry).blk = blk
		return
	}
	el := c.ll.PushFront(&entry{blockNo: blockNo, blk: blk})
	c.items[blockNo] = el
	if c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).blockNo)
		}
	}
}

// Invalidate evicts blockNo, forcing the next Get to reload it. Called
// by a transaction's commit with its refresh list of changed block ids.
func (c *Cache) Invalidate(blockNo uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[blockNo]; ok {
		c.ll.Remove(el)
		delete(c.items, blockNo)
	}
}

// InvalidateAll evicts every cached block.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll = list.New()
	c.items = make(map[uint32]*list.Element)
}

// Len reports the number of blocks currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func blockKey(blockNo uint32) string {
	return string(keyschema.MetaData(blockNo))
}

// StoreLoader returns a Loader that reads and decodes a MetaData block
// directly from kv under schema. A block with no stored value yet
// (never written) decodes as an all-zero block, matching "MetaData
// blocks exist for every docno inserted" without
// requiring a pre-write for never-touched block numbers.
func StoreLoader(kv store.KV, schema *block.Schema) Loader {
	return func(blockNo uint32) (*block.MetaDataBlock, error) {
		raw, err := kv.Get(keyschema.MetaData(blockNo))
		if err == store.ErrNotFound {
			return block.NewMetaDataBlock(schema, blockNo), nil
		}
		if err != nil {
			return nil, err
		}
		return block.UnmarshalMetaData(schema, blockNo, raw)
	}
}
