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
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is the production KV backend: a single mutable database file on
// disk, via github.com/syndtr/goleveldb.
type LevelDB struct {
	db        *leveldb.DB
	path      string
	readOpts  *opt.ReadOptions
	writeOpts *opt.WriteOptions
}

// OpenLevelDB opens (creating if absent) a leveldb database directory at
// path.
func OpenLevelDB(path string) (*LevelDB, error) {
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}
	return &LevelDB{
		db:        db,
		path:      path,
		readOpts:  &opt.ReadOptions{},
		writeOpts: &opt.WriteOptions{Sync: false},
	}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, l.readOpts)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (l *LevelDB) Write(b *Batch, sync bool) error {
	lb := new(leveldb.Batch)
	for _, p := range b.Puts() {
		lb.Put(p.Key, p.Value)
	}
	for _, d := range b.Deletes() {
		lb.Delete(d)
	}
	wo := l.writeOpts
	if sync {
		wo = &opt.WriteOptions{Sync: true}
	}
	return l.db.Write(lb, wo)
}

func (l *LevelDB) Close() error { return l.db.Close() }

func (l *LevelDB) NewCursor() Cursor {
	return &levelCursor{l: l}
}

type levelCursor struct {
	l    *LevelDB
	it   interface {
		Next() bool
		Key() []byte
		Value() []byte
		Release()
	}
}

func (c *levelCursor) SeekUpperBound(seek []byte) error {
	if c.it != nil {
		c.it.Release()
	}
	c.it = c.l.db.NewIterator(&util.Range{Start: seek}, c.l.readOpts)
	return nil
}

func (c *levelCursor) Next() bool {
	if c.it == nil {
		return false
	}
	return c.it.Next()
}

func (c *levelCursor) Key() []byte   { return c.it.Key() }
func (c *levelCursor) Value() []byte { return c.it.Value() }

func (c *levelCursor) Close() error {
	if c.it != nil {
		c.it.Release()
		c.it = nil
	}
	return nil
}

var _ KV = (*LevelDB)(nil)
