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

// Package storage wires the storage engine together: the ordered
// key-value store, the interning key maps, the metadata block cache,
// the transaction factory and the posting/structure iterator
// factories. A Storage is safe for concurrent readers; commits
// serialize on its process-wide transaction lock.
package storage

import (
	"sync"
	"sync/atomic"

	"strusgo/pkg/block"
	"strusgo/pkg/config"
	"strusgo/pkg/ixerr"
	"strusgo/pkg/keymap"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/metacache"
	"strusgo/pkg/metadata"
	"strusgo/pkg/posting"
	"strusgo/pkg/store"
	"strusgo/pkg/structiter"
	"strusgo/pkg/txn"
	"strusgo/pkg/varint"
)

// Storage is an open storage instance.
type Storage struct {
	raw  store.KV // the backing store, for Close
	kv   store.KV // possibly compression-wrapped view all reads/writes go through
	opts config.Options

	schema *block.Schema
	cache  *metacache.Cache

	txnLock sync.Mutex

	nextTypeno *keymap.Counter
	nextTermno *keymap.Counter
	nextDocno  *keymap.Counter
	nextUserno *keymap.Counter
	nextAttrno *keymap.Counter

	nofDocs atomic.Int64
}

// Create initializes a new storage at the location named by the option
// string and returns it open. Fails if a storage already exists there.
func Create(conf string) (*Storage, error) {
	opts, err := config.Parse(conf)
	if err != nil {
		return nil, err
	}
	kv, err := store.OpenLevelDB(opts.Path)
	if err != nil {
		return nil, ixerr.Wrapf(ixerr.IoError, err, "creating store at %s", opts.Path)
	}
	s, err := CreateWithKV(kv, opts)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing storage. The metadata option is ignored; the
// schema is read from the persisted descriptor.
func Open(conf string) (*Storage, error) {
	opts, err := config.Parse(conf)
	if err != nil {
		return nil, err
	}
	kv, err := store.OpenLevelDB(opts.Path)
	if err != nil {
		return nil, ixerr.Wrapf(ixerr.IoError, err, "opening store at %s", opts.Path)
	}
	s, err := OpenWithKV(kv, opts)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return s, nil
}

// CreateWithKV initializes a storage over an already-open store (used
// by tests with an in-memory store).
func CreateWithKV(raw store.KV, opts *config.Options) (*Storage, error) {
	kv := raw
	if opts.Compression {
		kv = newCompressedKV(raw)
	}
	if _, err := kv.Get(keyschema.Variable(txn.VarTypeNo)); err == nil {
		return nil, ixerr.Newf(ixerr.InvalidArgument, "storage at %s already exists", opts.Path)
	} else if err != store.ErrNotFound {
		return nil, ixerr.Wrap(ixerr.IoError, err, "probing storage")
	}

	batch := &store.Batch{}
	for _, name := range []string{
		txn.VarTypeNo, txn.VarTermNo, txn.VarDocNo,
		txn.VarUserNo, txn.VarAttribNo, txn.VarNofDocs,
	} {
		batch.Put(keyschema.Variable(name), varint.PackGlobalCounter(nil, 0))
	}
	if opts.Schema != nil {
		batch.Put(keyschema.MetaDataDescr(), opts.Schema.Marshal())
	}
	if err := kv.Write(batch, true); err != nil {
		return nil, ixerr.Wrap(ixerr.IoError, err, "initializing storage")
	}
	return OpenWithKV(raw, opts)
}

// OpenWithKV opens a storage over an already-open store.
func OpenWithKV(raw store.KV, opts *config.Options) (*Storage, error) {
	kv := raw
	if opts.Compression {
		kv = newCompressedKV(raw)
	}
	s := &Storage{raw: raw, kv: kv, opts: *opts}

	readVar := func(name string) (uint64, error) {
		val, err := kv.Get(keyschema.Variable(name))
		if err == store.ErrNotFound {
			return 0, ixerr.Newf(ixerr.NotFound, "no storage at %s (missing variable %s)", opts.Path, name)
		}
		if err != nil {
			return 0, ixerr.Wrap(ixerr.IoError, err, "reading variable")
		}
		v, _, derr := varint.UnpackGlobalCounter(val)
		return v, derr
	}
	var vals [6]uint64
	for i, name := range []string{
		txn.VarTypeNo, txn.VarTermNo, txn.VarDocNo,
		txn.VarUserNo, txn.VarAttribNo, txn.VarNofDocs,
	} {
		v, err := readVar(name)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	s.nextTypeno = keymap.NewCounter(uint32(vals[0]))
	s.nextTermno = keymap.NewCounter(uint32(vals[1]))
	s.nextDocno = keymap.NewCounter(uint32(vals[2]))
	s.nextUserno = keymap.NewCounter(uint32(vals[3]))
	s.nextAttrno = keymap.NewCounter(uint32(vals[4]))
	s.nofDocs.Store(int64(vals[5]))

	descr, err := kv.Get(keyschema.MetaDataDescr())
	switch err {
	case nil:
		schema, derr := block.UnmarshalSchema(descr)
		if derr != nil {
			return nil, derr
		}
		s.schema = schema
	case store.ErrNotFound:
	default:
		return nil, ixerr.Wrap(ixerr.IoError, err, "reading metadata descriptor")
	}

	if s.schema != nil {
		blockBytes := int64(s.schema.RowSize() * block.MetaDataRowsPerBlock)
		entries := int(opts.CacheSize / blockBytes)
		if entries < 1 {
			entries = 1
		}
		s.cache = metacache.New(entries, metacache.StoreLoader(kv, s.schema))
	}
	return s, nil
}

// Close releases the backing store.
func (s *Storage) Close() error { return s.raw.Close() }

// Schema returns the metadata schema, or nil if none was configured.
func (s *Storage) Schema() *block.Schema { return s.schema }

// NofDocuments returns the number of documents currently stored.
func (s *Storage) NofDocuments() int64 { return s.nofDocs.Load() }

// NewTransaction opens a transaction against this storage. Any number
// may be open at once; their commits serialize on the transaction lock.
func (s *Storage) NewTransaction() *txn.Transaction {
	return txn.New(txn.Deps{
		KV:           s.kv,
		Lock:         &s.txnLock,
		NextTypeno:   s.nextTypeno,
		NextTermno:   s.nextTermno,
		NextDocno:    s.nextDocno,
		NextUserno:   s.nextUserno,
		NextAttrno:   s.nextAttrno,
		Schema:       s.schema,
		Cache:        s.cache,
		ACL:          s.opts.ACL,
		NofDocuments: &s.nofDocs,
		Sync:         true,
	})
}

func (s *Storage) typeMap() *keymap.Map {
	return keymap.New(s.kv, keyschema.FamilyTermType, keyschema.TermType, s.nextTypeno)
}

func (s *Storage) valueMap() *keymap.Map {
	return keymap.New(s.kv, keyschema.FamilyTermValue, keyschema.TermValue, s.nextTermno)
}

func (s *Storage) docidMap() *keymap.Map {
	return keymap.New(s.kv, keyschema.FamilyDocID, keyschema.DocID, s.nextDocno)
}

func (s *Storage) userMap() *keymap.Map {
	return keymap.New(s.kv, keyschema.FamilyUserName, keyschema.UserName, s.nextUserno)
}

func (s *Storage) attrMap() *keymap.Map {
	return keymap.New(s.kv, keyschema.FamilyAttributeName, keyschema.AttributeName, s.nextAttrno)
}

// PostingIterator returns an iterator over the posting of the term
// (typeName, value). A term never seen yields an empty iterator rather
// than an error: end-of-stream is a sentinel, not a failure.
func (s *Storage) PostingIterator(typeName, value string) (*posting.Iterator, error) {
	typeno, err := s.typeMap().LookUp(typeName)
	if err != nil {
		if ixerr.Is(err, ixerr.NotFound) {
			return posting.New(s.kv, 0, 0), nil
		}
		return nil, err
	}
	termno, err := s.valueMap().LookUp(value)
	if err != nil {
		if ixerr.Is(err, ixerr.NotFound) {
			return posting.New(s.kv, 0, 0), nil
		}
		return nil, err
	}
	return posting.New(s.kv, typeno, termno), nil
}

// DocumentFrequency returns the number of distinct documents containing
// (typeName, value).
func (s *Storage) DocumentFrequency(typeName, value string) (uint64, error) {
	it, err := s.PostingIterator(typeName, value)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	return it.DocumentFrequency()
}

// StructureIterator returns an iterator over per-document structure
// relations.
func (s *Storage) StructureIterator() *structiter.Iterator {
	return structiter.New(s.kv)
}

// MetaDataReader returns a reader over the metadata columns. Fails if
// the storage was created without a metadata schema.
func (s *Storage) MetaDataReader() (*metadata.Reader, error) {
	if s.schema == nil {
		return nil, ixerr.New(ixerr.InvalidArgument, "storage has no metadata schema")
	}
	return metadata.NewReader(s.schema, s.cache), nil
}

// DocnoOf resolves a document id string to its docno.
func (s *Storage) DocnoOf(docID string) (uint32, error) {
	return s.docidMap().LookUp(docID)
}

// DocidOf resolves a docno back to its document id string.
func (s *Storage) DocidOf(docno uint32) (string, error) {
	raw, err := s.kv.Get(keyschema.DocID(docno))
	if err == store.ErrNotFound {
		return "", ixerr.Newf(ixerr.NotFound, "docno %d not found", docno)
	}
	if err != nil {
		return "", ixerr.Wrap(ixerr.IoError, err, "reading doc id")
	}
	return string(raw), nil
}

// AttributeValue returns the named attribute of a document, or
// NotFound.
func (s *Storage) AttributeValue(docID, attrName string) (string, error) {
	docno, err := s.docidMap().LookUp(docID)
	if err != nil {
		return "", err
	}
	attrno, err := s.attrMap().LookUp(attrName)
	if err != nil {
		return "", err
	}
	raw, err := s.kv.Get(keyschema.DocAttribute(docno, attrno))
	if err == store.ErrNotFound {
		return "", ixerr.Newf(ixerr.NotFound, "document %q has no attribute %q", docID, attrName)
	}
	if err != nil {
		return "", ixerr.Wrap(ixerr.IoError, err, "reading attribute")
	}
	return string(raw), nil
}

// CheckAccess reports whether userName may see docID. With ACL
// disabled every document is visible.
func (s *Storage) CheckAccess(userName, docID string) (bool, error) {
	if !s.opts.ACL {
		return true, nil
	}
	docno, err := s.docidMap().LookUp(docID)
	if err != nil {
		return false, err
	}
	userno, err := s.userMap().LookUp(userName)
	if err != nil {
		if ixerr.Is(err, ixerr.NotFound) {
			return false, nil
		}
		return false, err
	}
	return s.userSees(userno, docno)
}

func (s *Storage) userSees(userno, docno uint32) (bool, error) {
	it := newBooleanReader(s.kv, keyschema.UserAclPrefix(userno))
	defer it.Close()
	return it.Member(docno)
}
