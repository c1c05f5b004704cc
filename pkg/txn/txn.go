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

// Package txn implements the storage transaction: it stages
// document inserts, updates and deletes in memory, allocates local ids
// for names not yet interned, and on Commit merges the staged deltas
// into the existing block families under the process-wide transaction
// lock, emitting one batched atomic write.
package txn

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"strusgo/pkg/block"
	"strusgo/pkg/ixerr"
	"strusgo/pkg/keymap"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/metacache"
	"strusgo/pkg/store"
	"strusgo/pkg/varint"
)

// MaxPosition is the largest term position a posting can carry.
const MaxPosition = 65535

// Variable record names in the 'v' family. Each value is packed with
// varint.PackGlobalCounter.
const (
	VarTypeNo   = "TypeNo"
	VarTermNo   = "TermNo"
	VarDocNo    = "DocNo"
	VarUserNo   = "UserNo"
	VarAttribNo = "AttribNo"
	VarNofDocs  = "NofDocs"
)

// Deps is the non-owning handle a transaction holds to its storage: the
// shared store, the commit lock serializing every commit's critical
// section, the stable-id counters, and the metadata layer.
type Deps struct {
	KV   store.KV
	Lock *sync.Mutex

	NextTypeno *keymap.Counter
	NextTermno *keymap.Counter
	NextDocno  *keymap.Counter
	NextUserno *keymap.Counter
	NextAttrno *keymap.Counter

	// Schema is nil when the storage was created without metadata.
	Schema *block.Schema
	// Cache, if set, receives the refresh list of changed metadata
	// block ids after a successful commit.
	Cache *metacache.Cache

	ACL bool

	// NofDocuments is the process-wide inserted-document count, updated
	// after the batched write lands.
	NofDocuments *atomic.Int64

	// Sync requests a durable write at commit.
	Sync bool
}

type txnState int

const (
	stateOpen txnState = iota
	stateCommitted
	stateRolledBack
)

// termDelta accumulates the staged posting changes of one
// (typeno,termno), ordered in the staging tree by that pair so the
// commit flush walks terms in key order.
type termDelta struct {
	typeno, termno uint32
	adds           map[uint32][]uint16 // docno -> ascending unique positions
	removes        map[uint32]bool
}

func (a *termDelta) Less(b btree.Item) bool {
	o := b.(*termDelta)
	if a.typeno != o.typeno {
		return a.typeno < o.typeno
	}
	return a.termno < o.termno
}

// docStage accumulates the staged non-posting records of one inserted
// document.
type docStage struct {
	metadata   map[string]float64
	attributes map[uint32]string            // attrno -> value
	users      map[uint32]bool              // usernos granted access
	forward    map[uint32]map[uint32]string // typeno -> position -> content
	structures []block.StructureSpan
}

func newDocStage() *docStage {
	return &docStage{
		metadata:   make(map[string]float64),
		attributes: make(map[uint32]string),
		users:      make(map[uint32]bool),
		forward:    make(map[uint32]map[uint32]string),
	}
}

// Transaction stages inserts, updates and deletes against a storage and
// applies them atomically on Commit. A Transaction is not safe for
// concurrent use; open as many transactions as needed, one per writer.
type Transaction struct {
	deps Deps

	types  *keymap.Map
	values *keymap.Map
	docids *keymap.Map
	users  *keymap.Map
	attrs  *keymap.Map

	terms    *btree.BTree
	docs     map[uint32]*docStage
	replaces map[uint32]bool // existing docnos being re-inserted
	deletes  map[uint32]bool // stable docnos staged for full deletion
	newDocs  int             // count of docnos first seen by this transaction

	state txnState
}

// New opens a transaction against the storage described by deps.
func New(deps Deps) *Transaction {
	return &Transaction{
		deps:     deps,
		types:    keymap.New(deps.KV, keyschema.FamilyTermType, keyschema.TermType, deps.NextTypeno),
		values:   keymap.New(deps.KV, keyschema.FamilyTermValue, keyschema.TermValue, deps.NextTermno),
		docids:   keymap.New(deps.KV, keyschema.FamilyDocID, keyschema.DocID, deps.NextDocno),
		users:    keymap.New(deps.KV, keyschema.FamilyUserName, keyschema.UserName, deps.NextUserno),
		attrs:    keymap.New(deps.KV, keyschema.FamilyAttributeName, keyschema.AttributeName, deps.NextAttrno),
		terms:    btree.New(8),
		docs:     make(map[uint32]*docStage),
		replaces: make(map[uint32]bool),
		deletes:  make(map[uint32]bool),
	}
}

func (t *Transaction) checkOpen() error {
	switch t.state {
	case stateCommitted:
		return ixerr.New(ixerr.Conflict, "transaction already committed")
	case stateRolledBack:
		return ixerr.New(ixerr.Conflict, "transaction already rolled back")
	}
	return nil
}

func checkUTF8(what, s string) error {
	if !varint.CheckStringUTF8(s) {
		return ixerr.Newf(ixerr.InvalidArgument, "%s is not valid UTF-8", what)
	}
	return nil
}

// Document is the staging handle for one inserted document.
type Document struct {
	tx    *Transaction
	docno uint32
}

// Docno returns the document's id. It may be a transaction-local
// placeholder until Commit assigns the stable id.
func (d *Document) Docno() uint32 { return d.docno }

// InsertDocument stages a document insert. Re-inserting an already
// stored document id replaces its previous content at commit.
func (t *Transaction) InsertDocument(docID string) (*Document, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if err := checkUTF8("document id", docID); err != nil {
		return nil, err
	}
	docno, isNew, err := t.docids.GetOrCreate(docID)
	if err != nil {
		return nil, err
	}
	if isNew {
		t.newDocs++
	} else if !keymap.IsUnknown(docno) {
		if _, staged := t.docs[docno]; !staged {
			t.replaces[docno] = true
		}
	}
	if _, ok := t.docs[docno]; !ok {
		t.docs[docno] = newDocStage()
	}
	return &Document{tx: t, docno: docno}, nil
}

// DeleteDocument stages the full removal of a stored document.
func (t *Transaction) DeleteDocument(docID string) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	docno, err := t.docids.LookUp(docID)
	if err != nil {
		return err
	}
	t.deletes[docno] = true
	return nil
}

func (t *Transaction) termDeltaOf(typeno, termno uint32) *termDelta {
	probe := &termDelta{typeno: typeno, termno: termno}
	if it := t.terms.Get(probe); it != nil {
		return it.(*termDelta)
	}
	probe.adds = make(map[uint32][]uint16)
	probe.removes = make(map[uint32]bool)
	t.terms.ReplaceOrInsert(probe)
	return probe
}

// AddSearchTerm stages one occurrence of (typeName, value) at pos in the
// document. Positions are strictly positive and at most MaxPosition.
func (d *Document) AddSearchTerm(typeName, value string, pos uint32) error {
	t := d.tx
	if err := t.checkOpen(); err != nil {
		return err
	}
	if pos == 0 {
		return ixerr.New(ixerr.InvalidArgument, "term position must be positive")
	}
	if pos > MaxPosition {
		return ixerr.Newf(ixerr.InvalidArgument, "term position %d exceeds %d", pos, MaxPosition)
	}
	if err := checkUTF8("term type", typeName); err != nil {
		return err
	}
	if err := checkUTF8("term value", value); err != nil {
		return err
	}
	typeno, _, err := t.types.GetOrCreate(typeName)
	if err != nil {
		return err
	}
	termno, _, err := t.values.GetOrCreate(value)
	if err != nil {
		return err
	}
	delta := t.termDeltaOf(typeno, termno)
	delta.adds[d.docno] = insertPos(delta.adds[d.docno], uint16(pos))
	if len(delta.adds[d.docno]) > MaxPosition {
		return ixerr.Newf(ixerr.InvalidArgument, "term frequency exceeds %d in one document", MaxPosition)
	}
	return nil
}

// insertPos inserts p into the ascending unique position list.
func insertPos(positions []uint16, p uint16) []uint16 {
	i := sort.Search(len(positions), func(i int) bool { return positions[i] >= p })
	if i < len(positions) && positions[i] == p {
		return positions
	}
	positions = append(positions, 0)
	copy(positions[i+1:], positions[i:])
	positions[i] = p
	return positions
}

// AddForwardTerm stages the original token at pos for the forward index
// of typeName.
func (d *Document) AddForwardTerm(typeName, value string, pos uint32) error {
	t := d.tx
	if err := t.checkOpen(); err != nil {
		return err
	}
	if pos == 0 {
		return ixerr.New(ixerr.InvalidArgument, "forward position must be positive")
	}
	if err := checkUTF8("term type", typeName); err != nil {
		return err
	}
	if err := checkUTF8("forward content", value); err != nil {
		return err
	}
	typeno, _, err := t.types.GetOrCreate(typeName)
	if err != nil {
		return err
	}
	st := t.docs[d.docno]
	m := st.forward[typeno]
	if m == nil {
		m = make(map[uint32]string)
		st.forward[typeno] = m
	}
	m[pos] = value
	return nil
}

// SetMetaData stages a metadata column value for the document.
func (d *Document) SetMetaData(name string, value float64) error {
	t := d.tx
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.deps.Schema == nil {
		return ixerr.New(ixerr.InvalidArgument, "storage has no metadata schema")
	}
	if _, ok := t.deps.Schema.Index(name); !ok {
		return ixerr.Newf(ixerr.InvalidArgument, "unknown metadata column %q", name)
	}
	t.docs[d.docno].metadata[name] = value
	return nil
}

// SetAttribute stages a named string attribute for the document.
func (d *Document) SetAttribute(name, value string) error {
	t := d.tx
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := checkUTF8("attribute name", name); err != nil {
		return err
	}
	if err := checkUTF8("attribute value", value); err != nil {
		return err
	}
	attrno, _, err := t.attrs.GetOrCreate(name)
	if err != nil {
		return err
	}
	t.docs[d.docno].attributes[attrno] = value
	return nil
}

// SetUserAccess grants userName read access to the document. Requires
// the storage to be configured with acl=yes.
func (d *Document) SetUserAccess(userName string) error {
	t := d.tx
	if err := t.checkOpen(); err != nil {
		return err
	}
	if !t.deps.ACL {
		return ixerr.New(ixerr.InvalidArgument, "storage has no ACL configured")
	}
	if err := checkUTF8("user name", userName); err != nil {
		return err
	}
	userno, _, err := t.users.GetOrCreate(userName)
	if err != nil {
		return err
	}
	t.docs[d.docno].users[userno] = true
	return nil
}

// DefineStructure stages a source range -> sink range relation within
// the document.
func (d *Document) DefineStructure(span block.StructureSpan) error {
	t := d.tx
	if err := t.checkOpen(); err != nil {
		return err
	}
	if span.SourceFrom == 0 || span.SinkFrom == 0 {
		return ixerr.New(ixerr.InvalidArgument, "structure positions must be positive")
	}
	if span.SourceFrom > span.SourceTo || span.SinkFrom > span.SinkTo {
		return ixerr.New(ixerr.InvalidArgument, "structure range inverted")
	}
	st := t.docs[d.docno]
	st.structures = append(st.structures, span)
	return nil
}

// Rollback discards all staged state. Id allocations already persisted
// by earlier commits are untouched.
func (t *Transaction) Rollback() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.state = stateRolledBack
	t.terms.Clear(false)
	t.docs = nil
	t.replaces = nil
	t.deletes = nil
	return nil
}
