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
	"strusgo/pkg/cursor"
	"strusgo/pkg/ixerr"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/store"
)

// booleanReader answers membership queries against one boolean block
// family (a user's ACL here; the same shape serves any doclist-coded
// set).
type booleanReader struct {
	fam *cursor.Family
}

func newBooleanReader(kv store.KV, prefix []byte) *booleanReader {
	raw := cursor.NewRawCursor(kv, prefix)
	decode := func(rawBlk []byte) (cursor.BlockView, error) {
		return block.UnmarshalDocList(rawBlk)
	}
	return &booleanReader{fam: cursor.NewFamily(raw, decode)}
}

func (r *booleanReader) Member(elem uint32) (bool, error) {
	bv, ok, err := r.fam.SkipDoc(elem)
	if err != nil || !ok {
		return false, err
	}
	return bv.(*block.DocListBlock).Member(elem), nil
}

func (r *booleanReader) Close() error { return r.fam.Close() }

// ForwardIterator walks one document's forward index of a single term
// type in position order, for snippet extraction above the engine.
type ForwardIterator struct {
	fam *cursor.Family
	pos uint32
}

// ForwardIterator returns an iterator over the forward index of
// (typeName, docID). An unknown type or document yields an empty
// iterator.
func (s *Storage) ForwardIterator(typeName, docID string) (*ForwardIterator, error) {
	typeno, err := s.typeMap().LookUp(typeName)
	if err != nil && !ixerr.Is(err, ixerr.NotFound) {
		return nil, err
	}
	var docno uint32
	if err == nil {
		docno, err = s.docidMap().LookUp(docID)
		if err != nil && !ixerr.Is(err, ixerr.NotFound) {
			return nil, err
		}
	}
	raw := cursor.NewRawCursor(s.kv, keyschema.ForwardIndexPrefix(typeno, docno))
	decode := func(rawBlk []byte) (cursor.BlockView, error) {
		return block.UnmarshalForwardIndex(rawBlk)
	}
	return &ForwardIterator{fam: cursor.NewFamily(raw, decode)}, nil
}

// SkipPos positions the iterator on the smallest stored position >=
// target, returning it, or 0 past the end.
func (it *ForwardIterator) SkipPos(target uint32) (uint32, error) {
	for {
		bv, ok, err := it.fam.SkipDoc(target)
		if err != nil || !ok {
			it.pos = 0
			return 0, err
		}
		blk := bv.(*block.ForwardIndexBlock)
		if pos, ok := blk.SkipPos(target); ok {
			it.pos = pos
			return pos, nil
		}
		target = blk.LastDoc() + 1
	}
}

// Fetch returns the token at the current position.
func (it *ForwardIterator) Fetch() (string, error) {
	if it.pos == 0 {
		return "", nil
	}
	bv, ok := it.fam.Loaded()
	if !ok {
		return "", nil
	}
	content, _ := bv.(*block.ForwardIndexBlock).Content(it.pos)
	return content, nil
}

// Pos returns the current position, or 0 before any SkipPos.
func (it *ForwardIterator) Pos() uint32 { return it.pos }

// Close releases the iterator's cursor.
func (it *ForwardIterator) Close() error { return it.fam.Close() }
