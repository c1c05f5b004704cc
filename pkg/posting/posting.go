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

// Package posting implements the term posting iterator:
// combining a cheap doclist (boolean block) cursor for docno-only skips
// with a posinfo cursor for positions and ff. A skip prefers the
// posinfo cursor when it already covers the target, since then no extra
// doclist lookup is needed.
package posting

import (
	"strusgo/pkg/block"
	"strusgo/pkg/cursor"
	"strusgo/pkg/ixerr"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/store"
	"strusgo/pkg/varint"
)

func decodeDocList(raw []byte) (cursor.BlockView, error) {
	blk, err := block.UnmarshalDocList(raw)
	if err != nil {
		return nil, err
	}
	return blk, nil
}

func decodePosInfo(raw []byte) (cursor.BlockView, error) {
	blk, err := block.UnmarshalPosInfo(raw)
	if err != nil {
		return nil, err
	}
	return blk, nil
}

// docListCursor wraps cursor.Family with the DocListBlock in-block
// search, so callers get an exact docno rather than just "which block".
type docListCursor struct{ fam *cursor.Family }

func newDocListCursor(kv store.KV, typeno, termno uint32) *docListCursor {
	raw := cursor.NewRawCursor(kv, keyschema.DocListPrefix(typeno, termno))
	return &docListCursor{fam: cursor.NewFamily(raw, decodeDocList)}
}

func (c *docListCursor) skip(target uint32) (uint32, bool, error) {
	for {
		bv, ok, err := c.fam.SkipDoc(target)
		if err != nil || !ok {
			return 0, false, err
		}
		blk := bv.(*block.DocListBlock)
		if d := blk.SkipDoc(target); d != 0 {
			return d, true, nil
		}
		// target fell in a gap past this block's members; advance past it.
		target = blk.LastDoc() + 1
	}
}

func (c *docListCursor) close() error { return c.fam.Close() }

// posInfoCursor wraps cursor.Family with the PosInfoBlock in-block
// search and tracks which doc within the loaded block is "current", for
// skipPos.
type posInfoCursor struct {
	fam     *cursor.Family
	curDoc  uint32
	hasCur  bool
}

func newPosInfoCursor(kv store.KV, typeno, termno uint32) *posInfoCursor {
	raw := cursor.NewRawCursor(kv, keyschema.PosInfoPrefix(typeno, termno))
	return &posInfoCursor{fam: cursor.NewFamily(raw, decodePosInfo)}
}

// closeCandidate reports whether target already falls inside the
// currently loaded posinfo block, so skipDoc can skip straight there
// without consulting the doclist cursor.
func (c *posInfoCursor) closeCandidate(target uint32) bool {
	bv, loaded := c.fam.Loaded()
	if !loaded {
		return false
	}
	blk := bv.(*block.PosInfoBlock)
	return target >= blk.FirstDoc() && target <= blk.LastDoc()
}

func (c *posInfoCursor) skip(target uint32) (uint32, bool, error) {
	for {
		bv, ok, err := c.fam.SkipDoc(target)
		if err != nil || !ok {
			c.hasCur = false
			return 0, false, err
		}
		blk := bv.(*block.PosInfoBlock)
		if d, ok := blk.SkipDoc(target); ok {
			c.curDoc = d
			c.hasCur = true
			return d, true, nil
		}
		target = blk.LastDoc() + 1
	}
}

func (c *posInfoCursor) positionsOf(docno uint32) ([]uint16, bool) {
	bv, loaded := c.fam.Loaded()
	if !loaded {
		return nil, false
	}
	blk := bv.(*block.PosInfoBlock)
	return blk.Positions(docno)
}

func (c *posInfoCursor) close() error { return c.fam.Close() }

// Iterator yields (docno, positions, ff) for a single (typeno,termno)
// term over a committed storage snapshot.
type Iterator struct {
	kv             store.KV
	typeno, termno uint32

	docCursor *docListCursor
	posCursor *posInfoCursor

	docno uint32

	dfLoaded bool
	df       uint64
}

// New returns an Iterator over the posting of (typeno,termno).
func New(kv store.KV, typeno, termno uint32) *Iterator {
	return &Iterator{
		kv:        kv,
		typeno:    typeno,
		termno:    termno,
		docCursor: newDocListCursor(kv, typeno, termno),
		posCursor: newPosInfoCursor(kv, typeno, termno),
	}
}

// Close releases the iterator's underlying cursors.
func (it *Iterator) Close() error {
	err1 := it.docCursor.close()
	err2 := it.posCursor.close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SkipDoc returns the smallest docno >= target for which this term has
// a posting, or 0 if none.
func (it *Iterator) SkipDoc(target uint32) (uint32, error) {
	if it.docno != 0 && it.docno == target {
		return it.docno, nil
	}
	var docno uint32
	var ok bool
	var err error
	if it.posCursor.closeCandidate(target) {
		docno, ok, err = it.posCursor.skip(target)
	} else {
		docno, ok, err = it.docCursor.skip(target)
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		it.docno = 0
		return 0, nil
	}
	it.docno = docno
	return docno, nil
}

// Docno returns the iterator's current document, or 0 before any
// SkipDoc call / after exhaustion.
func (it *Iterator) Docno() uint32 { return it.docno }

// SkipPos returns the smallest position >= p within the current
// document, or 0 if none. Requires a prior successful SkipDoc.
func (it *Iterator) SkipPos(p uint32) (uint32, error) {
	if it.docno == 0 {
		return 0, nil
	}
	if _, ok, err := it.posCursor.skip(it.docno); err != nil || !ok {
		return 0, err
	}
	positions, ok := it.posCursor.positionsOf(it.docno)
	if !ok {
		return 0, nil
	}
	i := fibonacciPosSearch(positions, uint16(p))
	if i >= len(positions) {
		return 0, nil
	}
	result := uint32(positions[i])
	if result < p {
		return 0, ixerr.Newf(ixerr.CorruptData, "posting: skipPos returned %d < requested %d", result, p)
	}
	return result, nil
}

// fibonacciPosSearch returns the index of the first position >= target
// within the (strictly ascending) positions slice, scanning with
// Fibonacci-growing steps, the same discipline the block doc-index
// search uses.
func fibonacciPosSearch(positions []uint16, target uint16) int {
	f1, f2 := 1, 1
	prev, cur := 0, 0
	n := len(positions)
	for cur < n && positions[cur] < target {
		prev = cur
		cur += f2
		f1, f2 = f2, f1+f2
	}
	if cur >= n {
		cur = n
	}
	for i := prev; i < cur; i++ {
		if positions[i] >= target {
			return i
		}
	}
	return cur
}

// Frequency returns len(positions) for the current document.
func (it *Iterator) Frequency() (uint32, error) {
	if it.docno == 0 {
		return 0, nil
	}
	if _, ok, err := it.posCursor.skip(it.docno); err != nil || !ok {
		return 0, err
	}
	positions, ok := it.posCursor.positionsOf(it.docno)
	if !ok {
		return 0, nil
	}
	return uint32(len(positions)), nil
}

// Positions returns the full position list of the current document.
func (it *Iterator) Positions() ([]uint16, error) {
	if it.docno == 0 {
		return nil, nil
	}
	if _, ok, err := it.posCursor.skip(it.docno); err != nil || !ok {
		return nil, err
	}
	positions, _ := it.posCursor.positionsOf(it.docno)
	return positions, nil
}

// DocumentFrequency reads the persisted df record for this term,
// caching it after the first call.
func (it *Iterator) DocumentFrequency() (uint64, error) {
	if it.dfLoaded {
		return it.df, nil
	}
	raw, err := it.kv.Get(keyschema.DocFrequency(it.typeno, it.termno))
	if err == store.ErrNotFound {
		it.dfLoaded = true
		it.df = 0
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, _, err := varint.UnpackGlobalCounter(raw)
	if err != nil {
		return 0, err
	}
	it.dfLoaded = true
	it.df = v
	return v, nil
}
