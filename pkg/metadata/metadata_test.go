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

package metadata

import (
	"testing"

	"strusgo/pkg/block"
	"strusgo/pkg/metacache"
)

func newTestReader(t *testing.T, schema *block.Schema, rows map[uint32]float64, col string) *Reader {
	t.Helper()
	blk := block.NewMetaDataBlock(schema, 0)
	for docno, v := range rows {
		if err := blk.SetFloat(docno, col, v); err != nil {
			t.Fatalf("SetFloat: %v", err)
		}
	}
	cache := metacache.New(4, func(blockNo uint32) (*block.MetaDataBlock, error) {
		return blk, nil
	})
	return NewReader(schema, cache)
}

func TestRestrictionDoclenLessThan(t *testing.T) {
	schema := &block.Schema{Names: []string{"doclen"}, Types: []block.ColumnType{block.ColumnInt32}}
	rows := map[uint32]float64{1: 3, 2: 3, 3: 3, 4: 4}
	r := newTestReader(t, schema, rows, "doclen")
	handle, ok := r.Handle("doclen")
	if !ok {
		t.Fatal("Handle(doclen) not found")
	}

	restr := NewRestriction().AddGroup(Condition{Handle: handle, Op: CompareLess, Value: 4})
	var matched []uint32
	for docno := uint32(1); docno <= 4; docno++ {
		ok, err := restr.Match(r, schema, docno)
		if err != nil {
			t.Fatalf("Match(%d): %v", docno, err)
		}
		if ok {
			matched = append(matched, docno)
		}
	}
	want := []uint32{1, 2, 3}
	if len(matched) != len(want) {
		t.Fatalf("matched = %v, want %v", matched, want)
	}
	for i := range want {
		if matched[i] != want[i] {
			t.Fatalf("matched = %v, want %v", matched, want)
		}
	}
}

func TestFloat16Epsilon(t *testing.T) {
	schema := &block.Schema{Names: []string{"score"}, Types: []block.ColumnType{block.ColumnFloat16}}
	rows := map[uint32]float64{1: 1.0}
	r := newTestReader(t, schema, rows, "score")
	handle, _ := r.Handle("score")

	restr := NewRestriction().AddGroup(Condition{Handle: handle, Op: CompareEqual, Value: 1.0 + epsilonFloat16/2})
	ok, err := restr.Match(r, schema, 1)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !ok {
		t.Fatal("expected epsilon-fuzzy equality to match")
	}
}

func TestCNFGroupsAndOr(t *testing.T) {
	schema := &block.Schema{Names: []string{"a", "b"}, Types: []block.ColumnType{block.ColumnInt32, block.ColumnInt32}}
	blk := block.NewMetaDataBlock(schema, 0)
	blk.SetFloat(1, "a", 1)
	blk.SetFloat(1, "b", 0)
	cache := metacache.New(4, func(blockNo uint32) (*block.MetaDataBlock, error) { return blk, nil })
	r := NewReader(schema, cache)
	ha, _ := r.Handle("a")
	hb, _ := r.Handle("b")

	restr := NewRestriction().
		AddGroup(Condition{Handle: ha, Op: CompareEqual, Value: 1}, Condition{Handle: hb, Op: CompareEqual, Value: 5}).
		AddGroup(Condition{Handle: hb, Op: CompareEqual, Value: 0})
	ok, err := restr.Match(r, schema, 1)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !ok {
		t.Fatal("expected CNF match: (a=1 OR b=5) AND (b=0)")
	}
}
