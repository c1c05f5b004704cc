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

package block

import (
	"reflect"
	"testing"
)

func TestDocListBuilderSingles(t *testing.T) {
	b := NewDocListBuilder(nil)
	for _, d := range []uint32{1, 2, 3, 10, 11, 20} {
		b.AddElem(d)
	}
	blk := b.Build()
	want := []Range{{1, 3}, {10, 11}, {20, 20}}
	got := blk.Ranges()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Ranges() = %v, want %v", got, want)
	}
	for _, d := range []uint32{1, 2, 3, 10, 11, 20} {
		if !blk.Member(d) {
			t.Errorf("Member(%d) = false, want true", d)
		}
	}
	for _, d := range []uint32{0, 4, 9, 12, 19, 21} {
		if blk.Member(d) {
			t.Errorf("Member(%d) = true, want false", d)
		}
	}
}

func TestDocListBuilderRanges(t *testing.T) {
	b := NewDocListBuilder(nil)
	b.DefineRange(5, 9)
	b.DefineRange(10, 12)
	b.DefineRange(20, 20)
	blk := b.Build()
	want := []Range{{5, 12}, {20, 20}}
	if got := blk.Ranges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Ranges() = %v, want %v", got, want)
	}
	if blk.FirstDoc() != 5 {
		t.Errorf("FirstDoc() = %d, want 5", blk.FirstDoc())
	}
	if blk.LastDoc() != 20 {
		t.Errorf("LastDoc() = %d, want 20", blk.LastDoc())
	}
}

func TestDocListSkipDoc(t *testing.T) {
	b := NewDocListBuilder(nil)
	b.DefineRange(5, 9)
	b.DefineRange(20, 25)
	blk := b.Build()

	cases := []struct {
		target uint32
		want   uint32
	}{
		{1, 5},
		{5, 5},
		{7, 7},
		{10, 20},
		{20, 20},
		{25, 25},
	}
	for _, c := range cases {
		if got := blk.SkipDoc(c.target); got != c.want {
			t.Errorf("SkipDoc(%d) = %d, want %d", c.target, got, c.want)
		}
	}
	if got := blk.SkipDoc(26); got != 0 {
		t.Errorf("SkipDoc(26) = %d, want 0 (caller moves to next block)", got)
	}
}

func TestDocListSkipDocBetweenPairMembers(t *testing.T) {
	// A pair node holding two non-adjacent docnos: a target strictly
	// between them must land on the pair's larger member, not report the
	// gap as a member.
	b := NewDocListBuilder(nil)
	b.AddElem(1)
	b.AddElem(4)
	blk := b.Build()
	if got := blk.SkipDoc(2); got != 4 {
		t.Errorf("SkipDoc(2) = %d, want 4", got)
	}
	if blk.Member(2) || blk.Member(3) {
		t.Error("Member reports gap docnos as members")
	}
}

func TestDocListMarshalRoundTrip(t *testing.T) {
	b := NewDocListBuilder(nil)
	b.AddElem(1)
	b.DefineRange(5, 9)
	b.AddElem(42)
	blk := b.Build()

	raw := blk.Marshal()
	got, err := UnmarshalDocList(raw)
	if err != nil {
		t.Fatalf("UnmarshalDocList: %v", err)
	}
	if !reflect.DeepEqual(got.Ranges(), blk.Ranges()) {
		t.Fatalf("round trip Ranges() = %v, want %v", got.Ranges(), blk.Ranges())
	}
}

func TestMergeBlocks(t *testing.T) {
	a := NewDocListBuilder(nil)
	a.DefineRange(1, 5)
	a.DefineRange(10, 10)
	ab := a.Build()

	c := NewDocListBuilder(nil)
	c.DefineRange(4, 8)
	c.DefineRange(20, 20)
	cb := c.Build()

	merged := MergeBlocks(ab, cb)
	want := []Range{{1, 8}, {10, 10}, {20, 20}}
	if got := merged.Ranges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeBlocks Ranges() = %v, want %v", got, want)
	}
}

func TestApplyDeltas(t *testing.T) {
	b := NewDocListBuilder(nil)
	b.DefineRange(1, 10)
	blk := b.Build()

	out := ApplyDeltas(blk, []MergeRange{
		{From: 3, To: 5, IsMember: false},
		{From: 20, To: 20, IsMember: true},
	})
	want := []Range{{1, 2}, {6, 10}, {20, 20}}
	if got := out.Ranges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ApplyDeltas Ranges() = %v, want %v", got, want)
	}
}

func TestNodeNormalize(t *testing.T) {
	var n Node
	n.init(5, 5)
	if n.Type != PairNode || n.Alt != 0 || n.Elemno != 5 {
		t.Fatalf("init(5,5) = %+v, want PairNode{5,0}", n)
	}
	n.init(5, 8)
	if n.Type != DiffNode || n.Alt != 3 || n.Elemno != 8 {
		t.Fatalf("init(5,8) = %+v, want DiffNode{8,3}", n)
	}
}
