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

package posting

import (
	"testing"

	"strusgo/pkg/block"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/store"
	"strusgo/pkg/varint"
)

// buildTermA writes a single-block posting for term "a" occurring in
// d1="a a b" (positions 1,2), d2="a b c" (position 1), d4="a a a b"
// (positions 1,2,3).
func buildTermA(t *testing.T, kv store.KV) {
	t.Helper()
	dl := block.NewDocListBuilder(nil)
	dl.AddElem(1)
	dl.AddElem(2)
	dl.AddElem(4)
	docnoHi := uint32(4)

	pi := block.NewPosInfoBuilder()
	must(t, pi.Append(1, []uint16{1, 2}))
	must(t, pi.Append(2, []uint16{1}))
	must(t, pi.Append(4, []uint16{1, 2, 3}))

	b := new(store.Batch)
	b.Put(keyschema.DocList(1, 1, docnoHi), dl.Build().Marshal())
	b.Put(keyschema.PosInfo(1, 1, docnoHi), pi.Build().Marshal())
	b.Put(keyschema.DocFrequency(1, 1), varint.PackGlobalCounter(nil, 3))
	if err := kv.Write(b, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIteratorSkipDocAndPositions(t *testing.T) {
	kv := store.NewMem()
	buildTermA(t, kv)

	it := New(kv, 1, 1)
	defer it.Close()

	d, err := it.SkipDoc(1)
	if err != nil || d != 1 {
		t.Fatalf("SkipDoc(1) = (%d, %v), want 1", d, err)
	}
	ff, err := it.Frequency()
	if err != nil || ff != 2 {
		t.Fatalf("Frequency() = (%d, %v), want 2", ff, err)
	}

	d, err = it.SkipDoc(3)
	if err != nil || d != 4 {
		t.Fatalf("SkipDoc(3) = (%d, %v), want 4 (next member after gap)", d, err)
	}
	positions, err := it.Positions()
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	want := []uint16{1, 2, 3}
	if len(positions) != len(want) {
		t.Fatalf("Positions() = %v, want %v", positions, want)
	}
	for i := range want {
		if positions[i] != want[i] {
			t.Fatalf("Positions() = %v, want %v", positions, want)
		}
	}

	p, err := it.SkipPos(2)
	if err != nil || p != 2 {
		t.Fatalf("SkipPos(2) = (%d, %v), want 2", p, err)
	}
	p, err = it.SkipPos(4)
	if err != nil || p != 0 {
		t.Fatalf("SkipPos(4) = (%d, %v), want 0", p, err)
	}

	df, err := it.DocumentFrequency()
	if err != nil || df != 3 {
		t.Fatalf("DocumentFrequency() = (%d, %v), want 3", df, err)
	}
}

func TestIteratorEndOfStream(t *testing.T) {
	kv := store.NewMem()
	buildTermA(t, kv)
	it := New(kv, 1, 1)
	defer it.Close()

	d, err := it.SkipDoc(5)
	if err != nil || d != 0 {
		t.Fatalf("SkipDoc(5) = (%d, %v), want 0", d, err)
	}
}
