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

func TestStructureBlockRoundTrip(t *testing.T) {
	b := NewStructureBuilder()
	spansDoc1 := []StructureSpan{
		{SourceFrom: 10, SourceTo: 20, SinkFrom: 1, SinkTo: 30},
		{SourceFrom: 1, SourceTo: 9, SinkFrom: 1, SinkTo: 30},
	}
	if err := b.Append(1, spansDoc1); err != nil {
		t.Fatalf("Append(1): %v", err)
	}
	spansDoc2 := []StructureSpan{{SourceFrom: 5, SourceTo: 8, SinkFrom: 0, SinkTo: 8}}
	if err := b.Append(2, spansDoc2); err != nil {
		t.Fatalf("Append(2): %v", err)
	}
	blk := b.Build()

	got1, ok := blk.Get(1)
	if !ok {
		t.Fatalf("Get(1): not found")
	}
	wantSorted := []StructureSpan{
		{SourceFrom: 1, SourceTo: 9, SinkFrom: 1, SinkTo: 30},
		{SourceFrom: 10, SourceTo: 20, SinkFrom: 1, SinkTo: 30},
	}
	if !reflect.DeepEqual(got1, wantSorted) {
		t.Fatalf("Get(1) = %v, want %v (sorted by SourceFrom)", got1, wantSorted)
	}

	raw := blk.Marshal()
	roundTripped, err := UnmarshalStructure(raw)
	if err != nil {
		t.Fatalf("UnmarshalStructure: %v", err)
	}
	got2, ok := roundTripped.Get(2)
	if !ok || !reflect.DeepEqual(got2, spansDoc2) {
		t.Fatalf("round trip Get(2) = (%v,%v), want %v", got2, ok, spansDoc2)
	}
	if roundTripped.FirstDoc() != 1 || roundTripped.LastDoc() != 2 {
		t.Errorf("FirstDoc/LastDoc = %d/%d, want 1/2", roundTripped.FirstDoc(), roundTripped.LastDoc())
	}
}

func TestStructureBuilderRejectsNonAscending(t *testing.T) {
	b := NewStructureBuilder()
	b.Append(5, nil)
	if err := b.Append(5, nil); err == nil {
		t.Fatalf("Append(5) again: want error")
	}
}
