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

import "testing"

func TestForwardIndexRoundTrip(t *testing.T) {
	b := NewForwardIndexBuilder()
	entries := []struct {
		pos     uint32
		content string
	}{
		{1, "the"},
		{2, "quick"},
		{3, "brown"},
		{10, "fox"},
	}
	for _, e := range entries {
		if err := b.Append(e.pos, e.content); err != nil {
			t.Fatalf("Append(%d): %v", e.pos, err)
		}
	}
	blk := b.Build()
	raw := blk.Marshal()
	got, err := UnmarshalForwardIndex(raw)
	if err != nil {
		t.Fatalf("UnmarshalForwardIndex: %v", err)
	}
	for _, e := range entries {
		content, ok := got.Content(e.pos)
		if !ok || content != e.content {
			t.Errorf("Content(%d) = (%q,%v), want %q", e.pos, content, ok, e.content)
		}
	}
	if blk.FirstDoc() != 1 || blk.LastDoc() != 10 {
		t.Errorf("FirstDoc/LastDoc = %d/%d, want 1/10", blk.FirstDoc(), blk.LastDoc())
	}
}

func TestForwardIndexSkipPos(t *testing.T) {
	b := NewForwardIndexBuilder()
	b.Append(5, "a")
	b.Append(9, "b")
	blk := b.Build()
	if got, ok := blk.SkipPos(6); !ok || got != 9 {
		t.Errorf("SkipPos(6) = (%d,%v), want (9,true)", got, ok)
	}
}
