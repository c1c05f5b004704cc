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
	"math"
	"testing"
)

func testSchema() *Schema {
	return &Schema{
		Names: []string{"date", "score", "weight"},
		Types: []ColumnType{ColumnInt32, ColumnFloat32, ColumnFloat16},
	}
}

func TestMetaDataBlockSetGet(t *testing.T) {
	schema := testSchema()
	blk := NewMetaDataBlock(schema, 0)

	if err := blk.SetFloat(5, "date", 20240102); err != nil {
		t.Fatalf("SetFloat date: %v", err)
	}
	if err := blk.SetFloat(5, "score", 3.5); err != nil {
		t.Fatalf("SetFloat score: %v", err)
	}
	if err := blk.SetFloat(5, "weight", 1.25); err != nil {
		t.Fatalf("SetFloat weight: %v", err)
	}

	date, _ := blk.GetFloat(5, "date")
	if date != 20240102 {
		t.Errorf("date = %v, want 20240102", date)
	}
	score, _ := blk.GetFloat(5, "score")
	if math.Abs(score-3.5) > 1e-6 {
		t.Errorf("score = %v, want 3.5", score)
	}
	weight, _ := blk.GetFloat(5, "weight")
	if math.Abs(weight-1.25) > 0.001 {
		t.Errorf("weight = %v, want ~1.25", weight)
	}

	// A different row must remain zero-valued.
	other, _ := blk.GetFloat(6, "score")
	if other != 0 {
		t.Errorf("row 6 score = %v, want 0", other)
	}
}

func TestMetaDataBlockUnknownColumn(t *testing.T) {
	schema := testSchema()
	blk := NewMetaDataBlock(schema, 0)
	if err := blk.SetFloat(0, "nope", 1); err == nil {
		t.Fatalf("SetFloat with unknown column: want error")
	}
	if _, err := blk.GetFloat(0, "nope"); err == nil {
		t.Fatalf("GetFloat with unknown column: want error")
	}
}

func TestMetaDataBlockMarshalRoundTrip(t *testing.T) {
	schema := testSchema()
	blk := NewMetaDataBlock(schema, 7)
	blk.SetFloat(7*MetaDataRowsPerBlock+3, "score", 9.5)

	raw := blk.Marshal()
	got, err := UnmarshalMetaData(schema, 7, raw)
	if err != nil {
		t.Fatalf("UnmarshalMetaData: %v", err)
	}
	score, _ := got.GetFloat(7*MetaDataRowsPerBlock+3, "score")
	if math.Abs(score-9.5) > 1e-6 {
		t.Errorf("round trip score = %v, want 9.5", score)
	}
}

func TestBlockNoOf(t *testing.T) {
	cases := []struct {
		docno uint32
		want  uint32
	}{
		{0, 0},
		{1023, 0},
		{1024, 1},
		{2050, 2},
	}
	for _, c := range cases {
		if got := BlockNoOf(c.docno); got != c.want {
			t.Errorf("BlockNoOf(%d) = %d, want %d", c.docno, got, c.want)
		}
	}
}
