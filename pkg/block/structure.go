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
	"sort"

	"strusgo/pkg/ixerr"
	"strusgo/pkg/varint"
)

// StructureSpan links a source position range (e.g. a sentence) to a
// sink position range (e.g. the paragraph it belongs to).
type StructureSpan struct {
	SourceFrom, SourceTo uint32
	SinkFrom, SinkTo     uint32
}

// StructureBlock holds the structure spans for a run of docnos, keyed by
// the largest docno it contains.
type StructureBlock struct {
	Docnos []uint32
	Spans  [][]StructureSpan
}

// FirstDoc returns the smallest docno held by the block.
func (b *StructureBlock) FirstDoc() uint32 {
	if len(b.Docnos) == 0 {
		return 0
	}
	return b.Docnos[0]
}

// LastDoc returns the largest docno held by the block (its key
// address).
func (b *StructureBlock) LastDoc() uint32 {
	if len(b.Docnos) == 0 {
		return 0
	}
	return b.Docnos[len(b.Docnos)-1]
}

// Get returns the structure spans of docno.
func (b *StructureBlock) Get(docno uint32) ([]StructureSpan, bool) {
	i := sort.Search(len(b.Docnos), func(i int) bool { return b.Docnos[i] >= docno })
	if i >= len(b.Docnos) || b.Docnos[i] != docno {
		return nil, false
	}
	return b.Spans[i], true
}

// SkipDoc returns the smallest docno >= target, or ok=false if none.
func (b *StructureBlock) SkipDoc(target uint32) (docno uint32, ok bool) {
	i := sort.Search(len(b.Docnos), func(i int) bool { return b.Docnos[i] >= target })
	if i >= len(b.Docnos) {
		return 0, false
	}
	return b.Docnos[i], true
}

// StructureBuilder appends (docno, spans) entries in strictly ascending
// docno order.
type StructureBuilder struct {
	blk StructureBlock
}

// NewStructureBuilder returns an empty builder.
func NewStructureBuilder() *StructureBuilder { return &StructureBuilder{} }

// Append adds docno's structure spans, sorted by (SourceFrom,SourceTo).
// docno must be strictly greater than any previously appended docno.
func (b *StructureBuilder) Append(docno uint32, spans []StructureSpan) error {
	if n := len(b.blk.Docnos); n > 0 && docno <= b.blk.Docnos[n-1] {
		return ixerr.Newf(ixerr.InvalidArgument, "structure block: docno %d not strictly increasing", docno)
	}
	sorted := append([]StructureSpan(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SourceFrom != sorted[j].SourceFrom {
			return sorted[i].SourceFrom < sorted[j].SourceFrom
		}
		return sorted[i].SourceTo < sorted[j].SourceTo
	})
	b.blk.Docnos = append(b.blk.Docnos, docno)
	b.blk.Spans = append(b.blk.Spans, sorted)
	return nil
}

// Build returns the finished block.
func (b *StructureBuilder) Build() *StructureBlock {
	spans := make([][]StructureSpan, len(b.blk.Spans))
	for i, s := range b.blk.Spans {
		spans[i] = append([]StructureSpan(nil), s...)
	}
	return &StructureBlock{
		Docnos: append([]uint32(nil), b.blk.Docnos...),
		Spans:  spans,
	}
}

// Marshal encodes the block.
func (b *StructureBlock) Marshal() []byte {
	buf := varint.Pack(nil, uint32(len(b.Docnos)))
	var prevDoc uint32
	for i, docno := range b.Docnos {
		buf = varint.Pack(buf, docno-prevDoc)
		prevDoc = docno
		spans := b.Spans[i]
		buf = varint.Pack(buf, uint32(len(spans)))
		var prevFrom uint32
		for _, s := range spans {
			buf = varint.Pack(buf, s.SourceFrom-prevFrom)
			buf = varint.Pack(buf, s.SourceTo-s.SourceFrom)
			buf = varint.Pack(buf, s.SinkFrom)
			buf = varint.Pack(buf, s.SinkTo-s.SinkFrom)
			prevFrom = s.SourceFrom
		}
	}
	return buf
}

// UnmarshalStructure decodes a block encoded by Marshal.
func UnmarshalStructure(raw []byte) (*StructureBlock, error) {
	i := 0
	ndocs, n, err := varint.Unpack(raw[i:])
	if err != nil {
		return nil, err
	}
	i += n
	blk := &StructureBlock{
		Docnos: make([]uint32, ndocs),
		Spans:  make([][]StructureSpan, ndocs),
	}
	var prevDoc uint32
	for d := uint32(0); d < ndocs; d++ {
		delta, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		prevDoc += delta
		blk.Docnos[d] = prevDoc

		nspans, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		spans := make([]StructureSpan, nspans)
		var prevFrom uint32
		for s := uint32(0); s < nspans; s++ {
			fromDelta, n, err := varint.Unpack(raw[i:])
			if err != nil {
				return nil, err
			}
			i += n
			srcFrom := prevFrom + fromDelta
			toDelta, n, err := varint.Unpack(raw[i:])
			if err != nil {
				return nil, err
			}
			i += n
			srcTo := srcFrom + toDelta
			sinkFrom, n, err := varint.Unpack(raw[i:])
			if err != nil {
				return nil, err
			}
			i += n
			sinkToDelta, n, err := varint.Unpack(raw[i:])
			if err != nil {
				return nil, err
			}
			i += n
			spans[s] = StructureSpan{
				SourceFrom: srcFrom,
				SourceTo:   srcTo,
				SinkFrom:   sinkFrom,
				SinkTo:     sinkFrom + sinkToDelta,
			}
			prevFrom = srcFrom
		}
		blk.Spans[d] = spans
	}
	return blk, nil
}
