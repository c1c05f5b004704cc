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

// FfBlock holds feature-frequency-only postings: a term's ff value per
// docno, without position payloads, for terms configured without
// positional indexing. Parallel sorted slices suffice here: no
// doc-index skip structure is needed at this block's typical size.
type FfBlock struct {
	Docnos []uint32
	Ffs    []uint32
}

// FirstDoc returns the smallest docno in the block.
func (b *FfBlock) FirstDoc() uint32 {
	if len(b.Docnos) == 0 {
		return 0
	}
	return b.Docnos[0]
}

// LastDoc returns the largest docno in the block.
func (b *FfBlock) LastDoc() uint32 {
	if len(b.Docnos) == 0 {
		return 0
	}
	return b.Docnos[len(b.Docnos)-1]
}

// Ff returns the feature frequency stored for docno.
func (b *FfBlock) Ff(docno uint32) (uint32, bool) {
	i := sort.Search(len(b.Docnos), func(i int) bool { return b.Docnos[i] >= docno })
	if i >= len(b.Docnos) || b.Docnos[i] != docno {
		return 0, false
	}
	return b.Ffs[i], true
}

// SkipDoc returns the smallest docno >= target, or ok=false if none.
func (b *FfBlock) SkipDoc(target uint32) (docno uint32, ok bool) {
	i := sort.Search(len(b.Docnos), func(i int) bool { return b.Docnos[i] >= target })
	if i >= len(b.Docnos) {
		return 0, false
	}
	return b.Docnos[i], true
}

// FfBuilder appends (docno, ff) pairs in strictly ascending docno order.
type FfBuilder struct {
	blk FfBlock
}

// NewFfBuilder returns an empty builder.
func NewFfBuilder() *FfBuilder { return &FfBuilder{} }

// Append adds docno's ff value. docno must be strictly greater than any
// previously appended docno.
func (b *FfBuilder) Append(docno, ff uint32) error {
	if n := len(b.blk.Docnos); n > 0 && docno <= b.blk.Docnos[n-1] {
		return ixerr.Newf(ixerr.InvalidArgument, "ff block: docno %d not strictly increasing", docno)
	}
	b.blk.Docnos = append(b.blk.Docnos, docno)
	b.blk.Ffs = append(b.blk.Ffs, ff)
	return nil
}

// Build returns the finished block.
func (b *FfBuilder) Build() *FfBlock {
	return &FfBlock{
		Docnos: append([]uint32(nil), b.blk.Docnos...),
		Ffs:    append([]uint32(nil), b.blk.Ffs...),
	}
}

// Marshal encodes the block as delta-packed docnos followed by ffs.
func (b *FfBlock) Marshal() []byte {
	buf := varint.Pack(nil, uint32(len(b.Docnos)))
	var prev uint32
	for _, d := range b.Docnos {
		buf = varint.Pack(buf, d-prev)
		prev = d
	}
	for _, f := range b.Ffs {
		buf = varint.Pack(buf, f)
	}
	return buf
}

// UnmarshalFf decodes a block encoded by Marshal.
func UnmarshalFf(raw []byte) (*FfBlock, error) {
	i := 0
	count, n, err := varint.Unpack(raw[i:])
	if err != nil {
		return nil, err
	}
	i += n
	blk := &FfBlock{Docnos: make([]uint32, count), Ffs: make([]uint32, count)}
	var prev uint32
	for k := uint32(0); k < count; k++ {
		delta, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		prev += delta
		blk.Docnos[k] = prev
	}
	for k := uint32(0); k < count; k++ {
		f, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		blk.Ffs[k] = f
	}
	return blk, nil
}
