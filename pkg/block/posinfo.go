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

	"strusgo/pkg/cursor"
	"strusgo/pkg/ixerr"
	"strusgo/pkg/varint"
)

// maxDocsPerIndexNode bounds how many docs a single doc-index node
// groups: one base docno plus up to 15 offsets from it, each fitting in
// 16 bits.
const maxDocsPerIndexNode = 16

// docIndexNode groups up to maxDocsPerIndexNode docs whose docno fits
// within 65535 of a shared base, each pointing at its payload span.
type docIndexNode struct {
	base    uint32
	offsets [maxDocsPerIndexNode - 1]uint16 // offsets[i] = docno(i+1) - base
	count   int                              // number of docs in this node (1..16)
	// payloadStart[i] is the offset into PosInfoBlock.Payload where doc i's
	// [ff, pos_1..pos_ff] record begins; payloadStart[count] is the end.
	payloadStart [maxDocsPerIndexNode + 1]uint32
}

func (n *docIndexNode) docno(i int) uint32 {
	if i == 0 {
		return n.base
	}
	return n.base + uint32(n.offsets[i-1])
}

// PosInfoBlock is the decoded form of a term's position-info block: a
// doc-index layer (grouping docs 16 at a time) plus a flat payload of
// [ff, positions...] records.
type PosInfoBlock struct {
	Nodes   []docIndexNode
	Payload []uint16
}

// FirstDoc returns the smallest docno in the block.
func (b *PosInfoBlock) FirstDoc() uint32 {
	if len(b.Nodes) == 0 {
		return 0
	}
	return b.Nodes[0].base
}

// LastDoc returns the largest docno in the block (its key address).
func (b *PosInfoBlock) LastDoc() uint32 {
	if len(b.Nodes) == 0 {
		return 0
	}
	last := &b.Nodes[len(b.Nodes)-1]
	return last.docno(last.count - 1)
}

// docIndex locates the node and in-node slot holding docno, using
// Fibonacci search across the doc-index layer.
func (b *PosInfoBlock) docIndex(docno uint32) (nodeIdx, slot int, found bool) {
	ni := cursor.FibonacciUpperBound(len(b.Nodes), func(i int) bool {
		last := &b.Nodes[i]
		return last.docno(last.count-1) < docno
	})
	if ni >= len(b.Nodes) {
		return 0, 0, false
	}
	n := &b.Nodes[ni]
	slot = sort.Search(n.count, func(i int) bool { return n.docno(i) >= docno })
	if slot >= n.count || n.docno(slot) != docno {
		return ni, slot, false
	}
	return ni, slot, true
}

// Positions returns the position list for docno (its length is the ff),
// or ok=false if docno is not present in this block.
func (b *PosInfoBlock) Positions(docno uint32) (positions []uint16, ok bool) {
	ni, slot, found := b.docIndex(docno)
	if !found {
		return nil, false
	}
	n := &b.Nodes[ni]
	start := n.payloadStart[slot]
	end := n.payloadStart[slot+1]
	rec := b.Payload[start:end]
	if len(rec) == 0 {
		return nil, true
	}
	return rec[1:], true // rec[0] is ff, structurally == len(positions)
}

// Ff returns the feature frequency for docno (len(Positions)).
func (b *PosInfoBlock) Ff(docno uint32) (uint32, bool) {
	pos, ok := b.Positions(docno)
	if !ok {
		return 0, false
	}
	return uint32(len(pos)), true
}

// SkipDoc returns the smallest docno present in the block that is >=
// target, or ok=false if none (caller moves to the next block).
func (b *PosInfoBlock) SkipDoc(target uint32) (docno uint32, ok bool) {
	ni := cursor.FibonacciUpperBound(len(b.Nodes), func(i int) bool {
		last := &b.Nodes[i]
		return last.docno(last.count-1) < target
	})
	if ni >= len(b.Nodes) {
		return 0, false
	}
	n := &b.Nodes[ni]
	slot := sort.Search(n.count, func(i int) bool { return n.docno(i) >= target })
	if slot >= n.count {
		return 0, false
	}
	return n.docno(slot), true
}

// PosInfoBuilder appends (docno, positions) entries in strictly
// ascending docno order, grouping them into doc-index nodes as it
// goes.
type PosInfoBuilder struct {
	blk      PosInfoBlock
	lastDocno uint32
	hasLast   bool
}

// NewPosInfoBuilder returns an empty builder.
func NewPosInfoBuilder() *PosInfoBuilder {
	return &PosInfoBuilder{}
}

// Append adds docno's position list. positions must be strictly
// ascending, each <= 65535, and docno must be strictly greater than any
// previously appended docno.
func (b *PosInfoBuilder) Append(docno uint32, positions []uint16) error {
	if b.hasLast && docno <= b.lastDocno {
		return ixerr.Newf(ixerr.InvalidArgument, "posinfo block: docno %d not strictly increasing after %d", docno, b.lastDocno)
	}
	if len(positions) > 65535 {
		return ixerr.Newf(ixerr.InvalidArgument, "posinfo block: ff %d exceeds 65535", len(positions))
	}
	for i, p := range positions {
		if i > 0 && p <= positions[i-1] {
			return ixerr.Newf(ixerr.InvalidArgument, "posinfo block: positions not strictly ascending at index %d", i)
		}
	}

	var node *docIndexNode
	if len(b.blk.Nodes) > 0 {
		last := &b.blk.Nodes[len(b.blk.Nodes)-1]
		if last.count < maxDocsPerIndexNode && docno-last.base <= 0xFFFF {
			node = last
		}
	}
	if node == nil {
		b.blk.Nodes = append(b.blk.Nodes, docIndexNode{base: docno})
		node = &b.blk.Nodes[len(b.blk.Nodes)-1]
		node.payloadStart[0] = uint32(len(b.blk.Payload))
	} else {
		node.offsets[node.count-1] = uint16(docno - node.base)
	}

	b.blk.Payload = append(b.blk.Payload, uint16(len(positions)))
	b.blk.Payload = append(b.blk.Payload, positions...)
	node.count++
	node.payloadStart[node.count] = uint32(len(b.blk.Payload))

	b.lastDocno = docno
	b.hasLast = true
	return nil
}

// Build returns the finished block.
func (b *PosInfoBuilder) Build() *PosInfoBlock {
	return b.blk.clone()
}

func (b *PosInfoBlock) clone() *PosInfoBlock {
	return &PosInfoBlock{
		Nodes:   append([]docIndexNode(nil), b.Nodes...),
		Payload: append([]uint16(nil), b.Payload...),
	}
}

// Marshal encodes the block: node count, then per node (base, count,
// offsets...), then payload length and the raw payload values, each
// varint-packed.
func (b *PosInfoBlock) Marshal() []byte {
	buf := varint.Pack(nil, uint32(len(b.Nodes)))
	for i := range b.Nodes {
		n := &b.Nodes[i]
		buf = varint.Pack(buf, n.base)
		buf = varint.Pack(buf, uint32(n.count))
		for i := 0; i < n.count-1; i++ {
			buf = varint.Pack(buf, uint32(n.offsets[i]))
		}
	}
	buf = varint.Pack(buf, uint32(len(b.Payload)))
	for _, v := range b.Payload {
		buf = varint.Pack(buf, uint32(v))
	}
	return buf
}

// UnmarshalPosInfo decodes a block encoded by Marshal.
func UnmarshalPosInfo(raw []byte) (*PosInfoBlock, error) {
	i := 0
	nnodes, n, err := varint.Unpack(raw[i:])
	if err != nil {
		return nil, err
	}
	i += n

	blk := &PosInfoBlock{Nodes: make([]docIndexNode, nnodes)}
	offset := uint32(0)
	for ni := uint32(0); ni < nnodes; ni++ {
		base, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		count, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		if count == 0 || count > maxDocsPerIndexNode {
			return nil, ixerr.Newf(ixerr.CorruptData, "posinfo block: bad node count %d", count)
		}
		node := &blk.Nodes[ni]
		node.base = base
		node.count = int(count)
		node.payloadStart[0] = offset
		for k := 0; k < int(count)-1; k++ {
			off, n, err := varint.Unpack(raw[i:])
			if err != nil {
				return nil, err
			}
			i += n
			node.offsets[k] = uint16(off)
		}
		// payloadStart[1:] filled in below once we know each record's ff.
		_ = offset
	}

	npayload, n, err := varint.Unpack(raw[i:])
	if err != nil {
		return nil, err
	}
	i += n
	blk.Payload = make([]uint16, npayload)
	for k := uint32(0); k < npayload; k++ {
		v, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		blk.Payload[k] = uint16(v)
	}

	// Recompute payloadStart per node by walking the payload: record k
	// starts with its ff, followed by ff positions.
	pos := uint32(0)
	for ni := range blk.Nodes {
		node := &blk.Nodes[ni]
		node.payloadStart[0] = pos
		for k := 0; k < node.count; k++ {
			if pos >= uint32(len(blk.Payload)) {
				return nil, ixerr.New(ixerr.CorruptData, "posinfo block: payload truncated")
			}
			ff := uint32(blk.Payload[pos])
			pos += 1 + ff
			node.payloadStart[k+1] = pos
		}
	}
	return blk, nil
}
