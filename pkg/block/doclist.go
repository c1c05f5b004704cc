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

// Package block implements the typed views over raw stored blocks:
// PosInfo, DocList (boolean), Ff, ForwardIndex, InvTerm, MetaData and
// Structure. Each kind is a small concrete struct constructed on load
// from its marshaled bytes; there is no shared block base type.
package block

import (
	"sort"

	"strusgo/pkg/ixerr"
	"strusgo/pkg/varint"
)

// NodeType distinguishes the two encodings a DocList block's Node can
// take.
type NodeType uint8

const (
	// PairNode stores up to two docnos directly.
	PairNode NodeType = iota
	// DiffNode stores (last, run-length) representing [last-run, last].
	DiffNode
)

// Node is one entry of a DocList block, ordered by Elemno (the range's
// last/largest member).
type Node struct {
	Type   NodeType
	Elemno uint32 // last element of the range (PairNode: the larger element, or the only one if Alt is 0)
	Alt    uint32 // PairNode: the smaller element (0 if single-element); DiffNode: Elemno minus the range's first element
}

func (n *Node) init(from, to uint32) {
	if from == to {
		n.Type = PairNode
		n.Alt = 0
		n.Elemno = from
	} else {
		n.Type = DiffNode
		n.Alt = to - from
		n.Elemno = to
	}
}

func (n *Node) normalize() {
	switch n.Type {
	case DiffNode:
		if n.Alt == 0 {
			n.Type = PairNode
			n.Alt = 0
		}
	case PairNode:
		if n.Alt != 0 && n.Alt+1 == n.Elemno {
			n.Type = DiffNode
			n.Alt = 1
		}
	}
}

func (n *Node) matches(e uint32) bool {
	switch n.Type {
	case DiffNode:
		return e <= n.Elemno && e+n.Alt >= n.Elemno
	case PairNode:
		return e == n.Elemno || (n.Alt != 0 && e == n.Alt)
	}
	return false
}

// tryExpandRange extends the node's upper end to to_, if to_ follows
// immediately after the node (from a DefineRange call appending a new
// range that turns out to be adjacent/overlapping with this node).
func (n *Node) tryExpandRange(to uint32) bool {
	switch n.Type {
	case DiffNode:
		if n.Elemno >= to {
			return false
		}
		n.Alt += to - n.Elemno
		n.Elemno = to
		return true
	case PairNode:
		if n.Alt != 0 {
			return false
		}
		n.init(n.Elemno, to)
		return true
	}
	return false
}

// tryAddElem attempts to fold a single new element into the node.
func (n *Node) tryAddElem(e uint32) bool {
	switch n.Type {
	case DiffNode:
		lo := n.Elemno - n.Alt
		if e+1 >= lo && e <= n.Elemno+1 {
			switch {
			case e == n.Elemno+1:
				n.Elemno++
				n.Alt++
			case e+1 == lo:
				n.Alt++
			case e >= lo && e <= n.Elemno:
				// already a member
			default:
				return false
			}
			n.normalize()
			return true
		}
		return false
	case PairNode:
		if n.Alt != 0 {
			if e == n.Elemno || e == n.Alt {
				return true
			}
			return false
		}
		switch {
		case e == n.Elemno:
			return true
		case e < n.Elemno:
			n.Alt = e
		default:
			n.Alt = n.Elemno
			n.Elemno = e
		}
		n.normalize()
		return true
	}
	return false
}

func (n *Node) firstElem() uint32 {
	switch n.Type {
	case DiffNode:
		return n.Elemno - n.Alt
	case PairNode:
		if n.Alt != 0 {
			return n.Alt
		}
		return n.Elemno
	}
	return 0
}

func (n *Node) lastElem() uint32 { return n.Elemno }

// rangeBounds returns the contiguous [from,to] range represented by this
// node if it is one (DiffNode, or a PairNode whose two elements are
// adjacent), and ok=false otherwise (a PairNode holding two
// non-adjacent docnos is two singleton ranges, not one).
func (n *Node) rangeBounds() (from, to uint32, ok bool) {
	switch n.Type {
	case DiffNode:
		return n.Elemno - n.Alt, n.Elemno, true
	case PairNode:
		if n.Alt != 0 && n.Alt+1 == n.Elemno {
			return n.Alt, n.Elemno, true
		}
	}
	return 0, 0, false
}

// Range is a contiguous inclusive [From,To] span of member docnos.
type Range struct {
	From, To uint32
}

// DocListBlock is the decoded form of a boolean (doc-list) block.
type DocListBlock struct {
	Nodes []Node
}

// FirstDoc returns the smallest docno held by the block.
func (b *DocListBlock) FirstDoc() uint32 {
	if len(b.Nodes) == 0 {
		return 0
	}
	return b.Nodes[0].firstElem()
}

// LastDoc returns the largest docno held by the block (its key address).
func (b *DocListBlock) LastDoc() uint32 {
	if len(b.Nodes) == 0 {
		return 0
	}
	return b.Nodes[len(b.Nodes)-1].Elemno
}

// Ranges expands the block into a sorted list of disjoint, non-adjacent
// member ranges.
func (b *DocListBlock) Ranges() []Range {
	out := make([]Range, 0, len(b.Nodes))
	for i := range b.Nodes {
		n := &b.Nodes[i]
		switch n.Type {
		case DiffNode:
			out = append(out, Range{n.Elemno - n.Alt, n.Elemno})
		case PairNode:
			if n.Alt != 0 {
				out = append(out, Range{n.Alt, n.Alt})
			}
			out = append(out, Range{n.Elemno, n.Elemno})
		}
	}
	return out
}

// Member reports whether docno is a member of the block's set.
func (b *DocListBlock) Member(docno uint32) bool {
	i := sort.Search(len(b.Nodes), func(i int) bool { return b.Nodes[i].Elemno >= docno })
	if i >= len(b.Nodes) {
		return false
	}
	return b.Nodes[i].matches(docno)
}

// SkipDoc returns the first member docno >= target within this block, or
// 0 if none (the caller then moves to the next block).
func (b *DocListBlock) SkipDoc(target uint32) uint32 {
	i := sort.Search(len(b.Nodes), func(i int) bool { return b.Nodes[i].Elemno >= target })
	if i >= len(b.Nodes) {
		return 0
	}
	if b.Nodes[i].matches(target) {
		return target
	}
	if first := b.Nodes[i].firstElem(); first >= target {
		return first
	}
	// A pair node whose two members straddle target: the next member is
	// the node's last element.
	return b.Nodes[i].lastElem()
}

// Marshal encodes the block to bytes: a sequence of (type byte, packed
// Elemno, packed Alt) triples.
func (b *DocListBlock) Marshal() []byte {
	buf := make([]byte, 0, len(b.Nodes)*4)
	for i := range b.Nodes {
		n := &b.Nodes[i]
		buf = append(buf, byte(n.Type))
		buf = varint.Pack(buf, n.Elemno)
		buf = varint.Pack(buf, n.Alt)
	}
	return buf
}

// UnmarshalDocList decodes a block encoded by Marshal.
func UnmarshalDocList(raw []byte) (*DocListBlock, error) {
	var nodes []Node
	i := 0
	for i < len(raw) {
		if i+1 > len(raw) {
			return nil, ixerr.New(ixerr.CorruptData, "doclist block: truncated node tag")
		}
		typ := NodeType(raw[i])
		if typ != PairNode && typ != DiffNode {
			return nil, ixerr.Newf(ixerr.CorruptData, "doclist block: bad node type %d", typ)
		}
		i++
		elemno, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		alt, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		nodes = append(nodes, Node{Type: typ, Elemno: elemno, Alt: alt})
	}
	return &DocListBlock{Nodes: nodes}, nil
}

// DocListBuilder accumulates member docnos/ranges in ascending order,
// folding adjacent and overlapping members into the trailing node where
// possible.
type DocListBuilder struct {
	block DocListBlock
}

// NewDocListBuilder returns an empty builder, optionally seeded from an
// existing block's nodes (used when merging staged deltas into a block
// already on disk).
func NewDocListBuilder(seed *DocListBlock) *DocListBuilder {
	b := &DocListBuilder{}
	if seed != nil {
		b.block.Nodes = append([]Node(nil), seed.Nodes...)
	}
	return b
}

// AddElem appends a single member docno. docno must be >= any previously
// added element.
func (b *DocListBuilder) AddElem(docno uint32) {
	if len(b.block.Nodes) > 0 {
		last := &b.block.Nodes[len(b.block.Nodes)-1]
		if last.tryAddElem(docno) {
			return
		}
	}
	var n Node
	n.init(docno, docno)
	b.block.Nodes = append(b.block.Nodes, n)
}

// DefineRange appends a contiguous member range [from,to]. from must be
// >= any previously added element.
func (b *DocListBuilder) DefineRange(from, to uint32) {
	if from == to {
		b.AddElem(from)
		return
	}
	if len(b.block.Nodes) > 0 {
		last := &b.block.Nodes[len(b.block.Nodes)-1]
		if last.Elemno+1 >= from && last.tryExpandRange(to) {
			return
		}
	}
	var n Node
	n.init(from, to)
	b.block.Nodes = append(b.block.Nodes, n)
}

// Build returns the finished block.
func (b *DocListBuilder) Build() *DocListBlock {
	return &DocListBlock{Nodes: append([]Node(nil), b.block.Nodes...)}
}

// MergeBlocks interleaves two blocks' range streams and coalesces
// overlapping or adjacent ranges.
func MergeBlocks(a, c *DocListBlock) *DocListBlock {
	ranges := mergeRangeLists(a.Ranges(), c.Ranges())
	return rangesToBlock(ranges)
}

func mergeRangeLists(a, c []Range) []Range {
	merged := make([]Range, 0, len(a)+len(c))
	i, j := 0, 0
	for i < len(a) || j < len(c) {
		var r Range
		switch {
		case i >= len(a):
			r = c[j]
			j++
		case j >= len(c):
			r = a[i]
			i++
		case a[i].From <= c[j].From:
			r = a[i]
			i++
		default:
			r = c[j]
			j++
		}
		merged = coalesceAppend(merged, r)
	}
	return merged
}

func coalesceAppend(ranges []Range, r Range) []Range {
	if len(ranges) == 0 {
		return append(ranges, r)
	}
	last := &ranges[len(ranges)-1]
	if last.To+1 >= r.From && last.From <= r.From {
		if r.To > last.To {
			last.To = r.To
		}
		return ranges
	}
	return append(ranges, r)
}

func rangesToBlock(ranges []Range) *DocListBlock {
	b := NewDocListBuilder(nil)
	for _, r := range ranges {
		b.DefineRange(r.From, r.To)
	}
	return b.Build()
}

// MergeRange is one entry of a sorted delete/insert delta stream applied
// to an existing block.
type MergeRange struct {
	From, To uint32
	IsMember bool
}

// ApplyDeltas punches holes in (IsMember=false) or adds to (IsMember=true)
// the existing block's member set, given a sorted stream of MergeRange
// deltas, and returns the resulting block.
func ApplyDeltas(existing *DocListBlock, deltas []MergeRange) *DocListBlock {
	ranges := existing.Ranges()
	for _, d := range deltas {
		if d.IsMember {
			ranges = insertRange(ranges, Range{d.From, d.To})
		} else {
			ranges = removeRange(ranges, Range{d.From, d.To})
		}
	}
	return rangesToBlock(ranges)
}

func insertRange(ranges []Range, r Range) []Range {
	return mergeRangeLists(ranges, []Range{r})
}

func removeRange(ranges []Range, r Range) []Range {
	out := make([]Range, 0, len(ranges)+1)
	for _, cur := range ranges {
		if cur.To < r.From || cur.From > r.To {
			out = append(out, cur)
			continue
		}
		if cur.From < r.From {
			out = append(out, Range{cur.From, r.From - 1})
		}
		if cur.To > r.To {
			out = append(out, Range{r.To + 1, cur.To})
		}
	}
	return out
}
