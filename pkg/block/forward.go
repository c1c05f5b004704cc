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

// ForwardIndexBlock holds one document's content for a single forward
// index type (e.g. "orig", "stem"), keyed by position, used to
// reconstruct document text for summaries and to verify phrase
// structures. The key address is the largest position the block covers
// rather than a docno, so FirstDoc/LastDoc here return position values
// to satisfy the shared cursor.BlockView shape.
type ForwardIndexBlock struct {
	Positions []uint32
	Contents  []string
}

// FirstDoc returns the smallest position held by the block.
func (b *ForwardIndexBlock) FirstDoc() uint32 {
	if len(b.Positions) == 0 {
		return 0
	}
	return b.Positions[0]
}

// LastDoc returns the largest position held by the block (its key
// address).
func (b *ForwardIndexBlock) LastDoc() uint32 {
	if len(b.Positions) == 0 {
		return 0
	}
	return b.Positions[len(b.Positions)-1]
}

// Content returns the token/chunk stored at pos.
func (b *ForwardIndexBlock) Content(pos uint32) (string, bool) {
	i := sort.Search(len(b.Positions), func(i int) bool { return b.Positions[i] >= pos })
	if i >= len(b.Positions) || b.Positions[i] != pos {
		return "", false
	}
	return b.Contents[i], true
}

// SkipPos returns the smallest position >= target, or ok=false if none.
func (b *ForwardIndexBlock) SkipPos(target uint32) (pos uint32, ok bool) {
	i := sort.Search(len(b.Positions), func(i int) bool { return b.Positions[i] >= target })
	if i >= len(b.Positions) {
		return 0, false
	}
	return b.Positions[i], true
}

// ForwardIndexBuilder appends (position, content) pairs in strictly
// ascending position order.
type ForwardIndexBuilder struct {
	blk ForwardIndexBlock
}

// NewForwardIndexBuilder returns an empty builder.
func NewForwardIndexBuilder() *ForwardIndexBuilder { return &ForwardIndexBuilder{} }

// Append adds pos's content. pos must be strictly greater than any
// previously appended position.
func (b *ForwardIndexBuilder) Append(pos uint32, content string) error {
	if n := len(b.blk.Positions); n > 0 && pos <= b.blk.Positions[n-1] {
		return ixerr.Newf(ixerr.InvalidArgument, "forward index block: position %d not strictly increasing", pos)
	}
	b.blk.Positions = append(b.blk.Positions, pos)
	b.blk.Contents = append(b.blk.Contents, content)
	return nil
}

// Build returns the finished block.
func (b *ForwardIndexBuilder) Build() *ForwardIndexBlock {
	return &ForwardIndexBlock{
		Positions: append([]uint32(nil), b.blk.Positions...),
		Contents:  append([]string(nil), b.blk.Contents...),
	}
}

// Marshal encodes the block as delta-packed positions followed by
// length-prefixed content strings.
func (b *ForwardIndexBlock) Marshal() []byte {
	buf := varint.Pack(nil, uint32(len(b.Positions)))
	var prev uint32
	for _, p := range b.Positions {
		buf = varint.Pack(buf, p-prev)
		prev = p
	}
	for _, s := range b.Contents {
		buf = varint.Pack(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

// UnmarshalForwardIndex decodes a block encoded by Marshal.
func UnmarshalForwardIndex(raw []byte) (*ForwardIndexBlock, error) {
	i := 0
	count, n, err := varint.Unpack(raw[i:])
	if err != nil {
		return nil, err
	}
	i += n
	blk := &ForwardIndexBlock{Positions: make([]uint32, count), Contents: make([]string, count)}
	var prev uint32
	for k := uint32(0); k < count; k++ {
		delta, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		prev += delta
		blk.Positions[k] = prev
	}
	for k := uint32(0); k < count; k++ {
		l, n, err := varint.Unpack(raw[i:])
		if err != nil {
			return nil, err
		}
		i += n
		if i+int(l) > len(raw) {
			return nil, ixerr.New(ixerr.CorruptData, "forward index block: truncated content")
		}
		blk.Contents[k] = string(raw[i : i+int(l)])
		i += int(l)
	}
	return blk, nil
}
