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

package cursor

// BlockView is the minimal shape a block must expose for the Family
// cursor's skip_doc heuristic: the smallest and largest docno it holds.
// The largest docno is also the block's key address.
type BlockView interface {
	FirstDoc() uint32
	LastDoc() uint32
}

// Decoder turns a raw stored block value into a typed BlockView.
type Decoder func(raw []byte) (BlockView, error)

// Family implements the document-block iterator template: skip_doc
// with "current/next/far" heuristics over a family of blocks
// sharing a key prefix, keyed by the largest docno each block contains.
type Family struct {
	raw     *RawCursor
	decode  Decoder
	loaded  bool
	hi      uint32
	first   uint32
	block   BlockView
}

// NewFamily wraps raw with the given block decoder.
func NewFamily(raw *RawCursor, decode Decoder) *Family {
	return &Family{raw: raw, decode: decode}
}

// Close releases the underlying cursor.
func (f *Family) Close() error { return f.raw.Close() }

// Loaded reports whether a block is currently loaded, and returns it.
func (f *Family) Loaded() (BlockView, bool) { return f.block, f.loaded }

func (f *Family) load(hi uint32, raw []byte) error {
	blk, err := f.decode(raw)
	if err != nil {
		return err
	}
	f.hi = hi
	f.block = blk
	f.first = blk.FirstDoc()
	f.loaded = true
	return nil
}

func (f *Family) fullSeek(target uint32) (BlockView, bool, error) {
	hi, raw, ok, err := f.raw.SeekUpperBound(target)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		f.loaded = false
		return nil, false, nil
	}
	if err := f.load(hi, raw); err != nil {
		return nil, false, err
	}
	return f.block, true, nil
}

// SkipDoc positions the cursor on the block that would contain target (or
// the next block after it if target falls in a gap), returning the block
// and true, or ok=false at end of stream.
//
//   - if no block loaded: open cursor at upper_bound(target).
//   - if target is within [block.first_doc, block.id]: block already
//     covers it, nothing to do.
//   - if target is "near": step forward block by
//     block, bailing out to a full upper-bound seek if a step overshoots
//     by more than the remaining slack.
//   - otherwise: full upper-bound seek.
func (f *Family) SkipDoc(target uint32) (BlockView, bool, error) {
	if !f.loaded {
		return f.fullSeek(target)
	}
	if target >= f.first && target <= f.hi {
		return f.block, true, nil
	}
	if target < f.first {
		// Target precedes the loaded block entirely; callers only ever
		// skip forward, but stay defensive and re-seek.
		return f.fullSeek(target)
	}
	span := f.hi - f.first
	near := target < f.hi+span-(span>>4)
	if near {
		for {
			hi, raw, ok, err := f.raw.Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				f.loaded = false
				return nil, false, nil
			}
			if err := f.load(hi, raw); err != nil {
				return nil, false, err
			}
			if target <= f.hi {
				return f.block, true, nil
			}
			if f.hi > target+span {
				// overshot further than expected; bail to a full seek.
				break
			}
		}
	}
	return f.fullSeek(target)
}
