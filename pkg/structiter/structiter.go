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

// Package structiter implements the structure iterator:
// per-document traversal of a directed-graph source-range -> sink-range
// relation, used for span-level query constraints. Changing doc clears
// the tracked source and sink; changing source clears the sink.
package structiter

import (
	"sort"

	"strusgo/pkg/block"
	"strusgo/pkg/cursor"
	"strusgo/pkg/keyschema"
	"strusgo/pkg/store"
)

// Range is an inclusive-exclusive-style [Start,End) position span,
// matching the source's IndexRange(start,end).
type Range struct {
	Start, End uint32
}

func decodeStructure(raw []byte) (cursor.BlockView, error) {
	blk, err := block.UnmarshalStructure(raw)
	if err != nil {
		return nil, err
	}
	return blk, nil
}

type sourceGroup struct {
	source Range
	sinks  []Range // sorted ascending by End
}

// Iterator traverses the structure spans of one document at a time.
type Iterator struct {
	fam *cursor.Family

	docno  uint32
	groups []sourceGroup // sorted ascending by source.End, then source.Start

	hasSource  bool
	sourceIdx  int
	lastSource Range

	hasSink  bool
	lastSink Range
}

// New returns a structure Iterator over kv.
func New(kv store.KV) *Iterator {
	fam := cursor.NewFamily(cursor.NewRawCursor(kv, keyschema.StructurePrefix()), decodeStructure)
	return &Iterator{fam: fam}
}

// Close releases the iterator's underlying cursor.
func (it *Iterator) Close() error { return it.fam.Close() }

func (it *Iterator) reset() {
	it.hasSource = false
	it.sourceIdx = 0
	it.lastSource = Range{}
	it.hasSink = false
	it.lastSink = Range{}
}

// SkipDoc loads the structure block covering docno and positions the
// iterator at the start of that document's source list, clearing any
// previously tracked source/sink.
func (it *Iterator) SkipDoc(docno uint32) (uint32, error) {
	it.reset()
	for {
		bv, ok, err := it.fam.SkipDoc(docno)
		if err != nil {
			return 0, err
		}
		if !ok {
			it.docno = 0
			it.groups = nil
			return 0, nil
		}
		blk := bv.(*block.StructureBlock)
		d, found := blk.SkipDoc(docno)
		if found {
			it.docno = d
			spans, _ := blk.Get(d)
			it.groups = groupSpans(spans)
			return d, nil
		}
		docno = blk.LastDoc() + 1
	}
}

func groupSpans(spans []block.StructureSpan) []sourceGroup {
	bySource := make(map[Range][]Range)
	var order []Range
	for _, s := range spans {
		src := Range{s.SourceFrom, s.SourceTo}
		if _, ok := bySource[src]; !ok {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], Range{s.SinkFrom, s.SinkTo})
	}
	groups := make([]sourceGroup, 0, len(order))
	for _, src := range order {
		sinks := bySource[src]
		sort.Slice(sinks, func(i, j int) bool { return sinks[i].End < sinks[j].End })
		groups = append(groups, sourceGroup{source: src, sinks: sinks})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].source.End != groups[j].source.End {
			return groups[i].source.End < groups[j].source.End
		}
		return groups[i].source.Start < groups[j].source.Start
	})
	return groups
}

// SkipPosSource returns the first source range in the current document
// with End > firstPos, scanning the structure-def table in ascending
// End order. Clears any tracked sink, since a new source
// invalidates it.
func (it *Iterator) SkipPosSource(firstPos uint32) Range {
	it.hasSink = false
	it.lastSink = Range{}
	if it.docno == 0 {
		it.hasSource = false
		it.lastSource = Range{}
		return Range{}
	}
	i := sort.Search(len(it.groups), func(i int) bool { return it.groups[i].source.End > firstPos })
	if i >= len(it.groups) {
		it.hasSource = false
		it.lastSource = Range{}
		return Range{}
	}
	it.hasSource = true
	it.sourceIdx = i
	it.lastSource = it.groups[i].source
	return it.lastSource
}

// SkipPosSink returns the first member range within the current
// source's sink list with End > firstPos.
func (it *Iterator) SkipPosSink(firstPos uint32) Range {
	if it.docno == 0 || !it.hasSource {
		it.hasSink = false
		it.lastSink = Range{}
		return Range{}
	}
	sinks := it.groups[it.sourceIdx].sinks
	i := sort.Search(len(sinks), func(i int) bool { return sinks[i].End > firstPos })
	if i >= len(sinks) {
		it.hasSink = false
		it.lastSink = Range{}
		return Range{}
	}
	it.hasSink = true
	it.lastSink = sinks[i]
	return it.lastSink
}

// Source returns the last range returned by SkipPosSource.
func (it *Iterator) Source() Range { return it.lastSource }

// Sink returns the last range returned by SkipPosSink.
func (it *Iterator) Sink() Range { return it.lastSink }
