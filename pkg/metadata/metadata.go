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

// Package metadata reads per-document metadata columns through the
// shared block cache and evaluates metadata restrictions: a conjunctive
// normal form of typed comparators, matching by short-circuiting AND
// across groups and OR within a group.
package metadata

import (
	"strusgo/pkg/block"
	"strusgo/pkg/ixerr"
	"strusgo/pkg/metacache"
)

// Reader maps a docno through the metadata block cache and exposes
// column reads with runtime conversion to float64.
type Reader struct {
	schema *block.Schema
	cache  *metacache.Cache
}

// NewReader returns a Reader over schema, reading blocks through cache.
func NewReader(schema *block.Schema, cache *metacache.Cache) *Reader {
	return &Reader{schema: schema, cache: cache}
}

// ElementHandle identifies a metadata column by its position in the
// schema.
type ElementHandle int

// Handle returns the ElementHandle for a column name, or ok=false.
func (r *Reader) Handle(name string) (ElementHandle, bool) {
	idx, ok := r.schema.Index(name)
	return ElementHandle(idx), ok
}

// Names returns the schema's column names in declared order.
func (r *Reader) Names() []string { return r.schema.Names }

// GetValue returns docno's value for the column named by handle.
func (r *Reader) GetValue(docno uint32, handle ElementHandle) (float64, error) {
	if int(handle) < 0 || int(handle) >= len(r.schema.Names) {
		return 0, ixerr.Newf(ixerr.InvalidArgument, "metadata: element handle %d out of range", handle)
	}
	blockNo := block.BlockNoOf(docno)
	blk, err := r.cache.Get(blockNo)
	if err != nil {
		return 0, err
	}
	return blk.GetFloat(docno, r.schema.Names[handle])
}

// CompareOp is the comparison operator of a single restriction
// condition.
type CompareOp int

const (
	CompareLess CompareOp = iota
	CompareLessEqual
	CompareEqual
	CompareNotEqual
	CompareGreater
	CompareGreaterEqual
)

// epsilonFloat32 is the machine epsilon of a 32-bit float.
const epsilonFloat32 = 1.1920929e-7

// epsilonFloat16 is the fixed comparator epsilon for float16 columns,
// wide enough to absorb the precision lost by the 10-bit mantissa.
const epsilonFloat16 = 0.000489

// compareFunc evaluates op1 `cmp` op2 for one column's physical type.
type compareFunc func(op1, op2 float64) bool

func exactCompare(op CompareOp) compareFunc {
	switch op {
	case CompareLess:
		return func(a, b float64) bool { return a < b }
	case CompareLessEqual:
		return func(a, b float64) bool { return a <= b }
	case CompareEqual:
		return func(a, b float64) bool { return a == b }
	case CompareNotEqual:
		return func(a, b float64) bool { return a != b }
	case CompareGreater:
		return func(a, b float64) bool { return a > b }
	default:
		return func(a, b float64) bool { return a >= b }
	}
}

func epsilonCompare(op CompareOp, eps float64) compareFunc {
	switch op {
	case CompareLess:
		return func(a, b float64) bool { return a+eps < b }
	case CompareLessEqual:
		return func(a, b float64) bool { return a <= b+eps }
	case CompareEqual:
		return func(a, b float64) bool { return a+eps >= b && a <= b+eps }
	case CompareNotEqual:
		f := epsilonCompare(CompareEqual, eps)
		return func(a, b float64) bool { return !f(a, b) }
	case CompareGreater:
		return func(a, b float64) bool { return a > b+eps }
	default:
		return func(a, b float64) bool { return a+eps >= b }
	}
}

// compareFuncFor returns the comparator for op over a column of the
// given physical type: integer types compare exactly, float32 uses
// machine epsilon, float16 uses the fixed epsilon above.
func compareFuncFor(t block.ColumnType, op CompareOp) compareFunc {
	switch t {
	case block.ColumnFloat32:
		return epsilonCompare(op, epsilonFloat32)
	case block.ColumnFloat16:
		return epsilonCompare(op, epsilonFloat16)
	default:
		return exactCompare(op)
	}
}

// Condition is one leaf comparator of a restriction: column `handle` op
// `value`.
type Condition struct {
	Handle ElementHandle
	Op     CompareOp
	Value  float64
}

// Restriction is a conjunction of groups, each an OR of Conditions
// (conjunctive normal form).
type Restriction struct {
	Groups [][]Condition
}

// NewRestriction returns an empty restriction (matches everything).
func NewRestriction() *Restriction { return &Restriction{} }

// AddGroup appends an OR-group of conditions, ANDed with any existing
// groups.
func (r *Restriction) AddGroup(conditions ...Condition) *Restriction {
	r.Groups = append(r.Groups, conditions)
	return r
}

// Match reports whether docno satisfies the restriction, reading
// columns through reader. AND across groups short-circuits on the
// first group with no satisfied condition; OR within a group
// short-circuits on the first satisfied condition.
func (r *Restriction) Match(reader *Reader, schema *block.Schema, docno uint32) (bool, error) {
	for _, group := range r.Groups {
		groupOK := false
		for _, cond := range group {
			v, err := reader.GetValue(docno, cond.Handle)
			if err != nil {
				return false, err
			}
			colType := schema.Types[cond.Handle]
			if compareFuncFor(colType, cond.Op)(v, cond.Value) {
				groupOK = true
				break
			}
		}
		if !groupOK {
			return false, nil
		}
	}
	return true, nil
}
