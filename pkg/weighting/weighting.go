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

// Package weighting compiles a formula string into a small stack
// machine and evaluates it per document using posting statistics and
// metadata: a recursive-descent parser emits a flat (OpCode, Operand)
// program run over bounded value/mark/loop-context stacks.
package weighting

// MaxValueStack, MaxMarkStack and MaxLoopStack bound the interpreter's
// three runtime stacks.
const (
	MaxValueStack = 256
	MaxMarkStack  = 16
	MaxLoopStack  = 16
)

// MaxNofWeightingElements bounds how many distinct weighting features a
// single evaluation call may reference before failing with
// ResourceExhausted.
const MaxNofWeightingElements = 64

// UnaryFunc is a plain function value, not a closure, keeping the
// interpreter's hot scoring loop free of per-call indirection.
type UnaryFunc func(a float64) float64

// BinaryFunc is the two-argument counterpart of UnaryFunc.
type BinaryFunc func(a, b float64) float64

// VariableFunc resolves one named variable to a value. typeIdx/idx
// identify the enclosing loop's iteration; outside any loop they are
// (-1, 0). fixedIdx, when >= 0, overrides idx with a value bound at
// registration time instead of the loop's current iteration.
type VariableFunc func(ctx *Context, typeIdx, idx int) float64

type variableEntry struct {
	fn       VariableFunc
	fixedIdx int // -1 means "use the loop's current index"
}

// FunctionMap is the registry of named variables and unary/binary
// functions a formula may reference, mirroring
// FormulaInterpreter::FunctionMap. Bare identifiers resolve against
// Variables; `name(arg)` and `name(a,b)` resolve against Unary/Binary
// using the argument count, exactly as parseFunctionCall routes by
// nofargs.
type FunctionMap struct {
	variables map[string]variableEntry
	unary     map[string]UnaryFunc
	binary    map[string]BinaryFunc
}

// NewFunctionMap returns an empty FunctionMap.
func NewFunctionMap() *FunctionMap {
	return &FunctionMap{
		variables: make(map[string]variableEntry),
		unary:     make(map[string]UnaryFunc),
		binary:    make(map[string]BinaryFunc),
	}
}

// DefineVariable registers a bare-identifier variable. fixedIdx pins the
// variable to a specific feature index regardless of loop context; pass
// -1 to let the variable track whichever loop currently encloses it.
func (m *FunctionMap) DefineVariable(name string, fn VariableFunc, fixedIdx int) {
	m.variables[lower(name)] = variableEntry{fn: fn, fixedIdx: fixedIdx}
}

// DefineUnary registers a single-argument function, callable as
// `name(expr)`.
func (m *FunctionMap) DefineUnary(name string, fn UnaryFunc) {
	m.unary[lower(name)] = fn
}

// DefineBinary registers a two-argument function, callable as
// `name(expr,expr)` or, for operator symbols, via infix syntax.
func (m *FunctionMap) DefineBinary(name string, fn BinaryFunc) {
	m.binary[lower(name)] = fn
}

func (m *FunctionMap) variable(name string) (variableEntry, bool) {
	e, ok := m.variables[lower(name)]
	return e, ok
}

func (m *FunctionMap) unaryFn(name string) (UnaryFunc, bool) {
	f, ok := m.unary[lower(name)]
	return f, ok
}

func (m *FunctionMap) binaryFn(name string) (BinaryFunc, bool) {
	f, ok := m.binary[lower(name)]
	return f, ok
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// DefaultFunctionMap returns a FunctionMap preloaded with the
// arithmetic operators (+ - * / % ^), their shared aggregator aliases
// (sum/max/min/mul, for use as a loop's <aggfunc,...>), and the common
// unary math functions a weighting formula typically needs.
func DefaultFunctionMap() *FunctionMap {
	m := NewFunctionMap()
	m.DefineBinary("+", func(a, b float64) float64 { return a + b })
	m.DefineBinary("-", func(a, b float64) float64 { return a - b })
	m.DefineBinary("*", func(a, b float64) float64 { return a * b })
	m.DefineBinary("/", func(a, b float64) float64 { return a / b })
	m.DefineBinary("%", func(a, b float64) float64 {
		ai, bi := int64(a), int64(b)
		if bi == 0 {
			return 0
		}
		return float64(ai % bi)
	})
	m.DefineBinary("^", powFunc)
	m.DefineBinary("sum", func(a, b float64) float64 { return a + b })
	m.DefineBinary("max", func(a, b float64) float64 {
		if a > b {
			return a
		}
		return b
	})
	m.DefineBinary("min", func(a, b float64) float64 {
		if a < b {
			return a
		}
		return b
	})
	m.DefineBinary("mul", func(a, b float64) float64 { return a * b })
	m.DefineUnary("-", func(a float64) float64 { return -a })
	m.DefineUnary("log", logFunc)
	m.DefineUnary("log10", log10Func)
	m.DefineUnary("sqrt", sqrtFunc)
	m.DefineUnary("exp", expFunc)
	m.DefineUnary("abs", absFunc)
	return m
}

// FeatureSet is the set of per-document features of one term type a
// weighting loop iterates over.
type FeatureSet interface {
	Size() int
	Ff(i int) float64
	Weight(i int) float64
	Match(i int) float64
}

// SliceFeatureSet is a simple precomputed FeatureSet, typically built
// once per document from the posting iterators bound to a query.
type SliceFeatureSet struct {
	Ffs     []float64
	Weights []float64
	Matches []float64
}

func (s *SliceFeatureSet) Size() int { return len(s.Ffs) }
func (s *SliceFeatureSet) Ff(i int) float64 {
	if i < 0 || i >= len(s.Ffs) {
		return 0
	}
	return s.Ffs[i]
}
func (s *SliceFeatureSet) Weight(i int) float64 {
	if i < 0 || i >= len(s.Weights) {
		return 0
	}
	return s.Weights[i]
}
func (s *SliceFeatureSet) Match(i int) float64 {
	if i < 0 || i >= len(s.Matches) {
		return 0
	}
	return s.Matches[i]
}

// IteratorSpec describes one loop's iteration domain: the stable
// typeIdx handle variables use to find their feature set back, and how
// many features it holds.
type IteratorSpec struct {
	TypeIdx int
	Size    int
	ok      bool
}

// Defined reports whether the named feature type exists at all in the
// current document.
func (s IteratorSpec) Defined() bool { return s.ok }

// Context is the per-document evaluation context passed through Run:
// the opaque `ctx` of formulaInterpreter.run, holding the feature sets a
// loop/#type/variable may reference.
type Context struct {
	typeNames []string
	typeIndex map[string]int
	features  map[string]FeatureSet
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{typeIndex: make(map[string]int), features: make(map[string]FeatureSet)}
}

// BindFeatureSet associates typeName (as referenced by `<agg,typeName,..>{...}`
// and `#typeName`) with fs for this evaluation.
func (c *Context) BindFeatureSet(typeName string, fs FeatureSet) {
	c.features[lower(typeName)] = fs
}

// IteratorMap resolves typeName to its IteratorSpec, assigning it a
// stable typeIdx handle on first reference.
func (c *Context) IteratorMap(typeName string) IteratorSpec {
	name := lower(typeName)
	fs, ok := c.features[name]
	if !ok {
		return IteratorSpec{}
	}
	idx, seen := c.typeIndex[name]
	if !seen {
		idx = len(c.typeNames)
		c.typeNames = append(c.typeNames, name)
		c.typeIndex[name] = idx
	}
	return IteratorSpec{TypeIdx: idx, Size: fs.Size(), ok: true}
}

func (c *Context) featureSetAt(typeIdx int) FeatureSet {
	if typeIdx < 0 || typeIdx >= len(c.typeNames) {
		return nil
	}
	return c.features[c.typeNames[typeIdx]]
}

// FFVar is a built-in VariableFunc for "ff" inside a feature loop: the
// feature frequency of the loop's current feature.
func FFVar(ctx *Context, typeIdx, idx int) float64 {
	fs := ctx.featureSetAt(typeIdx)
	if fs == nil {
		return 0
	}
	return fs.Ff(idx)
}

// WeightVar is a built-in VariableFunc for "weight" inside a feature
// loop: a per-feature weight precomputed by the caller (e.g. an idf
// term or an externally supplied boost).
func WeightVar(ctx *Context, typeIdx, idx int) float64 {
	fs := ctx.featureSetAt(typeIdx)
	if fs == nil {
		return 0
	}
	return fs.Weight(idx)
}

// MatchVar is a built-in VariableFunc for "match" inside a feature loop:
// 1.0 if the loop's current feature matched the query, 0.0 otherwise.
func MatchVar(ctx *Context, typeIdx, idx int) float64 {
	fs := ctx.featureSetAt(typeIdx)
	if fs == nil {
		return 0
	}
	return fs.Match(idx)
}

// ConstVar returns a VariableFunc for a fixed scalar, for "param"-style
// named constants bound at query setup (e.g. total document count N,
// or a k1/b BM25 tuning parameter).
func ConstVar(value float64) VariableFunc {
	return func(*Context, int, int) float64 { return value }
}

