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

package weighting

import "strusgo/pkg/ixerr"

type loopContext struct {
	spec IteratorSpec
	itr  int
}

// vm holds the three bounded stacks a running Program touches: values,
// loop-body return marks, and active loop contexts.
type vm struct {
	values [MaxValueStack]float64
	vsp    int

	marks [MaxMarkStack]int
	msp   int

	loops [MaxLoopStack]loopContext
	lsp   int
}

func (m *vm) push(v float64) error {
	if m.vsp >= MaxValueStack {
		return ixerr.New(ixerr.ResourceExhausted, "weighting: value stack overflow")
	}
	m.values[m.vsp] = v
	m.vsp++
	return nil
}

func (m *vm) pop() (float64, error) {
	if m.vsp == 0 {
		return 0, ixerr.New(ixerr.CorruptData, "weighting: value stack underflow")
	}
	m.vsp--
	return m.values[m.vsp], nil
}

// skipLoop returns the program index right after the OpAgain matching
// the OpLoop at loopIP, without touching any stack. Used when the
// loop's feature type does not occur in the current document at all.
func skipLoop(prog Program, loopIP int) int {
	depth := 1
	ip := loopIP + 1
	for ip < len(prog) {
		switch prog[ip].Code {
		case OpLoop:
			depth++
		case OpAgain:
			depth--
			if depth == 0 {
				return ip + 1
			}
		}
		ip++
	}
	return ip
}

// Run executes prog against ctx and returns the single resulting value.
func Run(prog Program, ctx *Context) (float64, error) {
	m := &vm{}
	ip := 0
	for ip < len(prog) {
		op := prog[ip]
		switch op.Code {
		case OpPushConst:
			if err := m.push(op.Const); err != nil {
				return 0, err
			}
			ip++

		case OpPushDim:
			spec := ctx.IteratorMap(op.TypeName)
			val := 0.0
			if spec.Defined() {
				val = float64(spec.Size)
			}
			if err := m.push(val); err != nil {
				return 0, err
			}
			ip++

		case OpPushVar:
			typeIdx, idx := -1, 0
			if m.lsp > 0 {
				lc := &m.loops[m.lsp-1]
				typeIdx, idx = lc.spec.TypeIdx, lc.itr
			}
			if op.VarFixedIdx >= 0 {
				idx = op.VarFixedIdx
			}
			if err := m.push(op.VarFn(ctx, typeIdx, idx)); err != nil {
				return 0, err
			}
			ip++

		case OpUnaryFunction:
			a, err := m.pop()
			if err != nil {
				return 0, err
			}
			if err := m.push(op.UnaryFn(a)); err != nil {
				return 0, err
			}
			ip++

		case OpBinaryFunction:
			b, err := m.pop()
			if err != nil {
				return 0, err
			}
			a, err := m.pop()
			if err != nil {
				return 0, err
			}
			if err := m.push(op.BinaryFn(a, b)); err != nil {
				return 0, err
			}
			ip++

		case OpMark:
			if m.msp >= MaxMarkStack {
				return 0, ixerr.New(ixerr.ResourceExhausted, "weighting: loop mark stack overflow")
			}
			m.marks[m.msp] = ip
			m.msp++
			ip++

		case OpLoop:
			spec := ctx.IteratorMap(op.TypeName)
			if !spec.Defined() {
				ip = skipLoop(prog, ip)
				continue
			}
			if m.lsp >= MaxLoopStack {
				return 0, ixerr.New(ixerr.ResourceExhausted, "weighting: loop nesting too deep")
			}
			m.loops[m.lsp] = loopContext{spec: spec, itr: 0}
			m.lsp++
			ip++

		case OpAgain:
			if m.lsp == 0 || m.msp == 0 {
				return 0, ixerr.New(ixerr.CorruptData, "weighting: again outside of a loop")
			}
			lc := &m.loops[m.lsp-1]
			lc.itr++
			if lc.itr < lc.spec.Size {
				ip = m.marks[m.msp-1]
			} else {
				m.lsp--
				m.msp--
			}
			ip++

		default:
			return 0, ixerr.Newf(ixerr.CorruptData, "weighting: unknown opcode %d", op.Code)
		}
	}
	if m.vsp != 1 {
		return 0, ixerr.Newf(ixerr.CorruptData, "weighting: program left %d values on the stack, want 1", m.vsp)
	}
	return m.values[0], nil
}
