package compiler

import (
	"math"
	"strconv"

	"github.com/samber/lo"
)

// Legalize turns the code selector's abstract x86-64 (Pseudo operands,
// operand-form pairs no real instruction accepts) into a program the
// emitter can print directly. It runs in two steps per function, never
// interleaved: first every Pseudo is assigned a `-N(%rbp)` stack slot,
// then every instruction is re-checked against the handful of operand
// forms x86-64 actually allows, rewriting violations through a scratch
// register (R10/R11 for integers, XMM14 for doubles). Collapsing what
// would otherwise be two near-identical passes over the instruction list
// into this single assign-then-rewrite pipeline is deliberate -- nothing
// downstream needs to see the intermediate state.
func Legalize(prog *AsmProgram) *AsmProgram {
	lg := &legalizer{floatLabels: make(map[float64]string)}
	for _, fn := range prog.Functions {
		lg.legalizeFunction(fn)
	}
	prog.Floats = append(prog.Floats, lg.floats...)
	return prog
}

type legalizer struct {
	floats      []AsmFloatConstant
	floatLabels map[float64]string
	nextFloat   int
}

func (lg *legalizer) legalizeFunction(fn *AsmFunction) {
	fn.Body = lg.assignSlots(fn)
	fn.Body = lg.rewriteOperandForms(fn.Body)
}

// assignSlots collects every distinct Pseudo name used in fn, in order of
// first appearance, gives each a stack slot below %rbp (natural
// alignment, growing the offset downward), and rewrites every
// Pseudo/ImmFloat operand in the body accordingly. fn.StackSize is set to
// the total, rounded up to the 16-byte System V stack alignment.
func (lg *legalizer) assignSlots(fn *AsmFunction) []Instruction {
	var order []string
	widths := make(map[string]int)
	for _, instr := range fn.Body {
		mapOperands(instr, func(op Operand) Operand {
			if p, ok := op.(Pseudo); ok {
				order = append(order, p.Name)
				widths[p.Name] = p.Width
			}
			return op
		})
	}
	order = lo.Uniq(order)

	offsets := make(map[string]int, len(order))
	cur := 0
	for _, name := range order {
		w := widths[name]
		cur -= w
		if rem := (-cur) % w; rem != 0 {
			cur -= w - rem
		}
		offsets[name] = cur
	}
	total := -cur
	if rem := total % 16; rem != 0 {
		total += 16 - rem
	}
	fn.StackSize = total

	body := make([]Instruction, len(fn.Body))
	for i, instr := range fn.Body {
		body[i] = mapOperands(instr, func(op Operand) Operand {
			if p, ok := op.(Pseudo); ok {
				return Stack{Offset: offsets[p.Name], Width: p.Width}
			}
			if f, ok := op.(ImmFloat); ok {
				return Data{Label: lg.floatLabel(f.Value), Width: 8}
			}
			return op
		})
	}
	return body
}

func (lg *legalizer) floatLabel(v float64) string {
	if label, ok := lg.floatLabels[v]; ok {
		return label
	}
	label := ".LC" + strconv.Itoa(lg.nextFloat)
	lg.nextFloat++
	lg.floatLabels[v] = label
	lg.floats = append(lg.floats, AsmFloatConstant{Label: label, Value: v})
	return label
}

// rewriteOperandForms is the second step: every Pseudo is now a Stack
// slot, so operand pairs that were legal against an unassigned Pseudo
// (the selector never had to know better) may now violate x86-64's rule
// that at most one operand of a two-operand instruction be a memory
// reference, plus a handful of instruction-specific register-only
// destinations (lea, movsx, cvt, imul-as-two-operand, sse arithmetic).
func (lg *legalizer) rewriteOperandForms(body []Instruction) []Instruction {
	var out []Instruction
	for _, instr := range body {
		out = append(out, lg.fixInstr(instr)...)
	}
	return out
}

func (lg *legalizer) fixInstr(instr Instruction) []Instruction {
	switch n := instr.(type) {
	case Mov:
		return lg.fixMov(n)
	case Movsx:
		return lg.fixMovsx(n)
	case Lea:
		return lg.fixLea(n)
	case Cvt:
		return lg.fixCvt(n)
	case AsmBinary:
		return lg.fixBinary(n)
	case Cmp:
		return lg.fixCmp(n)
	default:
		return []Instruction{instr}
	}
}

func isMemoryOperand(op Operand) bool {
	switch op.(type) {
	case Stack, Data, Indirect:
		return true
	default:
		return false
	}
}

func (lg *legalizer) fixMov(m Mov) []Instruction {
	if m.Float {
		if isMemoryOperand(m.Src) && isMemoryOperand(m.Dst) {
			scratch := Reg{Name: XMM14, Width: 8}
			return []Instruction{
				Mov{Src: m.Src, Dst: scratch, Width: 8, Float: true},
				Mov{Src: scratch, Dst: m.Dst, Width: 8, Float: true},
			}
		}
		return []Instruction{m}
	}
	// A 64-bit immediate can't be moved directly into a memory operand;
	// only movabs-to-register supports a full 8-byte immediate.
	if imm, ok := m.Src.(Imm); ok && m.Width == 8 && isMemoryOperand(m.Dst) {
		scratch := Reg{Name: R10, Width: 8}
		return []Instruction{
			Mov{Src: imm, Dst: scratch, Width: 8},
			Mov{Src: scratch, Dst: m.Dst, Width: 8},
		}
	}
	if isMemoryOperand(m.Src) && isMemoryOperand(m.Dst) {
		scratch := Reg{Name: R10, Width: m.Width}
		return []Instruction{
			Mov{Src: m.Src, Dst: scratch, Width: m.Width},
			Mov{Src: scratch, Dst: m.Dst, Width: m.Width},
		}
	}
	return []Instruction{m}
}

// fixMovsx always routes through a register destination: movsx/movzx
// cannot target memory.
func (lg *legalizer) fixMovsx(ms Movsx) []Instruction {
	if !isMemoryOperand(ms.Dst) {
		return []Instruction{ms}
	}
	scratch := Reg{Name: R10, Width: ms.DstW}
	return []Instruction{
		Movsx{Src: ms.Src, Dst: scratch, SrcW: ms.SrcW, DstW: ms.DstW, Signed: ms.Signed},
		Mov{Src: scratch, Dst: ms.Dst, Width: ms.DstW},
	}
}

// fixLea always routes through a register destination: lea cannot target
// memory either.
func (lg *legalizer) fixLea(l Lea) []Instruction {
	if !isMemoryOperand(l.Dst) {
		return []Instruction{l}
	}
	scratch := Reg{Name: R10, Width: 8}
	return []Instruction{
		Lea{Src: l.Src, Dst: scratch},
		Mov{Src: scratch, Dst: l.Dst, Width: 8},
	}
}

// fixCvt materializes an immediate integer source (cvtsi2sd has no
// immediate form) and always routes a memory destination through the
// matching scratch register, since both conversion instructions only
// ever write a register.
func (lg *legalizer) fixCvt(c Cvt) []Instruction {
	var pre []Instruction
	src := c.Src
	if c.ToDouble {
		if imm, ok := src.(Imm); ok {
			scratch := Reg{Name: R10, Width: 8}
			pre = append(pre, Mov{Src: imm, Dst: scratch, Width: 8})
			src = scratch
		}
		if isMemoryOperand(c.Dst) {
			scratch := Reg{Name: XMM14, Width: 8}
			return append(pre,
				Cvt{Src: src, Dst: scratch, ToDouble: true, FromUnsign: c.FromUnsign},
				Mov{Src: scratch, Dst: c.Dst, Width: 8, Float: true},
			)
		}
		return append(pre, Cvt{Src: src, Dst: c.Dst, ToDouble: true, FromUnsign: c.FromUnsign})
	}
	if isMemoryOperand(c.Dst) {
		scratch := Reg{Name: R10, Width: 8}
		return []Instruction{
			Cvt{Src: c.Src, Dst: scratch, ToDouble: false, FromUnsign: c.FromUnsign},
			Mov{Src: scratch, Dst: c.Dst, Width: 8},
		}
	}
	return []Instruction{c}
}

// fixBinary handles three independent illegalities: a 64-bit immediate
// operand (ALU instructions only sign-extend a 32-bit immediate), imul's
// two-operand form requiring a register destination, and the general
// at-most-one-memory-operand rule shared by every other integer op. SSE
// arithmetic (Float) has its own rule: the destination is always a
// register, full stop.
func (lg *legalizer) fixBinary(b AsmBinary) []Instruction {
	if b.Float {
		if isMemoryOperand(b.Dst) {
			scratch := Reg{Name: XMM14, Width: 8}
			return []Instruction{
				Mov{Src: b.Dst, Dst: scratch, Width: 8, Float: true},
				AsmBinary{Op: b.Op, Src: b.Src, Dst: scratch, Width: 8, Float: true},
				Mov{Src: scratch, Dst: b.Dst, Width: 8, Float: true},
			}
		}
		return []Instruction{b}
	}

	var pre []Instruction
	src := b.Src
	if imm, ok := src.(Imm); ok && b.Width == 8 && (imm.Value > math.MaxInt32 || imm.Value < math.MinInt32) {
		scratch := Reg{Name: R10, Width: 8}
		pre = append(pre, Mov{Src: imm, Dst: scratch, Width: 8})
		src = scratch
	}

	if b.Op == OpMul && isMemoryOperand(b.Dst) {
		scratch := Reg{Name: R11, Width: b.Width}
		return append(pre,
			Mov{Src: b.Dst, Dst: scratch, Width: b.Width},
			AsmBinary{Op: OpMul, Src: src, Dst: scratch, Width: b.Width},
			Mov{Src: scratch, Dst: b.Dst, Width: b.Width},
		)
	}

	if isMemoryOperand(src) && isMemoryOperand(b.Dst) {
		scratch := Reg{Name: R10, Width: b.Width}
		pre = append(pre, Mov{Src: src, Dst: scratch, Width: b.Width})
		src = scratch
	}

	return append(pre, AsmBinary{Op: b.Op, Src: src, Dst: b.Dst, Width: b.Width, Float: b.Float})
}

// fixCmp: cmp's second (AT&T-order) operand can never be an immediate,
// and like every other integer ALU instruction can't have two memory
// operands; comisd's second operand must always be a register.
func (lg *legalizer) fixCmp(c Cmp) []Instruction {
	if c.Float {
		if isMemoryOperand(c.A) {
			scratch := Reg{Name: XMM14, Width: 8}
			return []Instruction{
				Mov{Src: c.A, Dst: scratch, Width: 8, Float: true},
				Cmp{A: scratch, B: c.B, Width: c.Width, Float: true},
			}
		}
		return []Instruction{c}
	}

	var pre []Instruction
	a := c.A
	if imm, ok := a.(Imm); ok {
		scratch := Reg{Name: R10, Width: c.Width}
		pre = append(pre, Mov{Src: imm, Dst: scratch, Width: c.Width})
		a = scratch
	}
	if isMemoryOperand(a) && isMemoryOperand(c.B) {
		scratch := Reg{Name: R10, Width: c.Width}
		pre = append(pre, Mov{Src: a, Dst: scratch, Width: c.Width})
		a = scratch
	}
	return append(pre, Cmp{A: a, B: c.B, Width: c.Width, Float: c.Float})
}

// mapOperands rebuilds instr with every Operand field passed through f,
// letting assignSlots both collect Pseudo names (f as a no-op observer)
// and rewrite them (f as the Pseudo/ImmFloat substitution) with one
// switch shared by both passes.
func mapOperands(instr Instruction, f func(Operand) Operand) Instruction {
	switch n := instr.(type) {
	case Mov:
		return Mov{Src: f(n.Src), Dst: f(n.Dst), Width: n.Width, Float: n.Float}
	case Movsx:
		return Movsx{Src: f(n.Src), Dst: f(n.Dst), SrcW: n.SrcW, DstW: n.DstW, Signed: n.Signed}
	case Lea:
		return Lea{Src: f(n.Src), Dst: f(n.Dst)}
	case Cvt:
		return Cvt{Src: f(n.Src), Dst: f(n.Dst), ToDouble: n.ToDouble, FromUnsign: n.FromUnsign}
	case AsmUnary:
		return AsmUnary{Op: n.Op, Dst: f(n.Dst), Width: n.Width}
	case AsmBinary:
		return AsmBinary{Op: n.Op, Src: f(n.Src), Dst: f(n.Dst), Width: n.Width, Float: n.Float}
	case Cmp:
		return Cmp{A: f(n.A), B: f(n.B), Width: n.Width, Float: n.Float}
	case Idiv:
		return Idiv{Src: f(n.Src), Width: n.Width, Signed: n.Signed}
	case Push:
		return Push{Src: f(n.Src)}
	case SetCC:
		return SetCC{Cond: n.Cond, Dst: f(n.Dst)}
	default:
		return instr
	}
}
