package compiler

import "math"

// selector lowers one function's flat TAC instruction stream to abstract
// x86-64 under the System V AMD64 calling convention. Every TAC variable
// or temporary it produces is still a Pseudo (beside immediates, fixed
// Regs, Indirect operands through a scratch register, and the fixed
// Stack slots of incoming stack arguments); legalize.go is the only pass
// that assigns Pseudos to stack slots and rewrites illegal memory-memory
// operand pairs.
type selector struct {
	body        []Instruction
	usedNegMask bool
}

// SelectCode lowers an entire TAC program to abstract x86-64. syms
// supplies each function's declared parameter types, since
// TACFunctionDefinition.Params carries only names. The returned
// AsmSymbolTable is the backend-facing view of every defined object and
// function -- width and static-ness for objects, since that's all a
// caller inspecting the generated assembly (a debugger, a future linker
// pass) needs beyond the text itself.
func SelectCode(prog *TACProgram, syms *ProgramSymbolTable) (*AsmProgram, *AsmSymbolTable, error) {
	out := &AsmProgram{}
	asmSyms := NewAsmSymbolTable()
	usedNegMask := false
	for _, fn := range prog.Functions {
		asmFn, negMask, err := selectFunction(fn, syms)
		if err != nil {
			return nil, nil, err
		}
		out.Functions = append(out.Functions, asmFn)
		asmSyms.DefineFunction(fn.Name, true)
		usedNegMask = usedNegMask || negMask
	}
	for _, sv := range prog.Statics {
		out.Statics = append(out.Statics, &AsmStaticVariable{
			Name: sv.Name, Global: sv.Global, Align: sv.Type.Align(), Size: sv.Type.Size(), Init: sv.Init,
		})
		asmSyms.DefineObject(sv.Name, sv.Type.Size(), true)
	}
	if usedNegMask {
		out.Floats = append(out.Floats, AsmFloatConstant{Label: NegDoubleMaskLabel, Value: math.Float64frombits(negDoubleMaskBits)})
	}
	return out, asmSyms, nil
}

func selectFunction(fn *TACFunctionDefinition, syms *ProgramSymbolTable) (*AsmFunction, bool, error) {
	s := &selector{}
	fnType, _, _ := syms.Lookup(fn.Name)
	s.emitParamProlog(fn.Params, fnType.Params)
	for _, instr := range fn.Body {
		if err := s.emitInstr(instr); err != nil {
			return nil, false, err
		}
	}
	return &AsmFunction{Name: fn.Name, Global: fn.Global, Body: s.body}, s.usedNegMask, nil
}

func (s *selector) emit(i Instruction) { s.body = append(s.body, i) }

// emitParamProlog copies each incoming argument out of its calling-
// convention register (or stack slot, for the 7th+ integer argument)
// into the pseudo the TAC body addresses it by.
func (s *selector) emitParamProlog(names []string, types []Type) {
	intIdx, floatIdx, stackIdx := 0, 0, 0
	for i, name := range names {
		ty := types[i]
		w := ty.Size()
		dst := Pseudo{Name: name, Width: w}
		if ty.Kind == KDouble {
			if floatIdx < len(FloatArgRegs) {
				s.emit(Mov{Src: Reg{Name: FloatArgRegs[floatIdx], Width: 8}, Dst: dst, Width: 8, Float: true})
				floatIdx++
			} else {
				s.emit(Mov{Src: Stack{Offset: 16 + 8*stackIdx, Width: 8}, Dst: dst, Width: 8, Float: true})
				stackIdx++
			}
			continue
		}
		if intIdx < len(IntArgRegs) {
			s.emit(Mov{Src: Reg{Name: IntArgRegs[intIdx], Width: w}, Dst: dst, Width: w})
			intIdx++
		} else {
			// Per the calling convention's stack-argument handling, every
			// overflow argument is widened to 8 bytes on the stack.
			s.emit(Mov{Src: Stack{Offset: 16 + 8*stackIdx, Width: 8}, Dst: dst, Width: w})
			stackIdx++
		}
	}
}

func operandOf(v TACValue) Operand {
	switch t := v.(type) {
	case TACConstant:
		if t.Value.Kind == KDouble {
			return ImmFloat{Value: t.Value.Float}
		}
		if t.Value.IsSigned() {
			return Imm{Value: asSigned(t.Value.Kind, t.Value.Int)}
		}
		return Imm{Value: int64(t.Value.Int)}
	case TACVar:
		return Pseudo{Name: t.Name, Width: t.Type.Size()}
	}
	return nil
}

func widthOf(v TACValue) int {
	switch t := v.(type) {
	case TACConstant:
		return t.Value.Type().Size()
	case TACVar:
		return t.Type.Size()
	}
	return 0
}

func isFloatValue(v TACValue) bool {
	switch t := v.(type) {
	case TACConstant:
		return t.Value.Kind == KDouble
	case TACVar:
		return t.Type.Kind == KDouble
	}
	return false
}

func isSignedValue(v TACValue) bool {
	switch t := v.(type) {
	case TACConstant:
		return t.Value.IsSigned()
	case TACVar:
		return t.Type.IsSigned()
	}
	return true
}

func (s *selector) emitInstr(instr TACInstruction) error {
	switch n := instr.(type) {
	case TACReturn:
		s.emitReturn(n)
	case TACUnary:
		return s.emitUnary(n)
	case TACBinary:
		return s.emitBinary(n)
	case TACCopy:
		s.emit(Mov{Src: operandOf(n.Src), Dst: toPseudo(n.Dst), Width: widthOf(n.Src), Float: isFloatValue(n.Src)})
	case TACGetAddress:
		s.emit(Lea{Src: toPseudo(n.Src), Dst: toPseudo(n.Dst)})
	case TACLoad:
		s.emitLoad(n)
	case TACStore:
		s.emitStore(n)
	case TACAddPtr:
		s.emitAddPtr(n)
	case TACSignExtend:
		s.emit(Movsx{Src: operandOf(n.Src), Dst: toPseudo(n.Dst), SrcW: widthOf(n.Src), DstW: n.Dst.Type.Size(), Signed: true})
	case TACZeroExtend:
		s.emit(Movsx{Src: operandOf(n.Src), Dst: toPseudo(n.Dst), SrcW: widthOf(n.Src), DstW: n.Dst.Type.Size(), Signed: false})
	case TACTruncate:
		s.emit(Mov{Src: operandOf(n.Src), Dst: toPseudo(n.Dst), Width: n.Dst.Type.Size()})
	case TACIntToDouble:
		s.emit(Cvt{Src: operandOf(n.Src), Dst: toPseudo(n.Dst), ToDouble: true})
	case TACUIntToDouble:
		// cvtsi2sd only has a signed form; zero-extending the unsigned
		// operand into a 64-bit scratch register first keeps it inside
		// int64's positive range, so converting from there is exact for
		// every unsigned int this subset folds (see DESIGN.md's noted
		// simplification for unsigned long's top-bit-set case).
		if widthOf(n.Src) < 8 {
			scratch := Reg{Name: R10, Width: 8}
			s.emit(Movsx{Src: operandOf(n.Src), Dst: scratch, SrcW: widthOf(n.Src), DstW: 8, Signed: false})
			s.emit(Cvt{Src: scratch, Dst: toPseudo(n.Dst), ToDouble: true, FromUnsign: true})
		} else {
			s.emit(Cvt{Src: operandOf(n.Src), Dst: toPseudo(n.Dst), ToDouble: true, FromUnsign: true})
		}
	case TACDoubleToInt:
		s.emit(Cvt{Src: operandOf(n.Src), Dst: toPseudo(n.Dst), ToDouble: false})
	case TACDoubleToUInt:
		s.emit(Cvt{Src: operandOf(n.Src), Dst: toPseudo(n.Dst), ToDouble: false, FromUnsign: true})
	case TACJump:
		s.emit(Jmp{Target: n.Target})
	case TACJumpIfZero:
		s.emitJumpIf(n.Cond, n.Target, true)
	case TACJumpIfNotZero:
		s.emitJumpIf(n.Cond, n.Target, false)
	case TACLabel:
		s.emit(Label{Name: n.Name})
	case TACFunCall:
		s.emitCall(n)
	}
	return nil
}

// toPseudo reinterprets a TACVar as the Pseudo operand that names it.
func toPseudo(v TACVar) Pseudo { return Pseudo{Name: v.Name, Width: v.Type.Size()} }

func (s *selector) emitReturn(n TACReturn) {
	w := widthOf(n.Value)
	if isFloatValue(n.Value) {
		s.emit(Mov{Src: operandOf(n.Value), Dst: Reg{Name: XMM0, Width: 8}, Width: 8, Float: true})
	} else {
		s.emit(Mov{Src: operandOf(n.Value), Dst: Reg{Name: AX, Width: w}, Width: w})
	}
	s.emit(Ret{})
}

func (s *selector) emitUnary(n TACUnary) error {
	w := widthOf(n.Src)
	dst := toPseudo(n.Dst)
	if n.Op == NOT {
		s.emit(Cmp{A: operandOf(n.Src), B: Imm{Value: 0}, Width: w, Float: isFloatValue(n.Src)})
		s.emit(Mov{Src: Imm{Value: 0}, Dst: dst, Width: n.Dst.Type.Size()})
		s.emit(SetCC{Cond: CCEqual, Dst: dst})
		return nil
	}
	if n.Op == MINUS && isFloatValue(n.Src) {
		// x86-64 has no neg for an xmm register; flip the sign bit instead.
		s.usedNegMask = true
		s.emit(Mov{Src: operandOf(n.Src), Dst: dst, Width: 8, Float: true})
		s.emit(AsmBinary{Op: OpXor, Src: Data{Label: NegDoubleMaskLabel, Width: 8}, Dst: dst, Width: 8, Float: true})
		return nil
	}
	s.emit(Mov{Src: operandOf(n.Src), Dst: dst, Width: w})
	op := OpNeg
	if n.Op == TILDE {
		op = OpNot
	}
	s.emit(AsmUnary{Op: op, Dst: dst, Width: w})
	return nil
}

func (s *selector) emitBinary(n TACBinary) error {
	w := widthOf(n.LHS)
	dst := toPseudo(n.Dst)
	float := isFloatValue(n.LHS)

	switch n.Op {
	case PLUS, MINUS, STAR, AMP, PIPE, CARET:
		s.emit(Mov{Src: operandOf(n.LHS), Dst: dst, Width: w, Float: float})
		s.emit(AsmBinary{Op: asmOpFor(n.Op), Src: operandOf(n.RHS), Dst: dst, Width: w, Float: float})
		return nil
	case SHL, SHR:
		s.emit(Mov{Src: operandOf(n.LHS), Dst: dst, Width: w})
		s.emit(Mov{Src: operandOf(n.RHS), Dst: Reg{Name: CX, Width: 1}, Width: 1})
		op := OpShl
		if n.Op == SHR {
			if isSignedValue(n.LHS) {
				op = OpSar
			} else {
				op = OpShr
			}
		}
		s.emit(AsmBinary{Op: op, Src: Reg{Name: CX, Width: 1}, Dst: dst, Width: w})
		return nil
	case SLASH, PERCENT:
		s.emitDivMod(n, w, dst)
		return nil
	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		s.emit(Cmp{A: operandOf(n.LHS), B: operandOf(n.RHS), Width: w, Float: float})
		cc := condCodeFor(n.Op, isSignedValue(n.LHS) && !float)
		s.emit(Mov{Src: Imm{Value: 0}, Dst: dst, Width: n.Dst.Type.Size()})
		s.emit(SetCC{Cond: cc, Dst: dst})
		return nil
	}
	return internalError("unsupported TAC binary operator %s", n.Op)
}

func (s *selector) emitDivMod(n TACBinary, w int, dst Pseudo) {
	signed := isSignedValue(n.LHS)
	s.emit(Mov{Src: operandOf(n.LHS), Dst: Reg{Name: AX, Width: w}, Width: w})
	if signed {
		s.emit(Cdq{Width: w})
	} else {
		s.emit(Mov{Src: Imm{Value: 0}, Dst: Reg{Name: DX, Width: w}, Width: w})
	}
	rhs := operandOf(n.RHS)
	if _, isImm := rhs.(Imm); isImm {
		// Idiv/Div cannot take an immediate operand; materialize it first.
		s.emit(Mov{Src: rhs, Dst: Reg{Name: R10, Width: w}, Width: w})
		rhs = Reg{Name: R10, Width: w}
	}
	s.emit(Idiv{Src: rhs, Width: w, Signed: signed})
	if n.Op == SLASH {
		s.emit(Mov{Src: Reg{Name: AX, Width: w}, Dst: dst, Width: w})
	} else {
		s.emit(Mov{Src: Reg{Name: DX, Width: w}, Dst: dst, Width: w})
	}
}

func asmOpFor(op TokenType) AsmOp {
	switch op {
	case PLUS:
		return OpAdd
	case MINUS:
		return OpSub
	case STAR:
		return OpMul
	case AMP:
		return OpAnd
	case PIPE:
		return OpOr
	case CARET:
		return OpXor
	}
	return OpAdd
}

// condCodeFor picks the flag condition for a comparison operator.
// Floating-point comparisons use the unsigned codes because comisd sets
// the flags the same way an unsigned integer comparison would.
func condCodeFor(op TokenType, signed bool) CondCode {
	switch op {
	case EQUALS:
		return CCEqual
	case NOT_EQ:
		return CCNotEqual
	case LESS:
		if signed {
			return CCLess
		}
		return CCBelow
	case LESS_EQ:
		if signed {
			return CCLessEqual
		}
		return CCBelowEqual
	case GREATER:
		if signed {
			return CCGreater
		}
		return CCAbove
	default: // GREATER_EQ
		if signed {
			return CCGreaterEqual
		}
		return CCAboveEqual
	}
}

// emitJumpIf lowers JumpIfZero (zero=true) / JumpIfNotZero (zero=false).
func (s *selector) emitJumpIf(cond TACValue, target string, zero bool) {
	float := isFloatValue(cond)
	s.emit(Cmp{A: Imm{Value: 0}, B: operandOf(cond), Width: widthOf(cond), Float: float})
	cc := CCNotEqual
	if zero {
		cc = CCEqual
	}
	s.emit(JmpCC{Cond: cc, Target: target})
}

// emitLoad/emitStore/emitAddPtr all materialize the pointer value into
// scratch register R10 first: this subset's abstract model only allows a
// register (never a Pseudo or Stack slot) as an Indirect operand's base.

func (s *selector) emitLoad(n TACLoad) {
	dst := toPseudo(n.Dst)
	s.emit(Mov{Src: operandOf(n.SrcPtr), Dst: Reg{Name: R10, Width: 8}, Width: 8})
	s.emit(Mov{Src: Indirect{Base: Reg{Name: R10, Width: 8}, Width: n.Dst.Type.Size()}, Dst: dst,
		Width: n.Dst.Type.Size(), Float: n.Dst.Type.Kind == KDouble})
}

func (s *selector) emitStore(n TACStore) {
	s.emit(Mov{Src: operandOf(n.DstPtr), Dst: Reg{Name: R10, Width: 8}, Width: 8})
	w := widthOf(n.Src)
	s.emit(Mov{Src: operandOf(n.Src), Dst: Indirect{Base: Reg{Name: R10, Width: 8}, Width: w},
		Width: w, Float: isFloatValue(n.Src)})
}

func (s *selector) emitAddPtr(n TACAddPtr) {
	dst := toPseudo(n.Dst)
	s.emit(Mov{Src: operandOf(n.Base), Dst: Reg{Name: R10, Width: 8}, Width: 8})
	if c, ok := n.Index.(TACConstant); ok {
		off := asSigned(c.Value.Kind, c.Value.Int) * int64(n.Scale)
		if off != 0 {
			s.emit(AsmBinary{Op: OpAdd, Src: Imm{Value: off}, Dst: Reg{Name: R10, Width: 8}, Width: 8})
		}
	} else {
		s.emit(Mov{Src: operandOf(n.Index), Dst: Reg{Name: R11, Width: 8}, Width: 8})
		if n.Scale != 1 {
			s.emit(AsmBinary{Op: OpMul, Src: Imm{Value: int64(n.Scale)}, Dst: Reg{Name: R11, Width: 8}, Width: 8})
		}
		s.emit(AsmBinary{Op: OpAdd, Src: Reg{Name: R11, Width: 8}, Dst: Reg{Name: R10, Width: 8}, Width: 8})
	}
	s.emit(Mov{Src: Reg{Name: R10, Width: 8}, Dst: dst, Width: 8})
}

// emitCall lowers a call: integer/pointer arguments into DI,SI,DX,CX,R8,R9
// then the stack (each stack argument widened to 8 bytes per the calling
// convention's overflow rule), floating-point arguments into XMM0-XMM7
// then the stack, in source order; the result (if any) is copied out of
// AX or XMM0.
func (s *selector) emitCall(n TACFunCall) {
	var intArgs, floatArgs, stackArgs []TACValue
	intIdx, floatIdx := 0, 0
	for _, a := range n.Args {
		if isFloatValue(a) {
			if floatIdx < len(FloatArgRegs) {
				floatArgs = append(floatArgs, a)
				floatIdx++
			} else {
				stackArgs = append(stackArgs, a)
			}
			continue
		}
		if intIdx < len(IntArgRegs) {
			intArgs = append(intArgs, a)
			intIdx++
		} else {
			stackArgs = append(stackArgs, a)
		}
	}
	// An odd number of 8-byte stack arguments would leave %rsp misaligned
	// at the call; pad with one extra slot so it lands back on a 16-byte
	// boundary.
	pad := len(stackArgs)%2 != 0
	if pad {
		s.emit(AsmBinary{Op: OpSub, Src: Imm{Value: 8}, Dst: Reg{Name: SP, Width: 8}, Width: 8})
	}
	// Stack arguments are pushed right-to-left so they land in source
	// order, each widened to a full 64-bit push slot.
	for i := len(stackArgs) - 1; i >= 0; i-- {
		a := stackArgs[i]
		if isFloatValue(a) {
			// push has no form for an XMM register; carve out the slot and
			// store the double into it directly instead.
			s.emit(AsmBinary{Op: OpSub, Src: Imm{Value: 8}, Dst: Reg{Name: SP, Width: 8}, Width: 8})
			s.emit(Mov{Src: operandOf(a), Dst: Indirect{Base: Reg{Name: SP, Width: 8}, Width: 8},
				Width: 8, Float: true})
			continue
		}
		if _, isImm := operandOf(a).(Imm); !isImm && widthOf(a) < 8 {
			s.emit(Movsx{Src: operandOf(a), Dst: Reg{Name: R10, Width: 8}, SrcW: widthOf(a), DstW: 8, Signed: isSignedValue(a)})
		} else {
			s.emit(Mov{Src: operandOf(a), Dst: Reg{Name: R10, Width: 8}, Width: 8})
		}
		s.emit(Push{Src: Reg{Name: R10, Width: 8}})
	}
	for i, a := range intArgs {
		s.emit(Mov{Src: operandOf(a), Dst: Reg{Name: IntArgRegs[i], Width: widthOf(a)}, Width: widthOf(a)})
	}
	for i, a := range floatArgs {
		s.emit(Mov{Src: operandOf(a), Dst: Reg{Name: FloatArgRegs[i], Width: 8}, Width: 8, Float: true})
	}
	s.emit(AsmCall{Target: n.Name})
	cleanup := 8 * len(stackArgs)
	if pad {
		cleanup += 8
	}
	if cleanup > 0 {
		s.emit(AsmBinary{Op: OpAdd, Src: Imm{Value: int64(cleanup)}, Dst: Reg{Name: SP, Width: 8}, Width: 8})
	}
	if n.Dst != nil {
		dst := toPseudo(*n.Dst)
		if n.Dst.Type.Kind == KDouble {
			s.emit(Mov{Src: Reg{Name: XMM0, Width: 8}, Dst: dst, Width: 8, Float: true})
		} else {
			s.emit(Mov{Src: Reg{Name: AX, Width: n.Dst.Type.Size()}, Dst: dst, Width: n.Dst.Type.Size()})
		}
	}
}
