package compiler

import "fmt"

// TACValue is an operand of a TAC instruction: either a constant or a
// named temporary/variable. Unlike the source AST, TAC values carry no
// sub-expressions -- every nested expression has already been flattened
// into a sequence of instructions by the builder.
type TACValue interface {
	tacValueNode()
	String() string
}

type TACConstant struct {
	Value ConstantValue
}

func (TACConstant) tacValueNode()    {}
func (c TACConstant) String() string { return c.Value.String() }

type TACVar struct {
	Name string
	Type Type
}

func (TACVar) tacValueNode()    {}
func (v TACVar) String() string { return v.Name }

// TACInstruction is one instruction in a function's flat instruction
// list. Every control-flow construct in the source (if/while/for/switch/
// &&/||/?:) is expanded into Jump/JumpIfZero/JumpIfNotZero/Label by the
// builder, so the selector never has to special-case structured control
// flow.
type TACInstruction interface {
	tacInstrNode()
	String() string
}

type TACReturn struct{ Value TACValue }

func (TACReturn) tacInstrNode()    {}
func (r TACReturn) String() string { return fmt.Sprintf("return %s", r.Value) }

// TACUnary computes Dst = Op Src.
type TACUnary struct {
	Op  TokenType
	Src TACValue
	Dst TACVar
}

func (TACUnary) tacInstrNode()    {}
func (u TACUnary) String() string { return fmt.Sprintf("%s = %s %s", u.Dst, u.Op, u.Src) }

// TACBinary computes Dst = LHS Op RHS.
type TACBinary struct {
	Op  TokenType
	LHS TACValue
	RHS TACValue
	Dst TACVar
}

func (TACBinary) tacInstrNode() {}
func (b TACBinary) String() string {
	return fmt.Sprintf("%s = %s %s %s", b.Dst, b.LHS, b.Op, b.RHS)
}

// TACCopy computes Dst = Src.
type TACCopy struct {
	Src TACValue
	Dst TACVar
}

func (TACCopy) tacInstrNode()    {}
func (c TACCopy) String() string { return fmt.Sprintf("%s = %s", c.Dst, c.Src) }

// TACGetAddress computes Dst = &Src (Src must be an addressable TACVar).
type TACGetAddress struct {
	Src TACVar
	Dst TACVar
}

func (TACGetAddress) tacInstrNode()    {}
func (g TACGetAddress) String() string { return fmt.Sprintf("%s = &%s", g.Dst, g.Src) }

// TACLoad computes Dst = *SrcPtr.
type TACLoad struct {
	SrcPtr TACValue
	Dst    TACVar
}

func (TACLoad) tacInstrNode()    {}
func (l TACLoad) String() string { return fmt.Sprintf("%s = *%s", l.Dst, l.SrcPtr) }

// TACStore computes *DstPtr = Src.
type TACStore struct {
	Src    TACValue
	DstPtr TACValue
}

func (TACStore) tacInstrNode()    {}
func (s TACStore) String() string { return fmt.Sprintf("*%s = %s", s.DstPtr, s.Src) }

// TACAddPtr computes Dst = Base + Index*Scale (pointer/array arithmetic).
type TACAddPtr struct {
	Base  TACValue
	Index TACValue
	Scale int
	Dst   TACVar
}

func (TACAddPtr) tacInstrNode() {}
func (a TACAddPtr) String() string {
	return fmt.Sprintf("%s = %s + %s*%d", a.Dst, a.Base, a.Index, a.Scale)
}

// TACSignExtend / TACZeroExtend / TACTruncate / TACDoubleToInt /
// TACIntToDouble / TACUIntToDouble / TACDoubleToUInt implement the
// explicit-conversion instructions the type checker's inserted Casts
// lower to: each widens, narrows, or reinterprets Src into Dst's width
// and numeric domain.
type TACSignExtend struct {
	Src TACValue
	Dst TACVar
}

func (TACSignExtend) tacInstrNode()    {}
func (s TACSignExtend) String() string { return fmt.Sprintf("%s = sext %s", s.Dst, s.Src) }

type TACZeroExtend struct {
	Src TACValue
	Dst TACVar
}

func (TACZeroExtend) tacInstrNode()    {}
func (z TACZeroExtend) String() string { return fmt.Sprintf("%s = zext %s", z.Dst, z.Src) }

type TACTruncate struct {
	Src TACValue
	Dst TACVar
}

func (TACTruncate) tacInstrNode()    {}
func (t TACTruncate) String() string { return fmt.Sprintf("%s = trunc %s", t.Dst, t.Src) }

type TACIntToDouble struct {
	Src TACValue
	Dst TACVar
}

func (TACIntToDouble) tacInstrNode()    {}
func (c TACIntToDouble) String() string { return fmt.Sprintf("%s = itod %s", c.Dst, c.Src) }

type TACDoubleToInt struct {
	Src TACValue
	Dst TACVar
}

func (TACDoubleToInt) tacInstrNode()    {}
func (c TACDoubleToInt) String() string { return fmt.Sprintf("%s = dtoi %s", c.Dst, c.Src) }

type TACUIntToDouble struct {
	Src TACValue
	Dst TACVar
}

func (TACUIntToDouble) tacInstrNode()    {}
func (c TACUIntToDouble) String() string { return fmt.Sprintf("%s = utod %s", c.Dst, c.Src) }

type TACDoubleToUInt struct {
	Src TACValue
	Dst TACVar
}

func (TACDoubleToUInt) tacInstrNode()    {}
func (c TACDoubleToUInt) String() string { return fmt.Sprintf("%s = dtou %s", c.Dst, c.Src) }

type TACJump struct{ Target string }

func (TACJump) tacInstrNode()    {}
func (j TACJump) String() string { return fmt.Sprintf("jmp %s", j.Target) }

type TACJumpIfZero struct {
	Cond   TACValue
	Target string
}

func (TACJumpIfZero) tacInstrNode()    {}
func (j TACJumpIfZero) String() string { return fmt.Sprintf("jz %s, %s", j.Cond, j.Target) }

type TACJumpIfNotZero struct {
	Cond   TACValue
	Target string
}

func (TACJumpIfNotZero) tacInstrNode() {}
func (j TACJumpIfNotZero) String() string {
	return fmt.Sprintf("jnz %s, %s", j.Cond, j.Target)
}

type TACLabel struct{ Name string }

func (TACLabel) tacInstrNode()    {}
func (l TACLabel) String() string { return fmt.Sprintf("%s:", l.Name) }

// TACFunCall computes Dst = Name(Args...); Dst is the zero value when the
// callee returns void.
type TACFunCall struct {
	Name string
	Args []TACValue
	Dst  *TACVar
}

func (TACFunCall) tacInstrNode() {}
func (c TACFunCall) String() string {
	if c.Dst != nil {
		return fmt.Sprintf("%s = call %s(%v)", *c.Dst, c.Name, c.Args)
	}
	return fmt.Sprintf("call %s(%v)", c.Name, c.Args)
}

//  Top level

// TACStaticVariable is a file-scope or `static` object with its folded
// initializer (or Tentative, rendered as zero-fill in `.bss`).
type TACStaticVariable struct {
	Name   string
	Global bool
	Type   Type
	Init   []ConstantValue // nil => zero-initialized (.bss)
}

// TACFunctionDefinition is a function body lowered to a flat instruction
// list; Params names the SysV-convention-ordered parameter temporaries.
type TACFunctionDefinition struct {
	Name   string
	Global bool
	Params []string
	Body   []TACInstruction
}

// TACProgram is the whole translation unit in TAC form, ready for code
// selection.
type TACProgram struct {
	Functions []*TACFunctionDefinition
	Statics   []*TACStaticVariable
}
