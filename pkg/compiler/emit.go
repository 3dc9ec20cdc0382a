package compiler

import (
	"fmt"
	"strings"
)

// Target picks the object-file dialect the emitter renders against. The
// System V AMD64 ABI is shared between ELF and Mach-O down to the
// instruction encoding -- they differ only in the global symbol prefix
// and a handful of section directives.
type Target int

const (
	TargetELF Target = iota
	TargetMachO
)

// EmitAssembly renders a legalized AsmProgram as GNU/AT&T assembler text,
// the last pipeline stage: everything downstream of this is an external
// assembler and linker's job.
func EmitAssembly(prog *AsmProgram, target Target) (string, error) {
	e := &emitter{target: target}
	e.emitStatics(prog.Statics)
	e.emitFloats(prog.Floats)
	if len(prog.Functions) > 0 {
		e.line(".text")
	}
	for _, fn := range prog.Functions {
		if err := e.emitFunction(fn); err != nil {
			return "", err
		}
	}
	if target == TargetELF {
		e.line(".section .note.GNU-stack,\"\",@progbits")
	}
	return e.out.String(), nil
}

type emitter struct {
	target Target
	out    strings.Builder
}

func (e *emitter) line(format string, args ...any) {
	fmt.Fprintf(&e.out, format+"\n", args...)
}

func (e *emitter) instr(format string, args ...any) {
	fmt.Fprintf(&e.out, "\t"+format+"\n", args...)
}

// symbolName applies the Mach-O leading-underscore convention to an
// externally visible name; internal `.L`-prefixed labels never go through
// this (they're already assembler-local on both dialects).
func (e *emitter) symbolName(name string) string {
	if e.target == TargetMachO {
		return "_" + name
	}
	return name
}

func (e *emitter) emitStatics(statics []*AsmStaticVariable) {
	var data, bss []*AsmStaticVariable
	for _, s := range statics {
		if s.Init == nil {
			bss = append(bss, s)
		} else {
			data = append(data, s)
		}
	}
	if len(data) > 0 {
		e.line(".data")
		for _, s := range data {
			e.emitStaticData(s)
		}
	}
	if len(bss) > 0 {
		e.line(".bss")
		for _, s := range bss {
			e.emitStaticBss(s)
		}
	}
}

func (e *emitter) emitStaticData(s *AsmStaticVariable) {
	name := e.symbolName(s.Name)
	if s.Global {
		e.line(".globl %s", name)
	}
	e.line(".align %d", s.Align)
	e.line("%s:", name)
	for _, c := range s.Init {
		e.emitConstantDirective(c)
	}
}

func (e *emitter) emitStaticBss(s *AsmStaticVariable) {
	name := e.symbolName(s.Name)
	if s.Global {
		e.line(".globl %s", name)
	}
	e.line(".align %d", s.Align)
	e.line("%s:", name)
	e.instr(".zero %d", s.Size)
}

func (e *emitter) emitConstantDirective(c ConstantValue) {
	switch c.Kind {
	case KChar:
		e.instr(".byte %d", int8(c.Int))
	case KInt, KUInt:
		e.instr(".long %d", uint32(c.Int))
	case KDouble:
		e.instr(".quad %d", asFloatBits(c.Float))
	default: // KLong, KULong, KPointer
		e.instr(".quad %d", c.Int)
	}
}

// emitFloats emits the rodata blob legalize.go lifted every double literal
// into, each aligned to 8 bytes and addressed the same way whether it's
// ELF's `.section .rodata` or Mach-O's literal-pool section.
func (e *emitter) emitFloats(floats []AsmFloatConstant) {
	if len(floats) == 0 {
		return
	}
	if e.target == TargetMachO {
		e.line(".section __TEXT,__literal8,8byte_literals")
	} else {
		e.line(".section .rodata")
	}
	for _, f := range floats {
		e.line(".align 8")
		e.line("%s:", f.Label)
		e.instr(".quad %d", asFloatBits(f.Value))
	}
}

// emitFunction wraps the legalized body in the standard `pushq %rbp;
// movq %rsp, %rbp; subq $k, %rsp` prologue / `movq %rbp, %rsp; popq
// %rbp; ret` epilogue pair, substituting the epilogue for every abstract
// Ret the selector emitted.
func (e *emitter) emitFunction(fn *AsmFunction) error {
	name := e.symbolName(fn.Name)
	if fn.Global {
		e.line(".globl %s", name)
	}
	e.line("%s:", name)
	e.instr("pushq %%rbp")
	e.instr("movq %%rsp, %%rbp")
	if fn.StackSize > 0 {
		e.instr("subq $%d, %%rsp", fn.StackSize)
	}
	for _, instr := range fn.Body {
		if _, ok := instr.(Ret); ok {
			e.instr("movq %%rbp, %%rsp")
			e.instr("popq %%rbp")
			e.instr("ret")
			continue
		}
		if err := e.emitInstr(instr); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) emitInstr(instr Instruction) error {
	switch n := instr.(type) {
	case Mov:
		e.instr("%s %s, %s", movMnemonic(n), e.operand(n.Src, n.Width), e.operand(n.Dst, n.Width))
	case Movsx:
		e.emitMovsx(n)
	case Lea:
		e.instr("leaq %s, %s", e.operand(n.Src, 8), e.operand(n.Dst, 8))
	case Cvt:
		e.emitCvt(n)
	case AsmUnary:
		e.instr("%s%s %s", n.Op, widthSuffix(n.Width), e.operand(n.Dst, n.Width))
	case AsmBinary:
		e.emitAsmBinary(n)
	case Cmp:
		e.emitCmp(n)
	case Idiv:
		mnem := "idiv"
		if !n.Signed {
			mnem = "div"
		}
		e.instr("%s%s %s", mnem, widthSuffix(n.Width), e.operand(n.Src, n.Width))
	case Cdq:
		e.instr(cdqMnemonic(n.Width))
	case Jmp:
		e.instr("jmp %s", n.Target)
	case JmpCC:
		e.instr("j%s %s", n.Cond, n.Target)
	case SetCC:
		e.instr("set%s %s", n.Cond, e.operand(n.Dst, 1))
	case Label:
		e.line("%s:", n.Name)
	case Push:
		e.instr("pushq %s", e.operand(n.Src, 8))
	case AsmCall:
		e.instr("call %s", e.callTarget(n.Target))
	case Ret:
		return internalError("Ret must be handled by emitFunction's epilogue substitution")
	case Comment:
		e.instr("# %s", n.Text)
	default:
		return internalError("emit: unhandled instruction %T", instr)
	}
	return nil
}

func (e *emitter) callTarget(name string) string {
	return e.symbolName(name)
}

// emitCvt picks the l/q form from the integer operand's own width, since
// a memory operand carries no size of its own the way a register name
// does -- the mnemonic suffix is the only place that width is encoded.
func (e *emitter) emitCvt(c Cvt) {
	if c.ToDouble {
		w := operandWidth(c.Src)
		e.instr("cvtsi2sd%s %s, %s", widthSuffix(w), e.operand(c.Src, w), e.operand(c.Dst, 8))
		return
	}
	w := operandWidth(c.Dst)
	e.instr("cvttsd2si%s %s, %s", widthSuffix(w), e.operand(c.Src, 8), e.operand(c.Dst, w))
}

func operandWidth(op Operand) int {
	switch o := op.(type) {
	case Reg:
		return o.Width
	case Stack:
		return o.Width
	case Data:
		return o.Width
	case Indirect:
		return o.Width
	default:
		return 8
	}
}

func (e *emitter) emitAsmBinary(b AsmBinary) {
	if b.Float {
		e.instr("%s %s, %s", floatMnemonic(b.Op), e.operand(b.Src, 8), e.operand(b.Dst, 8))
		return
	}
	e.instr("%s%s %s, %s", b.Op, widthSuffix(b.Width), e.operand(b.Src, b.Width), e.operand(b.Dst, b.Width))
}

func (e *emitter) emitCmp(c Cmp) {
	if c.Float {
		e.instr("comisd %s, %s", e.operand(c.B, 8), e.operand(c.A, 8))
		return
	}
	e.instr("cmp%s %s, %s", widthSuffix(c.Width), e.operand(c.B, c.Width), e.operand(c.A, c.Width))
}

func floatMnemonic(op AsmOp) string {
	switch op {
	case OpAdd:
		return "addsd"
	case OpSub:
		return "subsd"
	case OpMul:
		return "mulsd"
	case OpXor:
		return "xorpd"
	}
	return "addsd"
}

func movMnemonic(m Mov) string {
	if m.Float {
		return "movsd"
	}
	return "mov" + widthSuffix(m.Width)
}

// emitMovsx special-cases unsigned 32-to-64 widening: there is no movzlq
// because none is needed -- any plain 32-bit write already zero-extends
// the full 64-bit register.
func (e *emitter) emitMovsx(m Movsx) {
	if !m.Signed && m.SrcW == 4 && m.DstW == 8 {
		e.instr("movl %s, %s", e.operand(m.Src, 4), e.operand(m.Dst, 4))
		return
	}
	e.instr("%s %s, %s", movsxMnemonic(m), e.operand(m.Src, m.SrcW), e.operand(m.Dst, m.DstW))
}

func movsxMnemonic(m Movsx) string {
	if m.Signed && m.SrcW == 4 && m.DstW == 8 {
		return "movslq"
	}
	prefix := "movz"
	if m.Signed {
		prefix = "movs"
	}
	return prefix + widthSuffix(m.SrcW) + widthSuffix(m.DstW)
}

func cdqMnemonic(width int) string {
	if width == 8 {
		return "cqto"
	}
	return "cltd"
}

func widthSuffix(width int) string {
	switch width {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "l"
	case 8:
		return "q"
	}
	return ""
}

// operand renders op in real AT&T syntax at width; Reg consults its width-
// specific sub-register name (e.g. AX at width 1 is %al, at width 8 %rax).
func (e *emitter) operand(op Operand, width int) string {
	switch o := op.(type) {
	case Imm:
		return fmt.Sprintf("$%d", o.Value)
	case ImmFloat:
		return fmt.Sprintf("$%g", o.Value) // legalize.go lifts every real occurrence to Data first
	case Reg:
		return "%" + regName(o.Name, width)
	case Stack:
		return fmt.Sprintf("%d(%%rbp)", o.Offset)
	case Data:
		return fmt.Sprintf("%s(%%rip)", o.Label)
	case Indirect:
		return fmt.Sprintf("(%%%s)", regName(o.Base.Name, 8))
	}
	return "<?>"
}

var regNames64 = map[Register]string{
	AX: "rax", CX: "rcx", DX: "rdx", DI: "rdi", SI: "rsi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11", BP: "rbp", SP: "rsp",
}
var regNames32 = map[Register]string{
	AX: "eax", CX: "ecx", DX: "edx", DI: "edi", SI: "esi",
	R8: "r8d", R9: "r9d", R10: "r10d", R11: "r11d", BP: "ebp", SP: "esp",
}
var regNames8 = map[Register]string{
	AX: "al", CX: "cl", DX: "dl", DI: "dil", SI: "sil",
	R8: "r8b", R9: "r9b", R10: "r10b", R11: "r11b", BP: "bpl", SP: "spl",
}

func regName(r Register, width int) string {
	if r >= XMM0 {
		return r.String()
	}
	switch width {
	case 1:
		return regNames8[r]
	case 4:
		return regNames32[r]
	default:
		return regNames64[r]
	}
}
