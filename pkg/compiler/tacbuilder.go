package compiler

// tacBuilder lowers a type-checked AST to the flat TAC instruction stream.
// Short-circuit `&&`/`||`, `?:`, compound assignment, and pre/post
// increment are all expanded here so the code selector only ever sees
// straight-line instructions plus unconditional/conditional jumps.
type tacBuilder struct {
	ctx  *Context
	syms *ProgramSymbolTable
	body []TACInstruction
}

// BuildTAC lowers every function definition in prog to TAC and collects
// every static/global object (from syms, which is authoritative for
// linkage and initial value) into the program's static list.
func BuildTAC(prog *Program, syms *ProgramSymbolTable, ctx *Context) (*TACProgram, error) {
	out := &TACProgram{}
	for _, d := range prog.Declarations {
		fn, ok := d.(*FunctionDeclaration)
		if !ok || fn.Body == nil {
			continue
		}
		b := &tacBuilder{ctx: ctx, syms: syms}
		if err := b.emitBlock(fn.Body); err != nil {
			return nil, err
		}
		b.body = append(b.body, TACReturn{Value: TACConstant{Value: ConstantValue{Kind: KInt}}})
		global := fn.Storage != StorageStatic
		out.Functions = append(out.Functions, &TACFunctionDefinition{
			Name: fn.Name, Global: global, Params: fn.Params, Body: b.body,
		})
	}
	for _, name := range syms.Names() {
		ty, attrs, _ := syms.Lookup(name)
		sa, ok := attrs.(StaticAttrs)
		if !ok {
			continue
		}
		var init []ConstantValue
		switch v := sa.Init.(type) {
		case Initialized:
			init = v.Values
		case Tentative:
			init = nil
		case NoInitializer:
			continue // extern declaration with no definition: nothing to emit
		}
		out.Statics = append(out.Statics, &TACStaticVariable{
			Name: name, Global: sa.Global, Type: ty, Init: init,
		})
	}
	return out, nil
}

func (b *tacBuilder) emit(i TACInstruction) { b.body = append(b.body, i) }

func (b *tacBuilder) freshTemp(ty Type) TACVar {
	return TACVar{Name: b.ctx.FreshVar("tmp"), Type: ty}
}

func (b *tacBuilder) emitBlock(blk *Block) error {
	for _, item := range blk.Items {
		switch it := item.(type) {
		case DeclItem:
			if err := b.emitDecl(it.Decl); err != nil {
				return err
			}
		case StmtItem:
			if err := b.emitStmt(it.Stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *tacBuilder) emitDecl(d Decl) error {
	v, ok := d.(*VariableDeclaration)
	if !ok || v.Storage == StorageStatic || v.Storage == StorageExtern {
		return nil // statics/externs are emitted once, from the symbol table
	}
	if v.Init == nil {
		return nil
	}
	if v.Type.IsArray() {
		base := b.freshTemp(PointerTo(*v.Type.Elem))
		b.emit(TACGetAddress{Src: TACVar{Name: v.Name, Type: v.Type}, Dst: base})
		return b.emitCompoundInto(base, v.Type, v.Init)
	}
	val, err := b.emitExpr(v.Init.(*SingleInit).Expr)
	if err != nil {
		return err
	}
	b.emit(TACCopy{Src: val, Dst: TACVar{Name: v.Name, Type: v.Type}})
	return nil
}

// emitCompoundInto lowers an array initializer by storing each element
// through an explicitly computed byte-offset address, since a local
// array is never itself loaded into a register -- only its elements are.
func (b *tacBuilder) emitCompoundInto(addr TACValue, ty Type, init Initializer) error {
	switch n := init.(type) {
	case *SingleInit:
		val, err := b.emitExpr(n.Expr)
		if err != nil {
			return err
		}
		b.emit(TACStore{Src: val, DstPtr: addr})
		return nil
	case *CompoundInit:
		elemTy := *ty.Elem
		elemSize := elemTy.Size()
		i := 0
		for ; i < len(n.Elements); i++ {
			elemAddr := b.elemAddr(addr, elemTy, i, elemSize)
			if err := b.emitCompoundInto(elemAddr, elemTy, n.Elements[i]); err != nil {
				return err
			}
		}
		for ; uint64(i) < ty.Count; i++ {
			elemAddr := b.elemAddr(addr, elemTy, i, elemSize)
			b.emit(TACStore{Src: TACConstant{Value: zeroValue(elemTy)}, DstPtr: elemAddr})
		}
		return nil
	}
	return internalError("unrecognized initializer node %T", init)
}

func (b *tacBuilder) elemAddr(base TACValue, elemTy Type, index, elemSize int) TACValue {
	dst := b.freshTemp(PointerTo(elemTy))
	b.emit(TACAddPtr{Base: base, Index: TACConstant{Value: ConstantValue{Kind: KLong, Int: uint64(index)}}, Scale: elemSize, Dst: dst})
	return dst
}

func (b *tacBuilder) emitStmt(s Stmt) error {
	switch n := s.(type) {
	case *Return:
		if n.Expr == nil {
			b.emit(TACReturn{Value: TACConstant{Value: ConstantValue{Kind: KInt}}})
			return nil
		}
		v, err := b.emitExpr(n.Expr)
		if err != nil {
			return err
		}
		b.emit(TACReturn{Value: v})
	case *ExpressionStatement:
		_, err := b.emitExpr(n.Expr)
		return err
	case *Null:
	case *Block:
		return b.emitBlock(n)
	case *If:
		return b.emitIf(n)
	case *While:
		return b.emitWhile(n)
	case *DoWhile:
		return b.emitDoWhile(n)
	case *For:
		return b.emitFor(n)
	case *Break:
		b.emit(TACJump{Target: n.Label})
	case *Continue:
		b.emit(TACJump{Target: n.Label})
	case *Goto:
		b.emit(TACJump{Target: n.Label})
	case *Labeled:
		b.emit(TACLabel{Name: n.Label})
		return b.emitStmt(n.Inner)
	case *Switch:
		return b.emitSwitch(n)
	case *Case:
		b.emit(TACLabel{Name: n.Label})
		return b.emitStmt(n.Body)
	case *Default:
		b.emit(TACLabel{Name: n.Label})
		return b.emitStmt(n.Body)
	}
	return nil
}

func (b *tacBuilder) emitIf(n *If) error {
	cond, err := b.emitExpr(n.Cond)
	if err != nil {
		return err
	}
	if n.Else == nil {
		end := b.ctx.FreshLabel("if_end")
		b.emit(TACJumpIfZero{Cond: cond, Target: end})
		if err := b.emitStmt(n.Then); err != nil {
			return err
		}
		b.emit(TACLabel{Name: end})
		return nil
	}
	elseL := b.ctx.FreshLabel("if_else")
	end := b.ctx.FreshLabel("if_end")
	b.emit(TACJumpIfZero{Cond: cond, Target: elseL})
	if err := b.emitStmt(n.Then); err != nil {
		return err
	}
	b.emit(TACJump{Target: end})
	b.emit(TACLabel{Name: elseL})
	if err := b.emitStmt(n.Else); err != nil {
		return err
	}
	b.emit(TACLabel{Name: end})
	return nil
}

func (b *tacBuilder) emitWhile(n *While) error {
	start := n.Label + "_start"
	b.emit(TACLabel{Name: start})
	cond, err := b.emitExpr(n.Cond)
	if err != nil {
		return err
	}
	b.emit(TACJumpIfZero{Cond: cond, Target: n.Label})
	if err := b.emitStmt(n.Body); err != nil {
		return err
	}
	b.emit(TACJump{Target: start})
	b.emit(TACLabel{Name: n.Label})
	return nil
}

func (b *tacBuilder) emitDoWhile(n *DoWhile) error {
	start := n.Label + "_start"
	b.emit(TACLabel{Name: start})
	if err := b.emitStmt(n.Body); err != nil {
		return err
	}
	cond, err := b.emitExpr(n.Cond)
	if err != nil {
		return err
	}
	b.emit(TACJumpIfNotZero{Cond: cond, Target: start})
	b.emit(TACLabel{Name: n.Label})
	return nil
}

func (b *tacBuilder) emitFor(n *For) error {
	if n.Init != nil {
		switch init := n.Init.(type) {
		case DeclItem:
			if err := b.emitDecl(init.Decl); err != nil {
				return err
			}
		case StmtItem:
			if err := b.emitStmt(init.Stmt); err != nil {
				return err
			}
		}
	}
	start := n.Label + "_start"
	b.emit(TACLabel{Name: start})
	if n.Cond != nil {
		cond, err := b.emitExpr(n.Cond)
		if err != nil {
			return err
		}
		b.emit(TACJumpIfZero{Cond: cond, Target: n.Label})
	}
	if err := b.emitStmt(n.Body); err != nil {
		return err
	}
	b.emit(TACLabel{Name: n.Label + "_continue"})
	if n.Update != nil {
		if _, err := b.emitExpr(n.Update); err != nil {
			return err
		}
	}
	b.emit(TACJump{Target: start})
	b.emit(TACLabel{Name: n.Label})
	return nil
}

// emitSwitch lowers to a linear compare-and-jump ladder over the folded
// case constants, followed by the body (which already contains the Case/
// Default labels emitStmt falls through to).
func (b *tacBuilder) emitSwitch(n *Switch) error {
	cond, err := b.emitExpr(n.Cond)
	if err != nil {
		return err
	}
	condTmp := b.freshTemp(n.Type)
	b.emit(TACCopy{Src: cond, Dst: condTmp})
	for _, c := range n.Cases {
		cv, err := evalConstant(c.Cond)
		if err != nil {
			return err
		}
		eq := b.freshTemp(Int())
		b.emit(TACBinary{Op: EQUALS, LHS: condTmp, RHS: TACConstant{Value: cv}, Dst: eq})
		b.emit(TACJumpIfNotZero{Cond: eq, Target: c.Label})
	}
	if n.Default != nil {
		b.emit(TACJump{Target: n.Default.Label})
	} else {
		b.emit(TACJump{Target: n.Label})
	}
	if err := b.emitStmt(n.Body); err != nil {
		return err
	}
	b.emit(TACLabel{Name: n.Label})
	return nil
}

//  Expressions

func (b *tacBuilder) emitExpr(e Expr) (TACValue, error) {
	switch n := e.(type) {
	case *Constant:
		return TACConstant{Value: n.Value}, nil
	case *Variable:
		return TACVar{Name: n.Name, Type: *n.Typ}, nil
	case *Cast:
		return b.emitCast(n)
	case *Unary:
		return b.emitUnary(n)
	case *Postfix:
		return b.emitIncDec(n.Inner, n.Op, false)
	case *Binary:
		lhs, err := b.emitExpr(n.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := b.emitExpr(n.RHS)
		if err != nil {
			return nil, err
		}
		dst := b.freshTemp(*n.Typ)
		b.emit(TACBinary{Op: n.Op, LHS: lhs, RHS: rhs, Dst: dst})
		return dst, nil
	case *Logical:
		return b.emitLogical(n)
	case *Assignment:
		rhs, err := b.emitExpr(n.RHS)
		if err != nil {
			return nil, err
		}
		if err := b.emitAssign(n.LHS, rhs); err != nil {
			return nil, err
		}
		return rhs, nil
	case *CompoundAssignment:
		return b.emitCompoundAssign(n)
	case *Conditional:
		return b.emitConditional(n)
	case *Call:
		return b.emitCall(n)
	case *Dereference:
		ptr, err := b.emitExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		dst := b.freshTemp(*n.Typ)
		b.emit(TACLoad{SrcPtr: ptr, Dst: dst})
		return dst, nil
	case *AddressOf:
		return b.emitAddress(n.Inner)
	case *Subscript:
		addr, elemTy, err := b.emitSubscriptAddr(n)
		if err != nil {
			return nil, err
		}
		dst := b.freshTemp(elemTy)
		b.emit(TACLoad{SrcPtr: addr, Dst: dst})
		return dst, nil
	}
	return nil, internalError("unhandled expression node %T", e)
}

// emitCast lowers an implicit or explicit conversion. Array-to-pointer
// decay (inserted by the type checker as a Cast whose Inner is array-
// typed) materializes the array's address instead of reinterpreting bits.
func (b *tacBuilder) emitCast(n *Cast) (TACValue, error) {
	if innerTy := n.Inner.exprType(); innerTy != nil && innerTy.IsArray() {
		return b.emitAddress(n.Inner)
	}
	src, err := b.emitExpr(n.Inner)
	if err != nil {
		return nil, err
	}
	from := *n.Inner.exprType()
	to := n.Target
	if from.Equal(to) {
		return src, nil
	}
	dst := b.freshTemp(to)

	switch {
	case to.Kind == KDouble && from.IsInteger():
		if from.IsSigned() {
			b.emit(TACIntToDouble{Src: src, Dst: dst})
		} else {
			b.emit(TACUIntToDouble{Src: src, Dst: dst})
		}
	case from.Kind == KDouble && to.IsInteger():
		if to.IsSigned() {
			b.emit(TACDoubleToInt{Src: src, Dst: dst})
		} else {
			b.emit(TACDoubleToUInt{Src: src, Dst: dst})
		}
	case to.Size() == from.Size():
		b.emit(TACCopy{Src: src, Dst: dst})
	case to.Size() > from.Size():
		if from.IsSigned() {
			b.emit(TACSignExtend{Src: src, Dst: dst})
		} else {
			b.emit(TACZeroExtend{Src: src, Dst: dst})
		}
	default:
		b.emit(TACTruncate{Src: src, Dst: dst})
	}
	return dst, nil
}

func (b *tacBuilder) emitUnary(n *Unary) (TACValue, error) {
	if n.Op == PLUS_PLUS || n.Op == MINUS_MINUS {
		return b.emitIncDec(n.Inner, n.Op, true)
	}
	src, err := b.emitExpr(n.Inner)
	if err != nil {
		return nil, err
	}
	dst := b.freshTemp(*n.Typ)
	b.emit(TACUnary{Op: n.Op, Src: src, Dst: dst})
	return dst, nil
}

// emitIncDec lowers `++x`/`x++` (and the `--` forms) by computing the
// target's storage location once, loading the current value, computing
// the updated value, storing it back through that same location, and
// returning the old value for a postfix operator or the new value for a
// prefix one. The address is computed only once so a subscript/
// dereference operand with side effects (e.g. `a[i++]++`) is evaluated
// exactly once, matching C's single-evaluation rule for the lvalue.
func (b *tacBuilder) emitIncDec(target Expr, op TokenType, prefix bool) (TACValue, error) {
	loc, err := b.resolveLValue(target)
	if err != nil {
		return nil, err
	}
	old, err := loc.load()
	if err != nil {
		return nil, err
	}
	binOp := PLUS
	if op == MINUS_MINUS {
		binOp = MINUS
	}
	ty := loc.ty
	var newVal TACVar
	if ty.IsPointer() {
		step := int64(1)
		if binOp == MINUS {
			step = -1
		}
		newVal = b.freshTemp(ty)
		b.emit(TACAddPtr{Base: old, Index: TACConstant{Value: ConstantValue{Kind: KLong, Int: uint64(step)}}, Scale: ty.Elem.Size(), Dst: newVal})
	} else {
		one := TACValue(TACConstant{Value: ConstantValue{Kind: KInt, Int: 1}})
		newVal = b.freshTemp(ty)
		b.emit(TACBinary{Op: binOp, LHS: old, RHS: one, Dst: newVal})
	}
	if err := loc.store(newVal); err != nil {
		return nil, err
	}
	if prefix {
		return newVal, nil
	}
	return old, nil
}

// lvalue bundles an lvalue's storage location, computed once, with load/
// store closures that read/write through it.
type lvalue struct {
	ty    Type
	load  func() (TACValue, error)
	store func(TACValue) error
}

// resolveLValue computes the address (for Dereference/Subscript targets)
// or identifies the named variable (for a plain Variable target) exactly
// once, so repeated load/store against the same lvalue never re-evaluates
// an operand with side effects.
func (b *tacBuilder) resolveLValue(e Expr) (lvalue, error) {
	switch n := e.(type) {
	case *Variable:
		v := TACVar{Name: n.Name, Type: *n.Typ}
		return lvalue{
			ty:    *n.Typ,
			load:  func() (TACValue, error) { return v, nil },
			store: func(val TACValue) error { b.emit(TACCopy{Src: val, Dst: v}); return nil },
		}, nil
	case *Dereference:
		ptr, err := b.emitExpr(n.Inner)
		if err != nil {
			return lvalue{}, err
		}
		ty := *n.Typ
		return lvalue{
			ty: ty,
			load: func() (TACValue, error) {
				dst := b.freshTemp(ty)
				b.emit(TACLoad{SrcPtr: ptr, Dst: dst})
				return dst, nil
			},
			store: func(val TACValue) error { b.emit(TACStore{Src: val, DstPtr: ptr}); return nil },
		}, nil
	case *Subscript:
		addr, elemTy, err := b.emitSubscriptAddr(n)
		if err != nil {
			return lvalue{}, err
		}
		return lvalue{
			ty: elemTy,
			load: func() (TACValue, error) {
				dst := b.freshTemp(elemTy)
				b.emit(TACLoad{SrcPtr: addr, Dst: dst})
				return dst, nil
			},
			store: func(val TACValue) error { b.emit(TACStore{Src: val, DstPtr: addr}); return nil },
		}, nil
	default:
		return lvalue{}, internalError("invalid lvalue target %T", e)
	}
}

func (b *tacBuilder) emitLogical(n *Logical) (TACValue, error) {
	dst := b.freshTemp(Int())
	if n.Op == AND_LOGICAL {
		falseL := b.ctx.FreshLabel("and_false")
		end := b.ctx.FreshLabel("and_end")
		lhs, err := b.emitExpr(n.LHS)
		if err != nil {
			return nil, err
		}
		b.emit(TACJumpIfZero{Cond: lhs, Target: falseL})
		rhs, err := b.emitExpr(n.RHS)
		if err != nil {
			return nil, err
		}
		b.emit(TACJumpIfZero{Cond: rhs, Target: falseL})
		b.emit(TACCopy{Src: TACConstant{Value: ConstantValue{Kind: KInt, Int: 1}}, Dst: dst})
		b.emit(TACJump{Target: end})
		b.emit(TACLabel{Name: falseL})
		b.emit(TACCopy{Src: TACConstant{Value: ConstantValue{Kind: KInt, Int: 0}}, Dst: dst})
		b.emit(TACLabel{Name: end})
		return dst, nil
	}
	trueL := b.ctx.FreshLabel("or_true")
	end := b.ctx.FreshLabel("or_end")
	lhs, err := b.emitExpr(n.LHS)
	if err != nil {
		return nil, err
	}
	b.emit(TACJumpIfNotZero{Cond: lhs, Target: trueL})
	rhs, err := b.emitExpr(n.RHS)
	if err != nil {
		return nil, err
	}
	b.emit(TACJumpIfNotZero{Cond: rhs, Target: trueL})
	b.emit(TACCopy{Src: TACConstant{Value: ConstantValue{Kind: KInt, Int: 0}}, Dst: dst})
	b.emit(TACJump{Target: end})
	b.emit(TACLabel{Name: trueL})
	b.emit(TACCopy{Src: TACConstant{Value: ConstantValue{Kind: KInt, Int: 1}}, Dst: dst})
	b.emit(TACLabel{Name: end})
	return dst, nil
}

func (b *tacBuilder) emitCompoundAssign(n *CompoundAssignment) (TACValue, error) {
	loc, err := b.resolveLValue(n.LHS)
	if err != nil {
		return nil, err
	}
	old, err := loc.load()
	if err != nil {
		return nil, err
	}
	rhs, err := b.emitExpr(n.RHS)
	if err != nil {
		return nil, err
	}
	oldConv := b.convertIfNeeded(old, loc.ty, n.InnerType)
	inner := b.freshTemp(n.InnerType)
	b.emit(TACBinary{Op: n.Op, LHS: oldConv, RHS: rhs, Dst: inner})
	result := b.convertIfNeeded(inner, n.InnerType, n.ResultType)
	if err := loc.store(result); err != nil {
		return nil, err
	}
	return result, nil
}

// convertIfNeeded emits a Copy/widen/narrow instruction converting val
// from `from` to `to` only when they differ.
func (b *tacBuilder) convertIfNeeded(val TACValue, from, to Type) TACValue {
	if from.Equal(to) {
		return val
	}
	dst := b.freshTemp(to)
	switch {
	case to.Size() > from.Size():
		if from.IsSigned() {
			b.emit(TACSignExtend{Src: val, Dst: dst})
		} else {
			b.emit(TACZeroExtend{Src: val, Dst: dst})
		}
	case to.Size() < from.Size():
		b.emit(TACTruncate{Src: val, Dst: dst})
	default:
		b.emit(TACCopy{Src: val, Dst: dst})
	}
	return dst
}

func (b *tacBuilder) emitConditional(n *Conditional) (TACValue, error) {
	cond, err := b.emitExpr(n.Cond)
	if err != nil {
		return nil, err
	}
	dst := b.freshTemp(*n.Typ)
	falseL := b.ctx.FreshLabel("cond_false")
	end := b.ctx.FreshLabel("cond_end")
	b.emit(TACJumpIfZero{Cond: cond, Target: falseL})
	t, err := b.emitExpr(n.True)
	if err != nil {
		return nil, err
	}
	b.emit(TACCopy{Src: t, Dst: dst})
	b.emit(TACJump{Target: end})
	b.emit(TACLabel{Name: falseL})
	f, err := b.emitExpr(n.False)
	if err != nil {
		return nil, err
	}
	b.emit(TACCopy{Src: f, Dst: dst})
	b.emit(TACLabel{Name: end})
	return dst, nil
}

func (b *tacBuilder) emitCall(n *Call) (TACValue, error) {
	vals := make([]TACValue, len(n.Args))
	for i, a := range n.Args {
		v, err := b.emitExpr(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	if n.Typ.IsVoid() {
		b.emit(TACFunCall{Name: n.Name, Args: vals, Dst: nil})
		return TACConstant{Value: ConstantValue{Kind: KInt}}, nil
	}
	dst := b.freshTemp(*n.Typ)
	b.emit(TACFunCall{Name: n.Name, Args: vals, Dst: &dst})
	return dst, nil
}

//  Lvalues

// emitAddress materializes the address of an lvalue expression as a
// pointer TACValue, used both by the `&` operator and internally.
func (b *tacBuilder) emitAddress(e Expr) (TACValue, error) {
	switch n := e.(type) {
	case *Variable:
		src := TACVar{Name: n.Name, Type: *n.Typ}
		dst := b.freshTemp(PointerTo(*n.Typ))
		b.emit(TACGetAddress{Src: src, Dst: dst})
		return dst, nil
	case *Dereference:
		return b.emitExpr(n.Inner)
	case *Subscript:
		addr, _, err := b.emitSubscriptAddr(n)
		return addr, err
	default:
		return nil, internalError("cannot take the address of %T", e)
	}
}

// emitSubscriptAddr computes the address `Ptr + Index*sizeof(elem)`.
func (b *tacBuilder) emitSubscriptAddr(n *Subscript) (TACValue, Type, error) {
	base, err := b.emitExpr(n.Ptr)
	if err != nil {
		return nil, Type{}, err
	}
	idx, err := b.emitExpr(n.Index)
	if err != nil {
		return nil, Type{}, err
	}
	elemTy := *n.Ptr.exprType().Elem
	dst := b.freshTemp(PointerTo(elemTy))
	b.emit(TACAddPtr{Base: base, Index: idx, Scale: elemTy.Size(), Dst: dst})
	return dst, elemTy, nil
}

func (b *tacBuilder) emitAssign(lhs Expr, val TACValue) error {
	switch n := lhs.(type) {
	case *Variable:
		b.emit(TACCopy{Src: val, Dst: TACVar{Name: n.Name, Type: *n.Typ}})
		return nil
	case *Dereference:
		ptr, err := b.emitExpr(n.Inner)
		if err != nil {
			return err
		}
		b.emit(TACStore{Src: val, DstPtr: ptr})
		return nil
	case *Subscript:
		addr, _, err := b.emitSubscriptAddr(n)
		if err != nil {
			return err
		}
		b.emit(TACStore{Src: val, DstPtr: addr})
		return nil
	default:
		return internalError("invalid assignment target %T", lhs)
	}
}
