package compiler

// typeChecker walks the resolved AST, infers every expression's Type,
// inserts implicit Cast nodes where the usual arithmetic/assignment
// conversions require one, and populates the program symbol table.
type typeChecker struct {
	syms *ProgramSymbolTable
	fn   *FunctionDeclaration // currently-checked function, for Return
}

// TypeCheck runs after ResolveProgram. It mutates the tree (wrapping
// expressions in Cast nodes, setting every Expr's Type) and returns the
// frozen symbol table the later passes read from.
func TypeCheck(prog *Program) (*ProgramSymbolTable, error) {
	tc := &typeChecker{syms: NewProgramSymbolTable()}
	for _, d := range prog.Declarations {
		if err := tc.checkTopLevel(d); err != nil {
			return nil, err
		}
	}
	return tc.syms, nil
}

func (tc *typeChecker) checkTopLevel(d Decl) error {
	switch n := d.(type) {
	case *FunctionDeclaration:
		return tc.checkFunction(n)
	case *VariableDeclaration:
		return tc.checkFileScopeVar(n)
	}
	return nil
}

func (tc *typeChecker) checkFunction(fn *FunctionDeclaration) error {
	if existingTy, attrs, ok := tc.syms.Lookup(fn.Name); ok {
		existing, _ := attrs.(FuncAttrs)
		if !existingTy.Equal(fn.Type) {
			return typeError("conflicting declarations of function %q", fn.Name)
		}
		if existing.Defined && fn.Body != nil {
			return typeError("redefinition of function %q", fn.Name)
		}
	}
	global := fn.Storage != StorageStatic
	tc.syms.Define(fn.Name, fn.Type, FuncAttrs{Defined: fn.Body != nil, Global: global})

	if fn.Body == nil {
		return nil
	}
	for i, p := range fn.Params {
		tc.syms.Define(p, fn.Type.Params[i], LocalAttrs{})
	}
	prevFn := tc.fn
	tc.fn = fn
	err := tc.checkBlock(fn.Body)
	tc.fn = prevFn
	return err
}

func (tc *typeChecker) checkFileScopeVar(v *VariableDeclaration) error {
	init, err := staticInitFor(v.Type, v.Init)
	if err != nil {
		return err
	}
	if v.Storage == StorageExtern && v.Init == nil {
		init = NoInitializer{}
	}
	if existingTy, attrs, ok := tc.syms.Lookup(v.Name); ok {
		if !existingTy.Equal(v.Type) {
			return typeError("conflicting declarations of %q", v.Name)
		}
		if sa, ok2 := attrs.(StaticAttrs); ok2 {
			_, wasInit := sa.Init.(Initialized)
			_, nowInit := init.(Initialized)
			if wasInit && nowInit {
				return typeError("redefinition of %q", v.Name)
			}
			_, wasTentative := sa.Init.(Tentative)
			_, nowNone := init.(NoInitializer)
			if wasInit || (wasTentative && nowNone) {
				init = sa.Init // keep the earlier, more definite initial value
			}
		}
	}
	global := v.Storage != StorageStatic
	tc.syms.Define(v.Name, v.Type, StaticAttrs{Global: global, Init: init})
	return nil
}

// staticInitFor resolves the compile-time InitialValue of a file-scope (or
// `static` block-scope) declaration: a folded constant, a tentative
// (zero) definition, or "no initializer" for `extern`.
func staticInitFor(ty Type, init Initializer) (InitialValue, error) {
	if init == nil {
		return Tentative{}, nil
	}
	vals, err := foldStaticInitializer(ty, init)
	if err != nil {
		return nil, err
	}
	return Initialized{Values: vals}, nil
}

func (tc *typeChecker) checkBlock(b *Block) error {
	for _, item := range b.Items {
		switch it := item.(type) {
		case DeclItem:
			if err := tc.checkBlockDecl(it.Decl); err != nil {
				return err
			}
		case StmtItem:
			if err := tc.checkStmt(it.Stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (tc *typeChecker) checkBlockDecl(d Decl) error {
	switch n := d.(type) {
	case *VariableDeclaration:
		if n.Storage == StorageStatic || n.Storage == StorageExtern {
			return tc.checkFileScopeVar(n)
		}
		tc.syms.Define(n.Name, n.Type, LocalAttrs{})
		if n.Init == nil {
			return nil
		}
		return tc.checkInitializer(n.Type, n.Init)
	case *FunctionDeclaration:
		return tc.checkFunction(n)
	}
	return nil
}

func (tc *typeChecker) checkInitializer(want Type, init Initializer) error {
	switch n := init.(type) {
	case *SingleInit:
		e, err := tc.checkExpr(n.Expr)
		if err != nil {
			return err
		}
		converted, err := convertForAssignment(want, e)
		if err != nil {
			return err
		}
		n.Expr = converted
		n.setInitType(want)
		return nil
	case *CompoundInit:
		if !want.IsArray() {
			return typeError("brace initializer used for non-array type %s", want)
		}
		if uint64(len(n.Elements)) > want.Count {
			return typeError("too many elements in initializer for %s", want)
		}
		for _, e := range n.Elements {
			if err := tc.checkInitializer(*want.Elem, e); err != nil {
				return err
			}
		}
		n.setInitType(want)
		return nil
	}
	return nil
}

func (tc *typeChecker) checkStmt(s Stmt) error {
	switch n := s.(type) {
	case *Return:
		if n.Expr == nil {
			if !tc.fn.Type.Ret.IsVoid() {
				return typeError("non-void function %q must return a value", tc.fn.Name)
			}
			return nil
		}
		e, err := tc.checkExpr(n.Expr)
		if err != nil {
			return err
		}
		converted, err := convertForAssignment(*tc.fn.Type.Ret, e)
		if err != nil {
			return err
		}
		n.Expr = converted
		return nil
	case *ExpressionStatement:
		e, err := tc.checkExpr(n.Expr)
		if err != nil {
			return err
		}
		n.Expr = e
		return nil
	case *Null:
		return nil
	case *Block:
		return tc.checkBlock(n)
	case *If:
		if err := tc.checkCondExpr(&n.Cond); err != nil {
			return err
		}
		if err := tc.checkStmt(n.Then); err != nil {
			return err
		}
		if n.Else != nil {
			return tc.checkStmt(n.Else)
		}
		return nil
	case *While:
		if err := tc.checkCondExpr(&n.Cond); err != nil {
			return err
		}
		return tc.checkStmt(n.Body)
	case *DoWhile:
		if err := tc.checkStmt(n.Body); err != nil {
			return err
		}
		return tc.checkCondExpr(&n.Cond)
	case *For:
		if n.Init != nil {
			switch init := n.Init.(type) {
			case DeclItem:
				if err := tc.checkBlockDecl(init.Decl); err != nil {
					return err
				}
			case StmtItem:
				if err := tc.checkStmt(init.Stmt); err != nil {
					return err
				}
			}
		}
		if n.Cond != nil {
			if err := tc.checkCondExpr(&n.Cond); err != nil {
				return err
			}
		}
		if n.Update != nil {
			e, err := tc.checkExpr(n.Update)
			if err != nil {
				return err
			}
			n.Update = e
		}
		return tc.checkStmt(n.Body)
	case *Break, *Continue, *Goto:
		return nil
	case *Labeled:
		return tc.checkStmt(n.Inner)
	case *Switch:
		e, err := tc.checkExpr(n.Cond)
		if err != nil {
			return err
		}
		if !e.exprType().IsInteger() {
			return typeError("switch condition must have integer type, got %s", e.exprType())
		}
		n.Cond = e
		n.Type = *e.exprType()
		seen := make(map[uint64]bool, len(n.Cases))
		for _, c := range n.Cases {
			ce, err := tc.checkExpr(c.Cond)
			if err != nil {
				return err
			}
			constVal, ok := ce.(*Constant)
			if !ok {
				return typeError("case label does not reduce to an integer constant")
			}
			if seen[constVal.Value.Int] {
				return typeError("duplicate case value %d in switch", constVal.Value.Int)
			}
			seen[constVal.Value.Int] = true
			c.Cond = ce
		}
		return tc.checkStmt(n.Body)
	case *Case:
		return tc.checkStmt(n.Body)
	case *Default:
		return tc.checkStmt(n.Body)
	}
	return nil
}

func (tc *typeChecker) checkCondExpr(e *Expr) error {
	checked, err := tc.checkExpr(*e)
	if err != nil {
		return err
	}
	*e = checked
	return nil
}

//  Expression checking

func (tc *typeChecker) checkExpr(e Expr) (Expr, error) {
	switch n := e.(type) {
	case *Constant:
		n.setType(n.Value.Type())
		return n, nil
	case *Variable:
		ty, attrs, ok := tc.syms.Lookup(n.Name)
		if !ok {
			return nil, typeError("use of undeclared identifier %q", n.Name)
		}
		if _, isFunc := attrs.(FuncAttrs); isFunc {
			return nil, typeError("%q is a function, not a variable", n.Name)
		}
		n.setType(ty)
		return n, nil
	case *Cast:
		inner, err := tc.checkExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		n.Inner = inner
		n.setType(n.Target)
		return n, nil
	case *Unary:
		return tc.checkUnary(n)
	case *Postfix:
		inner, err := tc.checkExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		n.Inner = inner
		n.setType(*inner.exprType())
		return n, nil
	case *Binary:
		return tc.checkBinary(n)
	case *Logical:
		lhs, err := tc.checkExpr(n.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := tc.checkExpr(n.RHS)
		if err != nil {
			return nil, err
		}
		n.LHS, n.RHS = lhs, rhs
		n.setType(Int())
		return n, nil
	case *Assignment:
		lhs, err := tc.checkExpr(n.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := tc.checkExpr(n.RHS)
		if err != nil {
			return nil, err
		}
		converted, err := convertForAssignment(*lhs.exprType(), rhs)
		if err != nil {
			return nil, err
		}
		n.LHS, n.RHS = lhs, converted
		n.setType(*lhs.exprType())
		return n, nil
	case *CompoundAssignment:
		lhs, err := tc.checkExpr(n.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := tc.checkExpr(n.RHS)
		if err != nil {
			return nil, err
		}
		common := commonType(*lhs.exprType(), *rhs.exprType())
		n.LHS, n.RHS = lhs, rhs
		n.InnerType = common
		n.ResultType = *lhs.exprType()
		n.setType(n.ResultType)
		return n, nil
	case *Conditional:
		cond, err := tc.checkExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		t, err := tc.checkExpr(n.True)
		if err != nil {
			return nil, err
		}
		f, err := tc.checkExpr(n.False)
		if err != nil {
			return nil, err
		}
		n.Cond = cond
		result := *t.exprType()
		if t.exprType().IsArithmetic() && f.exprType().IsArithmetic() {
			result = commonType(*t.exprType(), *f.exprType())
			n.True = convertTo(result, t)
			n.False = convertTo(result, f)
		} else {
			n.True, n.False = t, f
		}
		n.setType(result)
		return n, nil
	case *Call:
		ty, attrs, ok := tc.syms.Lookup(n.Name)
		if !ok {
			return nil, typeError("call to undeclared function %q", n.Name)
		}
		if _, isFunc := attrs.(FuncAttrs); !isFunc {
			return nil, typeError("%q is not a function", n.Name)
		}
		if len(n.Args) != len(ty.Params) {
			return nil, typeError("function %q expects %d arguments, got %d", n.Name, len(ty.Params), len(n.Args))
		}
		for i, a := range n.Args {
			checked, err := tc.checkExpr(a)
			if err != nil {
				return nil, err
			}
			converted, err := convertForAssignment(ty.Params[i], checked)
			if err != nil {
				return nil, err
			}
			n.Args[i] = converted
		}
		n.setType(*ty.Ret)
		return n, nil
	case *Dereference:
		inner, err := tc.checkExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		if !inner.exprType().IsPointer() {
			return nil, typeError("cannot dereference non-pointer type %s", inner.exprType())
		}
		n.Inner = inner
		n.setType(*inner.exprType().Elem)
		return n, nil
	case *AddressOf:
		inner, err := tc.checkExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		n.Inner = inner
		n.setType(PointerTo(*inner.exprType()))
		return n, nil
	case *Subscript:
		ptr, err := tc.checkExpr(n.Ptr)
		if err != nil {
			return nil, err
		}
		idx, err := tc.checkExpr(n.Index)
		if err != nil {
			return nil, err
		}
		decayed := decayArray(ptr)
		if !decayed.exprType().IsPointer() {
			return nil, typeError("subscript target is not a pointer or array")
		}
		n.Ptr, n.Index = decayed, idx
		n.setType(*decayed.exprType().Elem)
		return n, nil
	}
	return e, nil
}

func (tc *typeChecker) checkUnary(n *Unary) (Expr, error) {
	inner, err := tc.checkExpr(n.Inner)
	if err != nil {
		return nil, err
	}
	n.Inner = inner
	switch n.Op {
	case NOT:
		n.setType(Int())
	case TILDE:
		if !inner.exprType().IsInteger() {
			return nil, typeError("operand of '~' must have integer type, got %s", inner.exprType())
		}
		n.setType(*inner.exprType())
	default:
		n.setType(*inner.exprType())
	}
	return n, nil
}

func (tc *typeChecker) checkBinary(n *Binary) (Expr, error) {
	lhs, err := tc.checkExpr(n.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := tc.checkExpr(n.RHS)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case EQUALS, NOT_EQ, LESS, LESS_EQ, GREATER, GREATER_EQ:
		common := commonType(*lhs.exprType(), *rhs.exprType())
		n.LHS = convertTo(common, lhs)
		n.RHS = convertTo(common, rhs)
		n.setType(Int())
	case SHL, SHR:
		// Shift amount does not participate in the usual conversions; the
		// result type follows the left operand alone, but the count is
		// always promoted to int regardless of its own type.
		if !lhs.exprType().IsInteger() {
			return nil, typeError("operand of shift must have integer type, got %s", lhs.exprType())
		}
		if !rhs.exprType().IsInteger() {
			return nil, typeError("shift count must have integer type, got %s", rhs.exprType())
		}
		n.LHS = lhs
		n.RHS = convertTo(Int(), rhs)
		n.setType(*lhs.exprType())
	case PERCENT, AMP, PIPE, CARET:
		if !lhs.exprType().IsInteger() || !rhs.exprType().IsInteger() {
			return nil, typeError("operands of %s must have integer type", n.Op)
		}
		common := commonType(*lhs.exprType(), *rhs.exprType())
		n.LHS = convertTo(common, lhs)
		n.RHS = convertTo(common, rhs)
		n.setType(common)
	default:
		common := commonType(*lhs.exprType(), *rhs.exprType())
		n.LHS = convertTo(common, lhs)
		n.RHS = convertTo(common, rhs)
		n.setType(common)
	}
	return n, nil
}

//  Conversions

// convertTo wraps e in a Cast to target unless it is already that type.
func convertTo(target Type, e Expr) Expr {
	if e.exprType() != nil && e.exprType().Equal(target) {
		return e
	}
	c := &Cast{Target: target, Inner: e}
	c.setType(target)
	return c
}

// decayArray converts an array-typed expression into a pointer-to-element
// expression (array-to-pointer decay), leaving every other expression
// unchanged.
func decayArray(e Expr) Expr {
	if e.exprType() == nil || !e.exprType().IsArray() {
		return e
	}
	return convertTo(PointerTo(*e.exprType().Elem), e)
}

// convertForAssignment applies array decay then inserts an implicit Cast
// if rhs's type differs from want, rejecting conversions C17 forbids
// (arithmetic <-> pointer without an explicit cast, except the null
// pointer constant 0).
func convertForAssignment(want Type, rhs Expr) (Expr, error) {
	rhs = decayArray(rhs)
	rt := *rhs.exprType()
	if rt.Equal(want) {
		return rhs, nil
	}
	if want.IsArithmetic() && rt.IsArithmetic() {
		return convertTo(want, rhs), nil
	}
	if want.IsPointer() && rt.IsInteger() {
		if c, ok := rhs.(*Constant); ok && c.Value.IsZero() {
			return convertTo(want, rhs), nil
		}
		return nil, typeError("cannot implicitly convert %s to %s", rt, want)
	}
	if want.IsPointer() && rt.IsPointer() {
		return nil, typeError("cannot implicitly convert %s to incompatible pointer type %s", rt, want)
	}
	return nil, typeError("cannot convert %s to %s", rt, want)
}
