package compiler

import (
	"github.com/samber/lo"
)

// identScope is one lexical block's name -> resolved-name map, plus which
// names were declared directly in this block (as opposed to inherited from
// an enclosing scope) so a redeclaration in the same block can be rejected
// while shadowing an outer declaration is allowed.
type identScope struct {
	resolved map[string]string
	local    map[string]bool
}

func newIdentScope() *identScope {
	return &identScope{resolved: map[string]string{}, local: map[string]bool{}}
}

// resolver performs identifier resolution (alpha-renaming of locals so the
// TAC builder never has to reason about shadowing), loop/switch labeling
// for break/continue, and goto/label validation.
type resolver struct {
	ctx          *Context
	scopes       []*identScope
	loopLabels   []string // innermost last; continue targets
	breakTargets []string // innermost last; break targets (loops and switches)
	fnLabels     map[string]bool
	fnGotos      []*Goto
	topLevel     map[string]bool
}

// ResolveProgram alpha-renames identifiers, validates label/goto usage, and
// resolves break/continue/case targets. It mutates the tree in place.
func ResolveProgram(prog *Program, ctx *Context) error {
	r := &resolver{ctx: ctx, topLevel: map[string]bool{}}
	for _, d := range prog.Declarations {
		if err := r.resolveTopLevelDecl(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) pushScope() { r.scopes = append(r.scopes, newIdentScope()) }
func (r *resolver) popScope()  { r.scopes = r.scopes[:len(r.scopes)-1] }

func (r *resolver) declareLocal(name string) (string, error) {
	top := r.scopes[len(r.scopes)-1]
	if top.local[name] {
		return "", semanticError("duplicate declaration of %q in the same scope", name)
	}
	unique := r.ctx.FreshVar(name)
	top.resolved[name] = unique
	top.local[name] = true
	return unique, nil
}

func (r *resolver) lookup(name string) (string, bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if v, ok := r.scopes[i].resolved[name]; ok {
			return v, true
		}
	}
	if r.topLevel[name] {
		return name, true
	}
	return "", false
}

func (r *resolver) resolveTopLevelDecl(d Decl) error {
	switch n := d.(type) {
	case *VariableDeclaration:
		r.topLevel[n.Name] = true
		if n.Init != nil {
			if err := r.resolveInitializer(n.Init); err != nil {
				return err
			}
		}
	case *FunctionDeclaration:
		r.topLevel[n.Name] = true
		if n.Body != nil {
			return r.resolveFunctionBody(n)
		}
	}
	return nil
}

func (r *resolver) resolveFunctionBody(fn *FunctionDeclaration) error {
	r.pushScope()
	defer r.popScope()

	renamedParams := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		unique, err := r.declareLocal(p)
		if err != nil {
			return err
		}
		renamedParams[i] = unique
	}
	fn.Params = renamedParams

	r.fnLabels = map[string]bool{}
	r.fnGotos = nil
	if err := r.resolveBlock(fn.Body); err != nil {
		return err
	}
	known := lo.Keys(r.fnLabels)
	for _, g := range r.fnGotos {
		if !lo.Contains(known, g.Label) {
			return semanticError("goto references undefined label %q (defined labels: %v)", g.Label, known)
		}
	}
	return nil
}

func (r *resolver) resolveBlock(b *Block) error {
	r.pushScope()
	defer r.popScope()
	for _, item := range b.Items {
		switch it := item.(type) {
		case DeclItem:
			if err := r.resolveBlockDecl(it.Decl); err != nil {
				return err
			}
		case StmtItem:
			if err := r.resolveStmt(it.Stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *resolver) resolveBlockDecl(d Decl) error {
	switch n := d.(type) {
	case *VariableDeclaration:
		if n.Storage == StorageExtern || n.Storage == StorageStatic {
			// File-linkage / static-duration locals keep their declared name
			// and are not alpha-renamed.
			r.scopes[len(r.scopes)-1].local[n.Name] = true
			r.scopes[len(r.scopes)-1].resolved[n.Name] = n.Name
			if n.Init != nil {
				return r.resolveInitializer(n.Init)
			}
			return nil
		}
		if n.Init != nil {
			if err := r.resolveInitializer(n.Init); err != nil {
				return err
			}
		}
		unique, err := r.declareLocal(n.Name)
		if err != nil {
			return err
		}
		n.Name = unique
		return nil
	case *FunctionDeclaration:
		if n.Body != nil {
			return semanticError("nested function definitions are not allowed: %q", n.Name)
		}
		r.topLevel[n.Name] = true
		return nil
	}
	return nil
}

func (r *resolver) resolveStmt(s Stmt) error {
	switch n := s.(type) {
	case *Return:
		if n.Expr != nil {
			return r.resolveExpr(n.Expr)
		}
	case *ExpressionStatement:
		return r.resolveExpr(n.Expr)
	case *Null:
	case *Block:
		return r.resolveBlock(n)
	case *If:
		if err := r.resolveExpr(n.Cond); err != nil {
			return err
		}
		if err := r.resolveStmt(n.Then); err != nil {
			return err
		}
		if n.Else != nil {
			return r.resolveStmt(n.Else)
		}
	case *While:
		if err := r.resolveExpr(n.Cond); err != nil {
			return err
		}
		n.Label = r.ctx.FreshLabel("while")
		r.pushLoop(n.Label)
		err := r.resolveStmt(n.Body)
		r.popLoop()
		return err
	case *DoWhile:
		n.Label = r.ctx.FreshLabel("dowhile")
		r.pushLoop(n.Label)
		err := r.resolveStmt(n.Body)
		r.popLoop()
		if err != nil {
			return err
		}
		return r.resolveExpr(n.Cond)
	case *For:
		r.pushScope()
		defer r.popScope()
		if n.Init != nil {
			switch init := n.Init.(type) {
			case DeclItem:
				if err := r.resolveBlockDecl(init.Decl); err != nil {
					return err
				}
			case StmtItem:
				if err := r.resolveStmt(init.Stmt); err != nil {
					return err
				}
			}
		}
		if n.Cond != nil {
			if err := r.resolveExpr(n.Cond); err != nil {
				return err
			}
		}
		if n.Update != nil {
			if err := r.resolveExpr(n.Update); err != nil {
				return err
			}
		}
		n.Label = r.ctx.FreshLabel("for")
		r.pushLoop(n.Label)
		err := r.resolveStmt(n.Body)
		r.popLoop()
		return err
	case *Break:
		if len(r.breakTargets) == 0 {
			return semanticError("break statement outside a loop or switch")
		}
		n.Label = r.breakTargets[len(r.breakTargets)-1]
	case *Continue:
		if len(r.loopLabels) == 0 {
			return semanticError("continue statement outside a loop")
		}
		n.Label = r.loopLabels[len(r.loopLabels)-1]
	case *Goto:
		r.fnGotos = append(r.fnGotos, n)
	case *Labeled:
		if r.fnLabels[n.Label] {
			return semanticError("duplicate label %q", n.Label)
		}
		r.fnLabels[n.Label] = true
		return r.resolveStmt(n.Inner)
	case *Switch:
		if err := r.resolveExpr(n.Cond); err != nil {
			return err
		}
		n.Label = r.ctx.FreshLabel("switch")
		if err := collectSwitchCases(n, n.Body); err != nil {
			return err
		}
		for _, c := range n.Cases {
			c.Label = r.ctx.FreshLabel("case")
			if err := r.resolveExpr(c.Cond); err != nil {
				return err
			}
		}
		if n.Default != nil {
			n.Default.Label = r.ctx.FreshLabel("default")
		}
		r.breakTargets = append(r.breakTargets, n.Label)
		err := r.resolveStmt(n.Body)
		r.breakTargets = r.breakTargets[:len(r.breakTargets)-1]
		return err
	case *Case:
		return r.resolveStmt(n.Body)
	case *Default:
		return r.resolveStmt(n.Body)
	}
	return nil
}

func (r *resolver) pushLoop(label string) {
	r.loopLabels = append(r.loopLabels, label)
	r.breakTargets = append(r.breakTargets, label)
}

func (r *resolver) popLoop() {
	r.loopLabels = r.loopLabels[:len(r.loopLabels)-1]
	r.breakTargets = r.breakTargets[:len(r.breakTargets)-1]
}

// collectSwitchCases walks body (without descending into nested switches)
// collecting Case/Default nodes in source order.
func collectSwitchCases(sw *Switch, s Stmt) error {
	switch n := s.(type) {
	case *Case:
		sw.Cases = append(sw.Cases, n)
		return collectSwitchCases(sw, n.Body)
	case *Default:
		if sw.Default != nil {
			return semanticError("multiple default labels in one switch")
		}
		sw.Default = n
		return collectSwitchCases(sw, n.Body)
	case *While:
		return collectSwitchCases(sw, n.Body)
	case *DoWhile:
		return collectSwitchCases(sw, n.Body)
	case *For:
		return collectSwitchCases(sw, n.Body)
	case *Block:
		for _, item := range n.Items {
			if si, ok := item.(StmtItem); ok {
				if err := collectSwitchCases(sw, si.Stmt); err != nil {
					return err
				}
			}
		}
		return nil
	case *If:
		if err := collectSwitchCases(sw, n.Then); err != nil {
			return err
		}
		if n.Else != nil {
			return collectSwitchCases(sw, n.Else)
		}
		return nil
	case *Labeled:
		return collectSwitchCases(sw, n.Inner)
	case *Switch:
		return nil // nested switch owns its own cases
	}
	return nil
}

func (r *resolver) resolveInitializer(init Initializer) error {
	switch n := init.(type) {
	case *SingleInit:
		return r.resolveExpr(n.Expr)
	case *CompoundInit:
		for _, e := range n.Elements {
			if err := r.resolveInitializer(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *resolver) resolveExpr(e Expr) error {
	switch n := e.(type) {
	case *Constant:
		return nil
	case *Variable:
		resolved, ok := r.lookup(n.Name)
		if !ok {
			return semanticError("use of undeclared identifier %q", n.Name)
		}
		n.Name = resolved
		return nil
	case *Cast:
		return r.resolveExpr(n.Inner)
	case *Unary:
		if n.Op == PLUS_PLUS || n.Op == MINUS_MINUS {
			return r.checkLvalue(n.Inner, "increment/decrement operand")
		}
		return r.resolveExpr(n.Inner)
	case *Postfix:
		return r.checkLvalue(n.Inner, "increment/decrement operand")
	case *Binary:
		if err := r.resolveExpr(n.LHS); err != nil {
			return err
		}
		return r.resolveExpr(n.RHS)
	case *Logical:
		if err := r.resolveExpr(n.LHS); err != nil {
			return err
		}
		return r.resolveExpr(n.RHS)
	case *Assignment:
		if err := r.checkLvalue(n.LHS, "assignment target"); err != nil {
			return err
		}
		return r.resolveExpr(n.RHS)
	case *CompoundAssignment:
		if err := r.checkLvalue(n.LHS, "assignment target"); err != nil {
			return err
		}
		return r.resolveExpr(n.RHS)
	case *Conditional:
		if err := r.resolveExpr(n.Cond); err != nil {
			return err
		}
		if err := r.resolveExpr(n.True); err != nil {
			return err
		}
		return r.resolveExpr(n.False)
	case *Call:
		resolved, ok := r.lookup(n.Name)
		if !ok {
			return semanticError("call to undeclared function %q", n.Name)
		}
		n.Name = resolved
		for _, a := range n.Args {
			if err := r.resolveExpr(a); err != nil {
				return err
			}
		}
		return nil
	case *Dereference:
		return r.resolveExpr(n.Inner)
	case *AddressOf:
		return r.checkLvalue(n.Inner, "address-of operand")
	case *Subscript:
		if err := r.resolveExpr(n.Ptr); err != nil {
			return err
		}
		return r.resolveExpr(n.Index)
	}
	return nil
}

func (r *resolver) checkLvalue(e Expr, what string) error {
	switch e.(type) {
	case *Variable, *Dereference, *Subscript:
		return r.resolveExpr(e)
	default:
		return semanticError("invalid %s: expression is not an lvalue", what)
	}
}
