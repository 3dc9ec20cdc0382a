package compiler

// Build compiles a single translation unit's source text straight to
// GNU/AT&T assembler text for target, running every pass in order and
// returning the first error a pass reports. There is no recovery between
// stages: a lex error never reaches the parser, a type error never
// reaches TAC construction.
func Build(src string, target Target) (string, error) {
	tokens, err := Lex(src)
	if err != nil {
		return "", err
	}

	prog, err := Parse(tokens)
	if err != nil {
		return "", err
	}

	ctx := NewContext()
	if err := ResolveProgram(prog, ctx); err != nil {
		return "", err
	}

	syms, err := TypeCheck(prog)
	if err != nil {
		return "", err
	}

	tac, err := BuildTAC(prog, syms, ctx)
	if err != nil {
		return "", err
	}

	asmProg, _, err := SelectCode(tac, syms)
	if err != nil {
		return "", err
	}

	asmProg = Legalize(asmProg)

	return EmitAssembly(asmProg, target)
}
