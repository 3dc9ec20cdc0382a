// Package compiler is a from-scratch ahead-of-time compiler for a curated
// subset of C17. It lowers C source text to GNU-style AT&T x86-64 assembly
// suitable for an external assembler/linker.
//
// Pipeline: Lex -> Parse -> Semantic analysis -> Type check -> TAC build ->
// Code select -> Legalize -> Emit. Each stage consumes the frozen output of
// the previous one; Build is the single entry point that chains them and
// stops at the first error.
package compiler
