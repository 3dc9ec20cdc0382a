package compiler

import (
	"fmt"

	"github.com/fatih/color"
)

// Stage identifies which pass of the pipeline raised an error, used to
// pick the right taxonomy prefix when formatting diagnostics.
type Stage int

const (
	StageLex Stage = iota
	StageSyntax
	StageSemantic
	StageType
	StageInternal
)

func (s Stage) String() string {
	switch s {
	case StageLex:
		return "lex error"
	case StageSyntax:
		return "syntax error"
	case StageSemantic:
		return "semantic error"
	case StageType:
		return "type error"
	case StageInternal:
		return "internal error"
	default:
		return "error"
	}
}

var stageColor = map[Stage]*color.Color{
	StageLex:      color.New(color.FgRed),
	StageSyntax:   color.New(color.FgRed),
	StageSemantic: color.New(color.FgRed, color.Bold),
	StageType:     color.New(color.FgRed, color.Bold),
	StageInternal: color.New(color.FgMagenta, color.Bold),
}

// CompileError is the single error type every pipeline stage returns.
// Line/Column are 0 when a stage has no source position to attach (e.g. an
// internal invariant violation discovered after lowering to TAC).
type CompileError struct {
	Stage   Stage
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	tag := stageColor[e.Stage].Sprint(e.Stage.String())
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d, col %d: %s", tag, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", tag, e.Message)
}

func lexError(line, col int, format string, args ...any) *CompileError {
	return &CompileError{Stage: StageLex, Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}

func syntaxError(line, col int, format string, args ...any) *CompileError {
	return &CompileError{Stage: StageSyntax, Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}

func semanticError(format string, args ...any) *CompileError {
	return &CompileError{Stage: StageSemantic, Message: fmt.Sprintf(format, args...)}
}

func typeError(format string, args ...any) *CompileError {
	return &CompileError{Stage: StageType, Message: fmt.Sprintf(format, args...)}
}

func internalError(format string, args ...any) *CompileError {
	return &CompileError{Stage: StageInternal, Message: fmt.Sprintf(format, args...)}
}
