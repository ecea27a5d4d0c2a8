package compiler

import (
	"fmt"
	"strings"
)

// Error is a single compile-time diagnostic: a lexer or parser error
// pinned to the line it was reported at.
type Error struct {
	Line    int
	Where   string
	Message string
}

func (e *Error) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("[line %d] Error%s: %s", e.Line, e.Where, e.Message)
	}
	return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
}

// CompileError aggregates every diagnostic recorded during one Compile
// call. Compile returns success only when none were ever recorded, so a
// non-nil CompileError always carries at least one Error.
type CompileError struct {
	Errors []*Error
}

func (e *CompileError) Error() string {
	lines := make([]string, len(e.Errors))
	for i, d := range e.Errors {
		lines[i] = d.Error()
	}
	return strings.Join(lines, "\n")
}
