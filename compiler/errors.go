package compiler

import (
	"errors"
	"fmt"
)

// ErrUnsupported marks constructs the compiler recognizes but cannot
// lower: globals and upvalues, calls, varargs, closures, tables, indexing,
// comparisons and logical operators.
var ErrUnsupported = errors.New("unsupported construct")

// unsupported returns an ErrUnsupported error naming the construct.
func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// CompileError is a compile failure tagged with the line of the statement
// being compiled.
type CompileError struct {
	Source string
	Line   int
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d: compile error: %v", e.Source, e.Line, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// SyntaxError is a parse failure.
type SyntaxError struct {
	Source string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: syntax error: %s", e.Source, e.Line, e.Column, e.Msg)
}

// ErrorPosition extracts the source line and column from a *SyntaxError or
// *CompileError. Column is 0 when unknown.
func ErrorPosition(err error) (line, column int, ok bool) {
	var se *SyntaxError
	if errors.As(err, &se) {
		return se.Line, se.Column, true
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Line, 0, true
	}
	return 0, 0, false
}
