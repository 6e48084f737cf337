package formula

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is the sentinel wrapped by every *SyntaxError.
	ErrSyntax = errors.New("formula: syntax error")
	// ErrFormula is the sentinel wrapped by every *Error.
	ErrFormula = errors.New("formula: evaluation error")
)

// SyntaxError reports formula text that cannot be parsed.
type SyntaxError struct {
	Formula string
	Pos     int
	Msg     string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos+1, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Error reports a formula that parsed but could not be evaluated.
type Error struct {
	Formula string
	Msg     string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return ErrFormula }

// IsSyntaxError reports whether err is (or wraps) a syntax error.
func IsSyntaxError(err error) bool { return errors.Is(err, ErrSyntax) }

// IsFormulaError reports whether err is (or wraps) an evaluation error.
func IsFormulaError(err error) bool { return errors.Is(err, ErrFormula) }

func syntaxErrorf(src string, pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Formula: src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func evalErrorf(src string, format string, args ...any) *Error {
	return &Error{Formula: src, Msg: fmt.Sprintf(format, args...)}
}
