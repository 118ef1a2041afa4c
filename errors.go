package minicron

import (
	"errors"
	"fmt"
)

// Grammar failure reasons carried by GrammarError.
var (
	ErrIllegalChar   = errors.New("illegal character")
	ErrDanglingRange = errors.New("range is missing its end")
	ErrMissingStep   = errors.New("'/' should be followed by a number")
	ErrNumberTooLong = errors.New("number is too long")
	ErrBadRange      = errors.New("range start is after its end")
	ErrTrailingText  = errors.New("unexpected text after step")
	ErrEmptyField    = errors.New("empty field")
)

// ErrOutOfRange is matched by every DomainError.
var ErrOutOfRange = errors.New("value out of range")

// Line splitting failures.
var (
	ErrTooFewFields   = errors.New("schedule line needs 5 time fields and a command")
	ErrFieldTooLong   = errors.New("time field is too long")
	ErrEmptyCommand   = errors.New("empty command")
	ErrCommandTooLong = errors.New("command is too long")
)

// Tokenizer failures carried by TokenizeError.
var (
	ErrUnterminatedQuote = errors.New("unterminated quote")
	ErrTooManyArgs       = errors.New("too many arguments")
	ErrArgTooLong        = errors.New("argument is too long")
)

// GrammarError reports a malformed field expression.
type GrammarError struct {
	Text   string
	Pos    int
	Reason error
}

func (e *GrammarError) Error() string {
	if e.Pos < len(e.Text) {
		return fmt.Sprintf("field %q at offset %d (%q): %v", e.Text, e.Pos, e.Text[e.Pos], e.Reason)
	}
	return fmt.Sprintf("field %q at end: %v", e.Text, e.Reason)
}

func (e *GrammarError) Unwrap() error { return e.Reason }

// DomainError reports a syntactically valid value outside its field's calendar bound.
type DomainError struct {
	Field Field
	Value int
	// Step is set when Value is a step rather than a range endpoint.
	Step bool
}

func (e *DomainError) Error() string {
	if e.Step {
		return fmt.Sprintf("bad %s step (%d): must be at most %d", e.Field, e.Value, e.Field.Max())
	}
	return fmt.Sprintf("bad %s (%d): must be within [%d, %d]", e.Field, e.Value, e.Field.Min(), e.Field.Max())
}

func (e *DomainError) Is(target error) bool { return target == ErrOutOfRange }

// FieldError attaches the field being parsed to a compile failure.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *FieldError) Unwrap() error { return e.Err }

// TokenizeError reports a command string that cannot be split into argv.
type TokenizeError struct {
	Command string
	Pos     int
	Reason  error
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("tokenize %q at offset %d: %v", e.Command, e.Pos, e.Reason)
}

func (e *TokenizeError) Unwrap() error { return e.Reason }

// ProcessError reports a failure to start or wait for a child process.
type ProcessError struct {
	Op      string
	Command string
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Command, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }
