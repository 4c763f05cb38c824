package patent

import (
	"errors"
	"fmt"
)

var (
	ErrType       = errors.New("unsupported input type")
	ErrValidation = errors.New("invalid patent number")
	ErrFormat     = errors.New("invalid document reference")
	ErrContent    = errors.New("missing mandatory content")
)

// TypeError reports an input that is neither text nor an already parsed identifier.
type TypeError struct {
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("expected a string or PatentNumber, got %T", e.Value)
}

func (e *TypeError) Unwrap() error { return ErrType }

// ValidationError reports text that does not match the patent number grammar.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%q does not match the patent number grammar: %s", e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FormatError reports a reference path that is not of the form /patent/<number>/<lang>.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed reference path %q: %s", e.Input, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// ContentError reports a markup anchor that must be present but is not, or
// mandatory content that cannot be interpreted. It aborts the whole parse.
type ContentError struct {
	Anchor string
	Err    error
}

func (e *ContentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("content error at %s: %v", e.Anchor, e.Err)
	}
	return fmt.Sprintf("content error: %s not found", e.Anchor)
}

func (e *ContentError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrContent, e.Err}
	}
	return []error{ErrContent}
}

// Missing is shorthand for a ContentError on an absent anchor.
func Missing(anchor string) error {
	return &ContentError{Anchor: anchor}
}
