package binquery

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	// Query compilation errors
	ErrInvalidQualifier = errors.New("invalid qualifier")
	ErrIDUnderOr        = errors.New("id qualifiers cannot appear under OR")
	ErrScansDisabled    = errors.New("full scans are disabled by default")

	// Context path errors
	ErrInvalidContext = errors.New("invalid context path")

	// Index errors
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")

	// Store errors
	ErrRecordNotFound   = errors.New("record not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnsupportedQuery = errors.New("store cannot serve this filter")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorWithContext adds additional context to errors for better debugging and logging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// ContextSyntaxError reports a malformed context path annotation.
// Input is the full annotation string; Offending names the substring
// that failed, and Pos is its byte offset within Input.
type ContextSyntaxError struct {
	Input     string
	Offending string
	Pos       int
	Reason    string
}

func (e *ContextSyntaxError) Error() string {
	return fmt.Sprintf("invalid context path %q: %s at position %d (offending %q)",
		e.Input, e.Reason, e.Pos, e.Offending)
}

func (e *ContextSyntaxError) Unwrap() error {
	return ErrInvalidContext
}

// ArityError reports a qualifier built with the wrong number of operand
// values for its operation. The message wording is stable: callers and
// tests match on it, so it is part of the contract.
type ArityError struct {
	Field     string // "Person.strings" or bare bin name
	Operation string // "EQ", "BETWEEN", ...
	Expected  string // "one", "two", "none", "a collection"
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s %s: invalid number of arguments, expecting %s",
		e.Field, e.Operation, e.Expected)
}

func (e *ArityError) Unwrap() error {
	return ErrInvalidQualifier
}

// Common error checking helpers

// IsScansDisabled checks if an error came from the scan guard
func IsScansDisabled(err error) bool {
	return errors.Is(err, ErrScansDisabled)
}

// IsIndexExists checks if an error is an "index already exists" error
func IsIndexExists(err error) bool {
	return errors.Is(err, ErrIndexExists)
}

// IsIndexNotFound checks if an error is an "index not found" error
func IsIndexNotFound(err error) bool {
	return errors.Is(err, ErrIndexNotFound)
}

// IsNotFound checks if an error is a "record not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsInvalidContext checks if an error is a context path syntax error
func IsInvalidContext(err error) bool {
	return errors.Is(err, ErrInvalidContext)
}
