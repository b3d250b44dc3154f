package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode identifies a class of expansion failure
type ErrorCode string

const (
	// ErrCodeMissingRequiredProperty indicates a required property has neither
	// an attribute nor a default
	ErrCodeMissingRequiredProperty ErrorCode = "BB100"
	// ErrCodeContextResolution indicates a metadata context could not be
	// registered; it is downgraded to "missing" and never fails an expansion
	ErrCodeContextResolution ErrorCode = "BB200"
	// ErrCodeMalformedFragment indicates generated text that does not parse
	// even after a diagnostic re-render
	ErrCodeMalformedFragment ErrorCode = "BB300"
	// ErrCodeUnexpected indicates anything else raised by macro code
	ErrCodeUnexpected ErrorCode = "BB900"
)

var codeNames = map[ErrorCode]string{
	ErrCodeMissingRequiredProperty: "MissingRequiredProperty",
	ErrCodeContextResolution:       "ContextResolutionFailure",
	ErrCodeMalformedFragment:       "MalformedGeneratedFragment",
	ErrCodeUnexpected:              "UnexpectedExpansionError",
}

// Name returns the taxonomy name of the code
func (c ErrorCode) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "Unknown"
}

// ExpansionError is a failure of one building block expansion
type ExpansionError struct {
	Code    ErrorCode
	Macro   string
	Message string

	cause error
}

// Sentinels for errors.Is; they match any error with the same code
var (
	ErrMissingRequiredProperty = &ExpansionError{Code: ErrCodeMissingRequiredProperty}
	ErrContextResolution       = &ExpansionError{Code: ErrCodeContextResolution}
	ErrMalformedFragment       = &ExpansionError{Code: ErrCodeMalformedFragment}
	ErrUnexpected              = &ExpansionError{Code: ErrCodeUnexpected}
)

func (e *ExpansionError) Error() string {
	if e.Macro == "" {
		return fmt.Sprintf("%s %s: %s", e.Code, e.Code.Name(), e.Message)
	}
	return fmt.Sprintf("%s %s in %s: %s", e.Code, e.Code.Name(), e.Macro, e.Message)
}

func (e *ExpansionError) Unwrap() error {
	return e.cause
}

// Is matches on the error code
func (e *ExpansionError) Is(target error) bool {
	t, ok := target.(*ExpansionError)
	return ok && t.Code == e.Code
}

// Stack returns the recorded stack trace, or ""
func (e *ExpansionError) Stack() string {
	if e.cause == nil {
		return ""
	}
	return fmt.Sprintf("%+v", e.cause)
}

func newError(code ErrorCode, macro, format string, args ...interface{}) *ExpansionError {
	msg := fmt.Sprintf(format, args...)
	return &ExpansionError{
		Code:    code,
		Macro:   macro,
		Message: msg,
		cause:   errors.New(msg),
	}
}

func wrapError(code ErrorCode, macro string, err error) *ExpansionError {
	return &ExpansionError{
		Code:    code,
		Macro:   macro,
		Message: err.Error(),
		cause:   errors.WithStack(err),
	}
}

// NewMissingRequiredProperty creates a BB100 error
func NewMissingRequiredProperty(macro, property string) *ExpansionError {
	return newError(ErrCodeMissingRequiredProperty, macro,
		"property %q is required but was not provided", property)
}

// NewMalformedFragment creates a BB300 error
func NewMalformedFragment(macro string, err error) *ExpansionError {
	e := wrapError(ErrCodeMalformedFragment, macro, err)
	e.Message = "generated fragment is malformed: " + err.Error()
	return e
}

// NewUnexpected creates a BB900 error
func NewUnexpected(macro string, err error) *ExpansionError {
	return wrapError(ErrCodeUnexpected, macro, err)
}

// classify turns any error raised during an expansion into an
// *ExpansionError, keeping an existing code
func classify(macro string, err error) *ExpansionError {
	var ee *ExpansionError
	if errors.As(err, &ee) {
		c := *ee
		if c.Macro == "" {
			c.Macro = macro
		}
		if c.cause == nil {
			c.cause = errors.WithStack(err)
		}
		return &c
	}
	return NewUnexpected(macro, err)
}

// panicError converts a recovered panic value
func panicError(macro string, r interface{}) *ExpansionError {
	if err, ok := r.(error); ok {
		return classify(macro, errors.Wrap(err, "panic"))
	}
	return NewUnexpected(macro, errors.Errorf("panic: %v", r))
}
