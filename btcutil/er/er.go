// Package er is the error type used across pldwallet.
//
// An er.R is not an error, native errors must be converted explicitly with
// er.E and converted back with er.Native. This keeps every error that crosses
// a package boundary carrying a stack trace and, optionally, an ErrorCode
// which callers can match with code.Is(err).
package er

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/go-errors/errors"
)

// R is a stack-carrying error.
type R interface {
	// Message is the human readable error message, including any context
	// which was added with AddMessage.
	Message() string

	// Stack is the call stack where the error was first created or wrapped.
	Stack() []string

	// Native returns a Go error wrapping this R.
	Native() error

	// AddMessage prepends context to the message.
	AddMessage(m string)

	String() string

	codes() []*ErrorCode
	info() string
	cause() error
}

type typedErr struct {
	messages []string
	err      *goerrors.Error
	codeList []*ErrorCode
	inf      string
}

var _ R = (*typedErr)(nil)

func (e *typedErr) Message() string {
	if len(e.messages) == 0 {
		return e.err.Error()
	}
	return strings.Join(e.messages, ": ") + ": " + e.err.Error()
}

func (e *typedErr) Stack() []string {
	frames := e.err.StackFrames()
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, fmt.Sprintf("%s:%d %s.%s", f.File, f.LineNumber, f.Package, f.Name))
	}
	return out
}

func (e *typedErr) Native() error {
	return nativeErr{r: e}
}

func (e *typedErr) AddMessage(m string) {
	e.messages = append([]string{m}, e.messages...)
}

func (e *typedErr) String() string {
	return e.Message()
}

func (e *typedErr) codes() []*ErrorCode {
	return e.codeList
}

func (e *typedErr) info() string {
	return e.inf
}

func (e *typedErr) cause() error {
	return e.err.Err
}

type nativeErr struct {
	r R
}

func (n nativeErr) Error() string {
	return n.r.Message()
}

func (n nativeErr) Unwrap() error {
	return n.r.cause()
}

func wrap(e error, skip int) *typedErr {
	return &typedErr{err: goerrors.Wrap(e, skip+1)}
}

// New creates an error with a stack trace.
func New(s string) R {
	return wrap(errors.New(s), 1)
}

// Errorf creates a formatted error with a stack trace.
func Errorf(format string, a ...interface{}) R {
	return wrap(fmt.Errorf(format, a...), 1)
}

// E converts a native error to an R, nil stays nil.
// An error which was produced by Native is unwrapped back to the original R.
func E(e error) R {
	if e == nil {
		return nil
	}
	if n, ok := e.(nativeErr); ok {
		return n.r
	}
	return wrap(e, 1)
}

// E1 is E for the common (value, error) return pair.
func E1[T any](t T, e error) (T, R) {
	if e == nil {
		return t, nil
	}
	return t, wrap(e, 1)
}

// Native converts an R into a native error, nil stays nil.
func Native(e R) error {
	if e == nil {
		return nil
	}
	return e.Native()
}

// Cis reports whether the native cause of e matches target using errors.Is.
func Cis(target error, e R) bool {
	if e == nil {
		return false
	}
	return errors.Is(e.Native(), target)
}
