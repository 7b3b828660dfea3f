package er

import (
	"errors"
)

// ErrorType groups the error codes of one package.
//
//	var Err = er.NewErrorType("walletmodel")
//	var ErrMissingField = Err.CodeWithDetail("ErrMissingField", "...")
type ErrorType struct {
	Ident string
	Codes []*ErrorCode
}

// ErrorCode is one specific, matchable, kind of error.
type ErrorCode struct {
	Header string
	Detail string
	Type   *ErrorType
}

// GenericErrorType is for codes which do not belong to any particular package.
var GenericErrorType = NewErrorType("er.GenericErrorType")

// NewErrorType creates a new error type, ident should be the package name.
func NewErrorType(ident string) ErrorType {
	return ErrorType{Ident: ident}
}

// Code creates a new error code with no detail message.
func (t *ErrorType) Code(header string) *ErrorCode {
	return t.CodeWithDetail(header, "")
}

// CodeWithDetail creates a new error code with a default detail message.
func (t *ErrorType) CodeWithDetail(header string, detail string) *ErrorCode {
	c := &ErrorCode{
		Header: header,
		Detail: detail,
		Type:   t,
	}
	t.Codes = append(t.Codes, c)
	return c
}

// Is reports whether the error, or anything it wraps, has a code of this type.
func (t *ErrorType) Is(e R) bool {
	if e == nil {
		return false
	}
	for _, c := range e.codes() {
		if c.Type == t {
			return true
		}
	}
	return false
}

// New creates an error with this code. info is appended to the detail
// message in brackets, cause (which may be nil) is wrapped.
func (c *ErrorCode) New(info string, cause R) R {
	msg := c.Detail
	if msg == "" {
		msg = c.Header
	}
	if info != "" {
		msg += " [" + info + "]"
	}
	out := wrap(errors.New(msg), 1)
	out.inf = info
	out.codeList = []*ErrorCode{c}
	if cause != nil {
		out.err.Err = causeErr{msg: msg, cause: cause}
		out.codeList = append(out.codeList, cause.codes()...)
	}
	return out
}

// Default creates an error with this code and no additional info.
func (c *ErrorCode) Default() R {
	return c.New("", nil)
}

// Is reports whether e, or anything it wraps, carries this code.
func (c *ErrorCode) Is(e R) bool {
	if e == nil {
		return false
	}
	for _, cc := range e.codes() {
		if cc == c {
			return true
		}
	}
	return false
}

// Info returns the info string which e was created with, if e carries
// this code at its top level.
func (c *ErrorCode) Info(e R) (string, bool) {
	if e == nil || len(e.codes()) == 0 || e.codes()[0] != c {
		return "", false
	}
	return e.info(), true
}

type causeErr struct {
	msg   string
	cause R
}

func (ce causeErr) Error() string {
	return ce.msg + ": " + ce.cause.Message()
}

func (ce causeErr) Unwrap() error {
	return ce.cause.Native()
}
