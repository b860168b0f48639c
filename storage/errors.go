package storage

import (
	"errors"
	"fmt"
)

// Code enumerates the SD storage engine's error taxonomy.
type Code string

const (
	CodeSdBusError         Code = "sd bus error"
	CodeGenericSdError     Code = "generic sd error"
	CodeParseIDFailure     Code = "parse id failure"
	CodeWriteIDFailure     Code = "write id failure"
	CodeWriteError         Code = "write error"
	CodeReadPackageError   Code = "read package error"
	CodeSerializationError Code = "serialization error"
	CodeDiskFull           Code = "disk full"
	CodeUninitialized      Code = "uninitialized"
	CodeFileNotFound       Code = "file not found"
)

// Error is the structured storage error, carrying the failing
// operation and its taxonomy code.
type Error struct {
	Op    string
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("storage: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("storage: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

func newErr(op string, code Code, msg string, inner error) *Error {
	return &Error{Op: op, Code: code, Msg: msg, Inner: inner}
}

// ErrFileNotFound is a sentinel usable with errors.Is for the common
// "collection file missing" case (storagemgr's replay path skips past
// these rather than treating them as fatal).
var ErrFileNotFound = &Error{Code: CodeFileNotFound, Msg: "collection file not found"}
