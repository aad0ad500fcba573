// Package bidi implements the BiDi-side domain model that sits between
// the client-facing command processor and the CDP connection: browsing
// contexts, realms, targets, subscriptions, event ordering, preload
// scripts and (in the network subpackage) the per-request state machine.
package bidi

import "fmt"

// Code is the BiDi wire error code (§7 of the spec).
type Code string

const (
	CodeInvalidArgument                Code = "invalid argument"
	CodeNoSuchFrame                    Code = "no such frame"
	CodeNoSuchScript                   Code = "no such script"
	CodeNoSuchNode                     Code = "no such node"
	CodeInvalidSessionID               Code = "invalid session id"
	CodeSessionNotCreated              Code = "session not created"
	CodeUnknownCommand                 Code = "unknown command"
	CodeUnsupportedOperation           Code = "unsupported operation"
	CodeUnableToSetCookie              Code = "unable to set cookie"
	CodeUnderspecifiedStoragePartition Code = "underspecified storage partition"
	CodeUnableToCaptureScreen          Code = "unable to capture screen"
	CodeUnknown                        Code = "unknown error"
)

// Error is a structured BiDi error: a wire code plus a human-readable
// message. It is returned by every layer below the command processor
// instead of an ad hoc Go error, so the processor never has to guess a
// code from string matching.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a *Error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) *Error {
	return NewError(CodeInvalidArgument, format, args...)
}

func NoSuchFrame(format string, args ...any) *Error {
	return NewError(CodeNoSuchFrame, format, args...)
}

func NoSuchScript(format string, args ...any) *Error {
	return NewError(CodeNoSuchScript, format, args...)
}

func NoSuchNode(format string, args ...any) *Error {
	return NewError(CodeNoSuchNode, format, args...)
}

func InvalidSessionID(format string, args ...any) *Error {
	return NewError(CodeInvalidSessionID, format, args...)
}

func SessionNotCreated(format string, args ...any) *Error {
	return NewError(CodeSessionNotCreated, format, args...)
}

func UnknownCommand(format string, args ...any) *Error {
	return NewError(CodeUnknownCommand, format, args...)
}

func UnsupportedOperation(format string, args ...any) *Error {
	return NewError(CodeUnsupportedOperation, format, args...)
}

func UnableToSetCookie(format string, args ...any) *Error {
	return NewError(CodeUnableToSetCookie, format, args...)
}

func UnderspecifiedStoragePartition(format string, args ...any) *Error {
	return NewError(CodeUnderspecifiedStoragePartition, format, args...)
}

func UnableToCaptureScreen(format string, args ...any) *Error {
	return NewError(CodeUnableToCaptureScreen, format, args...)
}

func Unknown(format string, args ...any) *Error {
	return NewError(CodeUnknown, format, args...)
}

// AsError unwraps err into a *Error, wrapping any other error kind as
// CodeUnknown so callers always have a wire-shaped error to report.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if be, ok := err.(*Error); ok {
		return be
	}
	return Unknown(err.Error())
}
