// Package xerrors creates and wraps errors with the program counters the
// logger needs to report where an error came from.
//
// New and Newf capture a full stack. Wrap and Wrapf record only the single
// frame that wrapped. EnsureTrace adds a stack to foreign errors that do not
// carry one yet.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

type stacked struct {
	err error
	pcs []uintptr
}

func (e *stacked) Error() string       { return e.err.Error() }
func (e *stacked) Unwrap() error       { return e.err }
func (e *stacked) StackPCs() []uintptr { return e.pcs }

type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (e *wrapped) Error() string { return e.msg + ": " + e.err.Error() }
func (e *wrapped) Unwrap() error { return e.err }
func (e *wrapped) PC() uintptr   { return e.pc }

// skip counts frames above the exported function that called us.
func stack(skip int) []uintptr {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(3+skip, pcs)
	return pcs[:n]
}

func caller() uintptr {
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	return pcs[0]
}

func New(msg string) error { return &stacked{err: errors.New(msg), pcs: stack(0)} }

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stack(0)}
}

// WithStack attaches the caller's stack to err. It returns nil for nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stack(0)}
}

// EnsureTrace is WithStack unless something in err's chain already has a stack.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var s interface{ StackPCs() []uintptr }
	if errors.As(err, &s) && len(s.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: stack(0)}
}

// Wrap prefixes err with msg. It returns nil for nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: caller()}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: caller()}
}
