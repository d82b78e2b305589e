// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package verr defines the error kinds surfaced across the container engine.
package verr

import (
	"errors"
	"fmt"
)

// Kind classifies an error surfaced by the engine. Callers should match on
// Kind via errors.As, never on error message text.
type Kind int

const (
	_ Kind = iota
	AuthFailure
	Corrupt
	NotFound
	NotADirectory
	NotAFile
	AlreadyExists
	DiskFull
	OutOfBounds
	InvalidArgument
	IoError
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case AuthFailure:
		return "invalid password or corrupted header"
	case Corrupt:
		return "corrupt"
	case NotFound:
		return "not found"
	case NotADirectory:
		return "not a directory"
	case NotAFile:
		return "not a file"
	case AlreadyExists:
		return "already exists"
	case DiskFull:
		return "disk full"
	case OutOfBounds:
		return "out of bounds"
	case InvalidArgument:
		return "invalid argument"
	case IoError:
		return "io error"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown error"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on it
// with errors.As without depending on message text.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, verr.AuthFailure-typed sentinel) style matching
// when the target is itself an *Error carrying only a Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Sentinel returns a bare *Error carrying only Kind, suitable as an
// errors.Is target: errors.Is(err, verr.Sentinel(verr.NotFound)).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// Of extracts the Kind of err, if it (or something it wraps) is a *Error.
// Returns false if err carries no Kind.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
