// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package errs is the error taxonomy for the lowering pipeline: a small,
// fixed set of fatal-pass kinds plus accumulated string context, mirroring
// the anyhow::Context chains the pipeline was distilled from.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a pass gave up.
type Kind int

const (
	// ParseError is a failure to parse external textual IR.
	ParseError Kind = iota
	// UnsupportedIR is an IR construct lowering does not handle.
	UnsupportedIR
	// LookupMiss is a named entity missing from its map (slot, binding, label).
	LookupMiss
	// RangeError is a numeric conversion overflow.
	RangeError
	// StructuralViolation is a failed checker predicate. Unlike the other
	// kinds it is not necessarily fatal: callers may inspect it and continue.
	StructuralViolation
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "ParseError"
	case UnsupportedIR:
		return "UnsupportedIR"
	case LookupMiss:
		return "LookupMiss"
	case RangeError:
		return "RangeError"
	case StructuralViolation:
		return "StructuralViolation"
	default:
		return "UnknownError"
	}
}

// Error is the single user-visible failure surface: a kind, an optional
// wrapped cause, and a stack of context strings accumulated as the error
// bubbles out of nested builder calls.
type Error struct {
	Kind    Kind
	cause   error
	context []string
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	for i := len(e.context) - 1; i >= 0; i-- {
		msg = e.context[i] + ": " + msg
	}
	return msg
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Context pushes a new context string onto the error and returns it, so call
// sites can write `return errs.Context(err, "building function %s", name)`.
func Context(err *Error, format string, args ...interface{}) *Error {
	err.context = append(err.context, fmt.Sprintf(format, args...))
	return err
}

func newError(k Kind, cause error) *Error {
	return &Error{Kind: k, cause: cause}
}

// Parse wraps cause as a ParseError.
func Parse(cause error, format string, args ...interface{}) *Error {
	return newError(ParseError, errors.Wrapf(cause, format, args...))
}

// Unsupported builds an UnsupportedIR error describing the unhandled shape.
func Unsupported(format string, args ...interface{}) *Error {
	return newError(UnsupportedIR, fmt.Errorf(format, args...))
}

// Miss builds a LookupMiss error naming the missing entity.
func Miss(entityKind, name string) *Error {
	return newError(LookupMiss, fmt.Errorf("%s %q not found", entityKind, name))
}

// Range builds a RangeError describing the overflowed conversion.
func Range(format string, args ...interface{}) *Error {
	return newError(RangeError, fmt.Errorf(format, args...))
}

// Violation builds a StructuralViolation error describing a failed checker.
func Violation(format string, args ...interface{}) *Error {
	return newError(StructuralViolation, fmt.Errorf(format, args...))
}
