/*
Copyright 2024 The Strusgo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ixerr defines the closed set of error kinds the storage engine
// reports, so callers can decide what to do with a failure instead of
// string-matching messages.
package ixerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// InvalidArgument: out-of-range position, zero where positive
	// required, too many weighting features, malformed configuration.
	InvalidArgument Kind = iota
	// NotFound: a referenced name is absent from a key map when lookup
	// (not get-or-create) is required.
	NotFound
	// CorruptData: invalid packed integer, block field index out of
	// bounds, ff mismatch vs counted positions, block id less than any
	// contained docno, negative decremented df.
	CorruptData
	// ResourceExhausted: too many weighting features, keymap size
	// overflow, weighting interpreter stack overflow.
	ResourceExhausted
	// Conflict: commit called twice, or after rollback (and vice versa).
	Conflict
	// IoError: propagated from the underlying store.
	IoError
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case CorruptData:
		return "CorruptData"
	case ResourceExhausted:
		return "ResourceExhausted"
	case Conflict:
		return "Conflict"
	case IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by the storage engine.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a plain message.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind that wraps cause.
func Wrap(k Kind, cause error, msg string) error {
	return &Error{Kind: k, Msg: msg, Cause: cause}
}

// Wrapf builds an Error of the given kind that wraps cause with a
// formatted message.
func Wrapf(k Kind, cause error, format string, args ...interface{}) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
