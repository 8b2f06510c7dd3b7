// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAliasing is matched (with errors.Is) by every *AliasingError.
	ErrAliasing = errors.New("duplicate input buffer")

	// ErrShapeMismatch is matched (with errors.Is) by every *ShapeMismatchError.
	ErrShapeMismatch = errors.New("call signature doesn't match the captured one")

	// ErrNoTensorArgs is returned when a JIT-ed function is called without any tensor argument.
	ErrNoTensorArgs = errors.New("no tensor inputs to JIT-ed function")

	// ErrEmptyTrace is returned when the traced call didn't dispatch any kernel, so there is nothing to replay.
	ErrEmptyTrace = errors.New("traced call didn't dispatch any kernel, nothing to JIT")

	// ErrCacheFull is returned by a Specialized controller when a new signature would exceed its maximum cache size.
	ErrCacheFull = errors.New("specialized JIT cache is full")
)

// AliasingError is returned when two tracked tensor arguments of one call resolve to the same buffer.
type AliasingError struct {
	// First and Second are the names of the two arguments sharing a buffer ("#0", "#1" for positional
	// arguments, the keyword for keyword arguments).
	First, Second string
}

// Error implements error.
func (e *AliasingError) Error() string {
	return fmt.Sprintf("%s: arguments %s and %s share the same buffer", ErrAliasing, e.First, e.Second)
}

// Is allows errors.Is(err, ErrAliasing).
func (e *AliasingError) Is(target error) bool { return target == ErrAliasing }

// ShapeMismatchError is returned when a call's Fingerprint differs from the one captured.
type ShapeMismatchError struct {
	Expected, Got Fingerprint
}

// Error implements error.
func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s", ErrShapeMismatch, e.Expected.Diff(e.Got))
}

// Is allows errors.Is(err, ErrShapeMismatch).
func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }
