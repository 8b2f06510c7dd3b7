// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/gomlx/tracejit/pkg/support/sets"
	"github.com/pkg/errors"
)

// TrackBuffers realizes the tracked tensor arguments and returns the set of their distinct buffers.
//
// It returns an *AliasingError if two arguments resolve to the same buffer, which includes the
// same tensor being passed twice: a captured graph has one input slot per argument, and it
// can't bind one buffer to two slots. The same tensor passed twice is reported before anything
// is realized.
func TrackBuffers(tensorArgs []Arg) (sets.Set[backends.Buffer], error) {
	buffers, err := realizeTracked(tensorArgs)
	if err != nil {
		return nil, err
	}
	return sets.MakeWith(buffers...), nil
}

// realizeTracked checks that no tensor is passed twice, realizes the tracked tensor arguments and
// checks that their buffers are distinct. It returns the buffers, in order.
func realizeTracked(tensorArgs []Arg) ([]backends.Buffer, error) {
	if err := checkDuplicateTensors(tensorArgs); err != nil {
		return nil, err
	}
	buffers, err := realizeTensorArgs(tensorArgs)
	if err != nil {
		return nil, err
	}
	if _, err = trackBuffers(tensorArgs, buffers); err != nil {
		return nil, err
	}
	return buffers, nil
}

// checkDuplicateTensors returns an *AliasingError if the same *tensors.Tensor is given as two
// arguments. Pending tensors have no buffer yet, so they are compared by pointer.
func checkDuplicateTensors(tensorArgs []Arg) error {
	owner := make(map[*tensors.Tensor]string, len(tensorArgs))
	for _, arg := range tensorArgs {
		if first, found := owner[arg.Tensor]; found {
			return errors.WithStack(&AliasingError{First: first, Second: arg.Name})
		}
		owner[arg.Tensor] = arg.Name
	}
	return nil
}

// trackBuffers is TrackBuffers for arguments already realized into buffers.
func trackBuffers(tensorArgs []Arg, buffers []backends.Buffer) (sets.Set[backends.Buffer], error) {
	seen := sets.Make[backends.Buffer](len(buffers))
	owner := make(map[backends.Buffer]string, len(buffers))
	for ii, buf := range buffers {
		if !seen.InsertNew(buf) {
			return nil, errors.WithStack(&AliasingError{First: owner[buf], Second: tensorArgs[ii].Name})
		}
		owner[buf] = tensorArgs[ii].Name
	}
	return seen, nil
}
