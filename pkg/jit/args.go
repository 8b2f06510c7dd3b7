// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"
	"slices"

	"github.com/gomlx/tracejit/backends"
	"github.com/gomlx/tracejit/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Kwargs marks keyword arguments when passed as one of the arguments of a call.
//
// Example:
//
//	add := jit.New(engine, func(args ...any) ([]any, error) {
//		kw := args[0].(jit.Kwargs)
//		return []any{tensors.Add(kw["first"].(*tensors.Tensor), kw["second"].(*tensors.Tensor))}, nil
//	})
//	results, err := add.Call(jit.Kwargs{"first": a, "second": b})
//
// At most one Kwargs can be passed per call, and it doesn't count as a positional argument.
type Kwargs map[string]any

// ArgKind classifies an argument of a call.
type ArgKind int

const (
	// TensorArg is a *tensors.Tensor given directly as a positional argument or keyword value.
	// Its buffer is tracked: it is rebound on every replay.
	TensorArg ArgKind = iota

	// OpaqueArg is any other value, including slices, maps and structs holding tensors.
	// Its contents are not tracked: tensors reachable from it are frozen into the captured graph.
	OpaqueArg
)

// String implements fmt.Stringer.
func (k ArgKind) String() string {
	switch k {
	case TensorArg:
		return "Tensor"
	case OpaqueArg:
		return "Opaque"
	}
	return fmt.Sprintf("ArgKind(%d)", int(k))
}

// Arg is one classified argument of a call.
type Arg struct {
	// Name is "#<i>" for the i-th positional argument, or the keyword.
	Name    string
	Keyword bool
	Kind    ArgKind

	// Value is the argument as given. For TensorArg it is the same as Tensor.
	Value  any
	Tensor *tensors.Tensor
}

// Args holds the classified arguments of one call: positional arguments first, in order, followed
// by keyword arguments sorted by keyword.
type Args struct {
	NumPositional int
	Keywords      []string
	All           []Arg
}

// ClassifyArgs classifies the arguments of one call.
//
// Only *tensors.Tensor values given directly as an argument (or as a Kwargs value) are TensorArg;
// everything else, including containers of tensors, is OpaqueArg.
//
// It returns an error if more than one Kwargs is given, or if a nil *tensors.Tensor is given.
func ClassifyArgs(args []any) (Args, error) {
	var parsed Args
	var kwargs Kwargs
	for _, arg := range args {
		if kw, ok := arg.(Kwargs); ok {
			if kwargs != nil {
				return Args{}, errors.Errorf("only one jit.Kwargs can be given per call, got a second one")
			}
			if kw == nil {
				kw = Kwargs{}
			}
			kwargs = kw
			continue
		}
		name := fmt.Sprintf("#%d", parsed.NumPositional)
		parsed.NumPositional++
		classified, err := classifyArg(name, false, arg)
		if err != nil {
			return Args{}, err
		}
		parsed.All = append(parsed.All, classified)
	}
	if kwargs != nil {
		parsed.Keywords = make([]string, 0, len(kwargs))
		for key := range kwargs {
			parsed.Keywords = append(parsed.Keywords, key)
		}
		slices.Sort(parsed.Keywords)
		for _, key := range parsed.Keywords {
			classified, err := classifyArg(key, true, kwargs[key])
			if err != nil {
				return Args{}, err
			}
			parsed.All = append(parsed.All, classified)
		}
	}
	return parsed, nil
}

func classifyArg(name string, keyword bool, value any) (Arg, error) {
	arg := Arg{Name: name, Keyword: keyword, Kind: OpaqueArg, Value: value}
	if t, ok := value.(*tensors.Tensor); ok {
		if t == nil {
			return Arg{}, errors.Errorf("argument %s is a nil *tensors.Tensor", name)
		}
		arg.Kind = TensorArg
		arg.Tensor = t
	}
	return arg, nil
}

// TensorArgs returns the tracked tensor arguments, in order.
func (a Args) TensorArgs() []Arg {
	tensorArgs := make([]Arg, 0, len(a.All))
	for _, arg := range a.All {
		if arg.Kind == TensorArg {
			tensorArgs = append(tensorArgs, arg)
		}
	}
	return tensorArgs
}

// realizeTensorArgs realizes the tracked tensors and returns their buffers, in order.
func realizeTensorArgs(tensorArgs []Arg) ([]backends.Buffer, error) {
	buffers := make([]backends.Buffer, len(tensorArgs))
	for ii, arg := range tensorArgs {
		buf, err := arg.Tensor.Buffer()
		if err != nil {
			return nil, errors.WithMessagef(err, "realizing argument %s", arg.Name)
		}
		buffers[ii] = buf
	}
	return buffers, nil
}
