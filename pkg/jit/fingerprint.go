// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/tracejit/pkg/core/shapes"
)

// ArgSignature is the name and shape of one tracked tensor argument.
type ArgSignature struct {
	Name  string
	Shape shapes.Shape
}

// Fingerprint is the signature of a call: how many positional arguments, which keywords, and the
// name and shape of every tracked tensor argument. Values of non-tensor arguments are not part of it.
type Fingerprint struct {
	NumPositional int
	Keywords      []string
	Tensors       []ArgSignature
}

// NewFingerprint returns the Fingerprint of the classified arguments.
// It doesn't require the tensors to be realized.
func NewFingerprint(args Args) Fingerprint {
	fp := Fingerprint{
		NumPositional: args.NumPositional,
		Keywords:      slices.Clone(args.Keywords),
	}
	for _, arg := range args.All {
		if arg.Kind == TensorArg {
			fp.Tensors = append(fp.Tensors, ArgSignature{Name: arg.Name, Shape: arg.Tensor.Shape().Clone()})
		}
	}
	return fp
}

// Equal returns whether both fingerprints are the same.
func (fp Fingerprint) Equal(other Fingerprint) bool {
	if fp.NumPositional != other.NumPositional ||
		!slices.Equal(fp.Keywords, other.Keywords) ||
		len(fp.Tensors) != len(other.Tensors) {
		return false
	}
	for ii, sig := range fp.Tensors {
		if sig.Name != other.Tensors[ii].Name || !sig.Shape.Equal(other.Tensors[ii].Shape) {
			return false
		}
	}
	return true
}

// Key returns a canonical string for the fingerprint: two fingerprints have the same key if and only
// if they are Equal. It can be used as a map key.
func (fp Fingerprint) Key() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%d;%q", fp.NumPositional, fp.Keywords)
	for _, sig := range fp.Tensors {
		_, _ = fmt.Fprintf(&sb, ";%q=%s", sig.Name, sig.Shape.Key())
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (fp Fingerprint) String() string {
	parts := make([]string, 0, len(fp.Tensors)+1)
	for _, sig := range fp.Tensors {
		parts = append(parts, fmt.Sprintf("%s:%s", sig.Name, sig.Shape))
	}
	desc := fmt.Sprintf("(%d positional", fp.NumPositional)
	if len(fp.Keywords) > 0 {
		desc += fmt.Sprintf(", keywords [%s]", strings.Join(fp.Keywords, " "))
	}
	return fmt.Sprintf("%s){%s}", desc, strings.Join(parts, ", "))
}

// Diff describes the first difference found from fp (expected) to other (got), or returns
// "no difference".
func (fp Fingerprint) Diff(other Fingerprint) string {
	if fp.NumPositional != other.NumPositional {
		return fmt.Sprintf("expected %d positional arguments, got %d", fp.NumPositional, other.NumPositional)
	}
	if !slices.Equal(fp.Keywords, other.Keywords) {
		return fmt.Sprintf("expected keywords %q, got %q", fp.Keywords, other.Keywords)
	}
	for ii, sig := range fp.Tensors {
		if ii >= len(other.Tensors) {
			return fmt.Sprintf("expected tensor argument %s with shape %s, got a non-tensor", sig.Name, sig.Shape)
		}
		got := other.Tensors[ii]
		if sig.Name != got.Name {
			return fmt.Sprintf("expected tensor argument %s, got tensor argument %s", sig.Name, got.Name)
		}
		if !sig.Shape.Equal(got.Shape) {
			return fmt.Sprintf("argument %s: expected shape %s, got %s", sig.Name, sig.Shape, got.Shape)
		}
	}
	if len(other.Tensors) > len(fp.Tensors) {
		extra := other.Tensors[len(fp.Tensors)]
		return fmt.Sprintf("expected a non-tensor for argument %s, got a tensor with shape %s", extra.Name, extra.Shape)
	}
	return "no difference"
}
