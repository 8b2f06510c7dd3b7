// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"strings"
)

// OpType is an enum of all kernels that can be dispatched to a Backend.
//
// Notice: the values are part of the dump format of traced kernel graphs (see package jit),
// so new ops should only be appended before OpTypeLast.
type OpType int

const (
	OpTypeInvalid OpType = iota

	// OpTypeIdentity copies its single input into its output.
	OpTypeIdentity
	OpTypeConvertDType

	// Elementwise binary ops: lhs and rhs have the same shape, or one of them is a scalar.

	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeDiv
	OpTypeMax
	OpTypeMin

	// Elementwise unary ops.

	OpTypeNeg
	OpTypeAbs
	OpTypeExp
	OpTypeLog
	OpTypeSqrt

	// OpTypeReduceSum sums all elements of its input into a scalar.
	OpTypeReduceSum

	// OpTypeSlice takes SliceParams.
	OpTypeSlice

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

var opTypeNames = [...]string{
	OpTypeInvalid:      "Invalid",
	OpTypeIdentity:     "Identity",
	OpTypeConvertDType: "ConvertDType",
	OpTypeAdd:          "Add",
	OpTypeSub:          "Sub",
	OpTypeMul:          "Mul",
	OpTypeDiv:          "Div",
	OpTypeMax:          "Max",
	OpTypeMin:          "Min",
	OpTypeNeg:          "Neg",
	OpTypeAbs:          "Abs",
	OpTypeExp:          "Exp",
	OpTypeLog:          "Log",
	OpTypeSqrt:         "Sqrt",
	OpTypeReduceSum:    "ReduceSum",
	OpTypeSlice:        "Slice",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op < 0 || op >= OpTypeLast {
		return fmt.Sprintf("OpType(%d)", int(op))
	}
	return opTypeNames[op]
}

// OpTypeString returns the OpType for the given name (case-insensitive), or an error.
func OpTypeString(name string) (OpType, error) {
	for op := OpTypeInvalid; op < OpTypeLast; op++ {
		if strings.EqualFold(opTypeNames[op], name) {
			return op, nil
		}
	}
	return OpTypeInvalid, fmt.Errorf("%q does not belong to OpType values", name)
}

// OpTypeValues returns all valid OpType values (excluding OpTypeInvalid and OpTypeLast).
func OpTypeValues() []OpType {
	ops := make([]OpType, 0, int(OpTypeLast)-1)
	for op := OpTypeInvalid + 1; op < OpTypeLast; op++ {
		ops = append(ops, op)
	}
	return ops
}
