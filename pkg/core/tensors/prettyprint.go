// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"bytes"
	"fmt"
	"strings"
)

// TensorStringDefaultPrecision is the precision used by Tensor.String for float values.
const TensorStringDefaultPrecision = 4

// Summary returns a summary of the Tensor's content, realizing it if needed.
// Rows with more than 6 elements, and axes with more than 6 rows, are shortened with an ellipsis.
// Inspired by numpy output.
func (t *Tensor) Summary(precision int) string {
	values, err := hostValues(t)
	if err != nil {
		return fmt.Sprintf("%s<error: %v>", t.shape, err)
	}

	// Easy string building.
	var buf bytes.Buffer
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&buf, format, args...) }
	isFloat := t.shape.DType.IsFloat()
	wValue := func(v float64) {
		if isFloat {
			w("%.*g", precision, v)
		} else {
			w("%d", int64(v))
		}
	}

	dims := t.shape.Dimensions
	w("%s", t.shape)
	if len(dims) == 0 {
		w("(")
		wValue(values[0])
		w(")")
		return buf.String()
	}

	strides := t.shape.Strides()
	var printElements func(index, axis int)
	printElements = func(index, axis int) {
		dim := dims[axis]
		w("{")
		indices := make([]int, 0, dim)
		if dim > 6 {
			indices = append(indices, 0, 1, 2, -1, dim-3, dim-2, dim-1)
		} else {
			for ii := range dim {
				indices = append(indices, ii)
			}
		}
		sep := ", "
		if axis < len(dims)-1 {
			sep = ",\n" + strings.Repeat(" ", axis+1)
		}
		for pos, ii := range indices {
			if pos > 0 {
				w("%s", sep)
			}
			if ii == -1 {
				w("...")
				continue
			}
			if axis == len(dims)-1 {
				wValue(values[index+ii])
			} else {
				printElements(index+ii*strides[axis], axis+1)
			}
		}
		w("}")
	}
	printElements(0, 0)
	return buf.String()
}
