// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tracejit/backends"
)

// Capabilities of the SimpleGo backends: the set of supported operations and data types.
var Capabilities = backends.Capabilities{
	Operations: map[backends.OpType]bool{
		backends.OpTypeIdentity:     true,
		backends.OpTypeConvertDType: true,

		// Standard binary operations:
		backends.OpTypeAdd: true,
		backends.OpTypeSub: true,
		backends.OpTypeMul: true,
		backends.OpTypeDiv: true,
		backends.OpTypeMax: true,
		backends.OpTypeMin: true,

		// Standard unary operations:
		backends.OpTypeNeg:  true,
		backends.OpTypeAbs:  true,
		backends.OpTypeExp:  true,
		backends.OpTypeLog:  true,
		backends.OpTypeSqrt: true,

		// Other operations:
		backends.OpTypeReduceSum: true,
		backends.OpTypeSlice:     true,
	},

	DTypes: map[dtypes.DType]bool{
		dtypes.Int32:   true,
		dtypes.Int64:   true,
		dtypes.Float16: true,
		dtypes.Float32: true,
		dtypes.Float64: true,
	},
}
