// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tensor

import "strconv"

// DType identifies the element type of a tensor.
type DType uint8

const (
	Invalid DType = iota
	Bool
	Int32
	Int64
	Float32
	Float64
)

// DefaultFloat is the dtype Go floating-point scalars are converted to.
const DefaultFloat = Float32

// DefaultInt is the dtype Go integer scalars are converted to.
const DefaultInt = Int32

var dtypeNames = [...]string{
	Invalid: "invalid",
	Bool:    "bool",
	Int32:   "int32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

func (d DType) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}
	return "dtype(" + strconv.Itoa(int(d)) + ")"
}

// IsFloat reports whether d is a floating-point dtype.
func (d DType) IsFloat() bool { return d == Float32 || d == Float64 }

// cast rounds v to the precision of d.
func (d DType) cast(v float64) float64 {
	switch d {
	case Bool:
		if v != 0 {
			return 1
		}
		return 0
	case Int32:
		return float64(int32(v))
	case Int64:
		return float64(int64(v))
	case Float32:
		return float64(float32(v))
	default:
		return v
	}
}

// promote returns the result dtype of a binary arithmetic op.
// Weak operands come from Go scalars and defer to the strong side,
// except that a weak float never demotes to an integer or boolean.
func promote(a DType, aWeak bool, b DType, bWeak bool) (DType, bool) {
	switch {
	case aWeak && !bWeak:
		if a.IsFloat() && !b.IsFloat() {
			return DefaultFloat, false
		}
		return b, false
	case bWeak && !aWeak:
		if b.IsFloat() && !a.IsFloat() {
			return DefaultFloat, false
		}
		return a, false
	}
	return max(a, b), aWeak && bWeak
}

// divide is true division: integer operands produce DefaultFloat.
func divide(d DType) DType {
	if d.IsFloat() {
		return d
	}
	return DefaultFloat
}
