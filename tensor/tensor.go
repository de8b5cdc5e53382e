// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tensor is a small dense array collaborator for cellflow.
//
// It provides exactly what the state-threading layer needs from a numeric
// library: shape and dtype metadata, value-free placeholders for abstract
// execution, a handful of broadcasting elementwise kernels, leading-axis
// indexing and stacking.
//
// Two implementations of [Tensor] exist:
//
//   - [Dense]: concrete row-major values (stored as float64, rounded to dtype)
//   - [Abstract]: shape and dtype only, produced while tracing
//
// Every operation that receives an [Abstract] operand returns an [Abstract]
// result, so a function can be executed for its shapes alone.
package tensor

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// ErrAbstractValue is returned when a concrete value is requested from an [Abstract].
var ErrAbstractValue = errors.New("tensor: abstract value has no concrete data")

// Tensor is the capability every array value exposes.
type Tensor interface {
	Shape() Shape
	DType() DType
}

// weakTyped is implemented by tensors that may carry a weak dtype.
type weakTyped interface {
	Weak() bool
}

func isWeak(t Tensor) bool {
	w, ok := t.(weakTyped)
	return ok && w.Weak()
}

// Abstract is a value-free placeholder carrying only shape and dtype.
type Abstract struct {
	shape Shape
	dtype DType
	weak  bool
}

// NewAbstract creates a placeholder with the given shape and dtype.
func NewAbstract(dtype DType, shape ...int) *Abstract {
	return &Abstract{shape: Shape(shape).Clone(), dtype: dtype}
}

// AbstractOf returns the placeholder describing t.
func AbstractOf(t Tensor) *Abstract {
	if a, ok := t.(*Abstract); ok {
		return a
	}
	return &Abstract{shape: t.Shape().Clone(), dtype: t.DType(), weak: isWeak(t)}
}

func (a *Abstract) Shape() Shape { return a.shape }
func (a *Abstract) DType() DType { return a.dtype }
func (a *Abstract) Weak() bool   { return a.weak }

func (a *Abstract) String() string {
	return fmt.Sprintf("Abstract(%s%s)", a.dtype, a.shape)
}

// IsAbstract reports whether x is an [*Abstract].
func IsAbstract(x any) bool {
	_, ok := x.(*Abstract)
	return ok
}

// Dense is a concrete row-major array.
type Dense struct {
	shape Shape
	dtype DType
	weak  bool
	data  []float64
}

// FromSlice creates a Dense with the given dtype and shape.
// values are rounded to the precision of dtype.
func FromSlice(dtype DType, shape Shape, values []float64) (*Dense, error) {
	if dtype == Invalid {
		return nil, errors.New("tensor: invalid dtype")
	}
	for _, d := range shape {
		if d < 0 {
			return nil, errors.Errorf("tensor: negative axis length in shape %s", shape)
		}
	}
	if shape.Size() != len(values) {
		return nil, errors.Errorf("tensor: %d values do not fill shape %s", len(values), shape)
	}
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = dtype.cast(v)
	}
	return &Dense{shape: shape.Clone(), dtype: dtype, data: data}, nil
}

func mustDense(t *Dense, err error) *Dense {
	if err != nil {
		panic(err)
	}
	return t
}

// Float32s creates a rank-1 float32 tensor.
func Float32s(values ...float64) *Dense {
	return mustDense(FromSlice(Float32, Shape{len(values)}, values))
}

// Float64s creates a rank-1 float64 tensor.
func Float64s(values ...float64) *Dense {
	return mustDense(FromSlice(Float64, Shape{len(values)}, values))
}

// Int32s creates a rank-1 int32 tensor.
func Int32s(values ...int) *Dense {
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return mustDense(FromSlice(Int32, Shape{len(values)}, data))
}

// Scalar creates a rank-0 tensor.
func Scalar(dtype DType, v float64) *Dense {
	return mustDense(FromSlice(dtype, Shape{}, []float64{v}))
}

// Full creates a tensor with every element set to v.
func Full(dtype DType, v float64, shape ...int) *Dense {
	s := Shape(shape)
	data := make([]float64, s.Size())
	for i := range data {
		data[i] = v
	}
	return mustDense(FromSlice(dtype, s, data))
}

// Zeros creates a zero-filled tensor.
func Zeros(dtype DType, shape ...int) *Dense { return Full(dtype, 0, shape...) }

// Ones creates a one-filled tensor.
func Ones(dtype DType, shape ...int) *Dense { return Full(dtype, 1, shape...) }

func (d *Dense) Shape() Shape { return d.shape }
func (d *Dense) DType() DType { return d.dtype }

// Weak reports whether the dtype was inferred from a Go scalar.
func (d *Dense) Weak() bool { return d.weak }

// Values returns a copy of the elements in row-major order.
func (d *Dense) Values() []float64 { return slices.Clone(d.data) }

// At returns the element at the given multi-index.
func (d *Dense) At(index ...int) (float64, error) {
	if len(index) != len(d.shape) {
		return 0, errors.Errorf("tensor: index rank %d, tensor rank %d", len(index), len(d.shape))
	}
	off := 0
	for i, st := range d.shape.strides() {
		if index[i] < 0 || index[i] >= d.shape[i] {
			return 0, errors.Errorf("tensor: index %v out of range for shape %s", index, d.shape)
		}
		off += index[i] * st
	}
	return d.data[off], nil
}

// Item returns the single element of a size-1 tensor.
func (d *Dense) Item() (float64, error) {
	if len(d.data) != 1 {
		return 0, errors.Errorf("tensor: Item on tensor of shape %s", d.shape)
	}
	return d.data[0], nil
}

func (d *Dense) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dense(%s%s: ", d.dtype, d.shape)
	writeNested(&b, d.data, d.shape, d.dtype)
	b.WriteByte(')')
	return b.String()
}

func writeNested(b *strings.Builder, data []float64, shape Shape, dtype DType) {
	if len(shape) == 0 {
		if dtype == Bool {
			fmt.Fprint(b, data[0] != 0)
			return
		}
		fmt.Fprint(b, data[0])
		return
	}
	b.WriteByte('[')
	step := Shape(shape[1:]).Size()
	for i := range shape[0] {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeNested(b, data[i*step:(i+1)*step], shape[1:], dtype)
	}
	b.WriteByte(']')
}

// AsTensor converts Go scalars and tensors to a [Tensor].
// Go scalars become weakly typed rank-0 tensors.
func AsTensor(x any) (Tensor, error) {
	var v float64
	var dt DType
	switch x := x.(type) {
	case Tensor:
		return x, nil
	case bool:
		dt = Bool
		if x {
			v = 1
		}
	case int:
		v, dt = float64(x), DefaultInt
	case int32:
		v, dt = float64(x), Int32
	case int64:
		v, dt = float64(x), Int64
	case float32:
		v, dt = float64(x), Float32
	case float64:
		v, dt = x, DefaultFloat
	default:
		return nil, errors.Errorf("tensor: cannot convert %T to a tensor", x)
	}
	d := Scalar(dt, v)
	d.weak = true
	return d, nil
}

// IsScalarLike reports whether x is a Go scalar or a [Tensor].
func IsScalarLike(x any) bool {
	switch x.(type) {
	case Tensor, bool, int, int32, int64, float32, float64:
		return true
	}
	return false
}

func mustTensor(x any) Tensor {
	t, err := AsTensor(x)
	if err != nil {
		panic(err)
	}
	return t
}

// Truth returns the boolean value of a size-1 tensor or Go scalar.
func Truth(x any) (bool, error) {
	if b, ok := x.(bool); ok {
		return b, nil
	}
	t, err := AsTensor(x)
	if err != nil {
		return false, err
	}
	d, ok := t.(*Dense)
	if !ok {
		return false, errors.Wrapf(ErrAbstractValue, "truth of %v", t)
	}
	v, err := d.Item()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Float returns the single element of a size-1 tensor or Go scalar.
func Float(x any) (float64, error) {
	t, err := AsTensor(x)
	if err != nil {
		return 0, err
	}
	d, ok := t.(*Dense)
	if !ok {
		return 0, errors.Wrapf(ErrAbstractValue, "float of %v", t)
	}
	return d.Item()
}

// Equal reports whether a and b are concrete tensors with identical shape,
// dtype and elements.
func Equal(a, b Tensor) bool {
	da, ok1 := a.(*Dense)
	db, ok2 := b.(*Dense)
	if !ok1 || !ok2 {
		return false
	}
	return da.dtype == db.dtype && da.shape.Equal(db.shape) && slices.Equal(da.data, db.data)
}

// Strong returns t with its weak-type flag cleared.
func Strong(t Tensor) Tensor {
	switch x := t.(type) {
	case *Dense:
		if !x.weak {
			return x
		}
		c := *x
		c.weak = false
		return &c
	case *Abstract:
		if !x.weak {
			return x
		}
		c := *x
		c.weak = false
		return &c
	}
	return t
}
