// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tensor

import "github.com/pkg/errors"

// Elementwise operations accept tensors or Go scalars and broadcast.
// Like graph-building APIs, they panic on malformed operands; the
// cellflow combinators recover such panics and roll state back.

type kernelFn func(x, y float64) float64

func add(x, y float64) float64 { return x + y }
func sub(x, y float64) float64 { return x - y }
func mul(x, y float64) float64 { return x * y }
func div(x, y float64) float64 { return x / y }

func less(x, y float64) float64 {
	if x < y {
		return 1
	}
	return 0
}

func greater(x, y float64) float64 {
	if x > y {
		return 1
	}
	return 0
}

func equal(x, y float64) float64 {
	if x == y {
		return 1
	}
	return 0
}

// Add returns a + b.
func Add(a, b any) Tensor { return arith(a, b, add, false) }

// Sub returns a - b.
func Sub(a, b any) Tensor { return arith(a, b, sub, false) }

// Mul returns a * b.
func Mul(a, b any) Tensor { return arith(a, b, mul, false) }

// Div returns a / b using true division.
func Div(a, b any) Tensor { return arith(a, b, div, true) }

// Less returns the boolean tensor a < b.
func Less(a, b any) Tensor { return compare(a, b, less) }

// Greater returns the boolean tensor a > b.
func Greater(a, b any) Tensor { return compare(a, b, greater) }

// EqualTo returns the boolean tensor a == b.
func EqualTo(a, b any) Tensor { return compare(a, b, equal) }

// Neg returns -a.
func Neg(a any) Tensor { return arith(a, -1, mul, false) }

func arith(a, b any, k kernelFn, trueDiv bool) Tensor {
	ta, tb := mustTensor(a), mustTensor(b)
	dt, weak := promote(ta.DType(), isWeak(ta), tb.DType(), isWeak(tb))
	if trueDiv {
		dt = divide(dt)
	}
	return binary(ta, tb, dt, weak, k)
}

func compare(a, b any, k kernelFn) Tensor {
	return binary(mustTensor(a), mustTensor(b), Bool, false, k)
}

func binary(a, b Tensor, dt DType, weak bool, k kernelFn) Tensor {
	shape, err := Broadcast(a.Shape(), b.Shape())
	if err != nil {
		panic(err)
	}
	da, ok1 := a.(*Dense)
	db, ok2 := b.(*Dense)
	if !ok1 || !ok2 {
		return &Abstract{shape: shape, dtype: dt, weak: weak}
	}
	out := &Dense{shape: shape, dtype: dt, weak: weak, data: make([]float64, shape.Size())}
	ia := broadcastIndex(da.shape, shape)
	ib := broadcastIndex(db.shape, shape)
	for i := range out.data {
		out.data[i] = dt.cast(k(da.data[ia(i)], db.data[ib(i)]))
	}
	return out
}

// broadcastIndex maps a flat index in out to a flat index in an operand of shape in.
func broadcastIndex(in, out Shape) func(int) int {
	if in.Equal(out) {
		return func(i int) int { return i }
	}
	if in.Size() == 1 {
		return func(int) int { return 0 }
	}
	outStrides := out.strides()
	inStrides := in.strides()
	off := len(out) - len(in)
	return func(i int) int {
		j := 0
		for ax := range out {
			pos := (i / outStrides[ax]) % out[ax]
			if k := ax - off; k >= 0 && in[k] != 1 {
				j += pos * inStrides[k]
			}
		}
		return j
	}
}

// Index returns t[i] along the leading axis.
func Index(t any, i int) Tensor {
	tt := mustTensor(t)
	shape := tt.Shape()
	if len(shape) == 0 {
		panic(errors.New("tensor: cannot index a scalar"))
	}
	if i < 0 {
		i += shape[0]
	}
	if i < 0 || i >= shape[0] {
		panic(errors.Errorf("tensor: index %d out of range for axis of length %d", i, shape[0]))
	}
	rest := Shape(shape[1:]).Clone()
	d, ok := tt.(*Dense)
	if !ok {
		return &Abstract{shape: rest, dtype: tt.DType(), weak: isWeak(tt)}
	}
	n := rest.Size()
	out := &Dense{shape: rest, dtype: d.dtype, weak: d.weak, data: make([]float64, n)}
	copy(out.data, d.data[i*n:(i+1)*n])
	return out
}

// Stack joins equally shaped tensors along a new leading axis.
// elem describes the element shape and dtype when ts is empty.
func Stack(ts []Tensor, elem Tensor) (Tensor, error) {
	if len(ts) == 0 {
		if elem == nil {
			return nil, errors.New("tensor: Stack of no tensors needs an element description")
		}
		shape := append(Shape{0}, elem.Shape()...)
		return Zeros(elem.DType(), shape...), nil
	}
	first := ts[0]
	abstract := false
	weak := true
	for _, t := range ts {
		if !t.Shape().Equal(first.Shape()) || t.DType() != first.DType() {
			return nil, errors.Errorf("tensor: cannot stack %s%s with %s%s",
				first.DType(), first.Shape(), t.DType(), t.Shape())
		}
		if _, ok := t.(*Dense); !ok {
			abstract = true
		}
		weak = weak && isWeak(t)
	}
	shape := append(Shape{len(ts)}, first.Shape()...)
	if abstract {
		return &Abstract{shape: shape, dtype: first.DType(), weak: weak}, nil
	}
	out := &Dense{shape: shape, dtype: first.DType(), weak: weak, data: make([]float64, 0, shape.Size())}
	for _, t := range ts {
		out.data = append(out.data, t.(*Dense).data...)
	}
	return out, nil
}

// Reverse returns t with its leading axis reversed.
func Reverse(t Tensor) Tensor {
	shape := t.Shape()
	d, ok := t.(*Dense)
	if !ok || len(shape) == 0 {
		return t
	}
	n := Shape(shape[1:]).Size()
	out := &Dense{shape: shape.Clone(), dtype: d.dtype, weak: d.weak, data: make([]float64, len(d.data))}
	for i := range shape[0] {
		copy(out.data[i*n:(i+1)*n], d.data[(shape[0]-1-i)*n:(shape[0]-i)*n])
	}
	return out
}
