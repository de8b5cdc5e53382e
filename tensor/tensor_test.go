// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/cellflow/tensor"
)

func values(t *testing.T, x tensor.Tensor) []float64 {
	t.Helper()
	d, ok := x.(*tensor.Dense)
	require.True(t, ok, "want *tensor.Dense, got %T", x)
	return d.Values()
}

func TestFromSlice(t *testing.T) {
	d, err := tensor.FromSlice(tensor.Int32, tensor.Shape{2, 2}, []float64{1.7, -2.2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2, 3, 4}, d.Values())
	assert.Equal(t, tensor.Shape{2, 2}, d.Shape())

	v, err := d.At(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
	_, err = d.At(2, 0)
	assert.Error(t, err)

	_, err = tensor.FromSlice(tensor.Float32, tensor.Shape{3}, []float64{1})
	assert.Error(t, err)
	_, err = tensor.FromSlice(tensor.Invalid, tensor.Shape{}, []float64{1})
	assert.Error(t, err)
}

func TestAsTensorWeak(t *testing.T) {
	cases := []struct {
		in    any
		dtype tensor.DType
	}{
		{1.5, tensor.Float32},
		{2, tensor.Int32},
		{true, tensor.Bool},
		{int64(3), tensor.Int64},
	}
	for _, c := range cases {
		x, err := tensor.AsTensor(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.dtype, x.DType(), "%v", c.in)
		assert.Equal(t, 0, x.Shape().Rank())
		assert.True(t, x.(*tensor.Dense).Weak())
	}
	_, err := tensor.AsTensor("text")
	assert.Error(t, err)
}

func TestPromotion(t *testing.T) {
	sum := tensor.Add(tensor.Float32s(1, 2), 1)
	assert.Equal(t, tensor.Float32, sum.DType())
	assert.False(t, sum.(*tensor.Dense).Weak())
	assert.Equal(t, []float64{2, 3}, values(t, sum))

	mixed := tensor.Add(tensor.Int32s(1), 1.5)
	assert.Equal(t, tensor.Float32, mixed.DType())
	assert.Equal(t, []float64{2.5}, values(t, mixed))

	q := tensor.Div(tensor.Int32s(3), 2)
	assert.Equal(t, tensor.Float32, q.DType())
	assert.Equal(t, []float64{1.5}, values(t, q))

	wide := tensor.Mul(tensor.Float32s(2), tensor.Float64s(3))
	assert.Equal(t, tensor.Float64, wide.DType())

	lt := tensor.Less(tensor.Float32s(1, 5), 3)
	assert.Equal(t, tensor.Bool, lt.DType())
	assert.Equal(t, []float64{1, 0}, values(t, lt))

	assert.Equal(t, []float64{-1, -2}, values(t, tensor.Neg(tensor.Float32s(1, 2))))
}

func TestBroadcast(t *testing.T) {
	m, err := tensor.FromSlice(tensor.Float32, tensor.Shape{2, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	out := tensor.Add(m, tensor.Float32s(10, 20))
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float64{11, 22, 13, 24}, values(t, out))

	_, err = tensor.Broadcast(tensor.Shape{2}, tensor.Shape{3})
	assert.Error(t, err)
	assert.Panics(t, func() { tensor.Add(tensor.Float32s(1, 2), tensor.Float32s(1, 2, 3)) })
}

func TestAbstractPropagation(t *testing.T) {
	a := tensor.NewAbstract(tensor.Float32, 2)
	out := tensor.Add(a, 1)
	require.True(t, tensor.IsAbstract(out))
	assert.Equal(t, tensor.Shape{2}, out.Shape())
	assert.Equal(t, tensor.Float32, out.DType())

	row := tensor.Index(tensor.NewAbstract(tensor.Int32, 4, 3), 1)
	assert.True(t, tensor.IsAbstract(row))
	assert.Equal(t, tensor.Shape{3}, row.Shape())

	_, err := tensor.Truth(tensor.Less(a, 0))
	assert.True(t, errors.Is(err, tensor.ErrAbstractValue))
	_, err = tensor.Float(a)
	assert.True(t, errors.Is(err, tensor.ErrAbstractValue))
}

func TestIndexStackReverse(t *testing.T) {
	m, err := tensor.FromSlice(tensor.Float32, tensor.Shape{3, 2}, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, values(t, tensor.Index(m, 1)))
	assert.Equal(t, []float64{5, 6}, values(t, tensor.Index(m, -1)))
	assert.Panics(t, func() { tensor.Index(m, 3) })
	assert.Panics(t, func() { tensor.Index(1.0, 0) })

	s, err := tensor.Stack([]tensor.Tensor{tensor.Index(m, 2), tensor.Index(m, 0)}, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, s.Shape())
	assert.Equal(t, []float64{5, 6, 1, 2}, values(t, s))

	_, err = tensor.Stack([]tensor.Tensor{tensor.Float32s(1), tensor.Float32s(1, 2)}, nil)
	assert.Error(t, err)

	empty, err := tensor.Stack(nil, tensor.NewAbstract(tensor.Int32, 2))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 2}, empty.Shape())
	assert.Equal(t, tensor.Int32, empty.DType())

	assert.Equal(t, []float64{5, 6, 3, 4, 1, 2}, values(t, tensor.Reverse(m)))
}

func TestTruthAndEqual(t *testing.T) {
	ok, err := tensor.Truth(tensor.Greater(tensor.Scalar(tensor.Float32, 3), 2))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = tensor.Truth(tensor.Float32s(1, 2))
	assert.Error(t, err)

	f, err := tensor.Float(tensor.Float32s(0.5))
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)

	assert.True(t, tensor.Equal(tensor.Float32s(1, 2), tensor.Float32s(1, 2)))
	assert.False(t, tensor.Equal(tensor.Float32s(1, 2), tensor.Float64s(1, 2)))
	assert.False(t, tensor.Equal(tensor.NewAbstract(tensor.Float32, 2), tensor.Float32s(1, 2)))
}

func TestStrong(t *testing.T) {
	w, err := tensor.AsTensor(1.0)
	require.NoError(t, err)
	s := tensor.Strong(w)
	assert.False(t, s.(*tensor.Dense).Weak())
	assert.True(t, w.(*tensor.Dense).Weak(), "Strong must not modify its argument")
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "()", tensor.Shape{}.String())
	assert.Equal(t, "(3,)", tensor.Shape{3}.String())
	assert.Equal(t, "(2, 3)", tensor.Shape{2, 3}.String())
	assert.Equal(t, tensor.Shape{2, 4}, tensor.Shape{2, 3, 4}.Without(1))
	assert.Equal(t, 24, tensor.Shape{2, 3, 4}.Size())
}
