// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/cellflow"
	"code.hybscloud.com/cellflow/tensor"
)

func TestCondSelection(t *testing.T) {
	for name, jit := range jitModes {
		t.Run(name, func(t *testing.T) {
			a := cellflow.MustVariable(tensor.Float32s(0, 0))
			b := cellflow.MustVariable(tensor.Float32s(1, 1))
			onTrue := cellflow.Func(func(...any) (any, error) {
				return nil, a.Update(tensor.Add(a.Value(), 1))
			})
			onFalse := cellflow.Func(func(...any) (any, error) {
				return nil, b.Update(tensor.Sub(b.Value(), 1))
			})

			_, err := cellflow.Cond(true, onTrue, onFalse, nil, cellflow.WithJIT(jit))
			require.NoError(t, err)
			assert.Equal(t, []float64{1, 1}, vals(t, a))
			assert.Equal(t, []float64{1, 1}, vals(t, b))

			_, err = cellflow.Cond(false, onTrue, onFalse, nil, cellflow.WithJIT(jit))
			require.NoError(t, err)
			assert.Equal(t, []float64{1, 1}, vals(t, a))
			assert.Equal(t, []float64{0, 0}, vals(t, b))
		})
	}
}

func TestCondOperandsAndOutputs(t *testing.T) {
	a := cellflow.MustVariable(tensor.Float32s(10))
	onTrue := func(args ...any) (any, error) {
		if err := a.Update(tensor.Add(a.Value(), args[0])); err != nil {
			return nil, err
		}
		return tensor.Mul(args[0], args[1]), nil
	}
	onFalse := func(args ...any) (any, error) {
		return tensor.Sub(args[0], args[1]), nil
	}
	out, err := cellflow.Cond(tensor.Less(tensor.Scalar(tensor.Float32, 1), 2), onTrue, onFalse,
		[]any{tensor.Float32s(3), tensor.Float32s(4)})
	require.NoError(t, err)
	assert.Equal(t, []float64{12}, dense(t, out).Values())
	assert.Equal(t, []float64{13}, vals(t, a))

	// A single non-slice operand is passed as the only argument.
	out, err = cellflow.Cond(false, cellflow.Func(func(args ...any) (any, error) {
		return args[0], nil
	}), cellflow.Func(func(args ...any) (any, error) {
		return tensor.Neg(args[0]), nil
	}), tensor.Float32s(2))
	require.NoError(t, err)
	assert.Equal(t, []float64{-2}, dense(t, out).Values())
}

func TestCondConstantBranches(t *testing.T) {
	out, err := cellflow.Cond(true, tensor.Float32s(1), tensor.Float32s(2), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, dense(t, out).Values())

	_, err = cellflow.Cond(true, func() {}, 1, nil)
	assert.Error(t, err)
}

func TestCondBranchMismatchRollsBack(t *testing.T) {
	a := cellflow.MustVariable(tensor.Float32s(0))
	_, err := cellflow.Cond(true, cellflow.Func(func(...any) (any, error) {
		return tensor.Float32s(1), a.Update(tensor.Float32s(5))
	}), tensor.Float32s(1, 2), nil)
	var rb *cellflow.RollbackError
	require.True(t, errors.As(err, &rb))
	assert.Equal(t, "cond", rb.Op)
	assert.Equal(t, []float64{0}, vals(t, a))
}

func TestCondPanicRollsBack(t *testing.T) {
	a := cellflow.MustVariable(tensor.Float32s(0))
	_, err := cellflow.Cond(true, cellflow.Func(func(...any) (any, error) {
		a.MustUpdate(tensor.Float32s(5))
		tensor.Add(tensor.Float32s(1, 2), tensor.Float32s(1, 2, 3))
		return nil, nil
	}), nil, nil, cellflow.WithJIT(false))
	var rb *cellflow.RollbackError
	require.True(t, errors.As(err, &rb))
	assert.Equal(t, []float64{0}, vals(t, a))
}

func TestMakeCond(t *testing.T) {
	a := cellflow.MustVariable(tensor.Scalar(tensor.Int32, 0))
	c, err := cellflow.MakeCond(cellflow.Func(func(args ...any) (any, error) {
		return nil, a.Update(tensor.Add(a.Value(), args[0]))
	}), nil)
	require.NoError(t, err)
	for i, pred := range []bool{true, false, true} {
		_, err := c.Call(pred, tensor.Scalar(tensor.Int32, float64(i+1)))
		require.NoError(t, err)
	}
	assert.Equal(t, []float64{4}, vals(t, a))

	_, err = cellflow.MakeCond(func(int) int { return 0 }, nil)
	assert.Error(t, err)
}

func TestIfElse(t *testing.T) {
	cases := map[float64]float64{11: 1, 7: 2, 3: 3, 1: 4, -1: 5}
	for v, want := range cases {
		a := tensor.Scalar(tensor.Float32, v)
		got, err := cellflow.IfElse(
			[]any{tensor.Greater(a, 10), tensor.Greater(a, 5), tensor.Greater(a, 2), tensor.Greater(a, 0)},
			[]any{1, 2, 3, 4, 5},
			nil)
		require.NoError(t, err)
		f, err := tensor.Float(got)
		require.NoError(t, err)
		assert.Equal(t, want, f, "a=%v", v)
	}
}

func TestIfElseThreadsVariables(t *testing.T) {
	for name, jit := range jitModes {
		t.Run(name, func(t *testing.T) {
			hits := []*cellflow.Variable{
				cellflow.MustVariable(tensor.Float32s(0)),
				cellflow.MustVariable(tensor.Float32s(0)),
				cellflow.MustVariable(tensor.Float32s(0)),
			}
			branch := func(i int) cellflow.Func {
				return func(args ...any) (any, error) {
					return args[0], hits[i].Update(tensor.Add(hits[i].Value(), args[0]))
				}
			}
			branches := []any{branch(0), branch(1), branch(2)}
			for _, x := range []float64{5, -5, 0} {
				conds := []any{x > 0, x < 0}
				out, err := cellflow.IfElse(conds, branches, tensor.Float32s(1), cellflow.WithJIT(jit))
				require.NoError(t, err)
				assert.Equal(t, []float64{1}, dense(t, out).Values())
			}
			for i, h := range hits {
				assert.Equal(t, []float64{1}, vals(t, h), "branch %d", i)
			}
		})
	}
}

func TestIfElseArityMismatch(t *testing.T) {
	_, err := cellflow.IfElse([]any{true, false}, []any{1, 2}, nil)
	var ae *cellflow.ArityMismatchError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 2, ae.Conditions)
	assert.Equal(t, 2, ae.Branches)
	assert.True(t, errors.Is(err, cellflow.ErrArityMismatch))

	_, err = cellflow.IfElse(nil, []any{1}, nil)
	assert.True(t, errors.Is(err, cellflow.ErrArityMismatch))
}

func TestDeprecatedOptions(t *testing.T) {
	var buf bytes.Buffer
	cellflow.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { cellflow.SetLogger(nil) })

	a := cellflow.MustVariable(tensor.Float32s(0))
	b := cellflow.MustVariable(tensor.Float32s(0))
	onTrue := cellflow.Func(func(...any) (any, error) { return nil, a.Update(tensor.Add(a.Value(), 1)) })

	_, err := cellflow.Cond(true, onTrue, nil, nil, cellflow.WithDynVars(b), cellflow.WithChildObjs(struct{}{}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vals(t, a))
	assert.Contains(t, buf.String(), "deprecated option ignored")
	assert.Contains(t, buf.String(), "level=WARN")

	_, err = cellflow.Cond(true, onTrue, nil, nil, cellflow.WithDynVars(a), cellflow.WithExclude(a))
	var ic *cellflow.IdentityConflictError
	require.True(t, errors.As(err, &ic))
	assert.Equal(t, []cellflow.Handle{a.Handle()}, ic.Handles)
	assert.True(t, errors.Is(err, cellflow.ErrIdentityConflict))
	assert.Equal(t, []float64{1}, vals(t, a))
}

func TestCondInterpretedConcreteControlFlow(t *testing.T) {
	a := cellflow.MustVariable(tensor.Float32s(0))
	clamp := cellflow.Func(func(args ...any) (any, error) {
		x, err := tensor.Float(args[0])
		if err != nil {
			return nil, err
		}
		if x > 10 {
			x = 10
		}
		return nil, a.Update(tensor.Float32s(x))
	})
	for _, v := range []float64{4, 40} {
		_, err := cellflow.Cond(true, clamp, nil, tensor.Scalar(tensor.Float32, v), cellflow.WithJIT(false))
		require.NoError(t, err)
	}
	assert.Equal(t, []float64{10}, vals(t, a))

	_, err := cellflow.Cond(true, clamp, nil, tensor.Scalar(tensor.Float32, 1))
	assert.True(t, errors.Is(err, cellflow.ErrTracerEscape))
	assert.Equal(t, []float64{10}, vals(t, a))
}
