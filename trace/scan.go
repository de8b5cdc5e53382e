// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trace

import (
	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/tensor"
	"code.hybscloud.com/cellflow/tree"
)

// LeadingLength returns the common leading-axis length of the tensor leaves of xs.
func LeadingLength(xs any) (int, error) {
	n := -1
	for _, leaf := range tree.Leaves(xs) {
		if !tensor.IsScalarLike(leaf) {
			continue
		}
		t, err := tensor.AsTensor(leaf)
		if err != nil {
			return 0, err
		}
		shape := t.Shape()
		if len(shape) == 0 {
			return 0, errors.Wrapf(ErrLengthMismatch, "scalar leaf has no leading axis")
		}
		if n >= 0 && shape[0] != n {
			return 0, errors.Wrapf(ErrLengthMismatch, "%d != %d", n, shape[0])
		}
		n = shape[0]
	}
	if n < 0 {
		return 0, errors.Wrap(ErrLengthMismatch, "no array leaves to scan over")
	}
	return n, nil
}

// Scan applies step along the leading axis of xs, threading carry.
//
// It returns the final carry and the per-step outputs stacked along a new
// leading axis; ys[i] is the output of the step that consumed xs[i], also
// when running in reverse.
func Scan(step StepFunc, init any, xs any, opts ...Option) (any, any, error) {
	c := newConfig(opts)
	n, err := LeadingLength(xs)
	if err != nil {
		return nil, nil, err
	}
	abstract := HasAbstract(init) || HasAbstract(xs)

	var yShape any
	if abstract || c.jit || n == 0 {
		carry, y, err := stageStep(&c, step, init, xs)
		if err != nil {
			return nil, nil, err
		}
		yShape = y
		if abstract {
			ys, err := tree.Map(func(leaf any) (any, error) {
				if !tensor.IsScalarLike(leaf) {
					return leaf, nil
				}
				t, _ := tensor.AsTensor(leaf)
				return tensor.NewAbstract(t.DType(), append([]int{n}, t.Shape()...)...), nil
			}, y)
			if err != nil {
				return nil, nil, err
			}
			return carry, ys, nil
		}
	}

	xLeaves, xDef := tree.Flatten(xs)
	perStep := make([][]any, n)
	var yDef *tree.Def
	carry := init
	run := func() error {
		for start := 0; start < n; start += c.unroll {
			for k := start; k < min(start+c.unroll, n); k++ {
				i := k
				if c.reverse {
					i = n - 1 - k
				}
				x, err := sliceAt(xLeaves, xDef, i)
				if err != nil {
					return err
				}
				next, y, err := step(carry, x)
				if err != nil {
					return err
				}
				if err := sameSignature(carry, next); err != nil {
					return errors.Wrapf(ErrCarryMismatch, "step %d: %v", i, err)
				}
				leaves, def := tree.Flatten(y)
				if yDef == nil {
					yDef = def
				} else if !yDef.Equal(def) {
					return errors.Errorf("trace: scan output structure changed at step %d: %s != %s", i, yDef, def)
				}
				perStep[i] = leaves
				carry = next
				if c.onStep != nil {
					c.onStep(k+1, n)
				}
			}
		}
		return nil
	}
	if err := c.within("scan", run); err != nil {
		return nil, nil, err
	}

	ys, err := stackOutputs(perStep, yDef, yShape)
	if err != nil {
		return nil, nil, err
	}
	if HasAbstract(carry) || HasAbstract(ys) {
		return nil, nil, errors.Wrap(ErrEscapedTracer, "scan result")
	}
	return carry, ys, nil
}

// stageStep stages one step and checks that the carry keeps its type.
func stageStep(c *config, step StepFunc, init, xs any) (any, any, error) {
	absInit, err := Abstractify(init)
	if err != nil {
		return nil, nil, err
	}
	absX, err := SliceAbstract(xs)
	if err != nil {
		return nil, nil, err
	}
	out, err := stage(c, "scan", func(args ...any) (any, error) {
		next, y, err := step(args[0], args[1])
		if err != nil {
			return nil, err
		}
		return []any{next, y}, nil
	}, []any{absInit, absX})
	if err != nil {
		return nil, nil, err
	}
	pair := out.([]any)
	if err := sameSignature(absInit, pair[0]); err != nil {
		return nil, nil, errors.Wrapf(ErrCarryMismatch, "%v", err)
	}
	carry, err := Abstractify(pair[0])
	if err != nil {
		return nil, nil, err
	}
	y, err := Abstractify(pair[1])
	if err != nil {
		return nil, nil, err
	}
	return carry, y, nil
}

// SliceAt returns index i along the leading axis of every tensor leaf of xs.
func SliceAt(xs any, i int) (any, error) {
	leaves, def := tree.Flatten(xs)
	return sliceAt(leaves, def, i)
}

func sliceAt(leaves []any, def *tree.Def, i int) (any, error) {
	sliced := make([]any, len(leaves))
	for j, leaf := range leaves {
		if !tensor.IsScalarLike(leaf) {
			sliced[j] = leaf
			continue
		}
		sliced[j] = tensor.Index(leaf, i)
	}
	return tree.Unflatten(def, sliced)
}

// stackOutputs stacks per-step leaves. yShape, when known, describes the
// element shapes for an empty scan.
func stackOutputs(perStep [][]any, def *tree.Def, yShape any) (any, error) {
	if len(perStep) == 0 {
		return tree.Map(func(leaf any) (any, error) {
			t, ok := leaf.(tensor.Tensor)
			if !ok {
				return leaf, nil
			}
			return tensor.Stack(nil, t)
		}, yShape)
	}
	n := def.NumLeaves()
	stacked := make([]any, n)
	column := make([]tensor.Tensor, len(perStep))
	for j := range n {
		for i, leaves := range perStep {
			t, err := tensor.AsTensor(leaves[j])
			if err != nil {
				return nil, errors.Wrapf(err, "trace: scan output leaf %d", j)
			}
			column[i] = t
		}
		s, err := tensor.Stack(column, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "trace: scan output leaf %d", j)
		}
		stacked[j] = s
	}
	return tree.Unflatten(def, stacked)
}

// Checkpoint marks step for rematerialization. This package has no
// differentiation pass, so the marker has no effect: the returned step
// behaves exactly like step.
func Checkpoint(step StepFunc) StepFunc {
	return func(carry, x any) (any, any, error) {
		return step(carry, x)
	}
}
