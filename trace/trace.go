// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package trace provides the staged control-flow primitives cellflow threads
// state through.
//
// Every primitive works on pure functions of explicit arguments:
//
//   - [Cond]: two-way conditional
//   - [Scan]: bounded leading-axis loop with stacked per-step outputs
//   - [While]: unbounded loop over a fixed carry
//   - [Checkpoint]: recompute-on-backward marker for scan steps
//   - [EvalShape]: run a function on value-free placeholders
//
// # Staging
//
// In compiled mode (the default) a primitive first stages its function once
// inside a fresh region with [tensor.Abstract] arguments. Staging checks that
// carries keep their structure, shapes and dtypes and that both branches of a
// conditional agree. The function is then executed on concrete values inside
// a region. Interpreted mode ([JIT](false)) skips staging and runs outside any
// region, with the same results.
//
// When any input is already abstract, for example while an enclosing function
// is being staged, a primitive only stages and returns abstract outputs.
//
// A concrete result that still contains an abstract value means a placeholder
// leaked out of the staging pass; this is reported as [ErrEscapedTracer].
package trace

import (
	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/region"
	"code.hybscloud.com/cellflow/tensor"
	"code.hybscloud.com/cellflow/tree"
)

var (
	// ErrEscapedTracer reports an abstract value observed outside the staging
	// pass that produced it.
	ErrEscapedTracer = errors.New("trace: abstract value escaped its trace")

	// ErrCarryMismatch reports a loop carry whose structure, shape or dtype
	// changed across one step.
	ErrCarryMismatch = errors.New("trace: loop carry changed type")

	// ErrBranchMismatch reports conditional branches with different outputs.
	ErrBranchMismatch = errors.New("trace: branch outputs differ")

	// ErrLengthMismatch reports scan inputs with different leading axes.
	ErrLengthMismatch = errors.New("trace: leading axis lengths differ")
)

// Func is a function of positional arguments.
type Func func(args ...any) (any, error)

// StepFunc is one scan step: (carry, x) → (carry', y).
type StepFunc func(carry, x any) (any, any, error)

// CarryFunc maps a loop carry to a value: the next carry or a predicate.
type CarryFunc func(carry any) (any, error)

type config struct {
	reverse bool
	unroll  int
	jit     bool
	onStep  func(done, total int)
	regions *region.Stack
}

// Option configures a primitive.
type Option func(*config)

// Reverse runs a scan from the last leading-axis index to the first.
func Reverse(on bool) Option { return func(c *config) { c.reverse = on } }

// Unroll fuses n scan steps per loop iteration. It never changes results.
func Unroll(n int) Option { return func(c *config) { c.unroll = n } }

// JIT selects compiled (true) or interpreted (false) execution.
func JIT(on bool) Option { return func(c *config) { c.jit = on } }

// OnStep is called after every concrete scan step.
func OnStep(f func(done, total int)) Option { return func(c *config) { c.onStep = f } }

// Regions selects the region stack primitives enter.
func Regions(s *region.Stack) Option { return func(c *config) { c.regions = s } }

func newConfig(opts []Option) config {
	c := config{unroll: 1, jit: true, regions: region.Default}
	for _, opt := range opts {
		opt(&c)
	}
	if c.unroll < 1 {
		c.unroll = 1
	}
	if c.regions == nil {
		c.regions = region.Default
	}
	return c
}

// within runs f inside a region in compiled mode and directly otherwise.
func (c *config) within(kind string, f func() error) error {
	if !c.jit {
		return f()
	}
	return c.regions.Run(kind, func(region.ID) error { return f() })
}

// Abstractify replaces every tensor or Go scalar leaf of x with its
// [tensor.Abstract]. Other leaves are kept as static values.
func Abstractify(x any) (any, error) {
	return tree.Map(func(leaf any) (any, error) {
		if !tensor.IsScalarLike(leaf) {
			return leaf, nil
		}
		t, err := tensor.AsTensor(leaf)
		if err != nil {
			return nil, err
		}
		return tensor.AbstractOf(t), nil
	}, x)
}

// SliceAbstract abstracts x and drops the leading axis of every leaf.
func SliceAbstract(x any) (any, error) {
	return tree.Map(func(leaf any) (any, error) {
		if !tensor.IsScalarLike(leaf) {
			return leaf, nil
		}
		t, err := tensor.AsTensor(leaf)
		if err != nil {
			return nil, err
		}
		shape := t.Shape()
		if len(shape) == 0 {
			return nil, errors.Errorf("trace: cannot slice scalar leaf of %s", t.DType())
		}
		return tensor.NewAbstract(t.DType(), shape[1:]...), nil
	}, x)
}

// HasAbstract reports whether any leaf of x is abstract.
func HasAbstract(x any) bool { return tree.Any(x, tensor.IsAbstract) }

// sameSignature compares the structure of a and b and the shape and dtype
// of their tensor leaves.
func sameSignature(a, b any) error {
	la, da := tree.Flatten(a)
	lb, db := tree.Flatten(b)
	if !da.Equal(db) {
		return errors.Errorf("structure %s != %s", da, db)
	}
	for i := range la {
		if !tensor.IsScalarLike(la[i]) || !tensor.IsScalarLike(lb[i]) {
			continue
		}
		ta, err := tensor.AsTensor(la[i])
		if err != nil {
			return err
		}
		tb, err := tensor.AsTensor(lb[i])
		if err != nil {
			return err
		}
		if !ta.Shape().Equal(tb.Shape()) || ta.DType() != tb.DType() {
			return errors.Errorf("leaf %d: %s%s != %s%s", i, ta.DType(), ta.Shape(), tb.DType(), tb.Shape())
		}
	}
	return nil
}

// stage runs f once on abstract arguments inside a fresh region.
func stage(c *config, kind string, f Func, args []any) (any, error) {
	abs, err := Abstractify(args)
	if err != nil {
		return nil, err
	}
	var out any
	err = c.regions.Run(kind, func(region.ID) error {
		var ferr error
		out, ferr = f(abs.([]any)...)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EvalShape runs f on abstract versions of args and returns its abstract
// outputs. No concrete computation is performed.
func EvalShape(f Func, args []any, opts ...Option) (any, error) {
	c := newConfig(opts)
	out, err := stage(&c, "eval_shape", f, args)
	if err != nil {
		return nil, err
	}
	return Abstractify(out)
}
