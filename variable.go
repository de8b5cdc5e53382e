// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/region"
	"code.hybscloud.com/cellflow/tensor"
	"code.hybscloud.com/cellflow/tree"
)

// NoBatchAxis marks a Variable without a batch axis.
const NoBatchAxis = -1

// Handle is the identity of a Variable. Handles are issued once at
// construction and never reused within a process.
type Handle uint64

var nextHandle atomic.Uint64

func newHandle() Handle { return Handle(nextHandle.Add(1)) }

// Kind classifies a Variable.
type Kind uint8

const (
	// Plain is a Variable holding arbitrary state.
	Plain Kind = iota
	// Trainable is a Variable that optimizers update.
	Trainable
	// Parameter is a Variable that is fixed between training steps.
	Parameter
)

func (k Kind) String() string {
	switch k {
	case Trainable:
		return "trainable"
	case Parameter:
		return "parameter"
	}
	return "plain"
}

// Variable is a [Cell] that combinators thread through trace primitives.
//
// Unlike a plain Cell, a Variable may be updated inside any region. Reads and
// writes are reported to the active discovery recorders, which is how
// combinators learn which Variables a function touches.
type Variable struct {
	Cell
	handle    Handle
	batchAxis int
	kind      Kind
	name      string
}

// VariableOption configures a Variable at construction.
type VariableOption func(*Variable)

// WithBatchAxis marks axis as the batch axis. Updates may change the length
// of that axis.
func WithBatchAxis(axis int) VariableOption { return func(v *Variable) { v.batchAxis = axis } }

// WithKind sets the kind of the Variable.
func WithKind(k Kind) VariableOption { return func(v *Variable) { v.kind = k } }

// WithName sets a name used in error messages and logs.
func WithName(name string) VariableOption { return func(v *Variable) { v.name = name } }

// NewVariable creates a Variable holding v.
func NewVariable(v any, opts ...VariableOption) (*Variable, error) {
	c, err := newCellIn(region.Default, v)
	if err != nil {
		return nil, errors.Wrap(err, "cellflow: new variable")
	}
	return newVariable(c, opts)
}

// NewVariableShaped creates a zero-filled Variable of the given shape.
func NewVariableShaped(dtype tensor.DType, shape tensor.Shape, opts ...VariableOption) (*Variable, error) {
	for _, d := range shape {
		if d < 0 {
			return nil, errors.Errorf("cellflow: negative axis length in shape %s", shape)
		}
	}
	return NewVariable(tensor.Zeros(dtype, shape...), opts...)
}

// MustVariable is like [NewVariable] but panics on error.
func MustVariable(v any, opts ...VariableOption) *Variable {
	x, err := NewVariable(v, opts...)
	if err != nil {
		panic(err)
	}
	return x
}

func newVariable(c *Cell, opts []VariableOption) (*Variable, error) {
	v := &Variable{Cell: *c, handle: newHandle(), batchAxis: NoBatchAxis}
	for _, opt := range opts {
		opt(v)
	}
	if v.batchAxis != NoBatchAxis {
		ndim := c.value.Shape().Rank()
		if v.batchAxis < 0 || v.batchAxis >= ndim {
			return nil, errors.Errorf("cellflow: batch axis %d out of range for %d-dimensional value", v.batchAxis, ndim)
		}
	}
	return v, nil
}

// Handle returns the identity of v.
func (v *Variable) Handle() Handle { return v.handle }

// Kind returns the kind of v.
func (v *Variable) Kind() Kind { return v.kind }

// Name returns the name of v, or an empty string.
func (v *Variable) Name() string { return v.name }

// BatchAxis returns the batch axis, if any.
func (v *Variable) BatchAxis() (int, bool) {
	return v.batchAxis, v.batchAxis != NoBatchAxis
}

// BatchSize returns the length of the batch axis, if any.
func (v *Variable) BatchSize() (int, bool) {
	if v.batchAxis == NoBatchAxis {
		return 0, false
	}
	return v.value.Shape()[v.batchAxis], true
}

// NoBatchShape returns the shape with the batch axis removed.
func (v *Variable) NoBatchShape() tensor.Shape {
	if v.batchAxis == NoBatchAxis {
		return v.value.Shape().Clone()
	}
	return v.value.Shape().Without(v.batchAxis)
}

// Value returns the current value and reports the read to active recorders.
func (v *Variable) Value() tensor.Tensor {
	notify(v)
	return v.value
}

// Update replaces the value and reports the write to active recorders.
// Variables may be updated inside any region.
func (v *Variable) Update(x any) error {
	notify(v)
	t, err := checkValue(v.value, x, v.batchAxis, v.handle)
	if err != nil {
		return err
	}
	v.value = t
	return nil
}

// MustUpdate is like [Variable.Update] but panics on error.
func (v *Variable) MustUpdate(x any) {
	if err := v.Update(x); err != nil {
		panic(err)
	}
}

// get and set bypass recorders and checks. Only state threading uses them.
func (v *Variable) get() tensor.Tensor  { return v.value }
func (v *Variable) set(t tensor.Tensor) { v.value = t }

func (v *Variable) String() string {
	label := fmt.Sprintf("#%d", v.handle)
	if v.name != "" {
		label = v.name + label
	}
	return fmt.Sprintf("Variable(%s, %s%s)", label, v.value.DType(), v.value.Shape())
}

type variableAux struct {
	batchAxis int
	kind      Kind
	name      string
}

func init() {
	tree.Register(func(v *Variable) ([]any, any) {
		return []any{v.value}, variableAux{batchAxis: v.batchAxis, kind: v.kind, name: v.name}
	}, func(aux any, children []any) (*Variable, error) {
		t, err := tensor.AsTensor(children[0])
		if err != nil {
			return nil, err
		}
		a := aux.(variableAux)
		return &Variable{
			Cell:      Cell{value: t, regions: region.Default},
			handle:    newHandle(),
			batchAxis: a.batchAxis,
			kind:      a.kind,
			name:      a.name,
		}, nil
	})
}
