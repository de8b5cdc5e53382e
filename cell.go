// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/region"
	"code.hybscloud.com/cellflow/tensor"
	"code.hybscloud.com/cellflow/tree"
)

// Mutable is implemented by [Cell] and [Variable].
type Mutable interface {
	Value() tensor.Tensor
	Update(v any) error
}

// Cell is a mutable holder of one tensor value, tagged with the trace region
// that was active when it was created.
//
// A Cell may only be updated while the same region is active, or while no
// region is active if it was created outside of any region. Use a [Variable]
// for state that must be updated from inside combinator bodies.
type Cell struct {
	value   tensor.Tensor
	owner   region.ID
	bound   bool
	regions *region.Stack
}

// NewCell creates a Cell holding v in the current region of [region.Default].
func NewCell(v any) (*Cell, error) {
	return newCellIn(region.Default, v)
}

// MustCell is like [NewCell] but panics on error.
func MustCell(v any) *Cell {
	c, err := NewCell(v)
	if err != nil {
		panic(err)
	}
	return c
}

func newCellIn(s *region.Stack, v any) (*Cell, error) {
	t, err := tensor.AsTensor(v)
	if err != nil {
		return nil, errors.Wrap(err, "cellflow: new cell")
	}
	c := &Cell{value: tensor.Strong(t), regions: s}
	c.owner, c.bound = s.Current()
	return c, nil
}

// Value returns the current value.
func (c *Cell) Value() tensor.Tensor { return c.value }

// Shape returns the shape of the current value.
func (c *Cell) Shape() tensor.Shape { return c.value.Shape() }

// DType returns the dtype of the current value.
func (c *Cell) DType() tensor.DType { return c.value.DType() }

// Region returns the region the cell was created in.
func (c *Cell) Region() (region.ID, bool) { return c.owner, c.bound }

// Update replaces the value. The region is checked first, then the shape and
// the dtype of v.
func (c *Cell) Update(v any) error {
	if err := c.checkRegion(); err != nil {
		return err
	}
	t, err := checkValue(c.value, v, NoBatchAxis, 0)
	if err != nil {
		return err
	}
	c.value = t
	return nil
}

func (c *Cell) checkRegion() error {
	active, ok := c.regions.Current()
	switch {
	case !c.bound && ok:
		return &ContextMismatchError{Active: active}
	case c.bound && active != c.owner:
		return &ContextMismatchError{Owner: c.owner, Active: active}
	}
	return nil
}

// checkValue converts v and checks it against the current value old. The
// batch axis, if any, is ignored for the shape comparison.
func checkValue(old tensor.Tensor, v any, batchAxis int, h Handle) (tensor.Tensor, error) {
	t, err := tensor.AsTensor(v)
	if err != nil {
		return nil, errors.Wrap(err, "cellflow: update")
	}
	want, got := old.Shape(), t.Shape()
	if batchAxis != NoBatchAxis && len(got) == len(want) {
		want, got = want.Without(batchAxis), got.Without(batchAxis)
	}
	if !want.Equal(got) {
		return nil, &ShapeMismatchError{Handle: h, Want: old.Shape(), Got: t.Shape(), BatchAxis: batchAxis}
	}
	if old.DType() != t.DType() {
		return nil, &DtypeMismatchError{Handle: h, Want: old.DType(), Got: t.DType()}
	}
	return tensor.Strong(t), nil
}

func init() {
	tree.Register(func(c *Cell) ([]any, any) {
		return []any{c.value}, nil
	}, func(_ any, children []any) (*Cell, error) {
		t, err := tensor.AsTensor(children[0])
		if err != nil {
			return nil, err
		}
		return &Cell{value: t, regions: region.Default}, nil
	})
}
