// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tensor

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Shape is the list of axis lengths of a tensor. A nil or empty Shape is a scalar.
type Shape []int

// Rank returns the number of axes.
func (s Shape) Rank() int { return len(s) }

// Size returns the number of elements.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether s and o have the same axes.
func (s Shape) Equal(o Shape) bool { return slices.Equal(s, o) }

// Clone returns a copy of s that does not alias it.
func (s Shape) Clone() Shape {
	if len(s) == 0 {
		return Shape{}
	}
	return slices.Clone(s)
}

// Without returns s with the given axis removed.
func (s Shape) Without(axis int) Shape {
	if axis < 0 || axis >= len(s) {
		return s.Clone()
	}
	out := make(Shape, 0, len(s)-1)
	out = append(out, s[:axis]...)
	return append(out, s[axis+1:]...)
}

func (s Shape) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, d := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(d))
	}
	if len(s) == 1 {
		b.WriteByte(',')
	}
	b.WriteByte(')')
	return b.String()
}

// strides returns row-major strides for s.
func (s Shape) strides() []int {
	st := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= s[i]
	}
	return st
}

// Broadcast returns the shape two operands broadcast to, following the
// usual trailing-axis alignment rule.
func Broadcast(a, b Shape) (Shape, error) {
	n := max(len(a), len(b))
	out := make(Shape, n)
	for i := range n {
		da, db := 1, 1
		if j := len(a) - n + i; j >= 0 {
			da = a[j]
		}
		if j := len(b) - n + i; j >= 0 {
			db = b[j]
		}
		switch {
		case da == db, db == 1:
			out[i] = da
		case da == 1:
			out[i] = db
		default:
			return nil, errors.Errorf("tensor: shapes %s and %s are not broadcastable", a, b)
		}
	}
	return out, nil
}
