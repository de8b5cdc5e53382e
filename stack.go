// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"iter"
	"slices"
)

// VariableStack is an ordered set of Variables keyed by [Handle].
// Insertion order is the canonical order of snapshots.
type VariableStack struct {
	order []Handle
	vars  map[Handle]*Variable
}

// NewVariableStack returns a stack holding vars in order, without duplicates.
func NewVariableStack(vars ...*Variable) *VariableStack {
	s := &VariableStack{vars: make(map[Handle]*Variable, len(vars))}
	for _, v := range vars {
		s.Add(v)
	}
	return s
}

// Add appends v unless a Variable with the same handle is already present.
// It reports whether v was added.
func (s *VariableStack) Add(v *Variable) bool {
	if s.vars == nil {
		s.vars = make(map[Handle]*Variable)
	}
	if _, ok := s.vars[v.handle]; ok {
		return false
	}
	s.vars[v.handle] = v
	s.order = append(s.order, v.handle)
	return true
}

// Len returns the number of Variables.
func (s *VariableStack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Handles returns the handles in order.
func (s *VariableStack) Handles() []Handle {
	if s == nil {
		return nil
	}
	return slices.Clone(s.order)
}

// Get returns the Variable with handle h.
func (s *VariableStack) Get(h Handle) (*Variable, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.vars[h]
	return v, ok
}

// Contains reports whether v is in the stack.
func (s *VariableStack) Contains(v *Variable) bool {
	_, ok := s.Get(v.handle)
	return ok
}

// Vars returns the Variables in order.
func (s *VariableStack) Vars() []*Variable {
	if s == nil {
		return nil
	}
	out := make([]*Variable, len(s.order))
	for i, h := range s.order {
		out[i] = s.vars[h]
	}
	return out
}

// All iterates over the Variables in order.
func (s *VariableStack) All() iter.Seq2[Handle, *Variable] {
	return func(yield func(Handle, *Variable) bool) {
		if s == nil {
			return
		}
		for _, h := range s.order {
			if !yield(h, s.vars[h]) {
				return
			}
		}
	}
}

// Merge adds the Variables of o that are not yet present, keeping the
// first-seen order.
func (s *VariableStack) Merge(o *VariableStack) {
	for _, v := range o.All() {
		s.Add(v)
	}
}

// Union returns a new stack with the Variables of s followed by those of
// others that are not in s.
func (s *VariableStack) Union(others ...*VariableStack) *VariableStack {
	out := NewVariableStack(s.Vars()...)
	for _, o := range others {
		out.Merge(o)
	}
	return out
}

// Remove deletes the Variables with the given handles.
func (s *VariableStack) Remove(hs ...Handle) {
	if s == nil {
		return
	}
	for _, h := range hs {
		delete(s.vars, h)
	}
	s.order = slices.DeleteFunc(s.order, func(h Handle) bool {
		_, ok := s.vars[h]
		return !ok
	})
}

// Clone returns a shallow copy of s.
func (s *VariableStack) Clone() *VariableStack {
	return NewVariableStack(s.Vars()...)
}
