// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/tensor"
)

// State threading.
//
// A combinator turns an impure function over Variables into a pure step over
// an explicit state: the values of its VariableStack, in stack order. The
// step restores the Variables from its input state, runs the function, and
// snapshots the Variables again as its output state.

// snapshot returns the current values in stack order.
func (s *VariableStack) snapshot() []any {
	out := make([]any, s.Len())
	for i, h := range s.order {
		out[i] = s.vars[h].get()
	}
	return out
}

// restore sets the Variables from a state produced by snapshot.
func (s *VariableStack) restore(state any) error {
	vals, ok := state.([]any)
	if !ok || len(vals) != s.Len() {
		return errors.Errorf("cellflow: state of %d variables, got %T", s.Len(), state)
	}
	for i, h := range s.order {
		t, err := tensor.AsTensor(vals[i])
		if err != nil {
			return errors.Wrapf(err, "cellflow: restore variable #%d", h)
		}
		s.vars[h].set(t)
	}
	return nil
}

// threaded wraps f into a step over (state, operands). The returned function
// takes the state as its first argument and returns []any{state', out}.
func (s *VariableStack) threaded(f Func) Func {
	return func(args ...any) (any, error) {
		if err := s.restore(args[0]); err != nil {
			return nil, err
		}
		out, err := call(f, args[1:])
		if err != nil {
			return nil, err
		}
		return []any{s.snapshot(), out}, nil
	}
}

// call runs f and turns a panic into an error.
func call(f Func, args []any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return f(args...)
}
