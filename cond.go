// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"reflect"

	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/trace"
)

// branch is one arm of a conditional.
type branch struct {
	f Func
	// static arms return a constant and touch no Variables.
	static bool
	// fresh arms are built per call and are never cached.
	fresh bool
}

// liftBranch accepts a Func, a func(...any) (any, error) or a constant.
// Constants become functions that return them.
func liftBranch(b any) (branch, error) {
	switch f := b.(type) {
	case Func:
		if f == nil {
			return branch{}, errors.New("cellflow: nil branch")
		}
		return branch{f: f}, nil
	case func(...any) (any, error):
		if f == nil {
			return branch{}, errors.New("cellflow: nil branch")
		}
		return branch{f: f}, nil
	}
	if b != nil && reflect.TypeOf(b).Kind() == reflect.Func {
		return branch{}, errors.Errorf("cellflow: branch of type %T must be a cellflow.Func", b)
	}
	return branch{f: func(...any) (any, error) { return b, nil }, static: true}, nil
}

// Cond calls onTrue or onFalse with operands depending on pred, and threads
// the Variables either branch touches.
//
// Both branches must return values of the same structure, shapes and dtypes.
// Only the selected branch mutates Variables. A branch may be a constant, in
// which case it is returned as is. operands follow the usual convention: a
// []any is spread into positional arguments, nil passes none, any other
// value is passed as the only argument.
//
// On failure every threaded Variable is restored to its value from before
// the call.
func Cond(pred, onTrue, onFalse, operands any, opts ...Option) (any, error) {
	t, err := liftBranch(onTrue)
	if err != nil {
		return nil, err
	}
	f, err := liftBranch(onFalse)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return cond("cond", &o, pred, t, f, spread(operands))
}

func cond(op string, o *options, pred any, t, f branch, args []any) (out any, err error) {
	_, span := startSpan(o.ctx, op)
	s := NewVariableStack()
	defer func() { endSpan(span, s, err) }()

	for _, b := range []branch{t, f} {
		if b.static {
			continue
		}
		bo := *o
		bo.noCache = o.noCache || b.fresh
		found, err := discover(op, b.f, args, &bo)
		if err != nil {
			return nil, failure(op, NewVariableStack(), err)
		}
		s.Merge(found)
	}
	if s, err = o.override(op, s); err != nil {
		return nil, err
	}

	topts := o.traceOptions()
	if s.Len() == 0 {
		return guarded(op, s, func() (any, error) {
			return trace.Cond(pred, trace.Func(t.f), trace.Func(f.f), args, topts...)
		})
	}
	init := s.snapshot()
	return guarded(op, s, func() (any, error) {
		r, err := trace.Cond(pred, trace.Func(s.threaded(t.f)), trace.Func(s.threaded(f.f)),
			append([]any{init}, args...), topts...)
		if err != nil {
			return nil, err
		}
		pair := r.([]any)
		if err := s.restore(pair[0]); err != nil {
			return nil, err
		}
		return pair[1], nil
	})
}

// Conditional is a reusable two-way conditional created by [MakeCond].
type Conditional struct {
	onTrue, onFalse branch
	opts            []Option
}

// MakeCond returns a Conditional that calls onTrue or onFalse.
func MakeCond(onTrue, onFalse any, opts ...Option) (*Conditional, error) {
	t, err := liftBranch(onTrue)
	if err != nil {
		return nil, err
	}
	f, err := liftBranch(onFalse)
	if err != nil {
		return nil, err
	}
	return &Conditional{onTrue: t, onFalse: f, opts: opts}, nil
}

// Call runs the conditional like [Cond]. opts are applied after the options
// given to MakeCond.
func (c *Conditional) Call(pred, operands any, opts ...Option) (any, error) {
	o := newOptions(append(append([]Option(nil), c.opts...), opts...))
	return cond("cond", &o, pred, c.onTrue, c.onFalse, spread(operands))
}
