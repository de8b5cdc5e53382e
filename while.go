// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/trace"
)

// WhileLoop calls body while cond holds and returns the final operands.
//
// Both functions receive the current operands spread as positional
// arguments. cond must return a boolean scalar. body returns the next
// operands: a []any of the same structure, shapes and dtypes as the initial
// ones, nil for no operands, or a single value for one operand. Variables
// touched by either function are threaded through the loop; updates made by
// cond are discarded.
//
// On failure every threaded Variable is restored to its value from before
// the call.
func WhileLoop(body, cond Func, operands any, opts ...Option) ([]any, error) {
	if body == nil || cond == nil {
		return nil, errors.New("cellflow: nil while body or condition")
	}
	o := newOptions(opts)
	args := spread(operands)
	return whileLoop("while_loop", &o, body, cond, args, func() (*VariableStack, error) {
		return union("while_loop", args, &o, body, cond)
	})
}

func whileLoop(op string, o *options, body, cond Func, args []any, find func() (*VariableStack, error)) (out []any, err error) {
	_, span := startSpan(o.ctx, op)
	s := NewVariableStack()
	defer func() { endSpan(span, s, err) }()

	found, err := find()
	if err != nil {
		return nil, failure(op, s, err)
	}
	if s, err = o.override(op, found); err != nil {
		return nil, err
	}

	unpack := func(carry any) ([]any, error) {
		pair := carry.([]any)
		if err := s.restore(pair[0]); err != nil {
			return nil, err
		}
		return pair[1].([]any), nil
	}
	predicate := func(carry any) (any, error) {
		ops, err := unpack(carry)
		if err != nil {
			return nil, err
		}
		return call(cond, ops)
	}
	step := func(carry any) (any, error) {
		ops, err := unpack(carry)
		if err != nil {
			return nil, err
		}
		next, err := call(body, ops)
		if err != nil {
			return nil, err
		}
		if !trace.HasAbstract(carry) {
			loopStepsTotal.WithLabelValues(op).Inc()
		}
		return []any{s.snapshot(), tuple(next)}, nil
	}

	if args == nil {
		args = []any{}
	}
	res, err := guarded(op, s, func() (any, error) {
		final, err := trace.While(predicate, step, []any{s.snapshot(), args}, o.traceOptions()...)
		if err != nil {
			return nil, err
		}
		return unpack(final)
	})
	if err != nil {
		return nil, err
	}
	return res.([]any), nil
}

// tuple normalizes a body result to an operand list.
func tuple(x any) []any {
	switch v := x.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	}
	return []any{x}
}

// WhileLoopFunc is a reusable unbounded loop created by [MakeWhile]. Like
// [Loop] it keeps the Variables discovered for each operand signature.
type WhileLoopFunc struct {
	body, cond Func
	opts       []Option
	cache      stackCache
}

// MakeWhile returns a reusable loop running body while cond holds, like
// [WhileLoop].
func MakeWhile(body, cond Func, opts ...Option) (*WhileLoopFunc, error) {
	if body == nil || cond == nil {
		return nil, errors.New("cellflow: nil while body or condition")
	}
	return &WhileLoopFunc{body: body, cond: cond, opts: opts}, nil
}

// Call runs the loop from operands. opts are applied after the options given
// to MakeWhile.
func (w *WhileLoopFunc) Call(operands any, opts ...Option) ([]any, error) {
	o := newOptions(append(append([]Option(nil), w.opts...), opts...))
	args := spread(operands)
	return whileLoop("while_loop", &o, w.body, w.cond, args, func() (*VariableStack, error) {
		key, err := fingerprintOf("while", w.body, args)
		if err != nil {
			return nil, err
		}
		return w.cache.find("while_loop", key, &o, args, w.body, w.cond)
	})
}

// Variables returns the union of the Variables discovered by past calls.
func (w *WhileLoopFunc) Variables() *VariableStack { return w.cache.union() }
