// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"sync"

	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/trace"
)

// ForLoop calls body once per index of the leading axis of operands and
// threads the Variables body touches.
//
// body receives one slice of every operand, spread as positional arguments.
// Its outputs are stacked along a new leading axis: element i is the output
// of the step that consumed operands[i], also with [WithReverse]. All operand
// leaves must share the same leading-axis length.
//
// On failure every threaded Variable is restored to its value from before
// the call.
func ForLoop(body Func, operands any, opts ...Option) (any, error) {
	if body == nil {
		return nil, errors.New("cellflow: nil loop body")
	}
	o := newOptions(opts)
	return forLoop("for_loop", &o, body, spread(operands), func(sliced []any) (*VariableStack, error) {
		return discover("for_loop", body, sliced, &o)
	})
}

func forLoop(op string, o *options, body Func, xs []any, find func([]any) (*VariableStack, error)) (out any, err error) {
	_, span := startSpan(o.ctx, op)
	s := NewVariableStack()
	defer func() { endSpan(span, s, err) }()

	n, err := trace.LeadingLength(xs)
	if err != nil {
		return nil, &SizeMismatchError{Err: err}
	}
	// Discovery sees the first slice, abstracted unless a concrete run is
	// needed in interpreted mode.
	sliced, err := trace.SliceAbstract(xs)
	if n > 0 && !trace.HasAbstract(xs) {
		sliced, err = trace.SliceAt(xs, 0)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cellflow: slice operands")
	}
	found, err := find(sliced.([]any))
	if err != nil {
		return nil, failure(op, s, err)
	}
	if s, err = o.override(op, found); err != nil {
		return nil, err
	}

	step := func(carry, x any) (any, any, error) {
		if err := s.restore(carry); err != nil {
			return nil, nil, err
		}
		y, err := call(body, x.([]any))
		if err != nil {
			return nil, nil, err
		}
		if !trace.HasAbstract(x) {
			loopStepsTotal.WithLabelValues(op).Inc()
		}
		return s.snapshot(), y, nil
	}
	if o.remat {
		step = trace.Checkpoint(step)
	}
	topts := o.traceOptions()
	return guarded(op, s, func() (any, error) {
		final, ys, err := trace.Scan(step, s.snapshot(), xs, topts...)
		if err != nil {
			return nil, err
		}
		if err := s.restore(final); err != nil {
			return nil, err
		}
		return ys, nil
	})
}

// stackCache keeps the Variables a reusable combinator discovered, per
// operand signature, in first-discovery order.
type stackCache struct {
	mu     sync.Mutex
	keys   []uint64
	stacks map[uint64]*VariableStack
}

func (c *stackCache) lookup(key uint64) (*VariableStack, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stacks[key]
	return s, ok
}

func (c *stackCache) store(key uint64, s *VariableStack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stacks == nil {
		c.stacks = make(map[uint64]*VariableStack)
	}
	if _, ok := c.stacks[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.stacks[key] = s
}

// union returns every stored Variable.
func (c *stackCache) union() *VariableStack {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := NewVariableStack()
	for _, k := range c.keys {
		out.Merge(c.stacks[k])
	}
	return out
}

// find returns the stack cached under key, or records fns on args and
// caches the result. Concrete fallbacks are returned but not cached.
func (c *stackCache) find(op string, key uint64, o *options, args []any, fns ...Func) (*VariableStack, error) {
	if s, ok := c.lookup(key); ok && !o.noCache {
		report(s)
		return s.Clone(), nil
	}
	abs, err := trace.Abstractify(args)
	if err != nil {
		return nil, err
	}
	absArgs, _ := abs.([]any)
	s := NewVariableStack()
	for _, fn := range fns {
		found, err := record(fn, absArgs)
		if err != nil {
			if concreteFallback(o, args, err) {
				return c.findConcrete(op, args, fns)
			}
			return nil, err
		}
		s.Merge(found)
	}
	c.store(key, s)
	return s.Clone(), nil
}

func (c *stackCache) findConcrete(op string, args []any, fns []Func) (*VariableStack, error) {
	s := NewVariableStack()
	for _, fn := range fns {
		found, err := discoverConcrete(op, fn, args)
		if err != nil {
			return nil, err
		}
		s.Merge(found)
	}
	return s, nil
}

// Loop is a reusable bounded loop created by [MakeLoop]. It keeps the
// Variables discovered for each operand signature for its own lifetime,
// independent of the package discovery cache.
type Loop struct {
	body  Func
	opts  []Option
	cache stackCache
}

// MakeLoop returns a Loop running body like [ForLoop].
func MakeLoop(body Func, opts ...Option) (*Loop, error) {
	if body == nil {
		return nil, errors.New("cellflow: nil loop body")
	}
	return &Loop{body: body, opts: opts}, nil
}

// Call runs the loop over operands. opts are applied after the options given
// to MakeLoop.
func (l *Loop) Call(operands any, opts ...Option) (any, error) {
	o := newOptions(append(append([]Option(nil), l.opts...), opts...))
	return forLoop("for_loop", &o, l.body, spread(operands), func(sliced []any) (*VariableStack, error) {
		key, err := fingerprintOf("loop", l.body, sliced)
		if err != nil {
			return nil, err
		}
		return l.cache.find("for_loop", key, &o, sliced, l.body)
	})
}

// Variables returns the union of the Variables discovered by past calls.
func (l *Loop) Variables() *VariableStack { return l.cache.union() }
