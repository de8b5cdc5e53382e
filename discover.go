// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"log/slog"

	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/region"
	"code.hybscloud.com/cellflow/tensor"
	"code.hybscloud.com/cellflow/trace"
)

// Discover returns the Variables fn reads or writes when called with
// operands, in first-access order.
//
// fn runs once inside a fresh region with every operand leaf replaced by a
// [tensor.Abstract]. The values of all recorded Variables are restored
// afterwards, so discovery has no visible effect on them. In interpreted mode
// ([WithJIT](false) or [Config.DisableJIT]) a function that needs concrete
// values is run once more on the operands themselves.
//
// Results are cached by fn and the structure, shapes and dtypes of operands.
// A function whose set of touched Variables changes between calls keeps its
// first result until [InvalidateDiscovery] or [ResetDiscoveryCache] is
// called, or the call passes [WithoutCache].
func Discover(fn Func, operands any, opts ...Option) (*VariableStack, error) {
	o := newOptions(opts)
	return discover("discover", fn, spread(operands), &o)
}

func discover(op string, fn Func, args []any, o *options) (*VariableStack, error) {
	abs, err := trace.Abstractify(args)
	if err != nil {
		return nil, errors.Wrap(err, "cellflow: discover")
	}
	absArgs, _ := abs.([]any)
	s, err := discoverAbstract(op, fn, absArgs, o)
	if err != nil && concreteFallback(o, args, err) {
		return discoverConcrete(op, fn, args)
	}
	return s, err
}

func discoverAbstract(op string, fn Func, absArgs []any, o *options) (*VariableStack, error) {
	if o.noCache {
		s, err := record(fn, absArgs)
		if err != nil {
			discoveryTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		discoveryTotal.WithLabelValues("uncached").Inc()
		return s, nil
	}
	key, err := fingerprintOf(op, fn, absArgs)
	if err != nil {
		return nil, err
	}
	s, hit, err := discoveries.build(key, fn, func() (*VariableStack, error) {
		return record(fn, absArgs)
	})
	if err != nil {
		discoveryTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if hit {
		discoveryTotal.WithLabelValues("hit").Inc()
		report(s)
	} else {
		discoveryTotal.WithLabelValues("miss").Inc()
	}
	logger().Debug("variables discovered",
		slog.String("op", op),
		slog.Bool("cached", hit),
		slog.Int("variables", s.Len()))
	return s, nil
}

// concreteFallback reports whether a discovery that failed on placeholders
// may be retried on the concrete operands. Interpreted calls allow bodies
// that branch on operand values.
func concreteFallback(o *options, args []any, err error) bool {
	return !o.jit && errors.Is(err, tensor.ErrAbstractValue) && !trace.HasAbstract(args)
}

// discoverConcrete records a run of fn on concrete operands. The result
// depends on operand values and is never cached.
func discoverConcrete(op string, fn Func, args []any) (*VariableStack, error) {
	s, err := record(fn, args)
	if err != nil {
		discoveryTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	discoveryTotal.WithLabelValues("concrete").Inc()
	logger().Debug("variables discovered on concrete operands",
		slog.String("op", op),
		slog.Int("variables", s.Len()))
	return s, nil
}

// record runs fn under a recorder and a discovery region.
func record(fn Func, args []any) (*VariableStack, error) {
	r := acquireRecorder()
	defer releaseRecorder(r)
	pushRecorder(r)
	err := region.Default.Run("discover", func(region.ID) error {
		_, err := call(fn, args)
		return err
	})
	popErr := popRecorder(r)
	r.rewind()
	if err != nil {
		return nil, errors.Wrap(err, "cellflow: discover")
	}
	if popErr != nil {
		return nil, popErr
	}
	return r.stack, nil
}

// union discovers every function on the same operands and merges the
// results in argument order.
func union(op string, args []any, o *options, fns ...Func) (*VariableStack, error) {
	out := NewVariableStack()
	for _, fn := range fns {
		s, err := discover(op, fn, args, o)
		if err != nil {
			return nil, err
		}
		out.Merge(s)
	}
	return out, nil
}
