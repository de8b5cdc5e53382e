// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"context"
	"log/slog"

	"code.hybscloud.com/cellflow/trace"
)

// Func is a function of positional operands. Bodies and branches read and
// update Variables they capture; combinators thread those Variables.
type Func func(args ...any) (any, error)

type options struct {
	reverse  bool
	unroll   int
	remat    bool
	jit      bool
	progress func(done, total int)
	noCache  bool

	dynVars   []*Variable
	childObjs []any
	exclude   []*Variable

	ctx context.Context
}

// Option configures a combinator call.
type Option func(*options)

// WithReverse makes ForLoop iterate from the last leading-axis index to the
// first. Outputs stay aligned with the operands they were computed from.
func WithReverse() Option { return func(o *options) { o.reverse = true } }

// WithUnroll fuses n loop steps per iteration of the underlying scan.
func WithUnroll(n int) Option { return func(o *options) { o.unroll = n } }

// WithRemat wraps the loop step in [trace.Checkpoint]. It is a marker only:
// without a differentiation pass it does not change execution.
func WithRemat() Option { return func(o *options) { o.remat = true } }

// WithJIT selects compiled (true) or interpreted (false) execution. Both
// give identical results. [Config.DisableJIT] takes precedence.
func WithJIT(on bool) Option { return func(o *options) { o.jit = on } }

// WithProgress calls f after every ForLoop step with the number of finished
// steps and the total.
func WithProgress(f func(done, total int)) Option { return func(o *options) { o.progress = f } }

// WithoutCache forces a fresh discovery of the Variables a function touches.
func WithoutCache() Option { return func(o *options) { o.noCache = true } }

// WithContext sets the context used for the call's span.
func WithContext(ctx context.Context) Option { return func(o *options) { o.ctx = ctx } }

// WithExclude removes vars from the discovered Variables. Excluded Variables
// are not threaded and not rolled back.
func WithExclude(vars ...*Variable) Option {
	return func(o *options) { o.exclude = append(o.exclude, vars...) }
}

// WithDynVars is accepted for compatibility and ignored: Variables are
// discovered automatically.
//
// Deprecated: remove the option.
func WithDynVars(vars ...*Variable) Option {
	return func(o *options) { o.dynVars = append(o.dynVars, vars...) }
}

// WithChildObjs is accepted for compatibility and ignored: Variables are
// discovered automatically.
//
// Deprecated: remove the option.
func WithChildObjs(objs ...any) Option {
	return func(o *options) { o.childObjs = append(o.childObjs, objs...) }
}

func newOptions(opts []Option) options {
	cfg := CurrentConfig()
	o := options{unroll: cfg.Unroll, jit: cfg.JIT && !cfg.DisableJIT, ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.DisableJIT {
		o.jit = false
	}
	if o.unroll < 1 {
		o.unroll = 1
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}
	return o
}

func (o *options) traceOptions() []trace.Option {
	return []trace.Option{trace.JIT(o.jit), trace.Unroll(o.unroll), trace.Reverse(o.reverse), trace.OnStep(o.progress)}
}

// override applies the deprecated and exclusion options to a discovered stack.
func (o *options) override(op string, s *VariableStack) (*VariableStack, error) {
	if len(o.dynVars) > 0 || len(o.childObjs) > 0 {
		logger().Warn("deprecated option ignored; variables are discovered automatically",
			slog.String("op", op),
			slog.Int("dyn_vars", len(o.dynVars)),
			slog.Int("child_objs", len(o.childObjs)))
	}
	if len(o.exclude) == 0 {
		return s, nil
	}
	excluded := NewVariableStack(o.exclude...)
	var conflict []Handle
	for _, v := range o.dynVars {
		if excluded.Contains(v) {
			conflict = append(conflict, v.handle)
		}
	}
	if len(conflict) > 0 {
		return nil, &IdentityConflictError{Handles: conflict}
	}
	out := s.Clone()
	out.Remove(excluded.Handles()...)
	return out, nil
}

// spread turns a combinator's operands into positional arguments: a []any
// is spread, nil means no arguments, anything else is one argument.
func spread(operands any) []any {
	switch x := operands.(type) {
	case nil:
		return nil
	case []any:
		return x
	}
	return []any{operands}
}
