// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trace

import (
	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/tensor"
)

// While repeatedly replaces carry with body(carry) as long as cond(carry)
// holds, and returns the final carry. cond must return a boolean scalar;
// body must return a carry of the same structure, shapes and dtypes.
func While(cond, body CarryFunc, init any, opts ...Option) (any, error) {
	c := newConfig(opts)
	abstract := HasAbstract(init)
	if abstract || c.jit {
		out, err := stage(&c, "while", func(args ...any) (any, error) {
			p, err := cond(args[0])
			if err != nil {
				return nil, err
			}
			if err := checkPredicate(p); err != nil {
				return nil, err
			}
			return body(args[0])
		}, []any{init})
		if err != nil {
			return nil, err
		}
		if err := sameSignature(init, out); err != nil {
			return nil, errors.Wrapf(ErrCarryMismatch, "%v", err)
		}
		if abstract {
			return Abstractify(init)
		}
	}

	carry := init
	err := c.within("while", func() error {
		for {
			p, err := cond(carry)
			if err != nil {
				return err
			}
			ok, err := tensor.Truth(p)
			if err != nil {
				return errors.Wrap(err, "trace: while predicate")
			}
			if !ok {
				return nil
			}
			next, err := body(carry)
			if err != nil {
				return err
			}
			if err := sameSignature(carry, next); err != nil {
				return errors.Wrapf(ErrCarryMismatch, "%v", err)
			}
			carry = next
		}
	})
	if err != nil {
		return nil, err
	}
	if HasAbstract(carry) {
		return nil, errors.Wrap(ErrEscapedTracer, "while result")
	}
	return carry, nil
}

func checkPredicate(p any) error {
	t, err := tensor.AsTensor(p)
	if err != nil {
		return errors.Wrap(err, "trace: while predicate")
	}
	if t.DType() != tensor.Bool || t.Shape().Size() != 1 {
		return errors.Errorf("trace: while predicate must be a boolean scalar, got %s%s", t.DType(), t.Shape())
	}
	return nil
}
