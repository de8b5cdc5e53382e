// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trace

import (
	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/tensor"
)

// Cond calls onTrue or onFalse with operands depending on pred.
//
// In compiled mode both branches are staged and must produce outputs of the
// same structure, shapes and dtypes; only the selected branch then runs on
// concrete values. With an abstract pred or abstract operands the staged
// output of onTrue is returned.
func Cond(pred any, onTrue, onFalse Func, operands []any, opts ...Option) (any, error) {
	c := newConfig(opts)
	abstract := tensor.IsAbstract(pred) || HasAbstract(operands)
	if abstract || c.jit {
		outT, err := stage(&c, "cond", onTrue, operands)
		if err != nil {
			return nil, err
		}
		outF, err := stage(&c, "cond", onFalse, operands)
		if err != nil {
			return nil, err
		}
		if err := sameSignature(outT, outF); err != nil {
			return nil, errors.Wrapf(ErrBranchMismatch, "%v", err)
		}
		if abstract {
			return Abstractify(outT)
		}
	}
	p, err := tensor.Truth(pred)
	if err != nil {
		return nil, errors.Wrap(err, "trace: cond predicate")
	}
	branch := onFalse
	if p {
		branch = onTrue
	}
	var out any
	err = c.within("cond", func() error {
		var ferr error
		out, ferr = branch(operands...)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if HasAbstract(out) {
		return nil, errors.Wrap(ErrEscapedTracer, "cond output")
	}
	return out, nil
}
