// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

// IfElse selects the branch of the first true condition, or the last branch
// when none holds:
//
//	if conditions[0] { branches[0] } else if conditions[1] { branches[1] } ... else { branches[n] }
//
// len(branches) must be len(conditions)+1 and at least one condition is
// required. Branches are functions or constants as in [Cond]. The chain is
// built as nested two-way conditionals, so Variables are threaded and rolled
// back exactly as in Cond.
func IfElse(conditions, branches []any, operands any, opts ...Option) (any, error) {
	if len(conditions) == 0 || len(branches) != len(conditions)+1 {
		return nil, &ArityMismatchError{Conditions: len(conditions), Branches: len(branches)}
	}
	arms := make([]branch, len(branches))
	for i, b := range branches {
		arm, err := liftBranch(b)
		if err != nil {
			return nil, err
		}
		arms[i] = arm
	}
	o := newOptions(opts)
	args := spread(operands)

	// Nested conditionals inherit exclusions; deprecated options are
	// reported once by the outermost one.
	inner := o
	inner.dynVars, inner.childObjs = nil, nil

	// Fold from the right: rest(i) chooses among conditions[i:].
	rest := arms[len(arms)-1]
	for i := len(conditions) - 1; i >= 1; i-- {
		pred, onTrue, onFalse := conditions[i], arms[i], rest
		rest = branch{
			f: func(args ...any) (any, error) {
				return cond("ifelse", &inner, pred, onTrue, onFalse, args)
			},
			fresh: true,
		}
	}
	return cond("ifelse", &o, conditions[0], arms[0], rest, args)
}
