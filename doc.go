// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cellflow lets mutable state take part in traced control flow.
//
// Trace primitives ([trace.Cond], [trace.Scan], [trace.While]) only see pure
// functions of explicit arguments. cellflow bridges ordinary Go code that
// reads and updates state to them: it finds the state a function touches,
// passes it through the primitive as explicit values, and writes the results
// back.
//
// # Cells and Variables
//
//   - [Cell]: a mutable tensor tagged with the trace region it was created in.
//     It can only be updated inside that same region.
//   - [Variable]: a Cell with a stable [Handle] and an optional batch axis.
//     Variables may be updated from inside any region; combinators thread them.
//   - [VariableStack]: an ordered set of Variables keyed by Handle.
//
// Every update keeps the shape and dtype of the value. For a Variable with a
// batch axis the length of that axis may change.
//
// # Combinators
//
//   - [Cond], [MakeCond]: two-way conditional
//   - [IfElse]: chain of conditions, first true wins
//   - [ForLoop], [MakeLoop]: loop over the leading axis of operands with
//     stacked outputs
//   - [WhileLoop], [MakeWhile]: loop while a predicate holds
//
// Each combinator discovers the Variables its functions touch by running them
// once on value-free placeholders ([Discover]), snapshots those Variables,
// threads the snapshot through the primitive, and scatters the final state
// back. If anything fails, including a panic in user code, every discovered
// Variable is restored before the error is returned.
//
// # Discovery cache
//
// Discoveries are cached by function value and operand signature. A function
// that starts touching different Variables keeps its first result until
// [InvalidateDiscovery] or [ResetDiscoveryCache] is called, or the call
// passes [WithoutCache].
//
// # Errors
//
// Failures are typed: [ShapeMismatchError], [DtypeMismatchError],
// [ContextMismatchError], [TracerEscapeError], [ArityMismatchError],
// [IdentityConflictError], [SizeMismatchError] and the wrapper
// [RollbackError]. Each typed error matches its sentinel with errors.Is.
//
// # Example
//
//	a := cellflow.MustVariable(tensor.Float32s(0))
//	ys, err := cellflow.ForLoop(func(args ...any) (any, error) {
//		if err := a.Update(tensor.Add(a.Value(), args[0])); err != nil {
//			return nil, err
//		}
//		return a.Value(), nil
//	}, tensor.Float32s(1, 2, 3, 4))
//	// ys == [[1] [3] [6] [10]], a == [10]
package cellflow
