// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/region"
	"code.hybscloud.com/cellflow/tensor"
)

// Sentinel errors for errors.Is. Every typed error below matches exactly one.
var (
	ErrShapeMismatch    = errors.New("cellflow: shape mismatch")
	ErrDtypeMismatch    = errors.New("cellflow: dtype mismatch")
	ErrContextMismatch  = errors.New("cellflow: context mismatch")
	ErrTracerEscape     = errors.New("cellflow: tracer escape")
	ErrArityMismatch    = errors.New("cellflow: arity mismatch")
	ErrIdentityConflict = errors.New("cellflow: identity conflict")
	ErrSizeMismatch     = errors.New("cellflow: size mismatch")
)

// ShapeMismatchError is returned by Update when the new value has a different
// shape. For Variables with a batch axis that axis is ignored.
type ShapeMismatchError struct {
	Handle    Handle // zero for plain cells
	Want, Got tensor.Shape
	BatchAxis int
}

func (e *ShapeMismatchError) Error() string {
	msg := fmt.Sprintf("cellflow: shape of the original data is %s, got %s", e.Want, e.Got)
	if e.BatchAxis != NoBatchAxis {
		msg += fmt.Sprintf(" with batch_axis=%d", e.BatchAxis)
	}
	return msg
}

func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// DtypeMismatchError is returned by Update when the new value has a different dtype.
type DtypeMismatchError struct {
	Handle    Handle
	Want, Got tensor.DType
}

func (e *DtypeMismatchError) Error() string {
	return fmt.Sprintf("cellflow: dtype of the original data is %s, got %s", e.Want, e.Got)
}

func (e *DtypeMismatchError) Is(target error) bool { return target == ErrDtypeMismatch }

// ContextMismatchError is returned when a Cell is mutated inside a region
// other than the one it was created in.
type ContextMismatchError struct {
	Owner  region.ID // empty when created outside any region
	Active region.ID
}

func (e *ContextMismatchError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("cellflow: cell created outside of any trace region cannot be updated inside %q; use a Variable", e.Active)
	}
	if e.Active == "" {
		return fmt.Sprintf("cellflow: cell created in %q cannot be updated outside of it; use a Variable", e.Owner)
	}
	return fmt.Sprintf("cellflow: cell created in %q cannot be updated in %q; use a Variable", e.Owner, e.Active)
}

func (e *ContextMismatchError) Is(target error) bool { return target == ErrContextMismatch }

// TracerEscapeError reports a value observed outside the trace that produced
// it. The listed Variables were restored before the error was returned.
type TracerEscapeError struct {
	Op        string
	Variables []*Variable
	Err       error
}

func (e *TracerEscapeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cellflow: %s: a traced value escaped its trace", e.Op)
	if len(e.Variables) > 0 {
		b.WriteString("; restored variables [")
		for i, v := range e.Variables {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(v.String())
		}
		b.WriteByte(']')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TracerEscapeError) Unwrap() error        { return e.Err }
func (e *TracerEscapeError) Is(target error) bool { return target == ErrTracerEscape }

// Handles returns the handles of the restored Variables.
func (e *TracerEscapeError) Handles() []Handle {
	hs := make([]Handle, len(e.Variables))
	for i, v := range e.Variables {
		hs[i] = v.Handle()
	}
	return hs
}

// ArityMismatchError reports a branch count that is not conditions + 1.
type ArityMismatchError struct {
	Conditions, Branches int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("cellflow: numbers of branches and conditions do not match: "+
		"len(conditions)=%d, len(branches)=%d, want len(conditions)+1 == len(branches)",
		e.Conditions, e.Branches)
}

func (e *ArityMismatchError) Is(target error) bool { return target == ErrArityMismatch }

// IdentityConflictError reports Variables that were both included and
// excluded through explicit overrides.
type IdentityConflictError struct {
	Handles []Handle
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("cellflow: variables %v are both included and excluded", e.Handles)
}

func (e *IdentityConflictError) Is(target error) bool { return target == ErrIdentityConflict }

// SizeMismatchError reports loop operands with different leading-axis lengths.
type SizeMismatchError struct {
	Err error
}

func (e *SizeMismatchError) Error() string {
	return "cellflow: operands must share the leading axis length: " + e.Err.Error()
}

func (e *SizeMismatchError) Unwrap() error        { return e.Err }
func (e *SizeMismatchError) Is(target error) bool { return target == ErrSizeMismatch }

// RollbackError wraps any failure of a combinator call. The Variables named
// by Handles were restored to their values from before the call.
type RollbackError struct {
	Op      string
	Handles []Handle
	Err     error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("cellflow: %s failed, restored %d variables: %v", e.Op, len(e.Handles), e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// panicError carries a value recovered from a panic in user code.
type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func (e *panicError) Unwrap() error {
	if err, ok := e.value.(error); ok {
		return err
	}
	return nil
}
