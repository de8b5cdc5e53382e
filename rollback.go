// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"log/slog"

	"github.com/pkg/errors"

	"code.hybscloud.com/cellflow/tensor"
	"code.hybscloud.com/cellflow/trace"
)

// guarded runs f over the Variables of s. If f fails or panics, every
// Variable of s is restored to its value from before the call and the
// failure is returned as a [*TracerEscapeError] or [*RollbackError].
func guarded(op string, s *VariableStack, f func() (any, error)) (out any, err error) {
	before := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &panicError{value: r}
		}
		if err == nil {
			return
		}
		if rerr := s.restore(before); rerr != nil {
			err = errors.Wrapf(err, "restore failed: %v", rerr)
		}
		rollbackTotal.WithLabelValues(op).Inc()
		logger().Debug("variables rolled back",
			slog.String("op", op),
			slog.Int("variables", s.Len()),
			slog.Any("error", err))
		err = failure(op, s, err)
	}()
	return f()
}

// failure classifies err. A traced value observed outside its trace becomes
// a TracerEscapeError; anything else a RollbackError.
func failure(op string, s *VariableStack, err error) error {
	if errors.Is(err, trace.ErrEscapedTracer) || errors.Is(err, tensor.ErrAbstractValue) {
		return &TracerEscapeError{Op: op, Variables: s.Vars(), Err: err}
	}
	return &RollbackError{Op: op, Handles: s.Handles(), Err: err}
}
