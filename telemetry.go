// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cellflow")

var (
	discoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cellflow_discovery_total",
		Help: "Variable discoveries by result (hit, miss, uncached, concrete, error)",
	}, []string{"result"})

	rollbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cellflow_rollback_total",
		Help: "Combinator calls whose variables were rolled back, by combinator",
	}, []string{"op"})

	loopStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cellflow_loop_steps_total",
		Help: "Concrete loop steps executed, by combinator",
	}, []string{"op"})
)

// startSpan starts the span of one combinator call.
func startSpan(ctx context.Context, op string) (context.Context, oteltrace.Span) {
	return tracer.Start(ctx, "cellflow."+op, oteltrace.WithAttributes(
		attribute.String("cellflow.op", op),
	))
}

// endSpan records the outcome of a combinator call on span and ends it.
func endSpan(span oteltrace.Span, stack *VariableStack, err error) {
	span.SetAttributes(attribute.Int("cellflow.variables", stack.Len()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var rb *RollbackError
		var te *TracerEscapeError
		if errors.As(err, &rb) || errors.As(err, &te) {
			span.SetAttributes(attribute.Bool("cellflow.rolled_back", true))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
