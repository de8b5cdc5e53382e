// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cellflow_test

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"code.hybscloud.com/cellflow"
	"code.hybscloud.com/cellflow/tensor"
)

var (
	spansOnce sync.Once
	spans     *tracetest.SpanRecorder
)

// recordSpans installs a global span recorder once and returns a function
// yielding the spans ended since the call.
func recordSpans(t *testing.T) func() []sdktrace.ReadOnlySpan {
	t.Helper()
	spansOnce.Do(func() {
		spans = tracetest.NewSpanRecorder()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	})
	start := len(spans.Ended())
	return func() []sdktrace.ReadOnlySpan { return spans.Ended()[start:] }
}

func attr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSpansForCombinators(t *testing.T) {
	ended := recordSpans(t)
	a := cellflow.MustVariable(tensor.Float32s(0))
	_, err := cellflow.ForLoop(accumulate(a), tensor.Float32s(1, 2))
	require.NoError(t, err)

	got := ended()
	require.Len(t, got, 1)
	assert.Equal(t, "cellflow.for_loop", got[0].Name())
	assert.Equal(t, codes.Ok, got[0].Status().Code)
	n, ok := attr(got[0], "cellflow.variables")
	require.True(t, ok)
	assert.Equal(t, int64(1), n.AsInt64())
}

func TestSpanRecordsRollback(t *testing.T) {
	ended := recordSpans(t)
	a := cellflow.MustVariable(tensor.Float32s(0))
	_, err := cellflow.Cond(true, cellflow.Func(func(...any) (any, error) {
		a.MustUpdate(tensor.Float32s(1))
		return nil, errors.New("boom")
	}), nil, nil, cellflow.WithJIT(false), cellflow.WithoutCache())
	require.Error(t, err)

	got := ended()
	require.Len(t, got, 1)
	assert.Equal(t, "cellflow.cond", got[0].Name())
	assert.Equal(t, codes.Error, got[0].Status().Code)
	rolled, ok := attr(got[0], "cellflow.rolled_back")
	require.True(t, ok)
	assert.True(t, rolled.AsBool())
}

func TestNestedSpans(t *testing.T) {
	ended := recordSpans(t)
	a := cellflow.MustVariable(tensor.Float32s(0))
	_, err := cellflow.IfElse([]any{false, true}, []any{
		cellflow.Func(func(...any) (any, error) { return nil, a.Update(tensor.Float32s(1)) }),
		cellflow.Func(func(...any) (any, error) { return nil, a.Update(tensor.Float32s(2)) }),
		nil,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, vals(t, a))

	names := make(map[string]int)
	for _, s := range ended() {
		names[s.Name()]++
	}
	assert.Positive(t, names["cellflow.ifelse"])
}
