package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
)

type fakeSpanRecorder struct {
	events []string
	errors []string
	last   []any
}

func (f *fakeSpanRecorder) TraceID() string { return "trace-1" }
func (f *fakeSpanRecorder) SpanID() string  { return "span-1" }

func (f *fakeSpanRecorder) RecordEvent(name string, keysAndValues ...any) {
	f.events = append(f.events, name)
	f.last = keysAndValues
}

func (f *fakeSpanRecorder) RecordError(name string, keysAndValues ...any) {
	f.errors = append(f.errors, name)
	f.last = keysAndValues
}

func TestSpanLogger(t *testing.T) {
	t.Parallel()

	rec := log.NewRecordingLogger()
	ser := &fakeSpanRecorder{}
	lg := log.NewSpanLogger(rec, ser).WithName("engine").WithKV("method", "eth_chainId")

	lg.Info("dispatching")
	lg.Error("failed", "code", 4900)

	assert.Equal(t, []string{"dispatching"}, ser.events)
	assert.Equal(t, []string{"failed"}, ser.errors)
	assert.Equal(t, []any{"level", "error", "component", "engine", "method", "eth_chainId", "code", 4900}, ser.last)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "engine", entries[1].Name)
	assert.Equal(t, []any{"method", "eth_chainId", "traceId", "trace-1", "spanId", "span-1", "code", 4900}, entries[1].KeysAndValues)
}

func TestSetContextLogger_WithSpan(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	rec := log.NewRecordingLogger()
	ctx = log.SetContextLogger(ctx, rec)
	log.FromContext(ctx).Warn("traced")

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"traceId", traceID.String(), "spanId", spanID.String()}, entries[0].KeysAndValues)
}
