package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_WritesToFileAndExtraCores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	extra, recorded := observer.New(zapcore.InfoLevel)

	l, err := New(&Config{Level: "info", Format: "json", Output: path}, extra)
	require.NoError(t, err)
	l.Info("allocation committed", zap.String("strategy", "fifo"))
	l.Debug("hidden")
	Sync(l)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"allocation committed"`)
	assert.NotContains(t, string(data), "hidden")
	assert.Equal(t, 1, recorded.FilterMessage("allocation committed").Len())
}

func TestTee(t *testing.T) {
	primary, first := observer.New(zapcore.InfoLevel)
	secondary, second := observer.New(zapcore.InfoLevel)

	l := Tee(zap.New(primary), secondary)
	l.Info("posted")

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 1, second.Len())
}

func TestL_EnrichesFromContext(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithCompanyID(ctx, "company-1")
	ctx = WithActorID(ctx, "actor-1")

	tp := trace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(ctx, "op")
	defer span.End()

	L(ctx).Info("hello")

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "company-1", fields["company_id"])
	assert.Equal(t, "actor-1", fields["actor_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestL_WithoutLoggerIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		L(context.Background()).Info("nothing")
		WithLogger(context.Background(), nil).With(zap.Int("n", 1)).Warn("still nothing")
	})
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetCompanyID(context.Background()))
}
