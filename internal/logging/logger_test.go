package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInfoWithTracingWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("newsletter", "info", &buf)

	logger.InfoWithTracing(context.Background(), "Saving new subscriber", logrus.Fields{
		"subscriber_email": "ursula_le_guin@gmail.com",
		"subscriber_name":  "le guin",
	})

	entry := decodeLine(t, &buf)
	assert.Equal(t, "Saving new subscriber", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "newsletter", entry["service"])
	assert.Equal(t, "ursula_le_guin@gmail.com", entry["subscriber_email"])
	assert.Equal(t, "le guin", entry["subscriber_name"])
	assert.Contains(t, entry, "timestamp")
	assert.NotContains(t, entry, "trace_id")
}

func TestWithTracingAddsSpanIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	logger := New("", "info", &buf)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.ErrorWithTracing(ctx, "Failed to execute query", errors.New("connection refused"), nil)

	entry := decodeLine(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	assert.Equal(t, "connection refused", entry["error"])
	assert.Equal(t, "error", entry["level"])
}

func TestNewFallsBackToInfoLevel(t *testing.T) {
	logger := New("", "shouting", io.Discard)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger = New("", "debug", io.Discard)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("", "info", &buf)

	logger.DebugWithTracing(context.Background(), "noise", nil)
	assert.Zero(t, buf.Len())

	logger.WarnWithTracing(context.Background(), "heads up", nil)
	assert.NotZero(t, buf.Len())
}
