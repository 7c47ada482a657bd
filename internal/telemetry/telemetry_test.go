package telemetry

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
)

func TestInitRunsOnceUnderConcurrentCallers(t *testing.T) {
	const callers = 32

	var wg sync.WaitGroup
	loggers := make([]*logging.ContextLogger, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loggers[i] = Init("newsletter-test", "debug", io.Discard)
		}(i)
	}
	wg.Wait()

	require.NotNil(t, loggers[0])
	for _, l := range loggers {
		assert.Same(t, loggers[0], l)
	}

	var buf bytes.Buffer
	again := Init("other", "info", &buf)
	assert.Same(t, loggers[0], again, "later calls must not reconfigure the sink")
	again.Info("discarded")
	assert.Zero(t, buf.Len())
}

func TestRecorderCollectsSpans(t *testing.T) {
	recorder := NewTestSpanRecorder()
	tp := NewTestTracerProvider("recorder-test", recorder)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := tp.Tracer("test")
	_, write := tracer.Start(context.Background(), "subscriber.repository.insert",
		trace.WithAttributes(attribute.String("operation", "database.write")))
	write.End()
	_, other := tracer.Start(context.Background(), "subscriber.handler.subscribe")
	other.End()

	assert.Equal(t, 2, recorder.Count())
	assert.Len(t, recorder.GetSpansByOperation("database.write"), 1)
	assert.Len(t, recorder.GetSpansByName("subscriber.handler.subscribe"), 1)
	assert.Empty(t, recorder.GetSpansByName("missing"))

	recorder.Clear()
	assert.Zero(t, recorder.Count())
}

func TestInitTracingWritesToSink(t *testing.T) {
	var buf bytes.Buffer
	tp, err := InitTracing("newsletter", "1.0.0", &buf)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "probe")
	span.End()

	require.NoError(t, ShutdownTracing(context.Background(), tp))
	assert.Contains(t, buf.String(), "probe")
}
