package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/metrics"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/telemetry"
)

type failingRepository struct {
	calls int
	err   error
}

func (f *failingRepository) Insert(ctx context.Context, subscriber *models.Subscriber) error {
	f.calls++
	return f.err
}

func quietLogger() *logging.ContextLogger {
	return logging.New("test", "debug", io.Discard)
}

func TestSubscribeStoresRecord(t *testing.T) {
	repo := repository.NewInMemorySubscriberRepository(noop.NewTracerProvider())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := metrics.New()
	svc := NewSubscriberService(repo, quietLogger(), noop.NewTracerProvider(),
		WithClock(func() time.Time { return fixed }),
		WithMetrics(m))

	form := &models.SubscribeForm{Name: "le guin", Email: "ursula_le_guin@gmail.com"}
	subscriber, err := svc.Subscribe(context.Background(), uuid.New(), form)
	require.NoError(t, err)

	assert.Equal(t, fixed, subscriber.SubscribedAt)

	all, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, subscriber.ID, all[0].ID)
	assert.Equal(t, "le guin", all[0].Name)
	assert.Equal(t, "ursula_le_guin@gmail.com", all[0].Email)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "newsletter_subscription_insert_duration_seconds_count 1")
}

func TestSubscribeAttemptsInsertOnceOnFailure(t *testing.T) {
	storeErr := &repository.StoreError{Kind: repository.KindConnectivity, Op: "insert subscriber", Err: errors.New("connection refused")}
	repo := &failingRepository{err: storeErr}
	svc := NewSubscriberService(repo, quietLogger(), noop.NewTracerProvider())

	subscriber, err := svc.Subscribe(context.Background(), uuid.New(), &models.SubscribeForm{Name: "a", Email: "b"})

	assert.Nil(t, subscriber)
	assert.ErrorIs(t, err, repository.ErrStore)
	assert.Equal(t, 1, repo.calls)
}

func TestSubscribeRecordsSpans(t *testing.T) {
	recorder := telemetry.NewTestSpanRecorder()
	tp := telemetry.NewTestTracerProvider("service-test", recorder)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	repo := repository.NewInMemorySubscriberRepository(tp)
	svc := NewSubscriberService(repo, quietLogger(), tp)

	requestID := uuid.New()
	_, err := svc.Subscribe(context.Background(), requestID, &models.SubscribeForm{Name: "n", Email: "e"})
	require.NoError(t, err)

	spans := recorder.GetSpansByName("subscriber.service.subscribe")
	require.Len(t, spans, 1)

	found := false
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "request.id" && attr.Value.AsString() == requestID.String() {
			found = true
		}
	}
	assert.True(t, found, "expected request.id attribute on service span")

	writes := recorder.GetSpansByOperation("database.write")
	require.Len(t, writes, 1)
	assert.Equal(t, spans[0].SpanContext().TraceID(), writes[0].SpanContext().TraceID())
}
