package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/metrics"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

type SubscriberService struct {
	repo    repository.SubscriberRepository
	logger  *logging.ContextLogger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   *monotonicClock
}

type Option func(*SubscriberService)

// WithClock replaces time.Now as the source of subscribed_at.
func WithClock(now func() time.Time) Option {
	return func(s *SubscriberService) {
		if now != nil {
			s.clock = newMonotonicClock(now)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SubscriberService) {
		s.metrics = m
	}
}

func NewSubscriberService(repo repository.SubscriberRepository, logger *logging.ContextLogger, tp trace.TracerProvider, opts ...Option) *SubscriberService {
	s := &SubscriberService{
		repo:   repo,
		logger: logger,
		tracer: tp.Tracer("subscriber-service"),
		clock:  newMonotonicClock(time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe stores one new subscriber built from form. The store is called
// exactly once; failures are returned as-is without retrying.
func (s *SubscriberService) Subscribe(ctx context.Context, requestID uuid.UUID, form *models.SubscribeForm) (*models.Subscriber, error) {
	ctx, span := s.tracer.Start(ctx, "subscriber.service.subscribe",
		trace.WithAttributes(
			attribute.String("request.id", requestID.String()),
			attribute.String("subscriber.email", form.Email),
			attribute.String("subscriber.name", form.Name),
		))
	defer span.End()

	subscriber := models.NewSubscriber(form.Email, form.Name, s.clock.Now())

	s.logger.DebugWithTracing(ctx, "Inserting subscriber", logrus.Fields{
		"request_id":    requestID.String(),
		"subscriber_id": subscriber.ID.String(),
	})

	start := time.Now()
	err := s.repo.Insert(ctx, subscriber)
	s.metrics.ObserveInsertDuration(time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.Bool("success", true),
	)
	return subscriber, nil
}
