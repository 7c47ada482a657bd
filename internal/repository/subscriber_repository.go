package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

// SubscriberRepository persists subscriber records. Insert writes exactly one
// record per call and reports any failure as a *StoreError.
type SubscriberRepository interface {
	Insert(ctx context.Context, subscriber *models.Subscriber) error
}

// InMemorySubscriberRepository stands in for the relational store in tests
// and for the "memory" backend.
type InMemorySubscriberRepository struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*models.Subscriber
	tracer      trace.Tracer
}

func NewInMemorySubscriberRepository(tp trace.TracerProvider) *InMemorySubscriberRepository {
	return &InMemorySubscriberRepository{
		subscribers: make(map[uuid.UUID]*models.Subscriber),
		tracer:      tp.Tracer("subscriber-repository"),
	}
}

func (r *InMemorySubscriberRepository) Insert(ctx context.Context, subscriber *models.Subscriber) error {
	_, span := r.tracer.Start(ctx, "subscriber.repository.insert",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscribers[subscriber.ID]; exists {
		err := newStoreError("insert subscriber", KindIntegrity,
			fmt.Errorf("subscriber with ID %s already exists", subscriber.ID))
		span.RecordError(err)
		return err
	}

	stored := *subscriber
	r.subscribers[subscriber.ID] = &stored
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

// GetAll returns copies of the stored records ordered by SubscribedAt.
func (r *InMemorySubscriberRepository) GetAll(ctx context.Context) ([]*models.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscribers := make([]*models.Subscriber, 0, len(r.subscribers))
	for _, subscriber := range r.subscribers {
		s := *subscriber
		subscribers = append(subscribers, &s)
	}
	sort.Slice(subscribers, func(i, j int) bool {
		return subscribers[i].SubscribedAt.Before(subscribers[j].SubscribedAt)
	})
	return subscribers, nil
}
