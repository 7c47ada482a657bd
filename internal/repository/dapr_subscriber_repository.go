package repository

import (
	"context"
	"encoding/json"

	dapr "github.com/dapr/go-sdk/client"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

// StateSaver is the slice of the Dapr client the repository needs.
type StateSaver interface {
	SaveState(ctx context.Context, storeName, key string, data []byte, meta map[string]string, so ...dapr.StateOption) error
}

// DaprSubscriberRepository keeps subscribers in a Dapr state store, keyed by ID.
type DaprSubscriberRepository struct {
	client    StateSaver
	tracer    trace.Tracer
	storeName string
}

func NewDaprSubscriberRepository(client StateSaver, storeName string, tp trace.TracerProvider) *DaprSubscriberRepository {
	return &DaprSubscriberRepository{
		client:    client,
		tracer:    tp.Tracer("dapr.repository"),
		storeName: storeName,
	}
}

func (r *DaprSubscriberRepository) Insert(ctx context.Context, subscriber *models.Subscriber) error {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.insert",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
			attribute.String("dapr.store", r.storeName),
		))
	defer span.End()

	data, err := json.Marshal(subscriber)
	if err != nil {
		storeErr := newStoreError("marshal subscriber", KindEncoding, err)
		span.RecordError(storeErr)
		return storeErr
	}

	if err := r.client.SaveState(ctx, r.storeName, subscriber.ID.String(), data, nil); err != nil {
		storeErr := classify("save subscriber to dapr state store", err)
		if storeErr.Kind == KindUnknown {
			storeErr.Kind = KindConnectivity
		}
		span.RecordError(storeErr)
		return storeErr
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}
