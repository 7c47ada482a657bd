package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

const insertSubscriberQuery = `INSERT INTO subscriptions (id, email, name, subscribed_at) VALUES ($1, $2, $3, $4)`

// PostgresSubscriberRepository writes subscribers through a shared pool.
type PostgresSubscriberRepository struct {
	db      *sql.DB
	timeout time.Duration
	tracer  trace.Tracer
}

// NewPostgresSubscriberRepository bounds each insert by timeout; zero disables the bound.
func NewPostgresSubscriberRepository(db *sql.DB, timeout time.Duration, tp trace.TracerProvider) *PostgresSubscriberRepository {
	return &PostgresSubscriberRepository{
		db:      db,
		timeout: timeout,
		tracer:  tp.Tracer("postgres.repository"),
	}
}

func (r *PostgresSubscriberRepository) Insert(ctx context.Context, subscriber *models.Subscriber) error {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.insert",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
			attribute.String("db.system", "postgresql"),
		))
	defer span.End()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	_, err := r.db.ExecContext(ctx, insertSubscriberQuery,
		subscriber.ID,
		subscriber.Email,
		subscriber.Name,
		subscriber.SubscribedAt,
	)
	if err != nil {
		// Drivers report cancellation in their own words; keep the context cause matchable.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		storeErr := classify("insert subscriber", err)
		span.RecordError(storeErr)
		span.SetAttributes(attribute.String("error.kind", string(storeErr.Kind)))
		return storeErr
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}
