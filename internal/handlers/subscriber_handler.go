package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/metrics"
	"newsletter-go/internal/models"
	"newsletter-go/internal/service"
)

type SubscriberHandler struct {
	service *service.SubscriberService
	logger  *logging.ContextLogger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewSubscriberHandler(service *service.SubscriberService, logger *logging.ContextLogger, m *metrics.Metrics, tp trace.TracerProvider) *SubscriberHandler {
	return &SubscriberHandler{
		service: service,
		logger:  logger,
		metrics: m,
		tracer:  tp.Tracer("subscriber-handler"),
	}
}

// Subscribe handles POST /subscribe. Responses carry no body: 200 once the
// subscriber is stored, 400 for a missing field, 500 when the store fails.
func (h *SubscriberHandler) Subscribe(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "subscriber.handler.subscribe")
	defer span.End()

	var form models.SubscribeForm
	if err := c.ShouldBindWith(&form, binding.FormPost); err != nil {
		h.logger.WarnWithTracing(ctx, "Rejected subscription form", logrus.Fields{
			"endpoint": "POST /subscribe",
			"error":    err.Error(),
		})
		span.RecordError(err)
		h.metrics.IncrementSubscriptions(metrics.OutcomeInvalid)
		c.Status(http.StatusBadRequest)
		return
	}

	requestID := uuid.New()
	span.SetAttributes(
		attribute.String("request.id", requestID.String()),
		attribute.String("subscriber.email", form.Email),
		attribute.String("subscriber.name", form.Name),
	)

	h.logger.InfoWithTracing(ctx, "Saving new subscriber to database", logrus.Fields{
		"request_id":       requestID.String(),
		"subscriber_email": form.Email,
		"subscriber_name":  form.Name,
		"endpoint":         "POST /subscribe",
	})

	subscriber, err := h.service.Subscribe(ctx, requestID, &form)
	if err != nil {
		h.logger.ErrorWithTracing(ctx, "Failed to execute query", err, logrus.Fields{
			"request_id": requestID.String(),
			"endpoint":   "POST /subscribe",
		})
		span.RecordError(err)
		h.metrics.IncrementSubscriptions(metrics.OutcomeStoreError)
		c.Status(http.StatusInternalServerError)
		return
	}

	h.logger.InfoWithTracing(ctx, "Subscriber info registered successfully", logrus.Fields{
		"request_id":    requestID.String(),
		"subscriber_id": subscriber.ID.String(),
		"endpoint":      "POST /subscribe",
	})
	span.SetAttributes(attribute.Bool("success", true))
	h.metrics.IncrementSubscriptions(metrics.OutcomeSuccess)
	c.Status(http.StatusOK)
}
