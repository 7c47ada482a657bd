package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/handlers"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/metrics"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/service"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Logger         *logging.ContextLogger
	TracerProvider trace.TracerProvider
	GinMode        string
	Repository     repository.SubscriberRepository // Allow injecting any repository implementation
}

type Application struct {
	server *http.Server
	config *Config
	repo   repository.SubscriberRepository
}

func Build(config *Config) *Application {
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	// Use injected repository or fall back to in-memory
	var repo repository.SubscriberRepository
	if config.Repository != nil {
		repo = config.Repository
	} else {
		repo = repository.NewInMemorySubscriberRepository(tp)
	}

	appMetrics := metrics.New()
	subscriberService := service.NewSubscriberService(repo, config.Logger, tp, service.WithMetrics(appMetrics))
	subscriberHandler := handlers.NewSubscriberHandler(subscriberService, config.Logger, appMetrics, tp)
	pageHandler := handlers.NewPageHandler(nil, config.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(config.ServiceName, otelgin.WithTracerProvider(tp)))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		config.Logger.WithTracing(c.Request.Context()).WithFields(map[string]interface{}{
			"method":     method,
			"path":       path,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}).Info("HTTP request completed")
	})

	router.GET("/", pageHandler.Index)
	router.GET("/health_check", handlers.HealthCheck)
	router.POST("/subscribe", subscriberHandler.Subscribe)
	router.GET("/metrics", gin.WrapH(appMetrics.Handler()))

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Application{
		server: server,
		config: config,
		repo:   repo,
	}
}

// Run serves on listener until Shutdown is called. The caller owns binding,
// so tests can pass a listener on an OS-assigned port.
func (app *Application) Run(listener net.Listener) error {
	app.config.Logger.WithField("address", listener.Addr().String()).Info("Starting server")
	if err := app.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *Application) Shutdown(ctx context.Context) error {
	app.config.Logger.Info("Shutting down server...")
	return app.server.Shutdown(ctx)
}

func (app *Application) GetRepo() repository.SubscriberRepository {
	return app.repo
}
