package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopcore/installment/internal/domain/installment"
	installmenthttp "github.com/shopcore/installment/internal/adapter/inbound/http/installment"
	"github.com/shopcore/installment/internal/infra/outbox"
	"github.com/shopcore/installment/internal/shared/config"
	"github.com/shopcore/installment/internal/utils/metrics"
	"github.com/shopcore/installment/internal/utils/middleware"
)

// Dependencies holds all injected dependencies.
type Dependencies struct {
	Config   *config.Config
	Redis    goredis.UniversalClient
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Domains
	InstallmentDomain installment.InstallmentDomain

	// Background workers
	OutboxRelay *outbox.Relay

	// HTTP Handlers
	InstallmentHandler *installmenthttp.InstallmentHandler
	NotifyHandler      *installmenthttp.NotifyHandler
}

// Application is the runnable service.
type Application interface {
	Router() *gin.Engine
	Stop()
}

// App wires the HTTP surface and background workers of the settlement service.
type App struct {
	deps    *Dependencies
	router  *gin.Engine
	cleanup func()
}

// LoadConfig loads application configuration.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}

// New creates the application and starts its background workers.
func New(cfg *config.Config) (*App, error) {
	deps, cleanup, err := InitializeDependencies(cfg)
	if err != nil {
		return nil, fmt.Errorf("init dependencies: %w", err)
	}

	app := &App{
		deps:    deps,
		cleanup: cleanup,
	}
	app.router = app.setupRouter()

	if err := deps.OutboxRelay.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("start outbox relay: %w", err)
	}

	return app, nil
}

// setupRouter creates the router with middleware and routes.
func (a *App) setupRouter() *gin.Engine {
	if a.deps.Config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.deps.Logger, a.deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.deps.Registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")

	// Gateway callbacks are authenticated by signature, not caller identity.
	a.deps.NotifyHandler.RegisterRoutes(v1)

	protected := v1.Group("")
	protected.Use(middleware.Identity(false))
	protected.Use(middleware.Idempotency(a.deps.Redis, middleware.IdempotencyConfig{
		Logger: a.deps.Logger,
	}))
	a.deps.InstallmentHandler.RegisterRoutes(protected)

	operators := v1.Group("/admin")
	operators.Use(middleware.Identity(false))
	operators.Use(middleware.NewOperatorAuthorizer(a.deps.Config.Server.OperatorUserIDs).RequireOperator())
	operators.Use(middleware.Idempotency(a.deps.Redis, middleware.IdempotencyConfig{
		Logger: a.deps.Logger,
	}))
	a.deps.InstallmentHandler.RegisterOperatorRoutes(operators)

	return r
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop stops background workers and releases resources.
func (a *App) Stop() {
	<-a.deps.OutboxRelay.Stop().Done()
	a.cleanup()
}

var _ Application = (*App)(nil)
