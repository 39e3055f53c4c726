package app

import (
	"fmt"
	"strconv"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domains
	"github.com/shopcore/installment/internal/domain/installment"

	// Inbound adapters
	installmenthttp "github.com/shopcore/installment/internal/adapter/inbound/http/installment"

	// Ports
	"github.com/shopcore/installment/internal/port/outbound"

	// Outbound adapters
	"github.com/shopcore/installment/internal/adapter/outbound/gateway"
	"github.com/shopcore/installment/internal/adapter/outbound/postgres"
	"github.com/shopcore/installment/internal/adapter/outbound/rabbitmq"
	redisadapter "github.com/shopcore/installment/internal/adapter/outbound/redis"

	// Infrastructure
	"github.com/shopcore/installment/internal/infra/events"
	"github.com/shopcore/installment/internal/infra/outbox"
	sharedcache "github.com/shopcore/installment/internal/shared/cache"
	"github.com/shopcore/installment/internal/shared/config"
	"github.com/shopcore/installment/internal/shared/database"
	"github.com/shopcore/installment/internal/shared/logger"

	// Utils
	"github.com/shopcore/installment/internal/utils/metrics"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideDatabase,
	ProvideRedisClient,
	ProvideZapLogger,
	ProvideRegistry,
	ProvideMetrics,
)

// ProvideDatabase creates a database connection.
func ProvideDatabase(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = database.Close(db) }, nil
}

// ProvideRedisClient creates a Redis client. Redis is optional.
func ProvideRedisClient(cfg *config.Config, zapLog *zap.Logger) (goredis.UniversalClient, func()) {
	if cfg.Redis.Address == "" {
		return nil, func() {}
	}
	client, err := sharedcache.NewRedisClient(&cfg.Redis)
	if err != nil {
		zapLog.Warn("Redis connection failed, continuing without cache", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = client.Close() }
}

// ProvideZapLogger creates a zap logger instance.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Sync() }, nil
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a metrics instance.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New("shopcore", reg)
}

// ===== Gateway Providers =====

// GatewaySet provides payment gateway dependencies.
var GatewaySet = wire.NewSet(
	ProvideGatewayRegistry,
)

// ProvideGatewayRegistry registers every configured gateway behind a circuit breaker.
func ProvideGatewayRegistry(cfg *config.Config, m *metrics.Metrics, zapLog *zap.Logger) (outbound.PaymentGatewayRegistryPort, error) {
	registry := gateway.NewRegistry()
	breaker := gateway.BreakerConfig{
		FailureThreshold: cfg.Gateway.Breaker.FailureThreshold,
		Interval:         cfg.Gateway.Breaker.Interval,
		Timeout:          cfg.Gateway.Breaker.Timeout,
	}

	if a := cfg.Gateway.Alipay; a.AppID != "" {
		g, err := gateway.NewAlipayGateway(&gateway.AlipayConfig{
			AppID:           a.AppID,
			PrivateKey:      a.PrivateKey,
			AlipayPublicKey: a.AlipayPublicKey,
			IsProd:          a.IsProd,
		})
		if err != nil {
			return nil, fmt.Errorf("init alipay gateway: %w", err)
		}
		registry.Register(gateway.WithBreaker(g, breaker, m, zapLog))
	}

	if w := cfg.Gateway.Wechat; w.MchID != "" {
		g, err := gateway.NewWechatGateway(&gateway.WechatConfig{
			AppID:                 w.AppID,
			MchID:                 w.MchID,
			APIKeyV3:              w.APIKeyV3,
			SerialNo:              w.SerialNo,
			PrivateKey:            w.PrivateKey,
			WechatPublicKeySerial: w.WechatPublicKeySerial,
			WechatPublicKey:       w.WechatPublicKey,
			IsProd:                w.IsProd,
		})
		if err != nil {
			return nil, fmt.Errorf("init wechat gateway: %w", err)
		}
		registry.Register(gateway.WithBreaker(g, breaker, m, zapLog))
	}

	if methods := registry.Methods(); len(methods) == 0 {
		zapLog.Warn("no payment gateway configured")
	} else {
		zapLog.Info("payment gateways registered", zap.Any("methods", methods))
	}
	return registry, nil
}

// ===== Installment Domain Providers =====

// InstallmentSet provides installment domain dependencies.
var InstallmentSet = wire.NewSet(
	postgres.NewInstallmentAdapter,
	postgres.NewInstallmentItemAdapter,
	postgres.NewOrderAdapter,
	postgres.NewOutboxAdapter,
	postgres.NewTransactionAdapter,
	ProvideSettlementCache,
	ProvideInstallmentConfig,
	installment.NewInstallmentDomain,
)

// ProvideSettlementCache creates the settled-token cache.
func ProvideSettlementCache(redis goredis.UniversalClient, cfg *config.Config) outbound.SettlementCachePort {
	if redis == nil {
		return nil
	}
	return redisadapter.NewSettlementCache(redis, cfg.Redis.SettlementTTL)
}

// ProvideInstallmentConfig converts configured fee rates into domain configuration.
func ProvideInstallmentConfig(cfg *config.Config) (*installment.Config, error) {
	rates := make(map[int]decimal.Decimal, len(cfg.Installment.FeeRates))
	for countStr, rateStr := range cfg.Installment.FeeRates {
		count, err := strconv.Atoi(countStr)
		if err != nil || count < 1 {
			return nil, fmt.Errorf("invalid installment count %q", countStr)
		}
		rate, err := decimal.NewFromString(rateStr)
		if err != nil || rate.IsNegative() {
			return nil, fmt.Errorf("invalid fee rate %q for count %d", rateStr, count)
		}
		rates[count] = rate
	}

	return &installment.Config{
		FeeRates:      rates,
		MinAmount:     cfg.Installment.MinAmount,
		NotifyBaseURL: cfg.Installment.NotifyBaseURL,
		Subject:       cfg.Installment.Subject,
	}, nil
}

// ===== Outbox Providers =====

// OutboxSet provides outbox relay dependencies.
var OutboxSet = wire.NewSet(
	ProvideEventBus,
	ProvideMessagePublisher,
	ProvideDispatchers,
	ProvideOutboxRelay,
)

// ProvideEventBus creates the in-process event bus with its consumers registered.
func ProvideEventBus(zapLog *zap.Logger) *events.Bus {
	bus := events.NewBus(zapLog)
	registerEventHandlers(bus, zapLog)
	return bus
}

// ProvideMessagePublisher creates the broker publisher. RabbitMQ is optional.
func ProvideMessagePublisher(cfg *config.Config, zapLog *zap.Logger) (outbound.MessagePublisherPort, func(), error) {
	if cfg.RabbitMQ.URL == "" {
		return nil, func() {}, nil
	}
	producer, err := rabbitmq.NewProducer(cfg.RabbitMQ.URL, zapLog)
	if err != nil {
		return nil, nil, fmt.Errorf("init rabbitmq producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideDispatchers lists the outbox consumers.
func ProvideDispatchers(bus *events.Bus, publisher outbound.MessagePublisherPort, cfg *config.Config) []outbound.EventDispatcherPort {
	dispatchers := []outbound.EventDispatcherPort{outbox.NewBusDispatcher(bus)}
	if publisher != nil {
		dispatchers = append(dispatchers, outbox.NewMessageDispatcher(publisher, cfg.RabbitMQ.Exchange, map[string]string{
			installment.EventTypeOrderPaid: "order.paid",
		}))
	}
	return dispatchers
}

// ProvideOutboxRelay creates the outbox relay.
func ProvideOutboxRelay(
	store outbound.OutboxDatabasePort,
	dispatchers []outbound.EventDispatcherPort,
	m *metrics.Metrics,
	zapLog *zap.Logger,
	cfg *config.Config,
) *outbox.Relay {
	return outbox.NewRelay(store, dispatchers, m, zapLog, &outbox.Config{
		Interval:   cfg.Outbox.Interval,
		BatchSize:  cfg.Outbox.BatchSize,
		Lease:      cfg.Outbox.Lease,
		MaxRetries: cfg.Outbox.MaxRetries,
	})
}

// ===== HTTP Handler Providers =====

// HandlerSet provides HTTP handlers.
var HandlerSet = wire.NewSet(
	installmenthttp.NewInstallmentHandler,
	installmenthttp.NewNotifyHandler,
)

// ===== All Providers =====

// AppSet combines all provider sets.
var AppSet = wire.NewSet(
	InfraSet,
	GatewaySet,
	InstallmentSet,
	OutboxSet,
	HandlerSet,
)
