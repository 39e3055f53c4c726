package gateway

import (
	"context"
	"time"

	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
	"github.com/shopcore/installment/internal/utils/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker around outbound gateway calls.
type BreakerConfig struct {
	FailureThreshold uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
	}
}

// breakerGateway guards payment creation and refunds with a circuit breaker.
// Notification parsing is local and is not guarded.
type breakerGateway struct {
	inner   outbound.PaymentGatewayPort
	breaker *gobreaker.CircuitBreaker[any]
	metrics *metrics.Metrics
}

// breakerRefundGateway additionally exposes refund notification parsing.
type breakerRefundGateway struct {
	*breakerGateway
	parser outbound.RefundNotifyParserPort
}

// WithBreaker wraps gateway in a circuit breaker. If gateway parses refund
// notifications, so does the result.
func WithBreaker(gateway outbound.PaymentGatewayPort, cfg BreakerConfig, m *metrics.Metrics, logger *zap.Logger) outbound.PaymentGatewayPort {
	name := gateway.Name()
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment gateway breaker state changed",
				zap.String("gateway", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, int(to))
		},
	}

	b := &breakerGateway{
		inner:   gateway,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		metrics: m,
	}
	m.SetBreakerState(name, int(gobreaker.StateClosed))

	if parser, ok := gateway.(outbound.RefundNotifyParserPort); ok {
		return &breakerRefundGateway{breakerGateway: b, parser: parser}
	}
	return b
}

func (g *breakerGateway) Name() string {
	return g.inner.Name()
}

func (g *breakerGateway) CreateNativePayment(ctx context.Context, req *outbound.NativePaymentRequest) (*model.ProviderNativeOrder, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.CreateNativePayment(ctx, req)
	})
	g.metrics.RecordGatewayRequest(g.inner.Name(), "create_payment", err)
	if err != nil {
		return nil, err
	}
	return result.(*model.ProviderNativeOrder), nil
}

func (g *breakerGateway) RefundPayment(ctx context.Context, req *outbound.RefundRequest) (*model.ProviderRefund, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.RefundPayment(ctx, req)
	})
	g.metrics.RecordGatewayRequest(g.inner.Name(), "refund", err)
	if err != nil {
		return nil, err
	}
	return result.(*model.ProviderRefund), nil
}

func (g *breakerGateway) ParseNotify(ctx context.Context, body []byte, headers map[string]string) (*model.ProviderNotifyResult, error) {
	result, err := g.inner.ParseNotify(ctx, body, headers)
	g.metrics.RecordGatewayRequest(g.inner.Name(), "parse_notify", err)
	return result, err
}

func (g *breakerRefundGateway) ParseRefundNotify(ctx context.Context, body []byte, headers map[string]string) (*model.ProviderRefundNotifyResult, error) {
	result, err := g.parser.ParseRefundNotify(ctx, body, headers)
	g.metrics.RecordGatewayRequest(g.inner.Name(), "parse_refund_notify", err)
	return result, err
}

// Compile-time checks
var (
	_ outbound.PaymentGatewayPort     = (*breakerGateway)(nil)
	_ outbound.RefundNotifyParserPort = (*breakerRefundGateway)(nil)
)
