package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shopcore/installment/internal/domain/installment"
	"github.com/shopcore/installment/internal/infra/events"
)

// registerEventHandlers subscribes in-process consumers of relayed events.
func registerEventHandlers(bus *events.Bus, zapLog *zap.Logger) {
	bus.Register(events.NewHandlerFunc(
		[]string{installment.EventTypeOrderPaid},
		func(ctx context.Context, event events.Event) error {
			env, ok := event.(*events.Envelope)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}
			var paid installment.OrderPaidEvent
			if err := env.Decode(&paid); err != nil {
				return fmt.Errorf("decode %s: %w", env.EventType(), err)
			}
			zapLog.Info("order paid",
				zap.String("event_id", env.EventID().String()),
				zap.String("order_id", paid.OrderID.String()),
				zap.String("installment_no", paid.InstallmentNo),
				zap.Time("paid_at", paid.PaidAt),
			)
			return nil
		},
	))
}
