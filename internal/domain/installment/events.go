package installment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/infra/events"
	"github.com/shopcore/installment/internal/model"
)

// Event types produced by the installment domain.
const (
	EventTypeOrderPaid = "OrderPaid"
)

// AggregateTypeOrder names the order aggregate in events.
const AggregateTypeOrder = "Order"

// OrderPaidEvent is emitted once per order when its first installment settles.
type OrderPaidEvent struct {
	events.BaseEvent
	OrderID       uuid.UUID `json:"order_id"`
	InstallmentNo string    `json:"installment_no"`
	PaymentMethod string    `json:"payment_method"`
	PaidAt        time.Time `json:"paid_at"`
}

// NewOrderPaidEvent creates an OrderPaid event.
func NewOrderPaidEvent(orderID uuid.UUID, installmentNo string, paidAt time.Time) *OrderPaidEvent {
	return &OrderPaidEvent{
		BaseEvent:     events.NewBaseEvent(EventTypeOrderPaid, orderID, AggregateTypeOrder, paidAt),
		OrderID:       orderID,
		InstallmentNo: installmentNo,
		PaymentMethod: model.PaymentMethodInstallment,
		PaidAt:        paidAt,
	}
}

// toOutbox serializes a domain event into an outbox row.
func toOutbox(event events.Event) (*model.OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", event.EventType(), err)
	}
	return &model.OutboxEvent{
		ID:            event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.EventType(),
		Payload:       payload,
		Status:        model.OutboxStatusPending,
		CreatedAt:     event.OccurredAt(),
	}, nil
}
