package outbox

import (
	"context"
	"strings"

	"github.com/shopcore/installment/internal/infra/events"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
)

// BusDispatcher delivers outbox events to in-process handlers.
type BusDispatcher struct {
	bus *events.Bus
}

// NewBusDispatcher creates a dispatcher publishing to bus.
func NewBusDispatcher(bus *events.Bus) *BusDispatcher {
	return &BusDispatcher{bus: bus}
}

func (d *BusDispatcher) Name() string {
	return "bus"
}

func (d *BusDispatcher) Dispatch(ctx context.Context, event *model.OutboxEvent) error {
	return d.bus.Publish(ctx, ToEnvelope(event))
}

// ToEnvelope rehydrates an outbox row as a bus event.
func ToEnvelope(event *model.OutboxEvent) *events.Envelope {
	return &events.Envelope{
		BaseEvent: events.BaseEvent{
			ID:            event.ID,
			Type:          event.EventType,
			Timestamp:     event.CreatedAt,
			AggregateUUID: event.AggregateID,
			AggregateName: event.AggregateType,
		},
		Payload: event.Payload,
	}
}

// MessageDispatcher publishes outbox events to a message broker exchange.
type MessageDispatcher struct {
	publisher   outbound.MessagePublisherPort
	exchange    string
	routingKeys map[string]string
}

// NewMessageDispatcher creates a broker dispatcher. routingKeys maps event
// types to routing keys; unmapped types route by their lowercased name.
func NewMessageDispatcher(publisher outbound.MessagePublisherPort, exchange string, routingKeys map[string]string) *MessageDispatcher {
	return &MessageDispatcher{
		publisher:   publisher,
		exchange:    exchange,
		routingKeys: routingKeys,
	}
}

func (d *MessageDispatcher) Name() string {
	return "rabbitmq"
}

func (d *MessageDispatcher) Dispatch(ctx context.Context, event *model.OutboxEvent) error {
	return d.publisher.Publish(ctx, d.exchange, d.routingKey(event.EventType), event.ID.String(), event.Payload)
}

func (d *MessageDispatcher) routingKey(eventType string) string {
	if key, ok := d.routingKeys[eventType]; ok {
		return key
	}
	return strings.ToLower(eventType)
}

// Compile-time checks
var (
	_ outbound.EventDispatcherPort = (*BusDispatcher)(nil)
	_ outbound.EventDispatcherPort = (*MessageDispatcher)(nil)
)
