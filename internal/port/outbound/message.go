package outbound

import "context"

// MessagePublisherPort defines message broker publishing operations.
type MessagePublisherPort interface {
	// Publish publishes a JSON message to an exchange with a routing key.
	Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error

	// Close releases the broker connection.
	Close() error
}
