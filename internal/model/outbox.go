package model

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the delivery status of an outbox event.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusInProgress OutboxStatus = "in_progress"
	OutboxStatusSent       OutboxStatus = "sent"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxEvent is a domain event recorded in the same transaction as the
// state change that produced it, relayed to consumers after commit.
type OutboxEvent struct {
	ID            uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	AggregateType string       `json:"aggregate_type" gorm:"not null"`
	AggregateID   uuid.UUID    `json:"aggregate_id" gorm:"type:uuid;not null;index"`
	EventType     string       `json:"event_type" gorm:"not null;index"`
	Payload       []byte       `json:"payload" gorm:"type:jsonb;not null"`
	Status        OutboxStatus `json:"status" gorm:"not null;default:pending;index"`
	RetryCount    int          `json:"retry_count" gorm:"not null;default:0"`
	LastError     *string      `json:"last_error,omitempty"`
	LockedBy      *string      `json:"-"`
	LockedUntil   *time.Time   `json:"-"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at" gorm:"index"`
}

// TableName returns the database table name.
func (OutboxEvent) TableName() string {
	return "outbox_events"
}
