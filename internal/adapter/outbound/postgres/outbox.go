package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// outboxAdapter implements outbound.OutboxDatabasePort.
type outboxAdapter struct {
	db *gorm.DB
}

// NewOutboxAdapter creates a new outbox database adapter.
func NewOutboxAdapter(db *gorm.DB) outbound.OutboxDatabasePort {
	return &outboxAdapter{db: db}
}

func (a *outboxAdapter) Append(ctx context.Context, event *model.OutboxEvent) error {
	if err := conn(ctx, a.db).Create(event).Error; err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// LockBatch leases pending events, and in-progress events whose lease has
// expired, using SKIP LOCKED so concurrent relays never share a row.
func (a *outboxAdapter) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	now := time.Now()

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? OR (status = ? AND locked_until < ?)",
				model.OutboxStatusPending, model.OutboxStatusInProgress, now).
			Order("created_at ASC").
			Limit(batchSize).
			Find(&events).Error
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		until := now.Add(lease)
		return tx.Model(&model.OutboxEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":       model.OutboxStatusInProgress,
				"locked_by":    relayID,
				"locked_until": until,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	return events, nil
}

func (a *outboxAdapter) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := a.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":       model.OutboxStatusSent,
			"sent_at":      time.Now(),
			"locked_by":    nil,
			"locked_until": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("mark outbox events sent: %w", err)
	}
	return nil
}

func (a *outboxAdapter) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	err := a.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count":  gorm.Expr("retry_count + 1"),
			"last_error":   errMsg,
			"locked_by":    nil,
			"locked_until": nil,
			"status": gorm.Expr("CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END",
				maxRetries, model.OutboxStatusFailed, model.OutboxStatusPending),
		}).Error
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	return nil
}

// Compile-time check
var _ outbound.OutboxDatabasePort = (*outboxAdapter)(nil)
