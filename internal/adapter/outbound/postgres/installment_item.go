package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
	"gorm.io/gorm"
)

// installmentItemAdapter implements outbound.InstallmentItemDatabasePort.
type installmentItemAdapter struct {
	db *gorm.DB
}

// NewInstallmentItemAdapter creates a new installment item database adapter.
func NewInstallmentItemAdapter(db *gorm.DB) outbound.InstallmentItemDatabasePort {
	return &installmentItemAdapter{db: db}
}

func (a *installmentItemAdapter) FindBySequence(ctx context.Context, installmentID uuid.UUID, sequence int) (*model.InstallmentItem, error) {
	var item model.InstallmentItem
	err := conn(ctx, a.db).
		Where("installment_id = ? AND sequence = ?", installmentID, sequence).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find installment item: %w", err)
	}
	return &item, nil
}

func (a *installmentItemAdapter) FindPending(ctx context.Context, installmentID uuid.UUID) (*model.InstallmentItem, error) {
	var item model.InstallmentItem
	err := conn(ctx, a.db).
		Where("installment_id = ? AND paid_at IS NULL", installmentID).
		Order("sequence ASC").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending installment item: %w", err)
	}
	return &item, nil
}

func (a *installmentItemAdapter) ListByInstallment(ctx context.Context, installmentID uuid.UUID) ([]*model.InstallmentItem, error) {
	var items []*model.InstallmentItem
	err := conn(ctx, a.db).
		Where("installment_id = ?", installmentID).
		Order("sequence ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list installment items: %w", err)
	}
	return items, nil
}

func (a *installmentItemAdapter) MarkPaid(ctx context.Context, installmentID uuid.UUID, sequence int, method, paymentNo string, paidAt time.Time) (bool, error) {
	result := conn(ctx, a.db).
		Model(&model.InstallmentItem{}).
		Where("installment_id = ? AND sequence = ? AND paid_at IS NULL", installmentID, sequence).
		Updates(map[string]any{
			"paid_at":        paidAt,
			"payment_method": method,
			"payment_no":     paymentNo,
		})
	if result.Error != nil {
		return false, fmt.Errorf("mark installment item paid: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (a *installmentItemAdapter) UpdateRefundStatus(ctx context.Context, installmentID uuid.UUID, sequence int, status model.ItemRefundStatus) error {
	err := conn(ctx, a.db).
		Model(&model.InstallmentItem{}).
		Where("installment_id = ? AND sequence = ?", installmentID, sequence).
		Update("refund_status", status).Error
	if err != nil {
		return fmt.Errorf("update installment item refund status: %w", err)
	}
	return nil
}

func (a *installmentItemAdapter) TransitionRefundStatus(ctx context.Context, installmentID uuid.UUID, sequence int, from, to model.ItemRefundStatus) (bool, error) {
	result := conn(ctx, a.db).
		Model(&model.InstallmentItem{}).
		Where("installment_id = ? AND sequence = ? AND refund_status = ?", installmentID, sequence, from).
		Update("refund_status", to)
	if result.Error != nil {
		return false, fmt.Errorf("transition installment item refund status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Compile-time check
var _ outbound.InstallmentItemDatabasePort = (*installmentItemAdapter)(nil)
