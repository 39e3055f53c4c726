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

// orderAdapter implements outbound.InstallmentOrderPort.
type orderAdapter struct {
	db *gorm.DB
}

// NewOrderAdapter creates a new order settlement adapter.
func NewOrderAdapter(db *gorm.DB) outbound.InstallmentOrderPort {
	return &orderAdapter{db: db}
}

func (a *orderAdapter) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	err := conn(ctx, a.db).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by id: %w", err)
	}
	return &order, nil
}

func (a *orderAdapter) Settle(ctx context.Context, id uuid.UUID, method, paymentNo string, paidAt time.Time) (bool, error) {
	result := conn(ctx, a.db).
		Model(&model.Order{}).
		Where("id = ? AND paid_at IS NULL AND closed = ?", id, false).
		Updates(map[string]any{
			"paid_at":        paidAt,
			"payment_method": method,
			"payment_no":     paymentNo,
		})
	if result.Error != nil {
		return false, fmt.Errorf("settle order: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (a *orderAdapter) AssignRefundNo(ctx context.Context, id uuid.UUID, refundNo string) (bool, error) {
	result := conn(ctx, a.db).
		Model(&model.Order{}).
		Where("id = ? AND refund_no IS NULL", id).
		Update("refund_no", refundNo)
	if result.Error != nil {
		return false, fmt.Errorf("assign order refund no: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (a *orderAdapter) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status model.OrderRefundStatus) error {
	err := conn(ctx, a.db).
		Model(&model.Order{}).
		Where("id = ?", id).
		Update("refund_status", status).Error
	if err != nil {
		return fmt.Errorf("update order refund status: %w", err)
	}
	return nil
}

// Compile-time check
var _ outbound.InstallmentOrderPort = (*orderAdapter)(nil)
