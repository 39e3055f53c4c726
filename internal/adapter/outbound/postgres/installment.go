package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// installmentAdapter implements outbound.InstallmentDatabasePort.
type installmentAdapter struct {
	db *gorm.DB
}

// NewInstallmentAdapter creates a new installment database adapter.
func NewInstallmentAdapter(db *gorm.DB) outbound.InstallmentDatabasePort {
	return &installmentAdapter{db: db}
}

func (a *installmentAdapter) Create(ctx context.Context, plan *model.Installment) error {
	if err := conn(ctx, a.db).Create(plan).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("create installment %s: %w", plan.No, outbound.ErrDuplicateKey)
		}
		return fmt.Errorf("create installment: %w", err)
	}
	return nil
}

func (a *installmentAdapter) FindByNo(ctx context.Context, no string) (*model.Installment, error) {
	var plan model.Installment
	err := conn(ctx, a.db).First(&plan, "no = ?", no).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find installment by no: %w", err)
	}
	return &plan, nil
}

func (a *installmentAdapter) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Installment, error) {
	var plan model.Installment
	err := conn(ctx, a.db).First(&plan, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find installment by order: %w", err)
	}
	return &plan, nil
}

func (a *installmentAdapter) FindByOrderRefundNo(ctx context.Context, refundNo string) (*model.Installment, error) {
	var plan model.Installment
	err := conn(ctx, a.db).
		Joins("JOIN orders ON orders.id = installments.order_id").
		Where("orders.refund_no = ?", refundNo).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find installment by refund no: %w", err)
	}
	return &plan, nil
}

func (a *installmentAdapter) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.Installment, int64, error) {
	var plans []*model.Installment
	var total int64

	query := conn(ctx, a.db).Model(&model.Installment{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count installments: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Order("created_at DESC").Find(&plans).Error; err != nil {
		return nil, 0, fmt.Errorf("find installments: %w", err)
	}

	return plans, total, nil
}

func (a *installmentAdapter) LockByID(ctx context.Context, id uuid.UUID) (*model.Installment, error) {
	var plan model.Installment
	err := conn(ctx, a.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&plan, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock installment: %w", err)
	}
	return &plan, nil
}

func (a *installmentAdapter) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.InstallmentStatus) (bool, error) {
	result := conn(ctx, a.db).
		Model(&model.Installment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, fmt.Errorf("update installment status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Compile-time check
var _ outbound.InstallmentDatabasePort = (*installmentAdapter)(nil)
