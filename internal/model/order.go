package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderRefundStatus represents the refund status of an order.
type OrderRefundStatus string

const (
	OrderRefundStatusPending    OrderRefundStatus = "pending"
	OrderRefundStatusApplied    OrderRefundStatus = "applied"
	OrderRefundStatusProcessing OrderRefundStatus = "processing"
	OrderRefundStatusSuccess    OrderRefundStatus = "success"
	OrderRefundStatusFailed     OrderRefundStatus = "failed"
)

// String returns the string representation of the refund status.
func (s OrderRefundStatus) String() string {
	return string(s)
}

// PaymentMethodInstallment is recorded on orders settled through an installment plan.
const PaymentMethodInstallment = "installment"

// Order is the storefront order an installment plan settles.
type Order struct {
	ID            uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	No            string            `json:"no" gorm:"uniqueIndex;not null"`
	UserID        uuid.UUID         `json:"user_id" gorm:"type:uuid;not null;index"`
	TotalAmount   int64             `json:"total_amount" gorm:"not null"` // In cents
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	PaymentNo     string            `json:"payment_no,omitempty"`
	Closed        bool              `json:"closed" gorm:"not null;default:false"`
	RefundNo      *string           `json:"refund_no,omitempty" gorm:"uniqueIndex"`
	RefundStatus  OrderRefundStatus `json:"refund_status" gorm:"not null;default:pending"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// IsPaid returns true if the order has been settled.
func (o *Order) IsPaid() bool {
	return o.PaidAt != nil
}

// CanRefund returns true if a refund may be started for the order.
func (o *Order) CanRefund() bool {
	if !o.IsPaid() {
		return false
	}
	return o.RefundStatus == OrderRefundStatusApplied || o.RefundStatus == OrderRefundStatusFailed
}
