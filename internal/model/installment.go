package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstallmentStatus represents the repayment status of an installment plan.
type InstallmentStatus string

const (
	InstallmentStatusPending  InstallmentStatus = "pending"
	InstallmentStatusRepaying InstallmentStatus = "repaying"
	InstallmentStatusFinished InstallmentStatus = "finished"
)

// String returns the string representation of the status.
func (s InstallmentStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the plan may move to target.
// Plan status only ever moves forward: pending -> repaying -> finished.
func (s InstallmentStatus) CanTransitionTo(target InstallmentStatus) bool {
	from, ok := installmentStatusRank[s]
	if !ok {
		return false
	}
	to, ok := installmentStatusRank[target]
	if !ok {
		return false
	}
	return to > from
}

var installmentStatusRank = map[InstallmentStatus]int{
	InstallmentStatusPending:  0,
	InstallmentStatusRepaying: 1,
	InstallmentStatusFinished: 2,
}

// ItemRefundStatus represents the refund status of a single repayment period.
type ItemRefundStatus string

const (
	ItemRefundStatusPending    ItemRefundStatus = "pending"
	ItemRefundStatusProcessing ItemRefundStatus = "processing"
	ItemRefundStatusSuccess    ItemRefundStatus = "success"
	ItemRefundStatusFailed     ItemRefundStatus = "failed"
)

// String returns the string representation of the refund status.
func (s ItemRefundStatus) String() string {
	return string(s)
}

// Installment is an installment plan splitting one order's payment into periods.
type Installment struct {
	ID          uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	No          string            `json:"no" gorm:"uniqueIndex;not null"`
	UserID      uuid.UUID         `json:"user_id" gorm:"type:uuid;not null;index"`
	OrderID     uuid.UUID         `json:"order_id" gorm:"type:uuid;not null;uniqueIndex"`
	TotalAmount int64             `json:"total_amount" gorm:"not null"` // In cents
	Count       int               `json:"count" gorm:"not null"`
	FeeRate     decimal.Decimal   `json:"fee_rate" gorm:"type:numeric(5,2);not null"`
	Status      InstallmentStatus `json:"status" gorm:"not null;default:pending"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	Items []*InstallmentItem `json:"items,omitempty" gorm:"foreignKey:InstallmentID"`
}

// TableName returns the database table name.
func (Installment) TableName() string {
	return "installments"
}

// IsFinished returns true if every period of the plan has been paid.
func (i *Installment) IsFinished() bool {
	return i.Status == InstallmentStatusFinished
}

// LastSequence returns the sequence of the final period.
func (i *Installment) LastSequence() int {
	return i.Count - 1
}

// InstallmentItem is one scheduled repayment period within a plan.
type InstallmentItem struct {
	ID            uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	InstallmentID uuid.UUID        `json:"installment_id" gorm:"type:uuid;not null;uniqueIndex:idx_installment_items_sequence"`
	Sequence      int              `json:"sequence" gorm:"not null;uniqueIndex:idx_installment_items_sequence"`
	Base          int64            `json:"base" gorm:"not null"` // In cents
	Fee           int64            `json:"fee" gorm:"not null"`  // In cents
	DueDate       time.Time        `json:"due_date" gorm:"not null"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	PaymentNo     string           `json:"payment_no,omitempty"`
	RefundStatus  ItemRefundStatus `json:"refund_status" gorm:"not null;default:pending"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TableName returns the database table name.
func (InstallmentItem) TableName() string {
	return "installment_items"
}

// Total returns the amount due for the period.
func (i *InstallmentItem) Total() int64 {
	return i.Base + i.Fee
}

// IsPaid returns true if the period has been settled.
func (i *InstallmentItem) IsPaid() bool {
	return i.PaidAt != nil
}

// --- API types ---

// CreateInstallmentRequest represents a request to split an order into installments.
type CreateInstallmentRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}

// PayInstallmentRequest represents a request to pay the next pending period.
type PayInstallmentRequest struct {
	Method    PaymentMethod `json:"method" binding:"required,oneof=alipay wechat"`
	Scene     PaymentScene  `json:"scene" binding:"required"`
	OpenID    string        `json:"openid,omitempty"`
	ReturnURL string        `json:"return_url,omitempty"`
}

// RefundInstallmentRequest represents a request to refund every paid period of a plan.
type RefundInstallmentRequest struct {
	Reason string `json:"reason"`
}

// InstallmentResponse is the API view of a plan with its periods.
type InstallmentResponse struct {
	*Installment
	NextItem *InstallmentItem `json:"next_item,omitempty"`
}

// InstallmentPaymentResponse is returned after a gateway payment has been created.
type InstallmentPaymentResponse struct {
	InstallmentNo string        `json:"installment_no"`
	Sequence      int           `json:"sequence"`
	OutTradeNo    string        `json:"out_trade_no"`
	Method        PaymentMethod `json:"method"`
	PayURL        string        `json:"pay_url,omitempty"`
	QRCode        string        `json:"qr_code,omitempty"`
	AppPayData    string        `json:"app_pay_data,omitempty"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	ExpireTime    int64         `json:"expire_time,omitempty"`
}

// SettlementResult enumerates the state transitions a reconciliation performed.
type SettlementResult struct {
	Settled          bool `json:"settled"`
	AlreadySettled   bool `json:"already_settled"`
	PlanRepaying     bool `json:"plan_repaying"`
	PlanFinished     bool `json:"plan_finished"`
	OrderSettled     bool `json:"order_settled"`
	OrderPaidEmitted bool `json:"order_paid_emitted"`
}
