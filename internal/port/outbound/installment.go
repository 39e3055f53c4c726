package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/model"
)

// ErrDuplicateKey is returned by adapters when an insert violates a unique key.
var ErrDuplicateKey = errors.New("duplicate key")

// InstallmentDatabasePort defines installment plan persistence operations.
// Finders return (nil, nil) when no row matches.
type InstallmentDatabasePort interface {
	// Create persists a plan together with its items.
	// Returns ErrDuplicateKey if the plan number or order is already taken.
	Create(ctx context.Context, plan *model.Installment) error

	// FindByNo finds a plan by its plan number.
	FindByNo(ctx context.Context, no string) (*model.Installment, error)

	// FindByOrderID finds the plan owned by an order.
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*model.Installment, error)

	// FindByOrderRefundNo finds the plan whose order carries the given refund tracking number.
	FindByOrderRefundNo(ctx context.Context, refundNo string) (*model.Installment, error)

	// ListByUser lists a user's plans, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.Installment, int64, error)

	// LockByID loads a plan holding a row lock until the surrounding transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*model.Installment, error)

	// UpdateStatus moves a plan from one status to another.
	// Returns false if the plan was no longer in the from status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.InstallmentStatus) (bool, error)
}

// InstallmentItemDatabasePort defines repayment period persistence operations.
type InstallmentItemDatabasePort interface {
	// FindBySequence finds the period of a plan at the given sequence.
	FindBySequence(ctx context.Context, installmentID uuid.UUID, sequence int) (*model.InstallmentItem, error)

	// FindPending finds the lowest-sequence unpaid period, or nil when the plan is fully paid.
	FindPending(ctx context.Context, installmentID uuid.UUID) (*model.InstallmentItem, error)

	// ListByInstallment lists all periods of a plan ordered by sequence.
	ListByInstallment(ctx context.Context, installmentID uuid.UUID) ([]*model.InstallmentItem, error)

	// MarkPaid sets paid_at, method and payment number only if paid_at is null.
	// Returns whether this call performed the transition.
	MarkPaid(ctx context.Context, installmentID uuid.UUID, sequence int, method, paymentNo string, paidAt time.Time) (bool, error)

	// UpdateRefundStatus unconditionally sets the refund status of a period.
	UpdateRefundStatus(ctx context.Context, installmentID uuid.UUID, sequence int, status model.ItemRefundStatus) error

	// TransitionRefundStatus sets the refund status of a period only while it is still from.
	// Returns whether this call performed the transition.
	TransitionRefundStatus(ctx context.Context, installmentID uuid.UUID, sequence int, from, to model.ItemRefundStatus) (bool, error)
}

// InstallmentOrderPort is the order settlement bridge used by the installment domain.
type InstallmentOrderPort interface {
	// FindByID finds an order by ID.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// Settle marks an unpaid, open order as paid.
	// Returns false if the order was already paid or closed.
	Settle(ctx context.Context, id uuid.UUID, method, paymentNo string, paidAt time.Time) (bool, error)

	// AssignRefundNo sets the refund tracking number if none is set yet.
	AssignRefundNo(ctx context.Context, id uuid.UUID, refundNo string) (bool, error)

	// UpdateRefundStatus sets the refund status of an order.
	UpdateRefundStatus(ctx context.Context, id uuid.UUID, status model.OrderRefundStatus) error
}

// OutboxDatabasePort defines outbox persistence operations.
type OutboxDatabasePort interface {
	// Append records an event. Called inside the transaction that produced it.
	Append(ctx context.Context, event *model.OutboxEvent) error

	// LockBatch leases up to batchSize deliverable events to relayID.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]*model.OutboxEvent, error)

	// MarkSent marks events as delivered.
	MarkSent(ctx context.Context, ids []uuid.UUID) error

	// MarkFailed records a delivery failure. The event is retried until
	// maxRetries is reached, after which it stays failed.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error
}

// TransactionPort defines transaction support.
type TransactionPort interface {
	// RunInTransaction executes fn within a transaction carried by the context passed to fn.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SettlementCachePort remembers correlation tokens that are known to be settled.
// It is an optimization only; the database stays the source of truth.
type SettlementCachePort interface {
	// IsSettled reports whether the token was recorded as settled.
	IsSettled(ctx context.Context, token string) (bool, error)

	// MarkSettled records the token as settled.
	MarkSettled(ctx context.Context, token string) error
}

// EventDispatcherPort delivers outbox events to a consumer.
type EventDispatcherPort interface {
	// Name identifies the dispatcher in logs and metrics.
	Name() string

	// Dispatch delivers one event.
	Dispatch(ctx context.Context, event *model.OutboxEvent) error
}
