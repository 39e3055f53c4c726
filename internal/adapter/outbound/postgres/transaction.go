package postgres

import (
	"context"

	"github.com/shopcore/installment/internal/port/outbound"
	"gorm.io/gorm"
)

// txContextKeyType is the context key under which the active transaction is stored.
type txContextKeyType struct{}

var txContextKey = txContextKeyType{}

// transactionAdapter implements outbound.TransactionPort.
type transactionAdapter struct {
	db *gorm.DB
}

// NewTransactionAdapter creates a new transaction adapter.
func NewTransactionAdapter(db *gorm.DB) outbound.TransactionPort {
	return &transactionAdapter{db: db}
}

func (a *transactionAdapter) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction.
	if _, ok := ctx.Value(txContextKey).(*gorm.DB); ok {
		return fn(ctx)
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txContextKey, tx)
		return fn(txCtx)
	})
}

// conn returns the transaction carried by ctx, or db when there is none.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// Compile-time check
var _ outbound.TransactionPort = (*transactionAdapter)(nil)
