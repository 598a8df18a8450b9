package repository

import (
	"context"

	"github.com/kshitij406/VendingMachine/internal/domain"
)

// CatalogStore is the durable product catalog plus the append-only
// transaction log. ApplyStockDelta is atomic with respect to concurrent
// callers; two decrements for the same product never both succeed if
// their sum exceeds current stock.
type CatalogStore interface {
	LoadAll(ctx context.Context) (map[int64]domain.Product, error)
	ApplyStockDelta(ctx context.Context, productID int64, delta int) error
	SetStock(ctx context.Context, productID int64, stock int) error
	AppendTransaction(ctx context.Context, record domain.TransactionRecord) error
	RecentTransactions(ctx context.Context, limit int) ([]domain.TransactionRecord, error)
	Close() error
}
