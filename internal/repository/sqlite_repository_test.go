package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kshitij406/VendingMachine/internal/domain"
)

func setupRepo(t *testing.T) *Repository {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	migrations, err := filepath.Abs("../../migrations")
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations(migrations))

	return repo
}

func TestLoadAll_Seeded(t *testing.T) {
	repo := setupRepo(t)

	products, err := repo.LoadAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, products, 5)
	assert.Equal(t, "Soda", products[2].Name)
	assert.Equal(t, 1.50, products[2].Price)
	assert.Equal(t, 10, products[2].Stock)
}

func TestApplyStockDelta_Decrement(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ApplyStockDelta(ctx, 2, -3))

	products, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, products[2].Stock)
}

func TestApplyStockDelta_InsufficientStock(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	err := repo.ApplyStockDelta(ctx, 2, -11)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	// Stock unchanged after the rejected decrement.
	products, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, products[2].Stock)
}

func TestApplyStockDelta_ProductNotFound(t *testing.T) {
	repo := setupRepo(t)

	err := repo.ApplyStockDelta(context.Background(), 999, -1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestApplyStockDelta_Restore(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ApplyStockDelta(ctx, 2, -4))
	require.NoError(t, repo.ApplyStockDelta(ctx, 2, 4))

	products, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, products[2].Stock)
}

// Concurrent decrements must never drive stock negative: with stock 10 and
// 15 single-unit decrements, exactly 10 succeed.
func TestApplyStockDelta_ConcurrentDecrements(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	const attempts = 15
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.ApplyStockDelta(ctx, 2, -1)
		}()
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, domain.ErrInsufficientStock)
			insufficient++
		}
	}

	assert.Equal(t, 10, ok)
	assert.Equal(t, 5, insufficient)

	products, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, products[2].Stock)
}

func TestSetStock(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetStock(ctx, 2, 0))

	products, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, products[2].Stock)

	assert.ErrorIs(t, repo.SetStock(ctx, 999, 5), domain.ErrProductNotFound)
}

func TestTransactions_AppendAndRecent(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		rec := domain.TransactionRecord{
			ID:          uuid.New().String(),
			ProductID:   2,
			ProductName: "Soda",
			Quantity:    i + 1,
			Total:       1.50 * float64(i+1),
			Username:    "alice",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.AppendTransaction(ctx, rec))
	}

	records, err := repo.RecentTransactions(ctx, 2)
	require.NoError(t, err)

	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, 3, records[0].Quantity)
	assert.Equal(t, 2, records[1].Quantity)
	assert.Equal(t, "alice", records[0].Username)
}

func TestRecentTransactions_Empty(t *testing.T) {
	repo := setupRepo(t)

	records, err := repo.RecentTransactions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
