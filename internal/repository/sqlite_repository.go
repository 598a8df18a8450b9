package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	"github.com/kshitij406/VendingMachine/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", domain.ErrStoreUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: failed to ping database: %v", domain.ErrStoreUnavailable, err)
	}

	// modernc sqlite allows one writer; a single connection avoids
	// SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) LoadAll(ctx context.Context) (map[int64]domain.Product, error) {
	query := `SELECT id, name, price, stock FROM products ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query products: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	products := make(map[int64]domain.Product)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

// ApplyStockDelta adjusts stock by delta in a single conditional UPDATE.
// The stock >= 0 guard makes the check and the write one atomic statement.
func (r *Repository) ApplyStockDelta(ctx context.Context, productID int64, delta int) error {
	query := `UPDATE products SET stock = stock + ? WHERE id = ? AND stock + ? >= 0`

	res, err := r.db.ExecContext(ctx, query, delta, productID, delta)
	if err != nil {
		return fmt.Errorf("%w: update stock: %v", domain.ErrStoreUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return r.classifyMiss(ctx, productID)
	}
	return nil
}

func (r *Repository) SetStock(ctx context.Context, productID int64, stock int) error {
	query := `UPDATE products SET stock = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, stock, productID)
	if err != nil {
		return fmt.Errorf("%w: set stock: %v", domain.ErrStoreUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *Repository) AppendTransaction(ctx context.Context, rec domain.TransactionRecord) error {
	query := `INSERT INTO transactions (id, product_id, product_name, quantity, total, username, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.ProductID,
		rec.ProductName,
		rec.Quantity,
		rec.Total,
		rec.Username,
		rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert transaction: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Repository) RecentTransactions(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	query := `SELECT id, product_id, product_name, quantity, total, username, created_at
	          FROM transactions ORDER BY created_at DESC, id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query transactions: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.ProductID,
			&rec.ProductName,
			&rec.Quantity,
			&rec.Total,
			&rec.Username,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// classifyMiss tells a missing product apart from an insufficient-stock
// rejection after a zero-row conditional update.
func (r *Repository) classifyMiss(ctx context.Context, productID int64) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, productID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: check product: %v", domain.ErrStoreUnavailable, err)
	}
	return domain.ErrInsufficientStock
}
