package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/points-ledger-api/internal/models"
)

const prizeColumns = `id, name, COALESCE(description, '') AS description, point_cost, stock_count, active, created_at, updated_at`

// PrizeRepository persists the prize inventory.
type PrizeRepository struct {
	db *sqlx.DB
}

// NewPrizeRepository constructs a PrizeRepository.
func NewPrizeRepository(db *sqlx.DB) *PrizeRepository {
	return &PrizeRepository{db: db}
}

// List returns prizes ordered by cost then name.
func (r *PrizeRepository) List(ctx context.Context, includeInactive bool) ([]models.Prize, error) {
	query := "SELECT " + prizeColumns + " FROM prize_inventory"
	if !includeInactive {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY point_cost ASC, name ASC"
	var prizes []models.Prize
	if err := r.db.SelectContext(ctx, &prizes, query); err != nil {
		return nil, fmt.Errorf("list prizes: %w", err)
	}
	return prizes, nil
}

// FindByID fetches a prize by ID.
func (r *PrizeRepository) FindByID(ctx context.Context, id int64) (*models.Prize, error) {
	var prize models.Prize
	if err := r.db.GetContext(ctx, &prize, "SELECT "+prizeColumns+" FROM prize_inventory WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &prize, nil
}

// Create inserts a new prize.
func (r *PrizeRepository) Create(ctx context.Context, prize *models.Prize) error {
	now := time.Now().UTC()
	prize.CreatedAt = now
	prize.UpdatedAt = now
	const query = `INSERT INTO prize_inventory (name, description, point_cost, stock_count, active, created_at, updated_at)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, prize.Name, prize.Description, prize.PointCost, prize.StockCount, prize.Active, prize.CreatedAt, prize.UpdatedAt).
		Scan(&prize.ID); err != nil {
		return fmt.Errorf("create prize: %w", err)
	}
	return nil
}

// AdjustStock applies delta to the stock count, refusing to go below zero.
// It returns ErrStockExhausted when the guard rejects the change and sql.ErrNoRows when the prize is missing.
func (r *PrizeRepository) AdjustStock(ctx context.Context, id int64, delta int64) (int64, error) {
	const query = `UPDATE prize_inventory SET stock_count = stock_count + $1, updated_at = $2
        WHERE id = $3 AND stock_count + $1 >= 0 RETURNING stock_count`
	var stock int64
	err := r.db.QueryRowxContext(ctx, query, delta, time.Now().UTC(), id).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("adjust prize stock: %w", err)
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM prize_inventory WHERE id = $1)", id); err != nil {
		return 0, fmt.Errorf("check prize: %w", err)
	}
	if !exists {
		return 0, sql.ErrNoRows
	}
	return 0, ErrStockExhausted
}
