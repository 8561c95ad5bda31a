package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

// TipRepository reads the seeded tip catalogue
type TipRepository struct {
	db *PostgresDB
}

// NewTipRepository creates a new tip repository
func NewTipRepository(db *PostgresDB) *TipRepository {
	return &TipRepository{db: db}
}

// ListByCategory returns up to limit tips in category. A limit of 0 returns all.
func (r *TipRepository) ListByCategory(ctx context.Context, category types.TipCategory, limit int) ([]*models.Tip, error) {
	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT id, category, message FROM tips WHERE category = $1 ORDER BY message LIMIT $2`,
		category, limitArg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tips: %w", err)
	}
	return collectTips(rows)
}

// ListAll returns every tip grouped by category
func (r *TipRepository) ListAll(ctx context.Context) ([]*models.Tip, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id, category, message FROM tips ORDER BY category, message`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tips: %w", err)
	}
	return collectTips(rows)
}

// Seed inserts tips that are not present yet and returns how many were added
func (r *TipRepository) Seed(ctx context.Context, tips []models.Tip) (int, error) {
	batch := &pgx.Batch{}
	for _, t := range tips {
		batch.Queue(
			`INSERT INTO tips (category, message) VALUES ($1, $2) ON CONFLICT (category, message) DO NOTHING`,
			t.Category, t.Message,
		)
	}

	results := r.db.Pool().SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range tips {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to seed tip: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func collectTips(rows pgx.Rows) ([]*models.Tip, error) {
	defer rows.Close()

	tips := make([]*models.Tip, 0)
	for rows.Next() {
		var t models.Tip
		if err := rows.Scan(&t.ID, &t.Category, &t.Message); err != nil {
			return nil, fmt.Errorf("failed to scan tip: %w", err)
		}
		tips = append(tips, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tips: %w", err)
	}
	return tips, nil
}
