package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carbon-tracker/internal/models"
)

// GoalRepository handles weekly goal persistence
type GoalRepository struct {
	db *PostgresDB
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(db *PostgresDB) *GoalRepository {
	return &GoalRepository{db: db}
}

// Get returns the user's goal or ErrNotFound
func (r *GoalRepository) Get(ctx context.Context, userID string) (*models.Goal, error) {
	query := `SELECT user_id, weekly_goal, created_at, updated_at FROM goals WHERE user_id = $1`

	var g models.Goal
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&g.UserID, &g.WeeklyGoal, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	return &g, nil
}

// Upsert sets the user's goal and mirrors it onto users.weekly_goal in one
// transaction. created reports whether the goal row was new.
func (r *GoalRepository) Upsert(ctx context.Context, userID string, weeklyGoal float64) (*models.Goal, bool, error) {
	var g models.Goal
	var created bool
	now := time.Now().UTC()

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO goals (user_id, weekly_goal, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (user_id) DO UPDATE
			SET weekly_goal = EXCLUDED.weekly_goal, updated_at = EXCLUDED.updated_at
			RETURNING user_id, weekly_goal, created_at, updated_at, (xmax = 0) AS inserted
		`
		if err := tx.QueryRow(ctx, query, userID, weeklyGoal, now).Scan(
			&g.UserID, &g.WeeklyGoal, &g.CreatedAt, &g.UpdatedAt, &created,
		); err != nil {
			return fmt.Errorf("failed to upsert goal: %w", err)
		}

		result, err := tx.Exec(ctx, `UPDATE users SET weekly_goal = $2, updated_at = $3 WHERE id = $1`, userID, weeklyGoal, now)
		if err != nil {
			return fmt.Errorf("failed to update user goal: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &g, created, nil
}
