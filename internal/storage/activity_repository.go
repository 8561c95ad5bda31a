package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carbon-tracker/internal/models"
)

// ActivityRepository handles activity persistence and aggregation
type ActivityRepository struct {
	db *PostgresDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *PostgresDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create inserts an activity. Activities are never updated afterwards.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	dataJSON, err := json.Marshal(activity.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal activity data: %w", err)
	}

	query := `
		INSERT INTO activities (id, user_id, type, data, carbon_footprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		activity.ID,
		activity.UserID,
		activity.Type,
		dataJSON,
		activity.CarbonFootprint,
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

// ListByUser returns a user's activities newest first. A limit of 0 returns all.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Activity, error) {
	query := `
		SELECT id, user_id, type, data, carbon_footprint, created_at
		FROM activities
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}

	rows, err := r.db.Pool().Query(ctx, query, userID, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*models.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return activities, nil
}

func scanActivity(rows pgx.Rows) (*models.Activity, error) {
	var activity models.Activity
	var dataJSON []byte

	if err := rows.Scan(
		&activity.ID,
		&activity.UserID,
		&activity.Type,
		&dataJSON,
		&activity.CarbonFootprint,
		&activity.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &activity.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal activity data: %w", err)
		}
	}
	return &activity, nil
}

// WeeklyTotal sums a user's footprints with created_at in [start, end)
func (r *ActivityRepository) WeeklyTotal(ctx context.Context, userID string, start, end time.Time) (float64, int64, error) {
	query := `
		SELECT COALESCE(SUM(carbon_footprint), 0), COUNT(*)
		FROM activities
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`

	var total float64
	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, userID, start, end).Scan(&total, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to sum weekly emissions: %w", err)
	}
	return total, count, nil
}

// Stats returns the all-time count and the most recent activity time
func (r *ActivityRepository) Stats(ctx context.Context, userID string) (models.ActivityStats, error) {
	query := `SELECT COUNT(*), MAX(created_at) FROM activities WHERE user_id = $1`

	var stats models.ActivityStats
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&stats.Count, &stats.LastActivityAt); err != nil {
		return models.ActivityStats{}, fmt.Errorf("failed to get activity stats: %w", err)
	}
	return stats, nil
}

// LeaderboardTotals sums every user's footprints within [start, end),
// lowest total first with user id as tiebreaker. Users without activity
// in the window are absent.
func (r *ActivityRepository) LeaderboardTotals(ctx context.Context, start, end time.Time) ([]models.LeaderboardEntry, error) {
	query := `
		SELECT a.user_id, u.name, SUM(a.carbon_footprint) AS total
		FROM activities a
		JOIN users u ON u.id = a.user_id
		WHERE a.created_at >= $1 AND a.created_at < $2
		GROUP BY a.user_id, u.name
		ORDER BY total ASC, a.user_id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0)
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Total); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return entries, nil
}

// CategoryTotals returns a user's all-time emissions per activity type
func (r *ActivityRepository) CategoryTotals(ctx context.Context, userID string) ([]models.CategoryTotal, error) {
	query := `
		SELECT type, SUM(carbon_footprint)
		FROM activities
		WHERE user_id = $1
		GROUP BY type
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum category emissions: %w", err)
	}
	defer rows.Close()

	totals := make([]models.CategoryTotal, 0, 3)
	for rows.Next() {
		var ct models.CategoryTotal
		if err := rows.Scan(&ct.Type, &ct.Total); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category totals: %w", err)
	}
	return totals, nil
}
