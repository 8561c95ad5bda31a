package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carbon-tracker/internal/models"
)

// AchievementRepository stores awarded badges
type AchievementRepository struct {
	db *PostgresDB
}

// NewAchievementRepository creates a new achievement repository
func NewAchievementRepository(db *PostgresDB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Award inserts the badge unless the user already holds it. It reports
// whether a new row was written; concurrent calls award at most once.
func (r *AchievementRepository) Award(ctx context.Context, a *models.Achievement) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.AchievedAt.IsZero() {
		a.AchievedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO achievements (id, user_id, badge_key, title, description, achieved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, badge_key) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query, a.ID, a.UserID, a.BadgeKey, a.Title, a.Description, a.AchievedAt)
	if err != nil {
		return false, fmt.Errorf("failed to award achievement: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListByUser returns the user's badges in award order
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]*models.Achievement, error) {
	query := `
		SELECT id, user_id, badge_key, title, description, achieved_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY achieved_at ASC, badge_key ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	achievements := make([]*models.Achievement, 0)
	for rows.Next() {
		var a models.Achievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.BadgeKey, &a.Title, &a.Description, &a.AchievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		achievements = append(achievements, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}
	return achievements, nil
}
