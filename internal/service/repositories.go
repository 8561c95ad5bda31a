// Package service implements the carbon tracker's business operations on
// top of the storage repositories.
package service

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/storage"
	"github.com/carbon-tracker/internal/types"
)

// Repository interfaces for dependency injection

// UserRepository interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, id string, update models.UserUpdate) (*models.User, error)
	SetPasswordHash(ctx context.Context, email, hash string) error
	MarkLoggedIn(ctx context.Context, id string) (bool, error)
	SetProfilePic(ctx context.Context, id, ref string) error
}

// OTPRepository interface for OTP challenge operations
type OTPRepository interface {
	Upsert(ctx context.Context, challenge *models.OTPChallenge) error
	Get(ctx context.Context, email string, purpose types.OTPPurpose) (*models.OTPChallenge, error)
	ReserveAttempt(ctx context.Context, email string, purpose types.OTPPurpose, maxAttempts int, now time.Time) (*models.OTPChallenge, error)
	MarkVerified(ctx context.Context, email string, purpose types.OTPPurpose, expiresAt time.Time) error
	Delete(ctx context.Context, email string, purpose types.OTPPurpose) error
}

// ActivityRepository interface for activity data operations
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Activity, error)
	WeeklyTotal(ctx context.Context, userID string, start, end time.Time) (float64, int64, error)
	Stats(ctx context.Context, userID string) (models.ActivityStats, error)
	LeaderboardTotals(ctx context.Context, start, end time.Time) ([]models.LeaderboardEntry, error)
	CategoryTotals(ctx context.Context, userID string) ([]models.CategoryTotal, error)
}

// GoalRepository interface for goal data operations
type GoalRepository interface {
	Get(ctx context.Context, userID string) (*models.Goal, error)
	Upsert(ctx context.Context, userID string, weeklyGoal float64) (*models.Goal, bool, error)
}

// AchievementRepository interface for badge persistence
type AchievementRepository interface {
	Award(ctx context.Context, achievement *models.Achievement) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Achievement, error)
}

// TipRepository interface for tip catalogue reads
type TipRepository interface {
	ListByCategory(ctx context.Context, category types.TipCategory, limit int) ([]*models.Tip, error)
	ListAll(ctx context.Context) ([]*models.Tip, error)
}

// Cache is the JSON cache used for leaderboards and tip lists
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context, keys ...string) error
	InvalidatePattern(ctx context.Context, pattern string) error
	Generation(ctx context.Context, name string) (int64, error)
	BumpGeneration(ctx context.Context, name string) error
}

// Mailer delivers one-time codes
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, purpose types.OTPPurpose) error
}

// storeError maps a repository error onto the API error taxonomy
func storeError(op string, err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.NewNotFoundError(notFound)
	case errors.Is(err, storage.ErrDuplicate):
		return apperrors.NewConflictError("email already in use")
	default:
		var catErr *apperrors.CategorizedError
		if errors.As(err, &catErr) {
			return catErr
		}
		return apperrors.NewDatabaseError(op, err)
	}
}
