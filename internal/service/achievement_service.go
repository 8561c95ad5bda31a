package service

import (
	"context"
	"time"

	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

// recentActivityWindow is how far back an activity counts for the weekly
// logger badge
const recentActivityWindow = 7 * 24 * time.Hour

// Badge describes an achievement kind
type Badge struct {
	Key         types.BadgeKey
	Title       string
	Description string
}

// Badges lists every badge in evaluation order
var Badges = []Badge{
	{types.BadgeFirstStep, "First Step", "Logged your first activity!"},
	{types.BadgeGettingGreener, "Getting Greener", "Logged 5 activities."},
	{types.BadgeEcoWarrior, "Eco Warrior", "Logged 10 activities!"},
	{types.BadgeFirstLogin, "First Login", "You logged in for the first time!"},
	{types.BadgeGoalAchiever, "Goal Achiever", "Stayed within your weekly goal"},
	{types.BadgeWeeklyLogger, "Weekly Logger", "Logged an activity in the last 7 days"},
}

// milestones maps activity-count thresholds to badges
var milestones = []struct {
	count int64
	key   types.BadgeKey
}{
	{1, types.BadgeFirstStep},
	{5, types.BadgeGettingGreener},
	{10, types.BadgeEcoWarrior},
}

// Snapshot is the user state badges are evaluated against
type Snapshot struct {
	ActivityCount       int64
	WeeklyTotal         float64
	WeeklyActivityCount int64
	WeeklyGoal          float64
	HasLoggedIn         bool
	LastActivityAt      *time.Time
	Now                 time.Time
}

// Evaluate returns the badges earned by s, in Badges order. It has no side
// effects.
func Evaluate(s Snapshot) []Badge {
	earned := make(map[types.BadgeKey]bool, len(Badges))

	for _, m := range milestones {
		if s.ActivityCount >= m.count {
			earned[m.key] = true
		}
	}
	if s.HasLoggedIn {
		earned[types.BadgeFirstLogin] = true
	}
	if s.WeeklyActivityCount > 0 && s.WeeklyTotal <= s.WeeklyGoal {
		earned[types.BadgeGoalAchiever] = true
	}
	if s.LastActivityAt != nil && s.Now.Sub(*s.LastActivityAt) <= recentActivityWindow {
		earned[types.BadgeWeeklyLogger] = true
	}

	badges := make([]Badge, 0, len(earned))
	for _, b := range Badges {
		if earned[b.Key] {
			badges = append(badges, b)
		}
	}
	return badges
}

// AchievementService evaluates and stores badges
type AchievementService struct {
	users        UserRepository
	activities   ActivityRepository
	achievements AchievementRepository
	loc          *time.Location
	now          func() time.Time
}

// NewAchievementService creates a new achievement service. Weeks are
// computed in loc.
func NewAchievementService(
	users UserRepository,
	activities ActivityRepository,
	achievements AchievementRepository,
	loc *time.Location,
) *AchievementService {
	return &AchievementService{
		users:        users,
		activities:   activities,
		achievements: achievements,
		loc:          loc,
		now:          time.Now,
	}
}

// Snapshot gathers the user state used by Evaluate
func (s *AchievementService) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Snapshot{}, storeError("get user", err, "user not found")
	}

	stats, err := s.activities.Stats(ctx, userID)
	if err != nil {
		return Snapshot{}, storeError("activity stats", err, "user not found")
	}

	now := s.now()
	week := WeekOf(now, s.loc)
	total, count, err := s.activities.WeeklyTotal(ctx, userID, week.Start, week.End)
	if err != nil {
		return Snapshot{}, storeError("weekly total", err, "user not found")
	}

	return Snapshot{
		ActivityCount:       stats.Count,
		WeeklyTotal:         total,
		WeeklyActivityCount: count,
		WeeklyGoal:          user.WeeklyGoal,
		HasLoggedIn:         user.HasLoggedIn,
		LastActivityAt:      stats.LastActivityAt,
		Now:                 now,
	}, nil
}

// Reconcile evaluates the user's badges and stores any not yet held. It
// returns the newly awarded achievements. Badges are never revoked.
func (s *AchievementService) Reconcile(ctx context.Context, userID string) ([]*models.Achievement, error) {
	snap, err := s.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	var awarded []*models.Achievement
	for _, b := range Evaluate(snap) {
		a := &models.Achievement{
			UserID:      userID,
			BadgeKey:    b.Key,
			Title:       b.Title,
			Description: b.Description,
			AchievedAt:  snap.Now.UTC(),
		}
		inserted, err := s.achievements.Award(ctx, a)
		if err != nil {
			return awarded, storeError("award achievement", err, "user not found")
		}
		if inserted {
			awarded = append(awarded, a)
		}
	}

	if len(awarded) > 0 {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"user_id": userID,
			"count":   len(awarded),
		}).Info("Achievements awarded")
	}
	return awarded, nil
}

// ReconcileQuietly runs Reconcile and logs failures instead of returning
// them. Badge evaluation never fails the write that triggered it.
func (s *AchievementService) ReconcileQuietly(ctx context.Context, userID string) []*models.Achievement {
	awarded, err := s.Reconcile(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("user_id", userID).Warn("Achievement evaluation failed")
	}
	return awarded
}

// List returns the user's stored badges in award order
func (s *AchievementService) List(ctx context.Context, userID string) ([]*models.Achievement, error) {
	list, err := s.achievements.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list achievements", err, "user not found")
	}
	return list, nil
}
