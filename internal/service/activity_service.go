package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carbon-tracker/internal/emission"
	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

// MaxActivityPageSize caps ListMine page sizes
const MaxActivityPageSize = 500

// SubmitActivityInput represents input for logging an activity
type SubmitActivityInput struct {
	UserID string             `json:"-"`
	Type   types.ActivityType `json:"type"`
	Data   json.RawMessage    `json:"data"`
}

// SubmitActivityResult is returned after an activity is stored
type SubmitActivityResult struct {
	CarbonFootprint string                `json:"carbonFootprint"`
	Suggestion      string                `json:"suggestion"`
	Activity        *models.Activity      `json:"activity"`
	Equivalency     *emission.Equivalency `json:"equivalency,omitempty"`
	NewAchievements []*models.Achievement `json:"newAchievements"`
}

// ActivityService logs activities and lists a user's history
type ActivityService struct {
	activities   ActivityRepository
	calculator   *emission.Calculator
	achievements *AchievementService
	cache        *cacheAside
	loc          *time.Location
	now          func() time.Time
}

// NewActivityService creates a new activity service
func NewActivityService(
	activities ActivityRepository,
	calculator *emission.Calculator,
	achievements *AchievementService,
	cache Cache,
	loc *time.Location,
) *ActivityService {
	return &ActivityService{
		activities:   activities,
		calculator:   calculator,
		achievements: achievements,
		cache:        newCacheAside(cache, nil),
		loc:          loc,
		now:          time.Now,
	}
}

// Submit computes the footprint of an activity, stores it, re-evaluates
// badges and retires the current week's cached leaderboard. Invalid payloads
// are rejected before anything is written.
func (s *ActivityService) Submit(ctx context.Context, input *SubmitActivityInput) (*SubmitActivityResult, error) {
	if input.UserID == "" {
		return nil, apperrors.NewUnauthorizedError("missing user")
	}

	data, footprint, err := s.calculator.Compute(input.Type, input.Data)
	if err != nil {
		return nil, err
	}

	activity := &models.Activity{
		UserID:          input.UserID,
		Type:            input.Type,
		Data:            data,
		CarbonFootprint: footprint,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, storeError("create activity", err, "user not found")
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":          input.UserID,
		"activity_id":      activity.ID,
		"type":             activity.Type,
		"carbon_footprint": footprint,
	}).Info("Activity logged")

	week := WeekOf(activity.CreatedAt, s.loc)
	s.cache.bump(ctx, leaderboardGeneration(week))

	awarded := s.achievements.ReconcileQuietly(ctx, input.UserID)
	if awarded == nil {
		awarded = []*models.Achievement{}
	}

	return &SubmitActivityResult{
		CarbonFootprint: emission.FormatKg(footprint),
		Suggestion:      emission.Suggestion(input.Type),
		Activity:        activity,
		Equivalency:     emission.Equivalent(footprint),
		NewAchievements: awarded,
	}, nil
}

// ListMine returns the user's activities newest first. limit 0 returns all.
func (s *ActivityService) ListMine(ctx context.Context, userID string, limit, offset int) ([]*models.Activity, error) {
	if limit < 0 || limit > MaxActivityPageSize {
		return nil, apperrors.NewInvalidParameterError("limit", "must be between 0 and 500")
	}
	if offset < 0 {
		return nil, apperrors.NewInvalidParameterError("offset", "must not be negative")
	}

	activities, err := s.activities.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, storeError("list activities", err, "user not found")
	}
	return activities, nil
}
