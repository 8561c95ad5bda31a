package service

import (
	"context"
	"math"

	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/models"
)

// SetGoalResult reports the stored goal and whether it replaced an earlier one
type SetGoalResult struct {
	Message string       `json:"message"`
	Goal    *models.Goal `json:"goal"`
}

// GoalService reads and sets weekly goals
type GoalService struct {
	goals        GoalRepository
	achievements *AchievementService
}

// NewGoalService creates a new goal service
func NewGoalService(goals GoalRepository, achievements *AchievementService) *GoalService {
	return &GoalService{goals: goals, achievements: achievements}
}

// Get returns the user's goal
func (s *GoalService) Get(ctx context.Context, userID string) (*models.Goal, error) {
	goal, err := s.goals.Get(ctx, userID)
	if err != nil {
		return nil, storeError("get goal", err, "No goal set yet")
	}
	return goal, nil
}

// Set creates or replaces the user's weekly goal and re-evaluates badges
func (s *GoalService) Set(ctx context.Context, userID string, weeklyGoal float64) (*SetGoalResult, error) {
	if weeklyGoal <= 0 || math.IsNaN(weeklyGoal) || math.IsInf(weeklyGoal, 0) {
		return nil, apperrors.NewInvalidParameterError("weeklyGoal", "must be a positive number")
	}

	goal, created, err := s.goals.Upsert(ctx, userID, weeklyGoal)
	if err != nil {
		return nil, storeError("set goal", err, "user not found")
	}

	s.achievements.ReconcileQuietly(ctx, userID)

	message := "Goal updated"
	if created {
		message = "Goal set"
	}
	return &SetGoalResult{Message: message, Goal: goal}, nil
}
