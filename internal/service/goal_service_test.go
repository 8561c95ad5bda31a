package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

func newGoalFixture(now time.Time) (*GoalService, *mockUserRepo, *mockActivityRepo, *mockAchievementRepo) {
	achievements, users, activities, achievementRepo := newAchievementFixture(now)
	goals := &mockGoalRepo{users: users, goals: make(map[string]*models.Goal)}
	return NewGoalService(goals, achievements), users, activities, achievementRepo
}

func TestGoalService_SetAndUpdate(t *testing.T) {
	svc, users, _, _ := newGoalFixture(time.Now())
	ctx := context.Background()
	user := users.add(&models.User{Name: "Ada", Email: "ada@example.com", WeeklyGoal: 50})

	_, err := svc.Get(ctx, user.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
	assert.Equal(t, "No goal set yet", err.(*apperrors.CategorizedError).Message)

	res, err := svc.Set(ctx, user.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, "Goal set", res.Message)
	assert.Equal(t, 25.0, res.Goal.WeeklyGoal)

	res, err = svc.Set(ctx, user.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, "Goal updated", res.Message)

	goal, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, goal.WeeklyGoal)

	stored, _ := users.GetByID(ctx, user.ID)
	assert.Equal(t, 30.0, stored.WeeklyGoal, "summary goal follows the goal record")
}

func TestGoalService_RejectsInvalidGoals(t *testing.T) {
	svc, users, _, _ := newGoalFixture(time.Now())
	user := users.add(&models.User{Name: "Ada", Email: "ada@example.com", WeeklyGoal: 50})

	for _, goal := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		_, err := svc.Set(context.Background(), user.ID, goal)
		assert.True(t, apperrors.IsUserError(err), "goal %v", goal)
	}
}

func TestGoalService_UnknownUser(t *testing.T) {
	svc, _, _, _ := newGoalFixture(time.Now())

	_, err := svc.Set(context.Background(), "missing", 10)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}

func TestGoalService_SetReevaluatesBadges(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	svc, users, activities, achievements := newGoalFixture(now)
	ctx := context.Background()

	user := users.add(&models.User{Name: "Ada", Email: "ada@example.com", WeeklyGoal: 1})
	require.NoError(t, activities.Create(ctx, &models.Activity{UserID: user.ID, Type: types.ActivityDiet, CarbonFootprint: 4.5, CreatedAt: now}))

	_, err := svc.Set(ctx, user.ID, 10)
	require.NoError(t, err)

	keys := map[types.BadgeKey]bool{}
	for _, a := range achievements.byUser[user.ID] {
		keys[a.BadgeKey] = true
	}
	assert.True(t, keys[types.BadgeGoalAchiever])
}
