package service

import (
	"context"
	"time"

	"github.com/carbon-tracker/internal/emission"
	"github.com/carbon-tracker/internal/types"
)

// WeeklySummary compares the current ISO week's emissions with the goal
type WeeklySummary struct {
	Goal          float64               `json:"goal"`
	Total         string                `json:"total"`
	Status        types.SummaryStatus   `json:"status"`
	WeekStart     time.Time             `json:"weekStart"`
	WeekEnd       time.Time             `json:"weekEnd"`
	ActivityCount int64                 `json:"activityCount"`
	Equivalency   *emission.Equivalency `json:"equivalency,omitempty"`
}

// Status returns "under" when total <= goal and "over" otherwise
func Status(total, goal float64) types.SummaryStatus {
	if total <= goal {
		return types.StatusUnder
	}
	return types.StatusOver
}

// SummaryService aggregates a user's weekly emissions
type SummaryService struct {
	users      UserRepository
	activities ActivityRepository
	loc        *time.Location
	now        func() time.Time
}

// NewSummaryService creates a new summary service
func NewSummaryService(users UserRepository, activities ActivityRepository, loc *time.Location) *SummaryService {
	return &SummaryService{
		users:      users,
		activities: activities,
		loc:        loc,
		now:        time.Now,
	}
}

// WeeklySummary sums the user's footprints in the current week and compares
// them with the goal as stored right now.
func (s *SummaryService) WeeklySummary(ctx context.Context, userID string) (*WeeklySummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeError("get user", err, "user not found")
	}

	week := WeekOf(s.now(), s.loc)
	total, count, err := s.activities.WeeklyTotal(ctx, userID, week.Start, week.End)
	if err != nil {
		return nil, storeError("weekly total", err, "user not found")
	}

	return &WeeklySummary{
		Goal:          user.WeeklyGoal,
		Total:         emission.FormatKg(total),
		Status:        Status(total, user.WeeklyGoal),
		WeekStart:     week.Start,
		WeekEnd:       week.End,
		ActivityCount: count,
		Equivalency:   emission.Equivalent(total),
	}, nil
}
