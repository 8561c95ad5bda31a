package service

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/storage"
)

const (
	// DefaultLeaderboardLimit is used when no limit is requested
	DefaultLeaderboardLimit = 50
	// MaxLeaderboardLimit is the largest accepted limit
	MaxLeaderboardLimit = 100
)

// LeaderboardService ranks users by their emissions this week
type LeaderboardService struct {
	activities ActivityRepository
	cache      *cacheAside
	loc        *time.Location
	now        func() time.Time
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(activities ActivityRepository, cache Cache, monitor *PerformanceMonitor, loc *time.Location) *LeaderboardService {
	return &LeaderboardService{
		activities: activities,
		cache:      newCacheAside(cache, monitor),
		loc:        loc,
		now:        time.Now,
	}
}

// Leaderboard returns the lowest emitters of the current ISO week first.
// A limit of 0 selects DefaultLeaderboardLimit.
func (s *LeaderboardService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit < 0 || limit > MaxLeaderboardLimit {
		return nil, apperrors.NewInvalidParameterError("limit", "must be between 1 and 100")
	}

	week := WeekOf(s.now(), s.loc)
	key := storage.GenerateCacheKey(storage.CacheKeyLeaderboard, week.Key())

	entries, err := loadVersioned(ctx, s.cache, leaderboardGeneration(week), key, func(ctx context.Context) ([]models.LeaderboardEntry, error) {
		rows, err := s.activities.LeaderboardTotals(ctx, week.Start, week.End)
		if err != nil {
			return nil, storeError("leaderboard", err, "leaderboard not found")
		}
		return RankLeaderboard(rows), nil
	})
	if err != nil {
		return nil, err
	}

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// leaderboardGeneration names the counter versioning a week's cached board.
// Anything that changes the board's contents bumps it.
func leaderboardGeneration(week WeekWindow) string {
	return storage.GenerateCacheKey(storage.CacheKeyGeneration, string(storage.CacheKeyLeaderboard), week.Key())
}

// RankLeaderboard orders entries by total ascending, then by user id
func RankLeaderboard(entries []models.LeaderboardEntry) []models.LeaderboardEntry {
	ranked := make([]models.LeaderboardEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total < ranked[j].Total
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	return ranked
}
