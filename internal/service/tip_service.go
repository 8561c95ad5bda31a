package service

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/storage"
	"github.com/carbon-tracker/internal/types"
)

const (
	// maxRankedCategories is how many leading categories receive tips
	maxRankedCategories = 3
	// generalTipCount is how many general tips are returned without history
	generalTipCount = 5
)

// tipAllocations maps the number of ranked categories to per-rank counts
var tipAllocations = [][]int{
	nil,
	{5},
	{3, 2},
	{2, 2, 1},
}

// AllocateTips returns how many tips each of n ranked categories receives
func AllocateTips(n int) []int {
	if n <= 0 {
		return nil
	}
	if n > maxRankedCategories {
		n = maxRankedCategories
	}
	alloc := make([]int, n)
	copy(alloc, tipAllocations[n])
	return alloc
}

// RankCategories orders categories by total emissions, highest first, with
// ties broken by name, and keeps at most three.
func RankCategories(totals []models.CategoryTotal) []types.TipCategory {
	sorted := make([]models.CategoryTotal, len(totals))
	copy(sorted, totals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Total != sorted[j].Total {
			return sorted[i].Total > sorted[j].Total
		}
		return sorted[i].Type < sorted[j].Type
	})

	ranked := make([]types.TipCategory, 0, maxRankedCategories)
	for _, ct := range sorted {
		if len(ranked) == maxRankedCategories {
			break
		}
		ranked = append(ranked, types.TipCategoryFor(ct.Type))
	}
	return ranked
}

// TipService lists tips and recommends them from a user's history
type TipService struct {
	tips       TipRepository
	activities ActivityRepository
	cache      *cacheAside
}

// NewTipService creates a new tip service
func NewTipService(tips TipRepository, activities ActivityRepository, cache Cache, monitor *PerformanceMonitor) *TipService {
	return &TipService{
		tips:       tips,
		activities: activities,
		cache:      newCacheAside(cache, monitor),
	}
}

// List returns every tip, or the tips of one category. Unknown categories
// are a validation error.
func (s *TipService) List(ctx context.Context, category string) ([]*models.Tip, error) {
	if category == "" {
		return loadCached(ctx, s.cache, storage.GenerateCacheKey(storage.CacheKeyTips, "all"),
			func(ctx context.Context) ([]*models.Tip, error) {
				tips, err := s.tips.ListAll(ctx)
				if err != nil {
					return nil, storeError("list tips", err, "tips not found")
				}
				return tips, nil
			})
	}

	cat := types.TipCategory(category)
	if !cat.IsValid() {
		return nil, apperrors.NewInvalidParameterError("category", "must be one of transport, electricity, diet, general")
	}
	return s.byCategory(ctx, cat)
}

func (s *TipService) byCategory(ctx context.Context, cat types.TipCategory) ([]*models.Tip, error) {
	return loadCached(ctx, s.cache, storage.GenerateCacheKey(storage.CacheKeyTips, string(cat)),
		func(ctx context.Context) ([]*models.Tip, error) {
			tips, err := s.tips.ListByCategory(ctx, cat, 0)
			if err != nil {
				return nil, storeError("list tips", err, "tips not found")
			}
			return tips, nil
		})
}

// Recommend picks tips for the user's highest-emitting categories. Users
// without history get general tips.
func (s *TipService) Recommend(ctx context.Context, userID string) ([]*models.Tip, error) {
	totals, err := s.activities.CategoryTotals(ctx, userID)
	if err != nil {
		return nil, storeError("category totals", err, "user not found")
	}

	ranked := RankCategories(totals)
	if len(ranked) == 0 {
		general, err := s.byCategory(ctx, types.TipGeneral)
		if err != nil {
			return nil, err
		}
		return firstTips(general, generalTipCount), nil
	}

	alloc := AllocateTips(len(ranked))
	perCategory := make([][]*models.Tip, len(ranked))

	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range ranked {
		i, cat := i, cat
		g.Go(func() error {
			tips, err := s.byCategory(gctx, cat)
			if err != nil {
				return err
			}
			perCategory[i] = firstTips(tips, alloc[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	selected := make([]*models.Tip, 0, generalTipCount)
	for _, tips := range perCategory {
		selected = append(selected, tips...)
	}
	return selected, nil
}

func firstTips(tips []*models.Tip, n int) []*models.Tip {
	if len(tips) > n {
		return tips[:n]
	}
	return tips
}
