package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/storage"
	"github.com/carbon-tracker/internal/types"
)

// Mock repositories for testing

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*models.User)}
}

func (m *mockUserRepo) add(u *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	}
	m.users[u.ID] = u
	return u
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range m.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *mockUserRepo) Update(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if update.Email != nil {
		for _, other := range m.users {
			if other.ID != id && other.Email == *update.Email {
				return nil, storage.ErrDuplicate
			}
		}
		u.Email = *update.Email
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) SetPasswordHash(ctx context.Context, email, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.PasswordHash = hash
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *mockUserRepo) MarkLoggedIn(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.HasLoggedIn {
		return false, nil
	}
	u.HasLoggedIn = true
	return true, nil
}

func (m *mockUserRepo) SetProfilePic(ctx context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.ProfilePic = &ref
	return nil
}

type mockActivityRepo struct {
	mu         sync.Mutex
	users      *mockUserRepo
	activities []*models.Activity
	createErr  error
	totalCalls int
}

func (m *mockActivityRepo) Create(ctx context.Context, activity *models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if activity.ID == "" {
		activity.ID = fmt.Sprintf("activity-%d", len(m.activities)+1)
	}
	m.activities = append(m.activities, activity)
	return nil
}

func (m *mockActivityRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Activity
	for i := len(m.activities) - 1; i >= 0; i-- {
		if m.activities[i].UserID == userID {
			result = append(result, m.activities[i])
		}
	}
	if offset >= len(result) {
		return []*models.Activity{}, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockActivityRepo) WeeklyTotal(ctx context.Context, userID string, start, end time.Time) (float64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	var count int64
	for _, a := range m.activities {
		if a.UserID == userID && !a.CreatedAt.Before(start) && a.CreatedAt.Before(end) {
			total += a.CarbonFootprint
			count++
		}
	}
	return total, count, nil
}

func (m *mockActivityRepo) Stats(ctx context.Context, userID string) (models.ActivityStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats models.ActivityStats
	for _, a := range m.activities {
		if a.UserID != userID {
			continue
		}
		stats.Count++
		if stats.LastActivityAt == nil || a.CreatedAt.After(*stats.LastActivityAt) {
			t := a.CreatedAt
			stats.LastActivityAt = &t
		}
	}
	return stats, nil
}

func (m *mockActivityRepo) LeaderboardTotals(ctx context.Context, start, end time.Time) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalCalls++
	totals := make(map[string]float64)
	for _, a := range m.activities {
		if !a.CreatedAt.Before(start) && a.CreatedAt.Before(end) {
			totals[a.UserID] += a.CarbonFootprint
		}
	}
	entries := make([]models.LeaderboardEntry, 0, len(totals))
	for id, total := range totals {
		name := ""
		if m.users != nil {
			if u, err := m.users.GetByID(ctx, id); err == nil {
				name = u.Name
			}
		}
		entries = append(entries, models.LeaderboardEntry{UserID: id, Name: name, Total: total})
	}
	// Unordered on purpose; the service ranks
	return entries, nil
}

func (m *mockActivityRepo) CategoryTotals(ctx context.Context, userID string) ([]models.CategoryTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[types.ActivityType]float64)
	for _, a := range m.activities {
		if a.UserID == userID {
			totals[a.Type] += a.CarbonFootprint
		}
	}
	result := make([]models.CategoryTotal, 0, len(totals))
	for t, total := range totals {
		result = append(result, models.CategoryTotal{Type: t, Total: total})
	}
	return result, nil
}

type mockGoalRepo struct {
	users *mockUserRepo
	goals map[string]*models.Goal
}

func (m *mockGoalRepo) Get(ctx context.Context, userID string) (*models.Goal, error) {
	if g, ok := m.goals[userID]; ok {
		return g, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockGoalRepo) Upsert(ctx context.Context, userID string, weeklyGoal float64) (*models.Goal, bool, error) {
	m.users.mu.Lock()
	u, ok := m.users.users[userID]
	if ok {
		u.WeeklyGoal = weeklyGoal
	}
	m.users.mu.Unlock()
	if !ok {
		return nil, false, storage.ErrNotFound
	}

	if g, exists := m.goals[userID]; exists {
		g.WeeklyGoal = weeklyGoal
		return g, false, nil
	}
	g := &models.Goal{UserID: userID, WeeklyGoal: weeklyGoal}
	m.goals[userID] = g
	return g, true, nil
}

type mockAchievementRepo struct {
	mu     sync.Mutex
	byUser map[string][]*models.Achievement
}

func newMockAchievementRepo() *mockAchievementRepo {
	return &mockAchievementRepo{byUser: make(map[string][]*models.Achievement)}
}

func (m *mockAchievementRepo) Award(ctx context.Context, a *models.Achievement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byUser[a.UserID] {
		if existing.BadgeKey == a.BadgeKey {
			return false, nil
		}
	}
	m.byUser[a.UserID] = append(m.byUser[a.UserID], a)
	return true, nil
}

func (m *mockAchievementRepo) ListByUser(ctx context.Context, userID string) ([]*models.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Achievement{}, m.byUser[userID]...), nil
}

type mockTipRepo struct {
	mu    sync.Mutex
	tips  []*models.Tip
	calls int
}

func newMockTipRepo(perCategory map[types.TipCategory]int) *mockTipRepo {
	m := &mockTipRepo{}
	cats := make([]string, 0, len(perCategory))
	for c := range perCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		for i := 0; i < perCategory[types.TipCategory(c)]; i++ {
			m.tips = append(m.tips, &models.Tip{
				ID:       fmt.Sprintf("%s-%d", c, i),
				Category: types.TipCategory(c),
				Message:  fmt.Sprintf("%s tip %d", c, i),
			})
		}
	}
	return m
}

func (m *mockTipRepo) ListByCategory(ctx context.Context, category types.TipCategory, limit int) ([]*models.Tip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var result []*models.Tip
	for _, t := range m.tips {
		if t.Category == category {
			result = append(result, t)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockTipRepo) ListAll(ctx context.Context) ([]*models.Tip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return append([]*models.Tip{}, m.tips...), nil
}

type mockOTPRepo struct {
	mu         sync.Mutex
	challenges map[string]*models.OTPChallenge
}

func newMockOTPRepo() *mockOTPRepo {
	return &mockOTPRepo{challenges: make(map[string]*models.OTPChallenge)}
}

func otpKey(email string, purpose types.OTPPurpose) string {
	return string(purpose) + ":" + email
}

func (m *mockOTPRepo) Upsert(ctx context.Context, c *models.OTPChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	m.challenges[otpKey(c.Email, c.Purpose)] = &copied
	return nil
}

func (m *mockOTPRepo) Get(ctx context.Context, email string, purpose types.OTPPurpose) (*models.OTPChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.challenges[otpKey(email, purpose)]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockOTPRepo) ReserveAttempt(ctx context.Context, email string, purpose types.OTPPurpose, maxAttempts int, now time.Time) (*models.OTPChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[otpKey(email, purpose)]
	if !ok || c.Attempts >= maxAttempts || c.Expired(now) {
		return nil, storage.ErrNotFound
	}
	c.Attempts++
	copied := *c
	return &copied, nil
}

func (m *mockOTPRepo) MarkVerified(ctx context.Context, email string, purpose types.OTPPurpose, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[otpKey(email, purpose)]
	if !ok {
		return storage.ErrNotFound
	}
	c.Verified = true
	c.ExpiresAt = expiresAt
	return nil
}

func (m *mockOTPRepo) Delete(ctx context.Context, email string, purpose types.OTPPurpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, otpKey(email, purpose))
	return nil
}

type mockMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *mockMailer) SendOTP(ctx context.Context, to, code string, purpose types.OTPPurpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[otpKey(to, purpose)] = code
	return nil
}

func (m *mockMailer) code(email string, purpose types.OTPPurpose) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[otpKey(email, purpose)]
}

type mockUploadStore struct {
	saved map[string][]byte
	err   error
}

func (m *mockUploadStore) Save(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[key] = data
	return "/uploads/" + key, nil
}

// newTestCache returns a Redis-backed cache on an in-process server
func newTestCache(t *testing.T) (*miniredis.Miniredis, *storage.CacheService) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, storage.NewCacheService(storage.NewRedisCacheFromClient(client), time.Minute)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
