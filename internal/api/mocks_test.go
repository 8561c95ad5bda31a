package api

import (
	"context"
	"time"

	"github.com/carbon-tracker/internal/auth"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/service"
)

// Mock services for testing

type mockAuthService struct {
	sendFunc     func(ctx context.Context, email string) error
	verifyFunc   func(ctx context.Context, email, code string) error
	registerFunc func(ctx context.Context, input *service.RegisterInput) (*models.User, error)
	loginFunc    func(ctx context.Context, email, password string) (*service.LoginResult, error)
	resetFunc    func(ctx context.Context, email, newPassword string) error
}

func (m *mockAuthService) SendRegistrationOTP(ctx context.Context, email string) error {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, email)
	}
	return nil
}

func (m *mockAuthService) VerifyRegistrationOTP(ctx context.Context, email, code string) error {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, email, code)
	}
	return nil
}

func (m *mockAuthService) Register(ctx context.Context, input *service.RegisterInput) (*models.User, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, input)
	}
	return &models.User{ID: "user-123", Name: input.Name, Email: input.Email, WeeklyGoal: 50}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*service.LoginResult, error) {
	if m.loginFunc != nil {
		return m.loginFunc(ctx, email, password)
	}
	return &service.LoginResult{Token: "token", User: &models.User{ID: "user-123", Email: email}}, nil
}

func (m *mockAuthService) SendResetOTP(ctx context.Context, email string) error {
	return m.SendRegistrationOTP(ctx, email)
}

func (m *mockAuthService) VerifyResetOTP(ctx context.Context, email, code string) error {
	return m.VerifyRegistrationOTP(ctx, email, code)
}

func (m *mockAuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	if m.resetFunc != nil {
		return m.resetFunc(ctx, email, newPassword)
	}
	return nil
}

type mockActivityService struct {
	submitFunc func(ctx context.Context, input *service.SubmitActivityInput) (*service.SubmitActivityResult, error)
	listFunc   func(ctx context.Context, userID string, limit, offset int) ([]*models.Activity, error)
}

func (m *mockActivityService) Submit(ctx context.Context, input *service.SubmitActivityInput) (*service.SubmitActivityResult, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, input)
	}
	return &service.SubmitActivityResult{
		CarbonFootprint: "2.10",
		Suggestion:      "Try walking, cycling, or using public transport more often.",
		Activity:        &models.Activity{ID: "activity-1", UserID: input.UserID, Type: input.Type, CarbonFootprint: 2.1},
		NewAchievements: []*models.Achievement{},
	}, nil
}

func (m *mockActivityService) ListMine(ctx context.Context, userID string, limit, offset int) ([]*models.Activity, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, userID, limit, offset)
	}
	return nil, nil
}

type mockSummaryService struct{}

func (m *mockSummaryService) WeeklySummary(ctx context.Context, userID string) (*service.WeeklySummary, error) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	return &service.WeeklySummary{
		Goal:          5,
		Total:         "5.60",
		Status:        service.Status(5.6, 5),
		WeekStart:     start,
		WeekEnd:       start.AddDate(0, 0, 7),
		ActivityCount: 2,
	}, nil
}

type mockLeaderboardService struct {
	leaderboardFunc func(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

func (m *mockLeaderboardService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if m.leaderboardFunc != nil {
		return m.leaderboardFunc(ctx, limit)
	}
	return []models.LeaderboardEntry{{UserID: "user-1", Name: "Ada", Total: 1.5}}, nil
}

type mockGoalService struct {
	getFunc func(ctx context.Context, userID string) (*models.Goal, error)
	setFunc func(ctx context.Context, userID string, weeklyGoal float64) (*service.SetGoalResult, error)
}

func (m *mockGoalService) Get(ctx context.Context, userID string) (*models.Goal, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, userID)
	}
	return &models.Goal{UserID: userID, WeeklyGoal: 40}, nil
}

func (m *mockGoalService) Set(ctx context.Context, userID string, weeklyGoal float64) (*service.SetGoalResult, error) {
	if m.setFunc != nil {
		return m.setFunc(ctx, userID, weeklyGoal)
	}
	return &service.SetGoalResult{Message: "Goal set", Goal: &models.Goal{UserID: userID, WeeklyGoal: weeklyGoal}}, nil
}

type mockAchievementService struct {
	achievements []*models.Achievement
}

func (m *mockAchievementService) List(ctx context.Context, userID string) ([]*models.Achievement, error) {
	return m.achievements, nil
}

type mockUserService struct {
	maxBytes   int64
	uploadFunc func(ctx context.Context, userID string, data []byte) (*service.UploadResult, error)
}

func (m *mockUserService) Me(ctx context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID, Name: "Ada", Email: "ada@example.com", PasswordHash: "secret-hash"}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, input *service.UpdateProfileInput) (*models.User, error) {
	user := &models.User{ID: userID, Name: "Ada", Email: "ada@example.com"}
	if input.Name != nil {
		user.Name = *input.Name
	}
	return user, nil
}

func (m *mockUserService) UploadProfilePic(ctx context.Context, userID string, data []byte) (*service.UploadResult, error) {
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, userID, data)
	}
	return &service.UploadResult{Message: "Uploaded", ProfilePic: "/uploads/profile/" + userID + "/pic.png"}, nil
}

func (m *mockUserService) MaxUploadBytes() int64 {
	if m.maxBytes == 0 {
		return 1024
	}
	return m.maxBytes
}

type mockTipService struct {
	listFunc func(ctx context.Context, category string) ([]*models.Tip, error)
}

func (m *mockTipService) List(ctx context.Context, category string) ([]*models.Tip, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, category)
	}
	return []*models.Tip{{ID: "tip-1", Category: "general", Message: "Turn off lights"}}, nil
}

func (m *mockTipService) Recommend(ctx context.Context, userID string) ([]*models.Tip, error) {
	return nil, nil
}

const testJWTSecret = "test-secret"

type testServer struct {
	*Server
	auth         *mockAuthService
	activities   *mockActivityService
	leaderboard  *mockLeaderboardService
	goals        *mockGoalService
	achievements *mockAchievementService
	users        *mockUserService
	tips         *mockTipService
	tokens       *auth.TokenIssuer
}

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:             "localhost",
		Port:             "0",
		AllowedOrigin:    "http://localhost:5173",
		RateLimitRPS:     1000,
		AuthRateLimitRPS: 1000,
		RateLimitBurst:   1000,
	}
}

// createTestServer creates a test server with mock services
func createTestServer(config *ServerConfig, checks map[string]HealthCheck) *testServer {
	ts := &testServer{
		auth:         &mockAuthService{},
		activities:   &mockActivityService{},
		leaderboard:  &mockLeaderboardService{},
		goals:        &mockGoalService{},
		achievements: &mockAchievementService{},
		users:        &mockUserService{},
		tips:         &mockTipService{},
		tokens:       auth.NewTokenIssuer(testJWTSecret, time.Hour),
	}
	if config == nil {
		config = testServerConfig()
	}

	ts.Server = NewServer(config, Services{
		Auth:         ts.auth,
		Activities:   ts.activities,
		Summary:      &mockSummaryService{},
		Leaderboard:  ts.leaderboard,
		Goals:        ts.goals,
		Achievements: ts.achievements,
		Users:        ts.users,
		Tips:         ts.tips,
	}, ts.tokens, nil, checks)
	return ts
}

func (ts *testServer) bearer(userID string) string {
	token, err := ts.tokens.Generate(userID)
	if err != nil {
		panic(err)
	}
	return "Bearer " + token
}
