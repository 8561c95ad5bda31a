package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbon-tracker/internal/emission"
	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/service"
)

func doRequest(ts *testServer, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func authHeader(ts *testServer, userID string) http.Header {
	return http.Header{"Authorization": []string{ts.bearer(userID)}}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	ts := createTestServer(nil, map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
	})

	w := doRequest(ts, "GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "carbon-tracker", resp["service"])
	assert.Equal(t, map[string]interface{}{"postgres": "ok"}, resp["checks"])
	assert.Contains(t, resp, "cache")
}

func TestHealth_Degraded(t *testing.T) {
	ts := createTestServer(nil, map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w := doRequest(ts, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unhealthy"`)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRequestIDHeader(t *testing.T) {
	ts := createTestServer(nil, nil)

	w := doRequest(ts, "GET", "/health", nil, nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 26)

	w = doRequest(ts, "GET", "/health", nil, http.Header{RequestIDHeader: []string{"client-id"}})
	assert.Equal(t, "client-id", w.Header().Get(RequestIDHeader))
}

func TestAuthMiddleware(t *testing.T) {
	ts := createTestServer(nil, nil)

	tests := []struct {
		name    string
		header  http.Header
		message string
	}{
		{"no header", nil, "Not authorized, no token"},
		{"not bearer", http.Header{"Authorization": []string{"Basic abc"}}, "Not authorized, no token"},
		{"garbage token", http.Header{"Authorization": []string{"Bearer not-a-jwt"}}, "Not authorized, token failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(ts, "GET", "/api/users/me", nil, tt.header)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.message, decodeError(t, w).Message)
		})
	}
}

func TestGetMe_HidesPasswordHash(t *testing.T) {
	ts := createTestServer(nil, nil)

	w := doRequest(ts, "GET", "/api/users/me", nil, authHeader(ts, "user-42"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user-42"`)
	assert.NotContains(t, w.Body.String(), "secret-hash")
}

func TestUpdateMe_RejectsUnknownFields(t *testing.T) {
	ts := createTestServer(nil, nil)

	w := doRequest(ts, "PUT", "/api/users/me", map[string]interface{}{"weeklyGoal": 1, "name": "X"}, authHeader(ts, "user-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(ts, "PUT", "/api/users/me", map[string]interface{}{"name": "Grace"}, authHeader(ts, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Grace"`)
}

func TestSubmitActivity(t *testing.T) {
	ts := createTestServer(nil, nil)

	var got *service.SubmitActivityInput
	ts.activities.submitFunc = func(ctx context.Context, input *service.SubmitActivityInput) (*service.SubmitActivityResult, error) {
		got = input
		return &service.SubmitActivityResult{CarbonFootprint: "2.10", NewAchievements: []*models.Achievement{}}, nil
	}

	body := `{"type":"transport","data":{"mode":"car","distance":10}}`
	w := doRequest(ts, "POST", "/api/activities", body, authHeader(ts, "user-7"))
	require.Equal(t, http.StatusCreated, w.Code)

	require.NotNil(t, got)
	assert.Equal(t, "user-7", got.UserID, "user id comes from the token")
	assert.JSONEq(t, `{"mode":"car","distance":10}`, string(got.Data))
	assert.Contains(t, w.Body.String(), `"carbonFootprint":"2.10"`)
}

func TestSubmitActivity_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"malformed json", `{"type":`, nil, http.StatusBadRequest, "Invalid request body"},
		{"unknown field", `{"type":"diet","data":{},"user":"someone-else"}`, nil, http.StatusBadRequest, "Invalid request body"},
		{
			name:       "validation",
			body:       `{"type":"flight","data":{}}`,
			err:        apperrors.NewValidationError("Invalid activity type."),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid activity type.",
		},
		{
			name:       "database failure is generic",
			body:       `{"type":"diet","data":{"dietType":"vegan"}}`,
			err:        apperrors.NewDatabaseError("create activity", errors.New("pq: relation does not exist")),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    genericErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := createTestServer(nil, nil)
			ts.activities.submitFunc = func(ctx context.Context, input *service.SubmitActivityInput) (*service.SubmitActivityResult, error) {
				return nil, tt.err
			}

			w := doRequest(ts, "POST", "/api/activities", tt.body, authHeader(ts, "user-1"))
			require.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, decodeError(t, w).Message)
			assert.NotContains(t, w.Body.String(), "relation does not exist")
		})
	}
}

func TestSubmitActivity_CalculatorErrorsAreBadRequests(t *testing.T) {
	ts := createTestServer(nil, nil)
	calc := emission.NewCalculator(emission.DefaultFactorTable())
	ts.activities.submitFunc = func(ctx context.Context, input *service.SubmitActivityInput) (*service.SubmitActivityResult, error) {
		_, _, err := calc.Compute(input.Type, input.Data)
		return nil, err
	}

	w := doRequest(ts, "POST", "/api/activities", `{"type":"transport","data":{"mode":"rocket","distance":1}}`, authHeader(ts, "user-1"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "rocket")
}

func TestMyActivities_Pagination(t *testing.T) {
	ts := createTestServer(nil, nil)

	var gotLimit, gotOffset int
	ts.activities.listFunc = func(ctx context.Context, userID string, limit, offset int) ([]*models.Activity, error) {
		gotLimit, gotOffset = limit, offset
		return nil, nil
	}

	w := doRequest(ts, "GET", "/api/activities/my?limit=20&offset=40", nil, authHeader(ts, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, gotLimit)
	assert.Equal(t, 40, gotOffset)
	assert.Equal(t, "[]\n", w.Body.String(), "empty history encodes as an array")

	w = doRequest(ts, "GET", "/api/activities/my?limit=abc", nil, authHeader(ts, "user-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaderboard(t *testing.T) {
	ts := createTestServer(nil, nil)

	var gotLimit int
	ts.leaderboard.leaderboardFunc = func(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
		gotLimit = limit
		return []models.LeaderboardEntry{{UserID: "u1", Name: "Ada", Total: 1.5}}, nil
	}

	w := doRequest(ts, "GET", "/api/activities/leaderboard?limit=10", nil, authHeader(ts, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, gotLimit)
	assert.JSONEq(t, `[{"userId":"u1","name":"Ada","totalEmissions":1.5}]`, w.Body.String())
}

func TestWeeklySummary(t *testing.T) {
	ts := createTestServer(nil, nil)

	w := doRequest(ts, "GET", "/api/activities/weekly-summary", nil, authHeader(ts, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "5.60", resp["total"])
	assert.Equal(t, "over", resp["status"])
	assert.Equal(t, 5.0, resp["goal"])
}

func TestGoals(t *testing.T) {
	ts := createTestServer(nil, nil)
	header := authHeader(ts, "user-1")

	ts.goals.getFunc = func(ctx context.Context, userID string) (*models.Goal, error) {
		return nil, apperrors.NewNotFoundError("No goal set yet")
	}
	w := doRequest(ts, "GET", "/api/goals", nil, header)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No goal set yet", decodeError(t, w).Message)

	w = doRequest(ts, "POST", "/api/goals", `{}`, header)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(ts, "POST", "/api/goals", `{"weeklyGoal":"ten"}`, header)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(ts, "POST", "/api/goals", `{"weeklyGoal":12.5}`, header)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"Goal set"`)
}

func TestAchievements(t *testing.T) {
	ts := createTestServer(nil, nil)

	for _, path := range []string{"/api/achievements", "/api/users/achievements"} {
		w := doRequest(ts, "GET", path, nil, authHeader(ts, "user-1"))
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"achievements":[]}`, w.Body.String(), path)
	}

	ts.achievements.achievements = []*models.Achievement{{ID: "a1", BadgeKey: "first_step", Title: "First Step"}}
	w := doRequest(ts, "GET", "/api/achievements", nil, authHeader(ts, "user-1"))
	assert.Contains(t, w.Body.String(), `"title":"First Step"`)
}

func TestTips(t *testing.T) {
	ts := createTestServer(nil, nil)

	var gotCategory string
	ts.tips.listFunc = func(ctx context.Context, category string) ([]*models.Tip, error) {
		gotCategory = category
		if category == "flights" {
			return nil, apperrors.NewInvalidParameterError("category", "must be one of transport, electricity, diet, general")
		}
		return []*models.Tip{}, nil
	}

	// Listing is public
	w := doRequest(ts, "GET", "/api/tips?category=diet", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "diet", gotCategory)

	w = doRequest(ts, "GET", "/api/tips?category=flights", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Recommendations are not
	w = doRequest(ts, "GET", "/api/tips/recommended", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(ts, "GET", "/api/tips/recommended", nil, authHeader(ts, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestAuthRoutes(t *testing.T) {
	ts := createTestServer(nil, nil)

	ts.auth.sendFunc = func(ctx context.Context, email string) error {
		if email == "taken@example.com" {
			return apperrors.NewConflictError("User already exists")
		}
		return nil
	}
	ts.auth.loginFunc = func(ctx context.Context, email, password string) (*service.LoginResult, error) {
		if password != "correct-horse" {
			return nil, apperrors.NewUnauthorizedError("Invalid credentials")
		}
		return &service.LoginResult{Token: "jwt", User: &models.User{ID: "u1", Email: email}, FirstLogin: true}, nil
	}

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"send otp", "/api/auth/send-otp", `{"email":"ada@example.com"}`, http.StatusOK, "OTP sent to email"},
		{"send otp conflict", "/api/auth/send-otp", `{"email":"taken@example.com"}`, http.StatusConflict, "User already exists"},
		{"verify otp", "/api/auth/verify-otp", `{"email":"ada@example.com","otp":"123456"}`, http.StatusOK, "OTP verified"},
		{"register", "/api/auth/register", `{"name":"Ada","email":"ada@example.com","password":"correct-horse"}`, http.StatusCreated, "User registered successfully"},
		{"login", "/api/auth/login", `{"email":"ada@example.com","password":"correct-horse"}`, http.StatusOK, `"token":"jwt"`},
		{"login bad password", "/api/auth/login", `{"email":"ada@example.com","password":"nope"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"forgot password", "/api/auth/forgot-password", `{"email":"ada@example.com"}`, http.StatusOK, "OTP sent to email"},
		{"verify forgot otp", "/api/auth/verify-forgot-otp", `{"email":"ada@example.com","otp":"123456"}`, http.StatusOK, "OTP verified"},
		{"reset password", "/api/auth/reset-password", `{"email":"ada@example.com","newPassword":"battery-staple"}`, http.StatusOK, "Password reset successful"},
		{"bad body", "/api/auth/login", `not json`, http.StatusBadRequest, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(ts, "POST", tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestAuthRoutes_RateLimited(t *testing.T) {
	cfg := testServerConfig()
	cfg.AuthRateLimitRPS = 0.001
	cfg.RateLimitBurst = 2
	ts := createTestServer(cfg, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := doRequest(ts, "POST", "/api/auth/send-otp", `{"email":"ada@example.com"}`, nil)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Other routes have their own budget
	w := doRequest(ts, "GET", "/api/tips", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadProfilePic(t *testing.T) {
	ts := createTestServer(nil, nil)

	var gotData []byte
	ts.users.uploadFunc = func(ctx context.Context, userID string, data []byte) (*service.UploadResult, error) {
		gotData = data
		return &service.UploadResult{Message: "Uploaded", ProfilePic: "/uploads/profile/" + userID + "/x.png"}, nil
	}

	body, contentType := multipartBody(t, profilePicField, "me.png", []byte("\x89PNG\r\n\x1a\nrest"))
	req := httptest.NewRequest("POST", "/api/users/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", ts.bearer("user-9"))
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Uploaded","profilePic":"/uploads/profile/user-9/x.png"}`, w.Body.String())
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nrest"), gotData)
}

func TestUploadProfilePic_Errors(t *testing.T) {
	ts := createTestServer(nil, nil)
	ts.users.maxBytes = 16

	tests := []struct {
		name       string
		field      string
		data       []byte
		wantStatus int
	}{
		{"missing file", "", nil, http.StatusBadRequest},
		{"wrong field", "avatar", []byte("x"), http.StatusBadRequest},
		{"far too large", profilePicField, bytes.Repeat([]byte("a"), 200<<10), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.field, "f.bin", tt.data)
			req := httptest.NewRequest("POST", "/api/users/upload", body)
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Authorization", ts.bearer("user-1"))
			w := httptest.NewRecorder()
			ts.Handler().ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestStaticUploads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "profile", "u1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile", "u1", "pic.png"), []byte("png-bytes"), 0o644))

	cfg := testServerConfig()
	cfg.UploadDir = dir
	ts := createTestServer(cfg, nil)

	w := doRequest(ts, "GET", "/uploads/profile/u1/pic.png", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())

	// Directories are not listed
	for _, path := range []string{"/uploads/", "/uploads/profile/", "/uploads/profile/u1/", "/uploads/profile/u1"} {
		w := doRequest(ts, "GET", path, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.NotContains(t, w.Body.String(), "pic.png", path)
	}

	w = doRequest(ts, "GET", "/uploads/profile/u1/missing.png", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := createTestServer(nil, nil)

	req := httptest.NewRequest("OPTIONS", "/api/activities", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("OPTIONS", "/api/activities", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := LoggingMiddleware(RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, genericErrorMessage, decodeError(t, w).Message)
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 0.001, 1)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/api/tips", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:1111"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:2222"), "port does not identify a client")
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2:1111"))
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(0.001, 0.001, 1)
	clock := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.getLimiter("10.0.0.1", false).Allow())
	assert.False(t, rl.getLimiter("10.0.0.1", false).Allow())

	clock = clock.Add(5 * time.Minute)
	rl.getLimiter("10.0.0.2", false)
	assert.Equal(t, 2, rl.Len())

	// A new client triggers the sweep; only the idle one goes
	clock = clock.Add(6 * time.Minute)
	rl.getLimiter("10.0.0.3", true)
	assert.Equal(t, 2, rl.Len())

	rl.mu.RLock()
	_, idle := rl.limiters["10.0.0.1"]
	_, active := rl.limiters["10.0.0.2"]
	rl.mu.RUnlock()
	assert.False(t, idle)
	assert.True(t, active)

	// Recent requests keep a client alive
	for i := 0; i < 3; i++ {
		clock = clock.Add(8 * time.Minute)
		rl.getLimiter("10.0.0.2", false)
		rl.getLimiter(fmt.Sprintf("10.1.0.%d", i), false)
	}
	rl.mu.RLock()
	_, active = rl.limiters["10.0.0.2"]
	rl.mu.RUnlock()
	assert.True(t, active)
	assert.LessOrEqual(t, rl.Len(), 4)
}

func TestRespondServiceError_UncategorizedIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	respondServiceError(w, httptest.NewRequest("GET", "/", nil), fmt.Errorf("wrapped: %w", errors.New("secret detail")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "secret detail"))
}
