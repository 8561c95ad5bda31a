// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/service"
)

// Service interfaces for dependency injection and testing

// AuthServiceInterface defines the interface for auth service operations
type AuthServiceInterface interface {
	SendRegistrationOTP(ctx context.Context, email string) error
	VerifyRegistrationOTP(ctx context.Context, email, code string) error
	Register(ctx context.Context, input *service.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	SendResetOTP(ctx context.Context, email string) error
	VerifyResetOTP(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, newPassword string) error
}

// ActivityServiceInterface defines the interface for activity service operations
type ActivityServiceInterface interface {
	Submit(ctx context.Context, input *service.SubmitActivityInput) (*service.SubmitActivityResult, error)
	ListMine(ctx context.Context, userID string, limit, offset int) ([]*models.Activity, error)
}

// SummaryServiceInterface defines the interface for weekly summary operations
type SummaryServiceInterface interface {
	WeeklySummary(ctx context.Context, userID string) (*service.WeeklySummary, error)
}

// LeaderboardServiceInterface defines the interface for leaderboard operations
type LeaderboardServiceInterface interface {
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// GoalServiceInterface defines the interface for goal service operations
type GoalServiceInterface interface {
	Get(ctx context.Context, userID string) (*models.Goal, error)
	Set(ctx context.Context, userID string, weeklyGoal float64) (*service.SetGoalResult, error)
}

// AchievementServiceInterface defines the interface for achievement reads
type AchievementServiceInterface interface {
	List(ctx context.Context, userID string) ([]*models.Achievement, error)
}

// UserServiceInterface defines the interface for profile operations
type UserServiceInterface interface {
	Me(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, input *service.UpdateProfileInput) (*models.User, error)
	UploadProfilePic(ctx context.Context, userID string, data []byte) (*service.UploadResult, error)
	MaxUploadBytes() int64
}

// TipServiceInterface defines the interface for tip operations
type TipServiceInterface interface {
	List(ctx context.Context, category string) ([]*models.Tip, error)
	Recommend(ctx context.Context, userID string) ([]*models.Tip, error)
}

// TokenVerifier resolves a bearer token to a user id
type TokenVerifier interface {
	UserID(token string) (string, error)
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Services bundles the services the API delegates to
type Services struct {
	Auth         AuthServiceInterface
	Activities   ActivityServiceInterface
	Summary      SummaryServiceInterface
	Leaderboard  LeaderboardServiceInterface
	Goals        GoalServiceInterface
	Achievements AchievementServiceInterface
	Users        UserServiceInterface
	Tips         TipServiceInterface
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	services   Services
	tokens     TokenVerifier
	monitor    *service.PerformanceMonitor
	checks     map[string]HealthCheck
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host             string
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	AllowedOrigin    string  // CORS origin, usually the frontend URL
	RateLimitRPS     float64 // Requests per second per client
	AuthRateLimitRPS float64 // Requests per second per client on /api/auth
	RateLimitBurst   int
	UploadDir        string // Served under /uploads/ when set
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	services Services,
	tokens TokenVerifier,
	monitor *service.PerformanceMonitor,
	checks map[string]HealthCheck,
) *Server {
	if monitor == nil {
		monitor = service.NewPerformanceMonitor()
	}
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		tokens:   tokens,
		monitor:  monitor,
		checks:   checks,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.AuthRateLimitRPS, s.config.RateLimitBurst)

	// Order matters: request ids first so every later log line carries one
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	// CORS wraps the router so preflight requests never reach route matching
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.config.AllowedOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           3600,
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      c.Handler(s.router),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.config.UploadDir != "" {
		s.router.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(filesOnly{http.Dir(s.config.UploadDir)}))).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Public endpoints
	authRoutes := api.PathPrefix("/auth").Subrouter()
	authRoutes.HandleFunc("/send-otp", s.handleSendOTP).Methods("POST")
	authRoutes.HandleFunc("/verify-otp", s.handleVerifyOTP).Methods("POST")
	authRoutes.HandleFunc("/register", s.handleRegister).Methods("POST")
	authRoutes.HandleFunc("/login", s.handleLogin).Methods("POST")
	authRoutes.HandleFunc("/forgot-password", s.handleForgotPassword).Methods("POST")
	authRoutes.HandleFunc("/verify-forgot-otp", s.handleVerifyForgotOTP).Methods("POST")
	authRoutes.HandleFunc("/reset-password", s.handleResetPassword).Methods("POST")

	api.HandleFunc("/tips", s.handleListTips).Methods("GET")

	// Authenticated endpoints
	protected := api.NewRoute().Subrouter()
	protected.Use(AuthMiddleware(s.tokens))

	protected.HandleFunc("/activities", s.handleSubmitActivity).Methods("POST")
	protected.HandleFunc("/activities/my", s.handleMyActivities).Methods("GET")
	protected.HandleFunc("/activities/leaderboard", s.handleLeaderboard).Methods("GET")
	protected.HandleFunc("/activities/weekly-summary", s.handleWeeklySummary).Methods("GET")

	protected.HandleFunc("/goals", s.handleGetGoal).Methods("GET")
	protected.HandleFunc("/goals", s.handleSetGoal).Methods("POST")

	protected.HandleFunc("/achievements", s.handleAchievements).Methods("GET")

	protected.HandleFunc("/users/me", s.handleGetMe).Methods("GET")
	protected.HandleFunc("/users/me", s.handleUpdateMe).Methods("PUT")
	protected.HandleFunc("/users/upload", s.handleUploadProfilePic).Methods("POST")
	protected.HandleFunc("/users/achievements", s.handleAchievements).Methods("GET")

	protected.HandleFunc("/tips/recommended", s.handleRecommendedTips).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleHealth reports dependency status and cached read statistics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("check", name).Warn("Health check failed")
			checks[name] = "unhealthy"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	respondJSON(w, code, map[string]interface{}{
		"status":      status,
		"service":     "carbon-tracker",
		"checks":      checks,
		"cache":       s.monitor.GetStats(),
		"performance": s.monitor.CheckPerformance(),
	})
}

// filesOnly hides directories so the upload tree cannot be listed
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
