// Package main provides the API server entry point for the carbon tracker.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carbon-tracker/internal/api"
	"github.com/carbon-tracker/internal/auth"
	"github.com/carbon-tracker/internal/circuitbreaker"
	"github.com/carbon-tracker/internal/config"
	"github.com/carbon-tracker/internal/emission"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/mailer"
	"github.com/carbon-tracker/internal/retry"
	"github.com/carbon-tracker/internal/service"
	"github.com/carbon-tracker/internal/storage"
	"github.com/carbon-tracker/internal/upload"
	"github.com/carbon-tracker/internal/worker"
)

// uploadURLPrefix is where locally stored uploads are served from
const uploadURLPrefix = "/uploads"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"env":    cfg.Environment,
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Carbon tracker API starting")

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty, using an insecure development secret")
		cfg.Auth.JWTSecret = "development-only-secret"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	loc, err := time.LoadLocation(cfg.Carbon.WeekTimezone)
	if err != nil {
		logger.WithError(err).Fatal("Invalid week timezone")
	}

	// Postgres may come up after the API container
	var postgres *storage.PostgresDB
	err = retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, attempt int) error {
		var err error
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	if err := storage.RunMigrations(cfg.Database.Postgres.DSN()); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	checks := map[string]api.HealthCheck{
		"postgres": postgres.Ping,
	}

	var cache service.Cache = storage.NoopCache{}
	if cfg.Database.Redis.Enabled {
		var redis *storage.RedisCache
		err = retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, attempt int) error {
			var err error
			redis, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
			return err
		})
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, caching disabled")
		} else {
			defer redis.Close()
			cache = storage.NewCacheService(redis, cfg.Cache.TTL)
			checks["redis"] = redis.Ping
		}
	}

	uploads, uploadDir, err := newUploadStore(ctx, cfg.Upload)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize upload storage")
	}

	var mail service.Mailer = mailer.LogMailer{}
	if cfg.Email.Enabled() {
		smtp, err := mailer.NewSMTPMailer(cfg.Email)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize SMTP mailer")
		}
		mail = smtp
		checks["smtp"] = breakerCheck(smtp.Breaker())
	} else {
		logger.Warn("EMAIL_USER/EMAIL_PASS not set, OTP codes will be logged instead of sent")
	}

	factors, err := emission.LoadFactorTable(cfg.Carbon.EmissionFactorsFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load emission factors")
	}

	// Repositories
	userRepo := storage.NewUserRepository(postgres)
	otpRepo := storage.NewOTPRepository(postgres)
	activityRepo := storage.NewActivityRepository(postgres)
	goalRepo := storage.NewGoalRepository(postgres)
	achievementRepo := storage.NewAchievementRepository(postgres)
	tipRepo := storage.NewTipRepository(postgres)

	// Services
	monitor := service.NewPerformanceMonitor()
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	achievementService := service.NewAchievementService(userRepo, activityRepo, achievementRepo, loc)

	services := api.Services{
		Auth: service.NewAuthService(userRepo, otpRepo, mail, tokens, achievementService, service.AuthConfig{
			OTPTTL:            cfg.Auth.OTPTTL,
			OTPMaxAttempts:    cfg.Auth.OTPMaxAttempts,
			DefaultWeeklyGoal: cfg.Carbon.DefaultWeeklyGoal,
		}),
		Activities:   service.NewActivityService(activityRepo, emission.NewCalculator(factors), achievementService, cache, loc),
		Summary:      service.NewSummaryService(userRepo, activityRepo, loc),
		Leaderboard:  service.NewLeaderboardService(activityRepo, cache, monitor, loc),
		Goals:        service.NewGoalService(goalRepo, achievementService),
		Achievements: achievementService,
		Users:        service.NewUserService(userRepo, uploads, cfg.Upload.MaxBytes, cache, loc),
		Tips:         service.NewTipService(tipRepo, activityRepo, cache, monitor),
	}

	sweeper, err := worker.NewOTPSweeper(&worker.OTPSweeperConfig{
		Store:    otpRepo,
		Interval: cfg.Auth.OTPSweepInterval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create OTP sweeper")
	}
	if err := sweeper.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start OTP sweeper")
	}

	serverConfig := &api.ServerConfig{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      60 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
		AllowedOrigin:    cfg.Frontend.URL,
		RateLimitRPS:     cfg.RateLimit.RPS,
		AuthRateLimitRPS: cfg.RateLimit.AuthRPS,
		RateLimitBurst:   cfg.RateLimit.Burst,
		UploadDir:        uploadDir,
	}
	server := api.NewServer(serverConfig, services, tokens, monitor, checks)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.WithError(err).Error("Server stopped unexpectedly")
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("OTP sweeper did not stop cleanly")
	}

	logger.Info("Server exited")
}

// newUploadStore picks S3 when a bucket is configured and local disk
// otherwise. The returned directory is non-empty only for local storage.
func newUploadStore(ctx context.Context, cfg config.UploadConfig) (upload.Store, string, error) {
	if cfg.S3Bucket != "" {
		store, err := upload.NewS3Store(ctx, upload.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		logging.FromContext(ctx).WithField("bucket", cfg.S3Bucket).Info("Uploads stored in S3")
		return store, "", nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	store, err := upload.NewLocalStore(cfg.Dir, uploadURLPrefix)
	if err != nil {
		return nil, "", err
	}
	return store, store.Dir(), nil
}

// breakerCheck reports unhealthy while the breaker is refusing sends
func breakerCheck(cb *circuitbreaker.CircuitBreaker) api.HealthCheck {
	return func(ctx context.Context) error {
		if cb.GetState() == circuitbreaker.StateOpen {
			return circuitbreaker.ErrCircuitOpen
		}
		return nil
	}
}
