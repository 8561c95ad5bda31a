package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/carbon-tracker/internal/auth"
	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/storage"
	"github.com/carbon-tracker/internal/types"
)

// verifiedChallengeTTL is how long a verified challenge stays usable
const verifiedChallengeTTL = 30 * time.Minute

// AuthConfig holds auth service settings
type AuthConfig struct {
	OTPTTL            time.Duration
	OTPMaxAttempts    int
	DefaultWeeklyGoal float64
}

// RegisterInput represents input for registering an account
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is returned after a successful login
type LoginResult struct {
	Token      string       `json:"token"`
	User       *models.User `json:"user"`
	FirstLogin bool         `json:"firstLogin"`
}

// AuthService handles OTP verification, registration, login and password resets
type AuthService struct {
	users        UserRepository
	otps         OTPRepository
	mailer       Mailer
	tokens       *auth.TokenIssuer
	achievements *AchievementService
	cfg          AuthConfig
	now          func() time.Time
	generateOTP  func() (string, error)
}

// NewAuthService creates a new auth service
func NewAuthService(
	users UserRepository,
	otps OTPRepository,
	mailer Mailer,
	tokens *auth.TokenIssuer,
	achievements *AchievementService,
	cfg AuthConfig,
) *AuthService {
	return &AuthService{
		users:        users,
		otps:         otps,
		mailer:       mailer,
		tokens:       tokens,
		achievements: achievements,
		cfg:          cfg,
		now:          time.Now,
		generateOTP:  auth.GenerateOTP,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperrors.NewInvalidParameterError("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.NewInvalidParameterError("email", "is not a valid address")
	}
	return email, nil
}

func validatePassword(field, password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperrors.NewInvalidParameterError(field, "must be at least 8 characters long")
	}
	return nil
}

// SendRegistrationOTP emails a registration code to an address that has no
// account yet.
func (s *AuthService) SendRegistrationOTP(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return storeError("check user", err, "user not found")
	}
	if exists {
		return apperrors.NewConflictError("User already exists")
	}
	return s.issueChallenge(ctx, email, types.OTPRegister)
}

// VerifyRegistrationOTP checks a registration code
func (s *AuthService) VerifyRegistrationOTP(ctx context.Context, email, code string) error {
	return s.verifyChallenge(ctx, email, code, types.OTPRegister)
}

// Register creates the account for a verified email
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewInvalidParameterError("name", "is required")
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword("password", input.Password); err != nil {
		return nil, err
	}

	if err := s.requireVerified(ctx, email, types.OTPRegister); err != nil {
		return nil, err
	}

	hash, err := auth.HashSecret(input.Password)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to hash password", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		WeeklyGoal:   s.cfg.DefaultWeeklyGoal,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storeError("create user", err, "user not found")
	}

	if err := s.otps.Delete(ctx, email, types.OTPRegister); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("email", email).Warn("Failed to consume registration challenge")
	}

	logging.FromContext(ctx).WithField("user_id", user.ID).Info("User registered")
	return user, nil
}

// Login checks credentials and issues a token. The first successful login
// sets the user's first-login flag and re-evaluates badges.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NewUnauthorizedError("Invalid credentials")
		}
		return nil, storeError("get user", err, "user not found")
	}
	if !auth.CheckSecret(user.PasswordHash, password) {
		return nil, apperrors.NewUnauthorizedError("Invalid credentials")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to issue token", err)
	}

	firstLogin, err := s.users.MarkLoggedIn(ctx, user.ID)
	if err != nil {
		return nil, storeError("mark login", err, "user not found")
	}
	if firstLogin {
		user.HasLoggedIn = true
		s.achievements.ReconcileQuietly(ctx, user.ID)
	}

	return &LoginResult{Token: token, User: user, FirstLogin: firstLogin}, nil
}

// SendResetOTP emails a password reset code to an existing account
func (s *AuthService) SendResetOTP(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return storeError("check user", err, "user not found")
	}
	if !exists {
		return apperrors.NewNotFoundError("User not found")
	}
	return s.issueChallenge(ctx, email, types.OTPReset)
}

// VerifyResetOTP checks a password reset code
func (s *AuthService) VerifyResetOTP(ctx context.Context, email, code string) error {
	return s.verifyChallenge(ctx, email, code, types.OTPReset)
}

// ResetPassword sets a new password for a verified reset challenge
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := validatePassword("newPassword", newPassword); err != nil {
		return err
	}
	if err := s.requireVerified(ctx, email, types.OTPReset); err != nil {
		return err
	}

	hash, err := auth.HashSecret(newPassword)
	if err != nil {
		return apperrors.NewInternalError("failed to hash password", err)
	}
	if err := s.users.SetPasswordHash(ctx, email, hash); err != nil {
		return storeError("reset password", err, "User not found")
	}

	if err := s.otps.Delete(ctx, email, types.OTPReset); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("email", email).Warn("Failed to consume reset challenge")
	}
	return nil
}

func (s *AuthService) issueChallenge(ctx context.Context, email string, purpose types.OTPPurpose) error {
	code, err := s.generateOTP()
	if err != nil {
		return apperrors.NewInternalError("failed to generate code", err)
	}
	hash, err := auth.HashSecret(code)
	if err != nil {
		return apperrors.NewInternalError("failed to hash code", err)
	}

	now := s.now().UTC()
	challenge := &models.OTPChallenge{
		Email:     email,
		Purpose:   purpose,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.cfg.OTPTTL),
		CreatedAt: now,
	}
	if err := s.otps.Upsert(ctx, challenge); err != nil {
		return storeError("store challenge", err, "challenge not found")
	}

	if err := s.mailer.SendOTP(ctx, email, code, purpose); err != nil {
		logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"email":   email,
			"purpose": purpose,
		}).Error("Failed to send OTP email")
		return apperrors.NewDeliveryError(err)
	}
	return nil
}

func (s *AuthService) verifyChallenge(ctx context.Context, email, code string, purpose types.OTPPurpose) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if len(code) != auth.OTPDigits {
		return apperrors.NewInvalidParameterError("otp", "must be 6 digits")
	}

	now := s.now()
	challenge, err := s.otps.ReserveAttempt(ctx, email, purpose, s.cfg.OTPMaxAttempts, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.rejectChallenge(ctx, email, purpose, now)
		}
		return storeError("reserve attempt", err, "challenge not found")
	}

	if !auth.CheckSecret(challenge.CodeHash, code) {
		return apperrors.NewValidationError("Invalid or expired OTP")
	}

	if err := s.otps.MarkVerified(ctx, email, purpose, now.UTC().Add(verifiedChallengeTTL)); err != nil {
		return storeError("verify challenge", err, "challenge not found")
	}
	return nil
}

// rejectChallenge explains why no attempt could be reserved
func (s *AuthService) rejectChallenge(ctx context.Context, email string, purpose types.OTPPurpose, now time.Time) error {
	challenge, err := s.otps.Get(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NewValidationError("Invalid or expired OTP")
		}
		return storeError("get challenge", err, "challenge not found")
	}
	if !challenge.Expired(now) && challenge.Attempts >= s.cfg.OTPMaxAttempts {
		return apperrors.NewValidationError("Too many attempts, request a new OTP")
	}
	return apperrors.NewValidationError("Invalid or expired OTP")
}

func (s *AuthService) requireVerified(ctx context.Context, email string, purpose types.OTPPurpose) error {
	challenge, err := s.otps.Get(ctx, email, purpose)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NewValidationError("Please verify your email first")
		}
		return storeError("get challenge", err, "challenge not found")
	}
	if !challenge.Verified || challenge.Expired(s.now()) {
		return apperrors.NewValidationError("Please verify your email first")
	}
	return nil
}
