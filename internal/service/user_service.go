package service

import (
	"context"
	"strings"
	"time"

	"github.com/carbon-tracker/internal/auth"
	apperrors "github.com/carbon-tracker/internal/errors"
	"github.com/carbon-tracker/internal/logging"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/upload"
)

// UpdateProfileInput lists the profile fields a user may change. Nil fields
// are left untouched.
type UpdateProfileInput struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}

// UploadResult is returned after a profile picture upload
type UploadResult struct {
	Message    string `json:"message"`
	ProfilePic string `json:"profilePic"`
}

// UserService handles profile reads, updates and picture uploads
type UserService struct {
	users    UserRepository
	uploads  upload.Store
	maxBytes int64
	cache    *cacheAside
	loc      *time.Location
	now      func() time.Time
}

// NewUserService creates a new user service. The cache is the one the
// leaderboard reads through, since boards carry display names.
func NewUserService(users UserRepository, uploads upload.Store, maxBytes int64, cache Cache, loc *time.Location) *UserService {
	return &UserService{
		users:    users,
		uploads:  uploads,
		maxBytes: maxBytes,
		cache:    newCacheAside(cache, nil),
		loc:      loc,
		now:      time.Now,
	}
}

// MaxUploadBytes returns the largest accepted picture size
func (s *UserService) MaxUploadBytes() int64 {
	return s.maxBytes
}

// Me returns the user's profile
func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeError("get user", err, "User not found")
	}
	return user, nil
}

// UpdateProfile applies the provided fields. A name change retires the
// current week's cached leaderboard.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input *UpdateProfileInput) (*models.User, error) {
	var update models.UserUpdate

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewInvalidParameterError("name", "must not be empty")
		}
		update.Name = &name
	}
	if input.Email != nil {
		email, err := normalizeEmail(*input.Email)
		if err != nil {
			return nil, err
		}
		update.Email = &email
	}
	if input.Password != nil {
		if err := validatePassword("password", *input.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashSecret(*input.Password)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to hash password", err)
		}
		update.PasswordHash = &hash
	}

	user, err := s.users.Update(ctx, userID, update)
	if err != nil {
		return nil, storeError("update user", err, "User not found")
	}
	if update.Name != nil {
		s.cache.bump(ctx, leaderboardGeneration(WeekOf(s.now(), s.loc)))
	}
	return user, nil
}

// UploadProfilePic validates an image and stores it as the user's picture
func (s *UserService) UploadProfilePic(ctx context.Context, userID string, data []byte) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, apperrors.NewInvalidParameterError("profilePic", "file is required")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apperrors.NewInvalidParameterError("profilePic", "file is too large")
	}

	contentType, ext, ok := upload.DetectImage(data)
	if !ok {
		return nil, apperrors.NewInvalidParameterError("profilePic", "must be a jpeg, png, gif or webp image")
	}

	ref, err := s.uploads.Save(ctx, upload.ProfilePicKey(userID, ext), contentType, data)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to store upload", err)
	}

	if err := s.users.SetProfilePic(ctx, userID, ref); err != nil {
		return nil, storeError("set profile picture", err, "User not found")
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id": userID,
		"ref":     ref,
		"bytes":   len(data),
	}).Info("Profile picture uploaded")
	return &UploadResult{Message: "Uploaded", ProfilePic: ref}, nil
}
