package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carbon-tracker/internal/models"
)

const userColumns = `id, name, email, password_hash, weekly_goal, has_logged_in, profile_pic, created_at, updated_at`

// UserRepository handles user data persistence
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.WeeklyGoal,
		&user.HasLoggedIn,
		&user.ProfilePic,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user. A taken email returns ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	query := `
		INSERT INTO users (id, name, email, password_hash, weekly_goal, has_logged_in, profile_pic, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.WeeklyGoal,
		user.HasLoggedIn,
		user.ProfilePic,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	user, err := scanUser(r.db.Pool().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by normalized email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(r.db.Pool().QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// ExistsByEmail checks if a user exists by email
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	err := r.db.Pool().QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence by email: %w", err)
	}
	return exists, nil
}

// Update applies the non-nil fields of update and returns the stored user
func (r *UserRepository) Update(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	var email *string
	if update.Email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*update.Email))
		email = &normalized
	}

	query := `
		UPDATE users
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    password_hash = COALESCE($4, password_hash),
		    updated_at = $5
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query,
		id,
		update.Name,
		email,
		update.PasswordHash,
		time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// SetPasswordHash replaces the password of the user with email
func (r *UserRepository) SetPasswordHash(ctx context.Context, email, hash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE email = $1`

	result, err := r.db.Pool().Exec(ctx, query, strings.ToLower(strings.TrimSpace(email)), hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkLoggedIn sets the first-login flag. It reports true only for the
// call that flipped it.
func (r *UserRepository) MarkLoggedIn(ctx context.Context, id string) (bool, error) {
	query := `UPDATE users SET has_logged_in = TRUE, updated_at = $2 WHERE id = $1 AND has_logged_in = FALSE`

	result, err := r.db.Pool().Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark login: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// SetProfilePic stores the picture reference for a user
func (r *UserRepository) SetProfilePic(ctx context.Context, id, ref string) error {
	query := `UPDATE users SET profile_pic = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id, ref, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set profile picture: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
