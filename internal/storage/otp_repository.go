package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

// OTPRepository stores one-time code challenges keyed by (email, purpose)
type OTPRepository struct {
	db *PostgresDB
}

// NewOTPRepository creates a new OTP repository
func NewOTPRepository(db *PostgresDB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Upsert replaces any existing challenge for the same email and purpose
func (r *OTPRepository) Upsert(ctx context.Context, c *models.OTPChallenge) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO otp_challenges (email, purpose, code_hash, expires_at, verified, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email, purpose) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    verified = EXCLUDED.verified,
		    attempts = EXCLUDED.attempts,
		    created_at = EXCLUDED.created_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		c.Email, c.Purpose, c.CodeHash, c.ExpiresAt, c.Verified, c.Attempts, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store otp challenge: %w", err)
	}
	return nil
}

// Get returns the challenge for email and purpose
func (r *OTPRepository) Get(ctx context.Context, email string, purpose types.OTPPurpose) (*models.OTPChallenge, error) {
	query := `
		SELECT email, purpose, code_hash, expires_at, verified, attempts, created_at
		FROM otp_challenges
		WHERE email = $1 AND purpose = $2
	`

	var c models.OTPChallenge
	err := r.db.Pool().QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email)), purpose).Scan(
		&c.Email, &c.Purpose, &c.CodeHash, &c.ExpiresAt, &c.Verified, &c.Attempts, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get otp challenge: %w", err)
	}
	return &c, nil
}

// ReserveAttempt counts one verification attempt and returns the challenge
// as it stands afterwards. The row is only updated while it is unexpired at
// now and below maxAttempts, so concurrent guesses cannot exceed the limit.
// ErrNotFound means no attempt could be reserved.
func (r *OTPRepository) ReserveAttempt(ctx context.Context, email string, purpose types.OTPPurpose, maxAttempts int, now time.Time) (*models.OTPChallenge, error) {
	query := `
		UPDATE otp_challenges SET attempts = attempts + 1
		WHERE email = $1 AND purpose = $2 AND attempts < $3 AND expires_at > $4
		RETURNING email, purpose, code_hash, expires_at, verified, attempts, created_at
	`

	var c models.OTPChallenge
	err := r.db.Pool().QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email)), purpose, maxAttempts, now).Scan(
		&c.Email, &c.Purpose, &c.CodeHash, &c.ExpiresAt, &c.Verified, &c.Attempts, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to reserve otp attempt: %w", err)
	}
	return &c, nil
}

// MarkVerified flags the challenge as verified and extends its expiry to
// give the client time to complete the flow.
func (r *OTPRepository) MarkVerified(ctx context.Context, email string, purpose types.OTPPurpose, expiresAt time.Time) error {
	query := `
		UPDATE otp_challenges SET verified = TRUE, expires_at = $3
		WHERE email = $1 AND purpose = $2
	`

	result, err := r.db.Pool().Exec(ctx, query, strings.ToLower(strings.TrimSpace(email)), purpose, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to verify otp challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the challenge
func (r *OTPRepository) Delete(ctx context.Context, email string, purpose types.OTPPurpose) error {
	query := `DELETE FROM otp_challenges WHERE email = $1 AND purpose = $2`

	if _, err := r.db.Pool().Exec(ctx, query, strings.ToLower(strings.TrimSpace(email)), purpose); err != nil {
		return fmt.Errorf("failed to delete otp challenge: %w", err)
	}
	return nil
}

// DeleteExpired removes challenges that expired before now and returns how many
func (r *OTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp challenges: %w", err)
	}
	return result.RowsAffected(), nil
}
