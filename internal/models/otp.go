package models

import (
	"time"

	"github.com/carbon-tracker/internal/types"
)

// OTPChallenge is a hashed one-time code bound to an email and purpose
type OTPChallenge struct {
	Email     string           `db:"email"`
	Purpose   types.OTPPurpose `db:"purpose"`
	CodeHash  string           `db:"code_hash"`
	ExpiresAt time.Time        `db:"expires_at"`
	Verified  bool             `db:"verified"`
	Attempts  int              `db:"attempts"`
	CreatedAt time.Time        `db:"created_at"`
}

// Expired reports whether the challenge has passed its expiry at now
func (c *OTPChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
