package models

import (
	"time"

	"github.com/carbon-tracker/internal/types"
)

// Achievement is a badge awarded to a user
type Achievement struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"userId" db:"user_id"`
	BadgeKey    types.BadgeKey `json:"badgeKey" db:"badge_key"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description" db:"description"`
	AchievedAt  time.Time      `json:"achievedAt" db:"achieved_at"`
}
