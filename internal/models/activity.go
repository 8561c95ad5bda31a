package models

import (
	"time"

	"github.com/carbon-tracker/internal/types"
)

// Activity represents one logged activity and its computed footprint.
// Activities are immutable once stored.
type Activity struct {
	ID              string             `json:"id" db:"id"`
	UserID          string             `json:"userId" db:"user_id"`
	Type            types.ActivityType `json:"type" db:"type"`
	Data            ActivityData       `json:"data" db:"data"`
	CarbonFootprint float64            `json:"carbonFootprint" db:"carbon_footprint"`
	CreatedAt       time.Time          `json:"createdAt" db:"created_at"`
}

// ActivityData is the normalized type-specific payload
type ActivityData struct {
	Mode     types.TransportMode `json:"mode,omitempty"`
	Distance *float64            `json:"distance,omitempty"`
	Usage    *float64            `json:"usage,omitempty"`
	DietType types.DietType      `json:"dietType,omitempty"`
}

// CategoryTotal is a user's all-time emissions for one activity type
type CategoryTotal struct {
	Type  types.ActivityType `json:"type"`
	Total float64            `json:"total"`
}

// ActivityStats summarizes a user's activity history for badge evaluation
type ActivityStats struct {
	Count          int64
	LastActivityAt *time.Time
}
