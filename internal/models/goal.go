package models

import "time"

// Goal is a user's weekly emission ceiling in kg CO2e
type Goal struct {
	UserID     string    `json:"userId" db:"user_id"`
	WeeklyGoal float64   `json:"weeklyGoal" db:"weekly_goal"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}
