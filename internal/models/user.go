// Package models provides data models for the carbon tracker.
package models

import (
	"time"
)

// User represents a registered account
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	WeeklyGoal   float64   `json:"weeklyGoal" db:"weekly_goal"`
	HasLoggedIn  bool      `json:"hasLoggedIn" db:"has_logged_in"`
	ProfilePic   *string   `json:"profilePic" db:"profile_pic"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// UserUpdate carries the profile fields a user may change.
// Nil fields are left untouched.
type UserUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

// LeaderboardEntry is one user's total within a week
type LeaderboardEntry struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Total  float64 `json:"totalEmissions"`
}
