package models

import "github.com/carbon-tracker/internal/types"

// Tip is an advisory message for a category
type Tip struct {
	ID       string            `json:"id" db:"id"`
	Category types.TipCategory `json:"category" db:"category"`
	Message  string            `json:"message" db:"message"`
}
