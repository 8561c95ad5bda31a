// Package types provides common type definitions for the carbon tracker.
package types

// ActivityType represents the category of a logged activity
type ActivityType string

const (
	// ActivityTransport represents travel by car, bus, bike or train
	ActivityTransport ActivityType = "transport"
	// ActivityElectricity represents household electricity usage
	ActivityElectricity ActivityType = "electricity"
	// ActivityDiet represents a day's diet choice
	ActivityDiet ActivityType = "diet"
)

// ActivityTypes lists every supported activity type
var ActivityTypes = []ActivityType{ActivityTransport, ActivityElectricity, ActivityDiet}

// IsValid reports whether t is a supported activity type
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityTransport, ActivityElectricity, ActivityDiet:
		return true
	}
	return false
}

// TransportMode represents how a trip was made
type TransportMode string

const (
	ModeCar   TransportMode = "car"
	ModeBus   TransportMode = "bus"
	ModeBike  TransportMode = "bike"
	ModeTrain TransportMode = "train"
)

// DietType represents a diet choice
type DietType string

const (
	DietVegetarian    DietType = "vegetarian"
	DietNonVegetarian DietType = "nonVegetarian"
	DietVegan         DietType = "vegan"
)

// TipCategory represents the category of an advisory tip
type TipCategory string

const (
	TipTransport   TipCategory = "transport"
	TipElectricity TipCategory = "electricity"
	TipDiet        TipCategory = "diet"
	// TipGeneral holds tips that apply regardless of activity history
	TipGeneral TipCategory = "general"
)

// IsValid reports whether c is a known tip category
func (c TipCategory) IsValid() bool {
	switch c {
	case TipTransport, TipElectricity, TipDiet, TipGeneral:
		return true
	}
	return false
}

// TipCategoryFor maps an activity type to the tip category advising on it
func TipCategoryFor(t ActivityType) TipCategory {
	return TipCategory(t)
}

// SummaryStatus compares a weekly total against the goal
type SummaryStatus string

const (
	// StatusUnder means the weekly total is at or below the goal
	StatusUnder SummaryStatus = "under"
	// StatusOver means the weekly total exceeds the goal
	StatusOver SummaryStatus = "over"
)

// OTPPurpose distinguishes registration and password reset challenges
type OTPPurpose string

const (
	OTPRegister OTPPurpose = "register"
	OTPReset    OTPPurpose = "reset"
)

// BadgeKey identifies an achievement kind; a user holds each key at most once
type BadgeKey string

const (
	BadgeFirstStep      BadgeKey = "first_step"
	BadgeGettingGreener BadgeKey = "getting_greener"
	BadgeEcoWarrior     BadgeKey = "eco_warrior"
	BadgeFirstLogin     BadgeKey = "first_login"
	BadgeGoalAchiever   BadgeKey = "goal_achiever"
	BadgeWeeklyLogger   BadgeKey = "weekly_logger"
)
