package service

import "time"

// WeekWindow is a half-open ISO week [Start, End)
type WeekWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window
func (w WeekWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Key identifies the week by its start date, e.g. "2024-03-04"
func (w WeekWindow) Key() string {
	return w.Start.Format("2006-01-02")
}

// WeekOf returns the ISO week (Monday 00:00 to the following Monday 00:00)
// containing t, evaluated in loc.
func WeekOf(t time.Time, loc *time.Location) WeekWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	// Monday=0 ... Sunday=6
	offset := (int(local.Weekday()) + 6) % 7
	start := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
	return WeekWindow{Start: start, End: start.AddDate(0, 0, 7)}
}
