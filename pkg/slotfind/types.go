// Package slotfind locates and ranks free time slots of a requested
// duration inside a search horizon. The search is a single
// deterministic pass over a fixed 15-minute grid: no randomness, no
// retries, no I/O. Busy intervals are supplied by the caller and "now"
// is an explicit parameter so searches are reproducible under test.
package slotfind

import (
	"errors"
	"time"
)

// TimeRange selects the search end boundary relative to "now".
type TimeRange string

const (
	Today     TimeRange = "today"
	Next3Days TimeRange = "next_3_days"
	ThisWeek  TimeRange = "this_week"
)

// Preference narrows the working-hour band for a search.
type Preference string

const (
	NoPreference Preference = ""
	Morning      Preference = "morning"
	Afternoon    Preference = "afternoon"
	Evening      Preference = "evening"
)

var (
	// ErrInvalidDuration is returned for a non-positive duration.
	ErrInvalidDuration = errors.New("slotfind: duration must be positive")
	// ErrInvalidCount is returned for a non-positive slot count.
	ErrInvalidCount = errors.New("slotfind: count must be at least 1")
)

// Request is an already-parsed scheduling request. Parsing happens
// upstream (pkg/assistant); the finder only defends against missing or
// invalid duration and count.
type Request struct {
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	Count           int        `json:"count"`
	TimeRange       TimeRange  `json:"time_range"`
	Preference      Preference `json:"preferred_time,omitempty"`
	OriginalText    string     `json:"original_text,omitempty"`
}

// Candidate is a scored free slot offered for selection.
type Candidate struct {
	Start   time.Time    `json:"start"`
	End     time.Time    `json:"end"`
	Day     string       `json:"day"`
	Time    string       `json:"time"`
	Score   float64      `json:"score"`
	Weekday time.Weekday `json:"weekday"`
}

const (
	dayLabelLayout  = "Monday, January 02"
	timeLabelLayout = "03:04 PM"
)
