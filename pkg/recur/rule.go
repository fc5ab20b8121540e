// Package recur expands recurrence rules into concrete event
// occurrences. Expansion is pure: the rule carries every temporal
// reference, so identical inputs always produce identical output.
package recur

import (
	"errors"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency selects the recurrence cadence.
type Frequency string

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// DefaultMaxOccurrences caps expansion when a rule has no explicit
// occurrence limit.
const DefaultMaxOccurrences = 200

var (
	// ErrInvalidDuration is returned when the template end is not
	// strictly after the template start.
	ErrInvalidDuration = errors.New("recur: event duration must be positive")
	// ErrUnsupportedFrequency is returned for a frequency outside the
	// four recognized values.
	ErrUnsupportedFrequency = errors.New("recur: unsupported frequency")
	// ErrInvalidWindow is returned when the rule's cutoff precedes the
	// template start.
	ErrInvalidWindow = errors.New("recur: until date must not precede the start date")
)

// Exception is an inclusive calendar-date range to skip. Time-of-day is
// ignored; End defaults to Start when zero.
type Exception struct {
	Start time.Time
	End   time.Time
}

// Matches reports whether t's calendar date falls inside the exception
// range, inclusive on both ends.
func (e Exception) Matches(t time.Time) bool {
	end := e.End
	if end.IsZero() {
		end = e.Start
	}
	d := dateOnly(t)
	return !d.Before(dateOnly(e.Start)) && !d.After(dateOnly(end))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Rule is a normalized recurrence definition.
//
// MaxOccurrences bounds the number of generated candidates, counted
// BEFORE exception filtering: a rule capped at N whose early candidates
// hit exception ranges yields fewer than N occurrences. This mirrors
// the behavior callers already depend on and keeps work bounded.
type Rule struct {
	Frequency Frequency
	// Interval is the cadence multiplier; values below 1 are treated
	// as 1. Biweekly doubles the effective weekly interval.
	Interval int
	// Weekdays restricts weekly/biweekly rules; when empty the
	// template start's weekday is used.
	Weekdays []time.Weekday
	// Until is the inclusive cutoff; zero means no explicit cutoff.
	Until time.Time
	// MaxOccurrences overrides DefaultMaxOccurrences when positive.
	MaxOccurrences int
	Exceptions     []Exception
}

func (r Rule) effectiveInterval() int {
	iv := r.Interval
	if iv < 1 {
		iv = 1
	}
	if r.Frequency == Biweekly {
		iv *= 2
	}
	return iv
}

func (r Rule) cap() int {
	if r.MaxOccurrences > 0 {
		return r.MaxOccurrences
	}
	return DefaultMaxOccurrences
}

// ParseFrequency normalizes a frequency token.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case Daily:
		return Daily, nil
	case Weekly:
		return Weekly, nil
	case Biweekly:
		return Biweekly, nil
	case Monthly:
		return Monthly, nil
	default:
		return "", ErrUnsupportedFrequency
	}
}

var weekdayTokens = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// ParseWeekdays maps tokens like "mon", "tue" to weekdays, ignoring
// unknown tokens and deduplicating while preserving order.
func ParseWeekdays(tokens []string) []time.Weekday {
	var days []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, tok := range tokens {
		day, ok := weekdayTokens[strings.ToLower(strings.TrimSpace(tok))]
		if !ok || seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	return days
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}
