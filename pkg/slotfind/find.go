package slotfind

import (
	"log/slog"
	"sort"
	"time"

	"github.com/sundial-dev/sundial/pkg/interval"
)

// Finder searches a time grid for free slots and ranks them.
type Finder struct {
	cfg    ScoringConfig
	logger *slog.Logger
}

// New creates a Finder with the default scoring weights.
func New(logger *slog.Logger) *Finder {
	return NewWithConfig(DefaultScoringConfig(), logger)
}

// NewWithConfig creates a Finder with custom weights.
func NewWithConfig(cfg ScoringConfig, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{cfg: cfg, logger: logger}
}

// Find returns up to Count*2 ranked candidates for the request,
// searching forward from now through the horizon implied by the
// request's time range. An empty result means no matching free time
// was found; it is not an error.
func (f *Finder) Find(now time.Time, req Request, busy []interval.Interval) ([]Candidate, error) {
	if req.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if req.Count < 1 {
		return nil, ErrInvalidCount
	}

	horizon := f.horizonEnd(now, req.TimeRange)
	band := f.cfg.band(req.Preference)
	duration := time.Duration(req.DurationMinutes) * time.Minute
	pad := time.Duration(f.cfg.BufferMinutes) * time.Minute
	step := time.Duration(f.cfg.StepMinutes) * time.Minute

	var candidates []Candidate
	current := roundUpToStep(now.Add(time.Duration(f.cfg.LeadMinutes)*time.Minute), f.cfg.StepMinutes)

	for current.Before(horizon) {
		if !band.Contains(current.Hour()) {
			// Jump to the next working window instead of crawling
			// through off-hours on the grid.
			current = nextWorkingStart(current, band.Start)
			continue
		}

		slot := interval.Interval{Start: current, End: current.Add(duration)}
		if free(slot.Pad(pad), busy) {
			candidates = append(candidates, Candidate{
				Start:   slot.Start,
				End:     slot.End,
				Day:     slot.Start.Format(dayLabelLayout),
				Time:    slot.Start.Format(timeLabelLayout),
				Score:   f.cfg.score(slot.Start, req.Preference),
				Weekday: slot.Start.Weekday(),
			})
		}

		current = current.Add(step)
	}

	// Stable: chronological generation order breaks score ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	target := req.Count * 2
	selected := f.applyProximity(candidates, target)
	if req.Count > 1 {
		selected = spreadAcrossDays(selected, target)
	}
	if len(selected) > target {
		selected = selected[:target]
	}

	f.logger.Debug("slot search finished",
		"candidates", len(candidates),
		"selected", len(selected),
		"duration_minutes", req.DurationMinutes,
		"count", req.Count,
		"time_range", req.TimeRange,
		"preference", req.Preference)

	return selected, nil
}

// horizonEnd maps the symbolic time range onto a concrete boundary.
func (f *Finder) horizonEnd(now time.Time, tr TimeRange) time.Time {
	switch tr {
	case Today:
		return time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 0, 0, now.Location())
	case Next3Days:
		return now.AddDate(0, 0, 3)
	default:
		return now.AddDate(0, 0, 7)
	}
}

// score rates a slot start. Higher is better. Every rule is additive
// and independent, so one slot can collect several bonuses and
// penalties at once.
func (c ScoringConfig) score(start time.Time, pref Preference) float64 {
	score := c.BaseScore
	hour := start.Hour()

	switch {
	case pref != NoPreference && c.band(pref).Contains(hour):
		score += c.PreferenceBonus
	case pref == NoPreference && c.CoreHours.Contains(hour):
		score += c.CoreHoursBonus
	}

	// Slight bias toward earlier hours for focus work.
	score += float64(c.DayEndHour-hour) * c.EarlyHourWeight

	if c.LunchBand.Contains(hour) {
		score -= c.LunchPenalty
	}
	if c.DinnerBand.Contains(hour) {
		score -= c.DinnerPenalty
	}
	if hour >= c.LateHour {
		score -= c.LatePenalty
	}

	switch wd := start.Weekday(); {
	case wd >= time.Monday && wd <= time.Thursday:
		score += c.WeekdayBonus
	case wd == time.Saturday || wd == time.Sunday:
		score -= c.WeekendPenalty
	}

	return score
}

// applyProximity greedily accepts candidates in rank order, skipping
// any candidate within MinProximityMinutes of an already-accepted one
// on the same calendar day, until target candidates are accepted.
func (f *Finder) applyProximity(candidates []Candidate, target int) []Candidate {
	minGap := time.Duration(f.cfg.MinProximityMinutes) * time.Minute
	var selected []Candidate

	for _, cand := range candidates {
		if len(selected) >= target {
			break
		}
		tooClose := false
		for _, sel := range selected {
			if !sameDay(cand.Start, sel.Start) {
				continue
			}
			gap := cand.Start.Sub(sel.Start)
			if gap < 0 {
				gap = -gap
			}
			if gap < minGap {
				tooClose = true
				break
			}
		}
		if !tooClose {
			selected = append(selected, cand)
		}
	}
	return selected
}

// spreadAcrossDays prioritizes one slot per day before offering
// multiple slots on the same day: the best candidate of each day is
// taken in chronological day order, then remaining candidates fill up
// to target in their existing rank order.
func spreadAcrossDays(slots []Candidate, target int) []Candidate {
	byDay := make(map[string][]Candidate)
	var days []string
	for _, s := range slots {
		key := s.Start.Format("2006-01-02")
		if _, ok := byDay[key]; !ok {
			days = append(days, key)
		}
		byDay[key] = append(byDay[key], s)
	}
	sort.Strings(days)

	var spread []Candidate
	for _, day := range days {
		if len(spread) >= target {
			break
		}
		best := byDay[day][0]
		for _, s := range byDay[day][1:] {
			if s.Score > best.Score {
				best = s
			}
		}
		spread = append(spread, best)
	}

	for _, s := range slots {
		if len(spread) >= target {
			break
		}
		if !containsStart(spread, s.Start) {
			spread = append(spread, s)
		}
	}
	return spread
}

func containsStart(slots []Candidate, start time.Time) bool {
	for _, s := range slots {
		if s.Start.Equal(start) {
			return true
		}
	}
	return false
}

// free reports whether the padded slot has no overlap with any busy
// interval: paddedStart < busyEnd && paddedEnd > busyStart for any busy
// interval means the slot is taken.
func free(padded interval.Interval, busy []interval.Interval) bool {
	for _, b := range busy {
		if padded.Overlaps(b) {
			return false
		}
	}
	return true
}

// roundUpToStep advances t to the next stepMinutes boundary, always
// moving forward even when t is already on one.
func roundUpToStep(t time.Time, stepMinutes int) time.Time {
	t = t.Truncate(time.Minute)
	minute := ((t.Minute() / stepMinutes) + 1) * stepMinutes
	base := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	return base.Add(time.Duration(minute) * time.Minute)
}

// nextWorkingStart moves to the band's opening hour: today when the
// band has not opened yet, otherwise tomorrow.
func nextWorkingStart(t time.Time, startHour int) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), startHour, 0, 0, 0, t.Location())
	if t.Hour() >= startHour {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
