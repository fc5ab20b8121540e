// Package interval provides time-interval arithmetic shared by the
// recurrence expander and the slot finder.
package interval

import (
	"fmt"
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New returns a validated interval. Degenerate intervals (End <= Start)
// are rejected so they never reach the search or expansion cores.
func New(start, end time.Time) (Interval, error) {
	if !end.After(start) {
		return Interval{}, fmt.Errorf("degenerate interval: end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether the two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Contains reports whether t falls inside [Start, End).
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// SameDay reports whether both interval starts fall on the same calendar
// day in the start's location.
func (iv Interval) SameDay(other Interval) bool {
	y1, m1, d1 := iv.Start.Date()
	y2, m2, d2 := other.Start.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Pad returns the interval expanded symmetrically by margin on both sides.
func (iv Interval) Pad(margin time.Duration) Interval {
	return Interval{Start: iv.Start.Add(-margin), End: iv.End.Add(margin)}
}

// Merge collapses overlapping or touching intervals into a sorted,
// non-overlapping list. The input is not modified.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !cur.Start.After(last.End) {
			if cur.End.After(last.End) {
				last.End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Subtract removes the busy intervals from the window and returns the
// remaining free intervals in chronological order.
func Subtract(window Interval, busy []Interval) []Interval {
	free := []Interval{window}
	for _, b := range Merge(busy) {
		var next []Interval
		for _, f := range free {
			if !f.Overlaps(b) {
				next = append(next, f)
				continue
			}
			if b.Start.After(f.Start) {
				next = append(next, Interval{Start: f.Start, End: b.Start})
			}
			if b.End.Before(f.End) {
				next = append(next, Interval{Start: b.End, End: f.End})
			}
		}
		free = next
		if len(free) == 0 {
			break
		}
	}
	return free
}
