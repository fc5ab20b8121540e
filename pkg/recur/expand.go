package recur

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Occurrence is one concrete (start, end) pair produced by expansion.
// Every occurrence has exactly the template's duration.
type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Expand walks the rule's cadence forward from the template start and
// returns the ordered occurrence list. Generation stops at the first
// of: the inclusive Until cutoff, the occurrence cap, or generator
// exhaustion. Candidates landing inside an exception range are dropped
// after they have been counted against the cap.
func Expand(start, end time.Time, rule Rule) ([]Occurrence, error) {
	duration := end.Sub(start)
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if !rule.Until.IsZero() && dateOnly(rule.Until).Before(dateOnly(start)) {
		return nil, ErrInvalidWindow
	}

	opt := rrule.ROption{
		Interval: rule.effectiveInterval(),
		Dtstart:  start,
	}
	if !rule.Until.IsZero() {
		// Until is an inclusive calendar date: an occurrence on the
		// cutoff day still counts regardless of its time-of-day.
		u := rule.Until
		opt.Until = time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, u.Location())
	}

	switch rule.Frequency {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly, Biweekly:
		opt.Freq = rrule.WEEKLY
		for _, day := range rule.Weekdays {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[day])
		}
	case Monthly:
		// Lock to the start's day-of-month; months without that day
		// are skipped by the rule engine.
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{start.Day()}
	default:
		return nil, ErrUnsupportedFrequency
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	var occurrences []Occurrence
	limit := rule.cap()
	generated := 0

	next := r.Iterator()
	for generated < limit {
		occStart, ok := next()
		if !ok {
			break
		}
		generated++

		if excepted(rule.Exceptions, occStart) {
			continue
		}
		occurrences = append(occurrences, Occurrence{
			Start: occStart,
			End:   occStart.Add(duration),
		})
	}

	return occurrences, nil
}

func excepted(exceptions []Exception, t time.Time) bool {
	for _, ex := range exceptions {
		if ex.Matches(t) {
			return true
		}
	}
	return false
}
