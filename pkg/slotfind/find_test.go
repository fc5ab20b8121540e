package slotfind

import (
	"errors"
	"testing"
	"time"

	"github.com/sundial-dev/sundial/pkg/interval"
)

// 2026-09-01 is a Tuesday.
func tuesday(hour, minute int) time.Time {
	return time.Date(2026, 9, 1, hour, minute, 0, 0, time.UTC)
}

func TestFindRejectsSlotsInsideThePaddedConflictZone(t *testing.T) {
	finder := New(nil)
	busy := []interval.Interval{{Start: tuesday(14, 0), End: tuesday(15, 0)}}

	candidates, err := finder.Find(tuesday(9, 0), Request{
		Title:           "Walk",
		DurationMinutes: 30,
		Count:           20,
		TimeRange:       Today,
	}, busy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected candidates on a mostly free day")
	}

	// A 30-minute slot with the 15-minute pad conflicts when its start
	// falls in (13:15, 15:15).
	for _, cand := range candidates {
		if cand.Start.After(tuesday(13, 15)) && cand.Start.Before(tuesday(15, 15)) {
			t.Errorf("candidate at %v overlaps the padded busy block", cand.Start)
		}
	}
}

func TestFindStartsAfterLeadTimeOnTheGrid(t *testing.T) {
	finder := New(nil)
	candidates, err := finder.Find(tuesday(9, 0), Request{
		DurationMinutes: 30,
		Count:           1,
		TimeRange:       Today,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// now + 30min lead = 09:30, rounded up past the boundary = 09:45.
	for _, cand := range candidates {
		if cand.Start.Before(tuesday(9, 45)) {
			t.Errorf("candidate at %v starts before the lead window", cand.Start)
		}
		if cand.Start.Minute()%15 != 0 {
			t.Errorf("candidate at %v is off the 15-minute grid", cand.Start)
		}
	}
}

func TestFindRespectsPreferenceBand(t *testing.T) {
	finder := New(nil)
	candidates, err := finder.Find(tuesday(9, 0), Request{
		DurationMinutes: 60,
		Count:           3,
		TimeRange:       ThisWeek,
		Preference:      Evening,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected evening candidates in a free week")
	}
	for _, cand := range candidates {
		if h := cand.Start.Hour(); h < 17 || h >= 20 {
			t.Errorf("candidate at hour %d outside the evening band", h)
		}
	}
}

func TestFindRankingAndProximity(t *testing.T) {
	finder := New(nil)
	// Morning preference from 06:00: the grid enters the band at 08:00.
	// 08:00 and 08:15 tie on score; stable sort keeps 08:00 first and
	// the 60-minute proximity rule pushes the runner-up to 09:00.
	candidates, err := finder.Find(tuesday(6, 0), Request{
		DurationMinutes: 30,
		Count:           1,
		TimeRange:       Today,
		Preference:      Morning,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2 (count*2)", len(candidates))
	}
	if !candidates[0].Start.Equal(tuesday(8, 0)) {
		t.Errorf("top candidate at %v, want 08:00", candidates[0].Start)
	}
	if !candidates[1].Start.Equal(tuesday(9, 0)) {
		t.Errorf("second candidate at %v, want 09:00", candidates[1].Start)
	}
}

func TestFindSpreadsMultiSlotRequestsAcrossDays(t *testing.T) {
	finder := New(nil)
	candidates, err := finder.Find(tuesday(9, 0), Request{
		DurationMinutes: 45,
		Count:           2,
		TimeRange:       ThisWeek,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 4 {
		t.Fatalf("got %d candidates, want 4", len(candidates))
	}
	// The proximity pass keeps at most a handful of same-day slots, and
	// the spread pass then leads with the best slot of each day in
	// chronological day order before filling from the remainder.
	days := make(map[string]bool)
	var lastNewDay string
	for _, cand := range candidates {
		day := cand.Start.Format("2006-01-02")
		if days[day] {
			continue
		}
		days[day] = true
		if day < lastNewDay {
			t.Errorf("leading slots out of day order: %s after %s", day, lastNewDay)
		}
		lastNewDay = day
	}
	if len(days) < 3 {
		t.Errorf("candidates cover %d days, want at least 3", len(days))
	}
}

func TestFindFullyBookedDayReturnsEmptyNotError(t *testing.T) {
	finder := New(nil)
	busy := []interval.Interval{{Start: tuesday(0, 0), End: tuesday(23, 59)}}
	candidates, err := finder.Find(tuesday(9, 0), Request{
		DurationMinutes: 30,
		Count:           1,
		TimeRange:       Today,
	}, busy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates, got %d", len(candidates))
	}
}

func TestFindValidatesInput(t *testing.T) {
	finder := New(nil)
	if _, err := finder.Find(tuesday(9, 0), Request{DurationMinutes: 0, Count: 1}, nil); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("got %v, want ErrInvalidDuration", err)
	}
	if _, err := finder.Find(tuesday(9, 0), Request{DurationMinutes: 30, Count: 0}, nil); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("got %v, want ErrInvalidCount", err)
	}
}

func TestRoundUpToStepAlwaysAdvances(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{tuesday(9, 30), tuesday(9, 45)}, // already on a boundary
		{tuesday(9, 31), tuesday(9, 45)},
		{tuesday(9, 44), tuesday(9, 45)},
		{tuesday(9, 46), tuesday(10, 0)},
		{tuesday(23, 50), time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := roundUpToStep(tt.in, 15); !got.Equal(tt.want) {
			t.Errorf("roundUpToStep(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestScoreWeights(t *testing.T) {
	cfg := DefaultScoringConfig()

	tests := []struct {
		name  string
		start time.Time
		pref  Preference
		want  float64
	}{
		// base 100 + core 20 + early (20-10)*0.5 + weekday 5
		{"core weekday morning", tuesday(10, 0), NoPreference, 130},
		// base 100 + core 20 + early 4 - lunch 15 + weekday 5
		{"lunch penalty", tuesday(12, 0), NoPreference, 114},
		// base 100 + pref 30 + early 1 - dinner 15 + weekday 5
		{"evening preference at dinner", tuesday(18, 0), Evening, 121},
		// base 100 + early 0.5 - late 10 + weekday 5
		{"late evening", tuesday(19, 0), NoPreference, 95.5},
		// Saturday 2026-09-05: base 100 + core 20 + early 5 - weekend 5
		{"weekend", time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC), NoPreference, 120},
		// Friday 2026-09-04 gets neither bonus nor penalty.
		{"friday neutral", time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC), NoPreference, 125},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.score(tt.start, tt.pref); got != tt.want {
				t.Errorf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPreferenceBonusExcludesCoreBonus(t *testing.T) {
	cfg := DefaultScoringConfig()
	// 10:00 with a morning preference: preference bonus applies, core
	// bonus does not stack on top.
	// base 100 + pref 30 + early 5 + weekday 5
	if got := cfg.score(tuesday(10, 0), Morning); got != 140 {
		t.Errorf("score = %v, want 140", got)
	}
}
