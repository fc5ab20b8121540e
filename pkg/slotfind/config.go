package slotfind

// HourBand is a half-open local-hour range [Start, End).
type HourBand struct {
	Start int
	End   int
}

// Contains reports whether the hour falls inside the band.
func (b HourBand) Contains(hour int) bool {
	return hour >= b.Start && hour < b.End
}

// ScoringConfig isolates every heuristic constant of the finder so the
// ranking can be tuned or replaced without touching the search,
// diversity, or day-spread logic. All score adjustments are additive on
// BaseScore and accumulate independently.
type ScoringConfig struct {
	// Grid and conflict handling.
	StepMinutes         int // candidate grid granularity
	BufferMinutes       int // symmetric pad around a slot before overlap testing
	LeadMinutes         int // scanning starts at now + LeadMinutes, rounded up to the grid
	MinProximityMinutes int // minimum same-day gap between accepted candidates

	// Working-hour bands per preference.
	MorningBand   HourBand
	AfternoonBand HourBand
	EveningBand   HourBand
	DefaultBand   HourBand

	// Score weights.
	BaseScore       float64
	PreferenceBonus float64  // hour inside the stated preference band
	CoreHoursBonus  float64  // no preference and hour inside CoreHours
	CoreHours       HourBand //
	EarlyHourWeight float64  // per hour earlier than DayEndHour
	DayEndHour      int
	LunchBand       HourBand
	LunchPenalty    float64
	DinnerBand      HourBand
	DinnerPenalty   float64
	LateHour        int // hours at or past this are penalized
	LatePenalty     float64
	WeekdayBonus    float64 // Monday through Thursday
	WeekendPenalty  float64 // Saturday and Sunday; Friday scores zero either way
}

// DefaultScoringConfig returns the production weights.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		StepMinutes:         15,
		BufferMinutes:       15,
		LeadMinutes:         30,
		MinProximityMinutes: 60,

		MorningBand:   HourBand{8, 12},
		AfternoonBand: HourBand{12, 17},
		EveningBand:   HourBand{17, 20},
		DefaultBand:   HourBand{8, 20},

		BaseScore:       100,
		PreferenceBonus: 30,
		CoreHoursBonus:  20,
		CoreHours:       HourBand{9, 17},
		EarlyHourWeight: 0.5,
		DayEndHour:      20,
		LunchBand:       HourBand{12, 13},
		LunchPenalty:    15,
		DinnerBand:      HourBand{18, 19},
		DinnerPenalty:   15,
		LateHour:        19,
		LatePenalty:     10,
		WeekdayBonus:    5,
		WeekendPenalty:  5,
	}
}

// band returns the working-hour band for a preference.
func (c ScoringConfig) band(pref Preference) HourBand {
	switch pref {
	case Morning:
		return c.MorningBand
	case Afternoon:
		return c.AfternoonBand
	case Evening:
		return c.EveningBand
	default:
		return c.DefaultBand
	}
}
