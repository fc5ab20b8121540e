package series

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundial-dev/sundial/pkg/gcal"
	"github.com/sundial-dev/sundial/pkg/recur"
)

func TestSanitizeEventID(t *testing.T) {
	assert.Equal(t, "teamsync", SanitizeEventID("Team Sync!", ""))
	assert.Equal(t, "sc123abc", SanitizeEventID("123-abc", ""))
	assert.Equal(t, "studysession", SanitizeEventID("STUDY session", "x"))

	// Degenerate input falls back to a random id with the prefix.
	id := SanitizeEventID("!!!", "sc")
	assert.True(t, strings.HasPrefix(id, "sc"))
	assert.GreaterOrEqual(t, len(id), 5)

	// Short ids are padded up to the minimum length.
	short := SanitizeEventID("ab", "")
	assert.True(t, strings.HasPrefix(short, "ab"))
	assert.GreaterOrEqual(t, len(short), 5)

	// Oversized ids are truncated.
	long := SanitizeEventID(strings.Repeat("a", 3000), "")
	assert.Len(t, long, 1024)
}

func TestBuildOccurrenceIDIsDeterministic(t *testing.T) {
	start := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	a := BuildOccurrenceID("walk", start, 1)
	b := BuildOccurrenceID("walk", start, 1)
	assert.Equal(t, a, b)
	assert.Equal(t, "walk202609011800001", a)

	// Index and timestamp both discriminate.
	assert.NotEqual(t, a, BuildOccurrenceID("walk", start, 2))
	assert.NotEqual(t, a, BuildOccurrenceID("walk", start.Add(time.Hour), 1))
}

// fakeCalendar records upserts and reports "updated" for ids it has
// already seen, mimicking the backend's create-or-update behavior.
type fakeCalendar struct {
	seen  map[string]gcal.EventTemplate
	calls []string
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{seen: make(map[string]gcal.EventTemplate)}
}

func (f *fakeCalendar) CreateOrUpdateEvent(_ context.Context, eventID string, ev gcal.EventTemplate) (gcal.UpsertResult, error) {
	f.calls = append(f.calls, eventID)
	action := gcal.ActionCreated
	if _, ok := f.seen[eventID]; ok {
		action = gcal.ActionUpdated
	}
	f.seen[eventID] = ev
	return gcal.UpsertResult{Action: action, EventID: eventID}, nil
}

func seriesTemplate() gcal.EventTemplate {
	start := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	return gcal.EventTemplate{
		Summary: "Yoga",
		Start:   start,
		End:     start.Add(time.Hour),
	}
}

func TestCreateWritesOneEventPerOccurrence(t *testing.T) {
	cal := newFakeCalendar()
	rule := recur.Rule{Frequency: recur.Daily, Until: time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)}

	result, err := Create(context.Background(), cal, nil, "yogaseries", seriesTemplate(), rule, OriginManual)
	require.NoError(t, err)
	assert.Equal(t, "yogaseries", result.ParentID)
	require.Len(t, result.Outcomes, 3)

	for i, outcome := range result.Outcomes {
		assert.Equal(t, i+1, outcome.Index)
		assert.Equal(t, gcal.ActionCreated, outcome.Action)

		ev := cal.seen[outcome.EventID]
		assert.Equal(t, "yogaseries", ev.Private[PropParent])
		assert.Equal(t, string(recur.Daily), ev.Private[PropFrequency])
		assert.Equal(t, string(OriginManual), ev.Private[PropOrigin])
	}
}

func TestCreateIsIdempotentAcrossReRuns(t *testing.T) {
	cal := newFakeCalendar()
	rule := recur.Rule{Frequency: recur.Daily, Until: time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)}

	first, err := Create(context.Background(), cal, nil, "yogaseries", seriesTemplate(), rule, OriginManual)
	require.NoError(t, err)
	second, err := Create(context.Background(), cal, nil, "yogaseries", seriesTemplate(), rule, OriginManual)
	require.NoError(t, err)

	require.Len(t, second.Outcomes, len(first.Outcomes))
	for i := range first.Outcomes {
		assert.Equal(t, first.Outcomes[i].EventID, second.Outcomes[i].EventID)
		assert.Equal(t, gcal.ActionUpdated, second.Outcomes[i].Action)
	}
	assert.Len(t, cal.seen, 3)
}

func TestCreateMintsParentWhenMissing(t *testing.T) {
	cal := newFakeCalendar()
	rule := recur.Rule{Frequency: recur.Daily, MaxOccurrences: 1}

	result, err := Create(context.Background(), cal, nil, "", seriesTemplate(), rule, OriginAssistant)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ParentID)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, result.ParentID, cal.seen[result.Outcomes[0].EventID].Private[PropParent])
}

func TestCreateAllOccurrencesExcepted(t *testing.T) {
	cal := newFakeCalendar()
	rule := recur.Rule{
		Frequency:      recur.Daily,
		MaxOccurrences: 2,
		Exceptions: []recur.Exception{
			{Start: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)},
		},
	}

	_, err := Create(context.Background(), cal, nil, "yogaseries", seriesTemplate(), rule, OriginManual)
	assert.ErrorIs(t, err, ErrNoOccurrences)
	assert.Empty(t, cal.calls)
}
