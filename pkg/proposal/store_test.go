package proposal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundial-dev/sundial/pkg/slotfind"
)

func testSession(t *testing.T) (*Store, Session) {
	t.Helper()
	store := NewStore(0, nil)
	req := slotfind.Request{Title: "Walk", DurationMinutes: 45, Count: 2, TimeRange: slotfind.ThisWeek}
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	candidates := []slotfind.Candidate{
		{Start: base, End: base.Add(45 * time.Minute)},
		{Start: base.AddDate(0, 0, 1), End: base.AddDate(0, 0, 1).Add(45 * time.Minute)},
		{Start: base.AddDate(0, 0, 2), End: base.AddDate(0, 0, 2).Add(45 * time.Minute)},
	}
	return store, store.Create(req, candidates)
}

func TestConsumeIsSingleUse(t *testing.T) {
	store, session := testSession(t)

	selections, err := store.Consume(session.ID, []int{0, 2}, nil)
	require.NoError(t, err)
	require.Len(t, selections, 2)
	assert.Equal(t, 0, selections[0].Index)
	assert.Equal(t, 2, selections[1].Index)
	assert.Equal(t, 45*time.Minute, selections[0].End.Sub(selections[0].Start))

	// The session is spent even though nothing downstream happened yet.
	_, err = store.Consume(session.ID, []int{0}, nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, ok := store.Get(session.ID)
	assert.False(t, ok)
}

func TestConsumeUnknownSession(t *testing.T) {
	store := NewStore(0, nil)
	_, err := store.Consume("no-such-session", []int{0}, nil)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestInvalidSelectionLeavesSessionActive(t *testing.T) {
	store, session := testSession(t)

	_, err := store.Consume(session.ID, []int{5}, nil)
	require.ErrorIs(t, err, ErrInvalidSelection)
	_, err = store.Consume(session.ID, nil, nil)
	require.ErrorIs(t, err, ErrInvalidSelection)
	_, err = store.Consume(session.ID, []int{-1}, nil)
	require.ErrorIs(t, err, ErrInvalidSelection)

	// A corrected retry still succeeds.
	selections, err := store.Consume(session.ID, []int{1}, nil)
	require.NoError(t, err)
	assert.Len(t, selections, 1)
}

func TestConsumeAppliesTimeOverrides(t *testing.T) {
	store, session := testSession(t)

	selections, err := store.Consume(session.ID, []int{1}, map[int]string{1: "16:30"})
	require.NoError(t, err)
	require.Len(t, selections, 1)

	sel := selections[0]
	assert.Equal(t, 16, sel.Start.Hour())
	assert.Equal(t, 30, sel.Start.Minute())
	// The calendar day of the original candidate is preserved.
	assert.Equal(t, 2, sel.Start.Day())
	assert.Equal(t, sel.Start.Add(45*time.Minute), sel.End)
}

func TestConsumeIgnoresUnparseableOverride(t *testing.T) {
	store, session := testSession(t)

	selections, err := store.Consume(session.ID, []int{0}, map[int]string{0: "half past nine"})
	require.NoError(t, err)
	require.Len(t, selections, 1)
	assert.Equal(t, session.Candidates[0].Start, selections[0].Start)
}

func TestOverrideValidation(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for _, bad := range []string{"24:00", "12:60", "noon", "12", ""} {
		if _, err := applyTimeOverride(base, bad); err == nil {
			t.Errorf("expected error for override %q", bad)
		}
	}
	adjusted, err := applyTimeOverride(base, " 07:05 ")
	require.NoError(t, err)
	assert.Equal(t, 7, adjusted.Hour())
	assert.Equal(t, 5, adjusted.Minute())
}
