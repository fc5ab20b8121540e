package assistant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundial-dev/sundial/pkg/slotfind"
)

func TestExtractJSON(t *testing.T) {
	want := `{"title": "Walk", "duration_minutes": 30}`

	tests := []struct {
		name string
		in   string
	}{
		{"bare json", want},
		{"fenced json", "```json\n" + want + "\n```"},
		{"fenced without language", "```\n" + want + "\n```"},
		{"surrounding prose", "Here is the parsed request:\n" + want + "\nLet me know if that looks right."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.in)
			require.True(t, ok)
			assert.JSONEq(t, want, got)
		})
	}

	if _, ok := extractJSON("no json here at all"); ok {
		t.Error("expected extraction to fail on plain prose")
	}
}

func TestValidateMapsFields(t *testing.T) {
	c := NewClient("key", "", nil)

	req, err := c.validate(&parsedRequest{
		Title:           "  Study session ",
		DurationMinutes: 120,
		Count:           2,
		TimeRange:       "next_3_days",
		PreferredTime:   "morning",
	}, "2 study sessions in the mornings")
	require.NoError(t, err)

	assert.Equal(t, "Study session", req.Title)
	assert.Equal(t, 120, req.DurationMinutes)
	assert.Equal(t, 2, req.Count)
	assert.Equal(t, slotfind.Next3Days, req.TimeRange)
	assert.Equal(t, slotfind.Morning, req.Preference)
	assert.Equal(t, "2 study sessions in the mornings", req.OriginalText)
}

func TestValidateDefaults(t *testing.T) {
	c := NewClient("key", "", nil)

	req, err := c.validate(&parsedRequest{
		Title:           "Walk",
		DurationMinutes: 30,
		Count:           1,
		TimeRange:       "sometime soon",
		PreferredTime:   "none",
	}, "a walk")
	require.NoError(t, err)
	assert.Equal(t, slotfind.ThisWeek, req.TimeRange)
	assert.Equal(t, slotfind.NoPreference, req.Preference)
}

func TestValidateRejectsBadFields(t *testing.T) {
	c := NewClient("key", "", nil)

	cases := []parsedRequest{
		{Title: "", DurationMinutes: 30, Count: 1},
		{Title: "Walk", DurationMinutes: 0, Count: 1},
		{Title: "Walk", DurationMinutes: -15, Count: 1},
		{Title: "Walk", DurationMinutes: 30, Count: 0},
	}
	for _, bad := range cases {
		_, err := c.validate(&bad, "text")
		if !errors.Is(err, ErrUnparseable) {
			t.Errorf("validate(%+v): got %v, want ErrUnparseable", bad, err)
		}
	}
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, isTransientError(errors.New("googleapi: Error 503: service unavailable")))
	assert.True(t, isTransientError(errors.New("rate limit exceeded, try again")))
	assert.True(t, isTransientError(errors.New("context deadline exceeded")))
	assert.False(t, isTransientError(errors.New("API key not valid")))
	assert.False(t, isTransientError(errors.New("400 bad request")))
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("key", "models/gemini-2.5-flash", nil)
	assert.Equal(t, "gemini-2.5-flash", c.model)

	c = NewClient("key", "", nil)
	assert.Equal(t, defaultModel, c.model)
}
