package icsfeed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(lines ...string) []byte {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//canvas//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func TestParseFeedTimedEvent(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"UID:assignment-1@canvas",
		"SUMMARY:Essay due",
		"LOCATION:Room 204",
		"DTSTART:20260901T140000Z",
		"DTEND:20260901T150000Z",
		"END:VEVENT",
	)

	events, err := ParseFeed(Source{ID: "canvas", Name: "Canvas"}, body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "assignment-1@canvas", ev.UID)
	assert.Equal(t, "Essay due", ev.Summary)
	assert.Equal(t, "Room 204", ev.Location)
	assert.Equal(t, "Canvas", ev.Source)
	assert.False(t, ev.AllDay)
	assert.Equal(t, time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC), ev.Start.UTC())
	assert.Equal(t, time.Hour, ev.End.Sub(ev.Start))
}

func TestParseFeedAllDayEvent(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"UID:holiday-1",
		"SUMMARY:Reading day",
		"DTSTART;VALUE=DATE:20260902",
		"DTEND;VALUE=DATE:20260903",
		"END:VEVENT",
	)

	events, err := ParseFeed(Source{ID: "uni", Name: "University"}, body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].AllDay)
	assert.Equal(t, 24*time.Hour, events[0].End.Sub(events[0].Start))
}

func TestParseFeedMissingEndDefaultsToOneHour(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"UID:open-ended",
		"SUMMARY:Office hours",
		"DTSTART:20260901T100000Z",
		"END:VEVENT",
	)

	events, err := ParseFeed(Source{ID: "uni", Name: "University"}, body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.Hour, events[0].End.Sub(events[0].Start))
}

func TestParseFeedSkipsEventsWithoutUID(t *testing.T) {
	body := feed(
		"BEGIN:VEVENT",
		"SUMMARY:No identity",
		"DTSTART:20260901T100000Z",
		"DTEND:20260901T110000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:keeper",
		"SUMMARY:Valid",
		"DTSTART:20260901T120000Z",
		"DTEND:20260901T130000Z",
		"END:VEVENT",
	)

	events, err := ParseFeed(Source{ID: "uni", Name: "University"}, body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "keeper", events[0].UID)
}

func TestParseFeedRejectsNonCalendarPayloads(t *testing.T) {
	if _, err := ParseFeed(Source{}, nil); err == nil {
		t.Error("expected error for empty body")
	}
	if _, err := ParseFeed(Source{}, []byte("<html>not a calendar</html>")); err == nil {
		t.Error("expected error for HTML payload")
	}
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "plain text stays", cleanDescription(" plain text stays "))
	assert.Equal(t, "", cleanDescription("   "))

	md := cleanDescription("<p>Submit via <a href=\"https://example.edu\">the portal</a></p>")
	assert.NotContains(t, md, "<p>")
	assert.Contains(t, md, "Submit via")
}

func TestRedactURLHidesTokens(t *testing.T) {
	redacted := redactURL("https://canvas.example.edu/feeds/calendars/user_SECRETTOKEN.ics")
	assert.NotContains(t, redacted, "SECRETTOKEN")
	assert.Contains(t, redacted, "canvas.example.edu")

	assert.Equal(t, "ics://...(redacted)", redactURL("::not a url::"))
}
