package icsfeed

import (
	"bytes"
	"errors"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	ical "github.com/arran4/golang-ical"
)

// RawEvent is one normalized VEVENT from a feed.
type RawEvent struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"allDay"`
	Source      string    `json:"source"`
}

// ParseFeed parses an ICS payload into raw events. Individual
// unparseable VEVENTs are skipped; the feed as a whole only fails when
// the payload is not a calendar at all.
func ParseFeed(src Source, body []byte) ([]RawEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("icsfeed: empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]RawEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(src, ve)
		if perr != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (RawEvent, error) {
	out := RawEvent{Source: src.Name}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = cleanDescription(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.Start = start
	out.AllDay = isAllDay(ve)

	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else if out.AllDay {
		out.End = start.AddDate(0, 0, 1)
	} else {
		// No DTEND or DURATION; assume an hour so the event still
		// blocks something.
		out.End = start.Add(time.Hour)
	}

	return out, nil
}

// isAllDay detects date-only DTSTART values (VALUE=DATE or a value
// without a time component).
func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// cleanDescription converts HTML descriptions to markdown. Outlook and
// Canvas feeds routinely ship HTML bodies that would otherwise render
// as tag soup in the merged view.
func cleanDescription(desc string) string {
	trimmed := strings.TrimSpace(desc)
	if trimmed == "" {
		return ""
	}
	if !looksLikeHTML(trimmed) {
		return trimmed
	}
	md, err := htmltomarkdown.ConvertString(trimmed)
	if err != nil {
		return trimmed
	}
	return strings.TrimSpace(md)
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range []string{"<html", "<body", "<div", "<p>", "<br", "<span", "<a href", "<ul", "<table"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
