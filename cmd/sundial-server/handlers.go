package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/sundial-dev/sundial/pkg/config"
	"github.com/sundial-dev/sundial/pkg/constants"
	"github.com/sundial-dev/sundial/pkg/gcal"
	"github.com/sundial-dev/sundial/pkg/icsfeed"
	"github.com/sundial-dev/sundial/pkg/interval"
	"github.com/sundial-dev/sundial/pkg/proposal"
	"github.com/sundial-dev/sundial/pkg/recur"
	"github.com/sundial-dev/sundial/pkg/series"
	"github.com/sundial-dev/sundial/pkg/slotfind"
)

// calendarAPI is the slice of gcal.Client the handlers use. Tests
// substitute a fake.
type calendarAPI interface {
	ListEvents(ctx context.Context, window interval.Interval) ([]gcal.Event, error)
	ListBusyIntervals(ctx context.Context, window interval.Interval) ([]interval.Interval, error)
	CreateOrUpdateEvent(ctx context.Context, eventID string, ev gcal.EventTemplate) (gcal.UpsertResult, error)
	DeleteEvent(ctx context.Context, eventID string) (gcal.Action, error)
}

// requestParser turns free text into a structured slot request.
type requestParser interface {
	ParseRequest(ctx context.Context, text string) (*slotfind.Request, error)
}

type server struct {
	cfg       *config.Config
	location  *time.Location
	holidays  []recur.Exception
	cal       calendarAPI
	fetcher   *icsfeed.Fetcher
	finder    *slotfind.Finder
	parser    requestParser
	proposals *proposal.Store
	limiter   *rateLimiter
	logger    *slog.Logger

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

func (s *server) clock() time.Time {
	if s.now != nil {
		return s.now().In(s.location)
	}
	return time.Now().In(s.location)
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.clock().Format(time.RFC3339),
	})
}

// handleListEvents returns the merged view: Google Calendar events plus
// ICS feed events inside the requested window, sorted by start time.
// Feed failures degrade the merge instead of failing it.
func (s *server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	window, err := s.windowFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var events []gcal.Event
	if s.cal != nil {
		events, err = s.cal.ListEvents(ctx, window)
		if err != nil {
			s.logger.Error("calendar list failed", "error", err)
			writeError(w, http.StatusBadGateway, "calendar backend unavailable")
			return
		}
	}

	feedEvents, feedErrs := s.fetcher.FetchAll(ctx, s.cfg.Feeds.Sources)
	for _, fe := range feedEvents {
		if fe.End.Before(window.Start) || !fe.Start.Before(window.End) {
			continue
		}
		events = append(events, gcal.Event{
			ID:          fe.UID,
			Title:       "[" + fe.Source + "] " + fe.Summary,
			Start:       fe.Start.In(s.location),
			End:         fe.End.In(s.location),
			AllDay:      fe.AllDay,
			Location:    fe.Location,
			Description: fe.Description,
			Source:      fe.Source,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})

	resp := struct {
		Events     []gcal.Event `json:"events"`
		FeedErrors []string     `json:"feed_errors,omitempty"`
	}{Events: events}
	for _, ferr := range feedErrs {
		resp.FeedErrors = append(resp.FeedErrors, ferr.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

type recurrencePayload struct {
	Frequency      string   `json:"frequency"`
	Interval       int      `json:"interval,omitempty"`
	Weekdays       []string `json:"weekdays,omitempty"`
	Until          string   `json:"until,omitempty"`
	MaxOccurrences int      `json:"max_occurrences,omitempty"`
	Exceptions     []struct {
		Start string `json:"start"`
		End   string `json:"end,omitempty"`
	} `json:"exceptions,omitempty"`
}

type createEventPayload struct {
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Location    string             `json:"location,omitempty"`
	Start       string             `json:"start"`
	End         string             `json:"end"`
	AllDay      bool               `json:"all_day,omitempty"`
	Recurrence  *recurrencePayload `json:"recurrence,omitempty"`
}

// handleCreateEvent creates a single event, or a whole recurring
// series when a recurrence block is present. Configured holidays are
// always added to the series exceptions.
func (s *server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	if s.cal == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar backend not configured")
		return
	}

	var payload createEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	start, err := s.parseTime(payload.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start time")
		return
	}
	end, err := s.parseTime(payload.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end time")
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	template := gcal.EventTemplate{
		Summary:     payload.Title,
		Description: payload.Description,
		Location:    payload.Location,
		Start:       start,
		End:         end,
		AllDay:      payload.AllDay,
		Timezone:    s.cfg.Timezone,
	}

	ctx := r.Context()
	if payload.Recurrence == nil {
		eventID := series.BuildOccurrenceID(payload.Title, start, 1)
		result, err := s.cal.CreateOrUpdateEvent(ctx, eventID, template)
		if err != nil {
			s.logger.Error("event create failed", "error", err)
			writeError(w, http.StatusBadGateway, "could not create event")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"event_id": result.EventID,
			"action":   result.Action,
		})
		return
	}

	rule, err := s.buildRule(payload.Recurrence)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := series.Create(ctx, s.cal, s.logger, "", template, rule, series.OriginManual)
	switch {
	case errors.Is(err, series.ErrNoOccurrences),
		errors.Is(err, recur.ErrInvalidDuration),
		errors.Is(err, recur.ErrInvalidWindow),
		errors.Is(err, recur.ErrUnsupportedFrequency):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("series create failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not create all events in the series")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) buildRule(p *recurrencePayload) (recur.Rule, error) {
	freq, err := recur.ParseFrequency(p.Frequency)
	if err != nil {
		return recur.Rule{}, fmt.Errorf("unsupported frequency %q", p.Frequency)
	}
	rule := recur.Rule{
		Frequency:      freq,
		Interval:       p.Interval,
		Weekdays:       recur.ParseWeekdays(p.Weekdays),
		MaxOccurrences: p.MaxOccurrences,
		Exceptions:     append([]recur.Exception(nil), s.holidays...),
	}
	if p.Until != "" {
		until, err := time.ParseInLocation("2006-01-02", p.Until, s.location)
		if err != nil {
			return recur.Rule{}, fmt.Errorf("invalid until date %q", p.Until)
		}
		rule.Until = until
	}
	for _, ex := range p.Exceptions {
		exStart, err := time.ParseInLocation("2006-01-02", ex.Start, s.location)
		if err != nil {
			return recur.Rule{}, fmt.Errorf("invalid exception start %q", ex.Start)
		}
		exEnd := exStart
		if ex.End != "" {
			exEnd, err = time.ParseInLocation("2006-01-02", ex.End, s.location)
			if err != nil {
				return recur.Rule{}, fmt.Errorf("invalid exception end %q", ex.End)
			}
		}
		rule.Exceptions = append(rule.Exceptions, recur.Exception{Start: exStart, End: exEnd})
	}
	return rule, nil
}

// handleDeleteEvents deletes a batch of events by id. Ids that are
// already gone come back as "not_found" instead of failing the batch.
func (s *server) handleDeleteEvents(w http.ResponseWriter, r *http.Request) {
	if s.cal == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar backend not configured")
		return
	}

	var payload struct {
		EventIDs []string `json:"event_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.EventIDs) == 0 {
		writeError(w, http.StatusBadRequest, "event_ids is required")
		return
	}

	type deletion struct {
		EventID string      `json:"event_id"`
		Action  gcal.Action `json:"action"`
		Error   string      `json:"error,omitempty"`
	}
	results := make([]deletion, 0, len(payload.EventIDs))
	for _, id := range payload.EventIDs {
		action, err := s.cal.DeleteEvent(r.Context(), id)
		if err != nil {
			s.logger.Error("event delete failed", "event_id", id, "error", err)
			results = append(results, deletion{EventID: id, Error: "delete failed"})
			continue
		}
		results = append(results, deletion{EventID: id, Action: action})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleSchedule parses a free-form scheduling request, searches for
// free slots against the merged busy view, and opens a proposal
// session holding the candidates.
func (s *server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.parser == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}
	if !s.limiter.allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	ctx := r.Context()
	req, err := s.parser.ParseRequest(ctx, payload.Text)
	if err != nil {
		s.logger.Warn("request parse failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "could not understand the scheduling request")
		return
	}

	now := s.clock()
	busy, err := s.busyIntervals(ctx, now, horizonFor(now, req.TimeRange))
	if err != nil {
		s.logger.Error("busy lookup failed", "error", err)
		writeError(w, http.StatusBadGateway, "calendar backend unavailable")
		return
	}

	candidates, err := s.finder.Find(now, *req, busy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(candidates) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"request":    req,
			"candidates": []slotfind.Candidate{},
			"message":    "No free slots matched your request. Try a different time range or a shorter duration.",
		})
		return
	}

	session := s.proposals.Create(*req, candidates)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"request":    req,
		"candidates": candidates,
		"message":    fmt.Sprintf("Found %d possible slots for %q. Pick the ones to book.", len(candidates), req.Title),
	})
}

// handleConfirm books the selected candidates from a proposal session.
// The session is single-use: once the selection validates, a repeat
// confirm fails even if event creation below went wrong.
func (s *server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if s.cal == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar backend not configured")
		return
	}

	var payload struct {
		SessionID     string            `json:"session_id"`
		Selected      []int             `json:"selected"`
		TimeOverrides map[string]string `json:"time_overrides,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	overrides := make(map[int]string, len(payload.TimeOverrides))
	for key, hhmm := range payload.TimeOverrides {
		idx, err := strconv.Atoi(key)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid override index %q", key))
			return
		}
		overrides[idx] = hhmm
	}

	session, ok := s.proposals.Get(payload.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found or expired")
		return
	}

	selections, err := s.proposals.Consume(payload.SessionID, payload.Selected, overrides)
	switch {
	case errors.Is(err, proposal.ErrInvalidSession):
		writeError(w, http.StatusNotFound, "session not found or expired")
		return
	case errors.Is(err, proposal.ErrInvalidSelection):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("session consume failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not confirm the selection")
		return
	}

	type booking struct {
		EventID string      `json:"event_id"`
		Action  gcal.Action `json:"action"`
		Start   string      `json:"start"`
		End     string      `json:"end"`
	}
	bookings := make([]booking, 0, len(selections))
	for _, sel := range selections {
		eventID := series.BuildOccurrenceID(session.Request.Title, sel.Start, sel.Index+1)
		result, err := s.cal.CreateOrUpdateEvent(r.Context(), eventID, gcal.EventTemplate{
			Summary:     session.Request.Title,
			Description: session.Request.OriginalText,
			Start:       sel.Start,
			End:         sel.End,
			Timezone:    s.cfg.Timezone,
			Private: map[string]string{
				series.PropOrigin: string(series.OriginAssistant),
			},
		})
		if err != nil {
			s.logger.Error("booking failed", "event_id", eventID, "error", err)
			writeError(w, http.StatusBadGateway, "could not create all selected events")
			return
		}
		bookings = append(bookings, booking{
			EventID: result.EventID,
			Action:  result.Action,
			Start:   sel.Start.Format(time.RFC3339),
			End:     sel.End.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"created": bookings,
		"message": fmt.Sprintf("Booked %d event(s) for %q.", len(bookings), session.Request.Title),
	})
}

// busyIntervals merges calendar busy time with feed events for the
// slot search window. Feed failures are logged and skipped: a broken
// Canvas feed should not block scheduling.
func (s *server) busyIntervals(ctx context.Context, start, end time.Time) ([]interval.Interval, error) {
	window := interval.Interval{Start: start, End: end}

	var busy []interval.Interval
	if s.cal != nil {
		var err error
		busy, err = s.cal.ListBusyIntervals(ctx, window)
		if err != nil {
			return nil, err
		}
	}

	feedEvents, feedErrs := s.fetcher.FetchAll(ctx, s.cfg.Feeds.Sources)
	for _, ferr := range feedErrs {
		s.logger.Warn("feed skipped for busy lookup", "error", ferr)
	}
	for _, fe := range feedEvents {
		if fe.AllDay {
			continue
		}
		iv, err := interval.New(fe.Start.In(s.location), fe.End.In(s.location))
		if err != nil {
			continue
		}
		busy = append(busy, iv)
	}
	return busy, nil
}

// horizonFor mirrors the slot finder's search boundary so the busy
// lookup covers exactly the searched window.
func horizonFor(now time.Time, tr slotfind.TimeRange) time.Time {
	switch tr {
	case slotfind.Today:
		return time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 0, 0, now.Location())
	case slotfind.Next3Days:
		return now.AddDate(0, 0, 3)
	default:
		return now.AddDate(0, 0, 7)
	}
}

func (s *server) windowFromQuery(r *http.Request) (interval.Interval, error) {
	now := s.clock()
	start := now
	end := now.AddDate(0, 0, constants.ListHorizonDays)

	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		t, err := s.parseTime(v)
		if err != nil {
			return interval.Interval{}, fmt.Errorf("invalid start parameter")
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := s.parseTime(v)
		if err != nil {
			return interval.Interval{}, fmt.Errorf("invalid end parameter")
		}
		end = t
	} else if v := q.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 || days > 366 {
			return interval.Interval{}, fmt.Errorf("invalid days parameter")
		}
		end = start.AddDate(0, 0, days)
	}

	if !end.After(start) {
		return interval.Interval{}, fmt.Errorf("end must be after start")
	}
	return interval.Interval{Start: start, End: end}, nil
}

// parseTime accepts RFC3339 or a local date-time / date.
func (s *server) parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(s.location), nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, s.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
