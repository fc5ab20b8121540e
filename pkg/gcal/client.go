// Package gcal wraps the Google Calendar API behind the small surface
// the rest of the service needs: list a window, create-or-update an
// event by id, delete, get. Create-or-update is the idempotency anchor
// for recurring series: inserting an id that already exists turns into
// an update instead of a duplicate.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sundial-dev/sundial/pkg/interval"
)

const defaultMaxResults = 500

// Client talks to one Google calendar.
type Client struct {
	svc        *calendar.Service
	calendarID string
	location   *time.Location
	tzName     string
	logger     *slog.Logger
}

// NewClient builds a client for the given calendar id and IANA
// timezone. Credentials come in through standard client options
// (option.WithTokenSource, option.WithHTTPClient, ...).
func NewClient(ctx context.Context, calendarID, tzName string, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("gcal: invalid timezone %q: %w", tzName, err)
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: creating calendar service: %w", err)
	}
	return &Client{svc: svc, calendarID: calendarID, location: loc, tzName: tzName, logger: logger}, nil
}

var sourcePrefix = regexp.MustCompile(`^\[([^\]]+)\]`)

// sourceFromTitle recovers the origin tag from bracketed title
// prefixes ("[Canvas] Essay due" came from a Canvas feed sync).
func sourceFromTitle(title string) string {
	if m := sourcePrefix.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return "Google"
}

// ListEvents fetches the window's events ordered by start time, with
// expanded recurring instances.
func (c *Client) ListEvents(ctx context.Context, window interval.Interval) ([]Event, error) {
	var result *calendar.Events
	err := c.withRetry(ctx, "events.list", func() error {
		var err error
		result, err = c.svc.Events.List(c.calendarID).
			TimeMin(window.Start.Format(time.RFC3339)).
			TimeMax(window.End.Format(time.RFC3339)).
			MaxResults(defaultMaxResults).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gcal: listing events: %w", err)
	}

	events := make([]Event, 0, len(result.Items))
	for _, item := range result.Items {
		ev, err := c.normalizeEvent(item)
		if err != nil {
			c.logger.Warn("skipping unparseable event", "event_id", item.Id, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ListBusyIntervals returns the window's events as busy intervals for
// the slot finder. Degenerate entries are dropped.
func (c *Client) ListBusyIntervals(ctx context.Context, window interval.Interval) ([]interval.Interval, error) {
	events, err := c.ListEvents(ctx, window)
	if err != nil {
		return nil, err
	}
	busy := make([]interval.Interval, 0, len(events))
	for _, ev := range events {
		iv, err := interval.New(ev.Start, ev.End)
		if err != nil {
			continue
		}
		busy = append(busy, iv)
	}
	return busy, nil
}

func (c *Client) normalizeEvent(item *calendar.Event) (Event, error) {
	start, allDay, err := c.parseEventTime(item.Start)
	if err != nil {
		return Event{}, err
	}
	end, _, err := c.parseEventTime(item.End)
	if err != nil {
		return Event{}, err
	}

	title := item.Summary
	if title == "" {
		title = "No Title"
	}

	var private map[string]string
	if item.ExtendedProperties != nil {
		private = item.ExtendedProperties.Private
	}

	return Event{
		ID:          item.Id,
		Title:       title,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Location:    item.Location,
		Description: item.Description,
		Source:      sourceFromTitle(title),
		Private:     private,
	}, nil
}

func (c *Client) parseEventTime(edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, errors.New("missing event time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(c.location), false, nil
	}
	// All-day events carry a date instead of a dateTime.
	t, err := time.ParseInLocation("2006-01-02", edt.Date, c.location)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (c *Client) buildEventBody(ev EventTemplate) *calendar.Event {
	tzName := ev.Timezone
	if tzName == "" {
		tzName = c.tzName
	}

	body := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
	}
	if ev.AllDay {
		body.Start = &calendar.EventDateTime{Date: ev.Start.Format("2006-01-02")}
		body.End = &calendar.EventDateTime{Date: ev.End.Format("2006-01-02")}
	} else {
		body.Start = &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: tzName}
		body.End = &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: tzName}
	}
	if len(ev.Private) > 0 {
		body.ExtendedProperties = &calendar.EventExtendedProperties{Private: ev.Private}
	}
	return body
}

// CreateEvent inserts a new event. A non-empty eventID pins the id.
func (c *Client) CreateEvent(ctx context.Context, eventID string, ev EventTemplate) (UpsertResult, error) {
	body := c.buildEventBody(ev)
	if eventID != "" {
		body.Id = eventID
	}
	created, err := c.svc.Events.Insert(c.calendarID, body).Context(ctx).Do()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("gcal: inserting event: %w", err)
	}
	c.logger.Info("event created", "event_id", created.Id, "summary", ev.Summary)
	return UpsertResult{Action: ActionCreated, EventID: created.Id}, nil
}

// CreateOrUpdateEvent inserts the event, or updates it when the id
// already exists. The existence check runs first so a re-synced series
// occurrence becomes a clean update; a lost race on insert (409) falls
// back to update as well.
func (c *Client) CreateOrUpdateEvent(ctx context.Context, eventID string, ev EventTemplate) (UpsertResult, error) {
	body := c.buildEventBody(ev)

	if eventID != "" {
		body.Id = eventID
		_, err := c.svc.Events.Get(c.calendarID, eventID).Context(ctx).Do()
		switch {
		case err == nil:
			updated, uerr := c.svc.Events.Update(c.calendarID, eventID, body).Context(ctx).Do()
			if uerr != nil {
				return UpsertResult{}, fmt.Errorf("gcal: updating event %s: %w", eventID, uerr)
			}
			c.logger.Info("event updated", "event_id", updated.Id, "summary", ev.Summary)
			return UpsertResult{Action: ActionUpdated, EventID: updated.Id}, nil
		case statusCode(err) == http.StatusNotFound:
			// Fall through to insert.
		default:
			return UpsertResult{}, fmt.Errorf("gcal: checking event %s: %w", eventID, err)
		}
	}

	created, err := c.svc.Events.Insert(c.calendarID, body).Context(ctx).Do()
	if err != nil {
		if statusCode(err) == http.StatusConflict && eventID != "" {
			c.logger.Warn("insert conflict, updating instead", "event_id", eventID)
			updated, uerr := c.svc.Events.Update(c.calendarID, eventID, body).Context(ctx).Do()
			if uerr != nil {
				return UpsertResult{}, fmt.Errorf("gcal: updating event %s after conflict: %w", eventID, uerr)
			}
			return UpsertResult{Action: ActionUpdated, EventID: updated.Id}, nil
		}
		return UpsertResult{}, fmt.Errorf("gcal: inserting event: %w", err)
	}
	c.logger.Info("event created", "event_id", created.Id, "summary", ev.Summary)
	return UpsertResult{Action: ActionCreated, EventID: created.Id}, nil
}

// GetEvent fetches a single event by id.
func (c *Client) GetEvent(ctx context.Context, eventID string) (Event, error) {
	item, err := c.svc.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("gcal: getting event %s: %w", eventID, err)
	}
	return c.normalizeEvent(item)
}

// DeleteEvent removes an event. Deleting an event that is already gone
// is reported as ActionNotFound, not an error.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) (Action, error) {
	err := c.svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		if code := statusCode(err); code == http.StatusNotFound || code == http.StatusGone {
			c.logger.Warn("event not found, may already be deleted", "event_id", eventID)
			return ActionNotFound, nil
		}
		return "", fmt.Errorf("gcal: deleting event %s: %w", eventID, err)
	}
	c.logger.Info("event deleted", "event_id", eventID)
	return ActionDeleted, nil
}

// withRetry applies exponential backoff to read calls that can hit
// rate limits or transient backend errors. Mutations are not retried:
// the caller decides whether a failed write should be repeated.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			code := statusCode(err)
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying calendar call", "op", op, "attempt", n+1, "error", err)
		}),
	)
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// DetectSource is exported for callers merging feeds that need the
// same bracketed-prefix convention.
func DetectSource(title string) string {
	return sourceFromTitle(strings.TrimSpace(title))
}
