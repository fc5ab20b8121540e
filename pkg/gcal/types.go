package gcal

import "time"

// Action reports what a calendar mutation actually did.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionNotFound Action = "not_found"
)

// EventTemplate is the backend-neutral description of an event to
// create or update.
type EventTemplate struct {
	Summary     string            `json:"summary"`
	Description string            `json:"description,omitempty"`
	Location    string            `json:"location,omitempty"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	AllDay      bool              `json:"all_day,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
	Private     map[string]string `json:"private,omitempty"`
}

// UpsertResult describes the outcome of a create-or-update call.
type UpsertResult struct {
	Action  Action `json:"action"`
	EventID string `json:"event_id"`
}

// Event is a normalized calendar event as returned by listing, merged
// across Google Calendar and ICS feed sources.
type Event struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	AllDay      bool              `json:"allDay"`
	Location    string            `json:"location,omitempty"`
	Description string            `json:"description,omitempty"`
	Source      string            `json:"source"`
	Private     map[string]string `json:"private,omitempty"`
}
