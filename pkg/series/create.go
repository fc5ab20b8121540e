package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sundial-dev/sundial/pkg/gcal"
	"github.com/sundial-dev/sundial/pkg/recur"
)

// ErrNoOccurrences is returned when a rule expands to nothing, for
// example when every candidate date falls inside an exception range.
var ErrNoOccurrences = errors.New("series: no matching dates for recurrence settings")

// Origin tags series metadata with the surface that created it.
type Origin string

const (
	OriginManual    Origin = "manual_activity"
	OriginAssistant Origin = "smart_assistant"
)

// Private-property keys attached to every occurrence so a series can
// be recognized and re-synced later.
const (
	PropParent    = "series_parent"
	PropFrequency = "series_frequency"
	PropOrigin    = "series_origin"
	PropIndex     = "series_index"
)

// Calendar is the slice of the calendar backend a series write needs.
// *gcal.Client satisfies it.
type Calendar interface {
	CreateOrUpdateEvent(ctx context.Context, eventID string, ev gcal.EventTemplate) (gcal.UpsertResult, error)
}

// Outcome records what happened to one occurrence.
type Outcome struct {
	Index   int          `json:"index"`
	EventID string       `json:"event_id"`
	Action  gcal.Action  `json:"action"`
	Start   string       `json:"start"`
	End     string       `json:"end"`
}

// Result summarizes a series write.
type Result struct {
	ParentID string    `json:"series_parent_id"`
	Outcomes []Outcome `json:"events"`
}

// Create expands the rule against the template and issues one
// create-or-update call per occurrence. Occurrence ids derive from the
// parent id, so running Create twice with identical inputs updates the
// existing events rather than duplicating them. An empty parentID
// mints a new series.
func Create(ctx context.Context, cal Calendar, logger *slog.Logger, parentID string, template gcal.EventTemplate, rule recur.Rule, origin Origin) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if parentID == "" {
		parentID = NewParentID()
	} else {
		parentID = SanitizeEventID(parentID, fallbackPrefix)
	}

	occurrences, err := recur.Expand(template.Start, template.End, rule)
	if err != nil {
		return Result{}, err
	}
	if len(occurrences) == 0 {
		return Result{}, ErrNoOccurrences
	}

	result := Result{ParentID: parentID}
	for i, occ := range occurrences {
		index := i + 1
		eventID := BuildOccurrenceID(parentID, occ.Start, index)

		ev := template
		ev.Start = occ.Start
		ev.End = occ.End
		ev.Private = map[string]string{
			PropParent:    parentID,
			PropFrequency: string(rule.Frequency),
			PropOrigin:    string(origin),
			PropIndex:     strconv.Itoa(index),
		}
		for k, v := range template.Private {
			ev.Private[k] = v
		}

		upsert, err := cal.CreateOrUpdateEvent(ctx, eventID, ev)
		if err != nil {
			return result, fmt.Errorf("series: occurrence %d: %w", index, err)
		}
		result.Outcomes = append(result.Outcomes, Outcome{
			Index:   index,
			EventID: upsert.EventID,
			Action:  upsert.Action,
			Start:   occ.Start.Format(time.RFC3339),
			End:     occ.End.Format(time.RFC3339),
		})
	}

	logger.Info("series written",
		"parent_id", parentID,
		"occurrences", len(result.Outcomes),
		"frequency", rule.Frequency,
		"origin", origin)

	return result, nil
}
