// Package proposal holds slot proposals between a successful search and
// the confirmation call that consumes them. Sessions are single-use and
// expire on their own, so an abandoned proposal list never leaks.
package proposal

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"

	"github.com/sundial-dev/sundial/pkg/slotfind"
)

// DefaultTTL reclaims sessions the user walked away from.
const DefaultTTL = 30 * time.Minute

const maxSessions = 10_000

var (
	// ErrInvalidSession is returned for an unknown, expired, or
	// already-consumed session id.
	ErrInvalidSession = errors.New("proposal: invalid or expired session")
	// ErrInvalidSelection is returned for empty or out-of-range
	// selection indices. The session stays active so a corrected
	// retry is possible.
	ErrInvalidSelection = errors.New("proposal: invalid selection indices")
)

// Session associates a generated id with a search result awaiting
// confirmation.
type Session struct {
	ID         string               `json:"session_id"`
	Request    slotfind.Request     `json:"request"`
	Candidates []slotfind.Candidate `json:"candidates"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Selection is one confirmed candidate, with any manual time override
// already applied.
type Selection struct {
	Index int
	Start time.Time
	End   time.Time
}

// Store is the in-process session store: an expiring cache plus a
// mutex that makes consume atomic, so two concurrent confirmations of
// the same session cannot both succeed.
type Store struct {
	cache  *otter.Cache[string, Session]
	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore creates a session store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache := otter.Must(&otter.Options[string, Session]{
		MaximumSize:      maxSessions,
		ExpiryCalculator: otter.ExpiryWriting[string, Session](ttl),
	})
	return &Store{cache: cache, logger: logger}
}

// Create stores a new session for a search result and returns it. The
// caller must only create sessions for non-empty candidate lists.
func (s *Store) Create(req slotfind.Request, candidates []slotfind.Candidate) Session {
	session := Session{
		ID:         uuid.NewString(),
		Request:    req,
		Candidates: candidates,
		CreatedAt:  time.Now(),
	}
	s.cache.Set(session.ID, session)
	s.logger.Debug("proposal session created", "session_id", session.ID, "candidates", len(candidates))
	return session
}

// Consume validates the selection against the session and deletes the
// session once the indices check out. Per-index overrides in "HH:MM"
// form replace the selected slot's start time-of-day; the end keeps the
// requested duration. After a successful Consume the session id is
// gone: later calls fail with ErrInvalidSession even if event creation
// downstream fails.
func (s *Store) Consume(id string, indices []int, overrides map[int]string) ([]Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.cache.GetIfPresent(id)
	if !ok {
		return nil, ErrInvalidSession
	}

	if len(indices) == 0 {
		return nil, ErrInvalidSelection
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(session.Candidates) {
			return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrInvalidSelection, idx, len(session.Candidates))
		}
	}

	// Indices are valid: the session is spent from here on.
	s.cache.Invalidate(id)

	duration := time.Duration(session.Request.DurationMinutes) * time.Minute
	selections := make([]Selection, 0, len(indices))
	for _, idx := range indices {
		start := session.Candidates[idx].Start
		if hhmm, ok := overrides[idx]; ok {
			adjusted, err := applyTimeOverride(start, hhmm)
			if err != nil {
				s.logger.Warn("ignoring unparseable time override", "session_id", id, "index", idx, "value", hhmm, "error", err)
			} else {
				start = adjusted
			}
		}
		selections = append(selections, Selection{Index: idx, Start: start, End: start.Add(duration)})
	}

	s.logger.Debug("proposal session consumed", "session_id", id, "selections", len(selections))
	return selections, nil
}

// Get returns the session without consuming it.
func (s *Store) Get(id string) (Session, bool) {
	return s.cache.GetIfPresent(id)
}

// applyTimeOverride replaces the time-of-day of start with an "HH:MM"
// value, keeping the calendar day and location.
func applyTimeOverride(start time.Time, hhmm string) (time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("expected HH:MM, got %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("bad hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("bad minute in %q", hhmm)
	}
	return time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, start.Location()), nil
}
