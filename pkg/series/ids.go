// Package series turns a recurrence rule into a batch of idempotent
// calendar writes. Occurrence event ids are derived deterministically
// from (series parent id, occurrence timestamp, occurrence index), so
// re-running the same expansion updates events instead of duplicating
// them.
package series

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxEventIDLen  = 1024
	minEventIDLen  = 5
	fallbackPrefix = "sc"
)

// SanitizeEventID reduces a value to the id alphabet the calendar
// backend accepts: lowercase letters and digits, starting with a
// letter, between 5 and 1024 characters. Degenerate inputs fall back
// to a random id with the given prefix, so the result is never empty.
func SanitizeEventID(value, prefix string) string {
	prefix = keepAlnum(strings.ToLower(prefix))
	if prefix == "" {
		prefix = fallbackPrefix
	}

	candidate := keepAlnum(strings.ToLower(value))
	if candidate == "" {
		candidate = prefix + randomHex(12)
	}
	if candidate[0] < 'a' || candidate[0] > 'z' {
		candidate = keepAlnum(prefix + candidate)
	}
	if len(candidate) < minEventIDLen {
		candidate += randomHex(minEventIDLen)
	}
	if len(candidate) > maxEventIDLen {
		candidate = candidate[:maxEventIDLen]
	}
	return candidate
}

// BuildOccurrenceID derives the stable event id for one occurrence of
// a series. Index is 1-based.
func BuildOccurrenceID(parentID string, occurrenceStart time.Time, index int) string {
	stamp := occurrenceStart.Format("20060102150405")
	return SanitizeEventID(parentID+stamp+strconv.Itoa(index), parentID)
}

// NewParentID mints a fresh series parent id.
func NewParentID() string {
	return SanitizeEventID(fallbackPrefix+"-"+randomHex(16), fallbackPrefix)
}

func keepAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func randomHex(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(hex) {
		n = len(hex)
	}
	return hex[:n]
}
