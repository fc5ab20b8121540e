// Package assistant turns free-form scheduling requests ("I want to go
// for a walk 3 times this week") into structured slot-search requests
// using the Gemini API. The model is constrained to a JSON response
// schema; everything it returns is validated before use.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/genai"

	"github.com/sundial-dev/sundial/pkg/slotfind"
)

const defaultModel = "gemini-2.5-flash-lite"

// ErrUnparseable is returned when the model output cannot be turned
// into a valid scheduling request.
var ErrUnparseable = errors.New("assistant: could not parse scheduling request")

// Client calls Gemini to parse scheduling requests.
type Client struct {
	apiKey string
	model  string
	logger *slog.Logger
}

// NewClient creates a Client. An empty model selects the default.
func NewClient(apiKey, model string, logger *slog.Logger) *Client {
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey: apiKey,
		model:  strings.TrimPrefix(model, "models/"),
		logger: logger,
	}
}

// parsedRequest mirrors the JSON response schema.
type parsedRequest struct {
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Count           int    `json:"count"`
	TimeRange       string `json:"time_range"`
	PreferredTime   string `json:"preferred_time"`
}

// ParseRequest sends the user's text to Gemini and returns a validated
// slot-search request.
func (c *Client) ParseRequest(ctx context.Context, text string) (*slotfind.Request, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty request text", ErrUnparseable)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  c.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: create genai client: %w", err)
	}

	prompt := fmt.Sprintf(parsePromptTemplate(), trimmed)
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	temperature := float32(0.1)
	genConfig := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  500,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}

	var resp *genai.GenerateContentResponse
	err = retry.Do(
		func() error {
			var callErr error
			resp, callErr = client.Models.GenerateContent(ctx, c.model, contents, genConfig)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransientError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying gemini call", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("assistant: gemini call failed: %w", err)
	}

	parsed, err := decodeResponse(resp)
	if err != nil {
		c.logger.Warn("gemini response unusable", "error", err)
		return nil, err
	}
	return c.validate(parsed, trimmed)
}

// responseSchema constrains the model to the fields ParseRequest needs.
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {
				Type:        genai.TypeString,
				Description: "Short name for the event, e.g. 'Walk' or 'Study session'",
			},
			"duration_minutes": {
				Type:        genai.TypeInteger,
				Description: "Event duration in minutes",
			},
			"count": {
				Type:        genai.TypeInteger,
				Description: "How many occurrences to schedule",
			},
			"time_range": {
				Type:        genai.TypeString,
				Enum:        []string{"today", "next_3_days", "this_week"},
				Description: "Search horizon for the slots",
			},
			"preferred_time": {
				Type:        genai.TypeString,
				Enum:        []string{"morning", "afternoon", "evening", "none"},
				Description: "Time-of-day preference, or 'none'",
			},
		},
		PropertyOrdering: []string{"title", "duration_minutes", "count", "time_range", "preferred_time"},
		Required:         []string{"title", "duration_minutes", "count", "time_range", "preferred_time"},
	}
}

// decodeResponse pulls the JSON payload out of a Gemini response,
// tolerating markdown fences around the body.
func decodeResponse(resp *genai.GenerateContentResponse) (*parsedRequest, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty gemini response", ErrUnparseable)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no content in gemini response", ErrUnparseable)
	}
	text := candidate.Content.Parts[0].Text
	if text == "" {
		return nil, fmt.Errorf("%w: empty text in gemini response", ErrUnparseable)
	}

	var parsed parsedRequest
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		jsonText, ok := extractJSON(text)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
	}
	return &parsed, nil
}

// validate checks the parsed fields and maps them onto a Request.
func (c *Client) validate(parsed *parsedRequest, original string) (*slotfind.Request, error) {
	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrUnparseable)
	}
	if parsed.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: invalid duration %d", ErrUnparseable, parsed.DurationMinutes)
	}
	if parsed.Count <= 0 {
		return nil, fmt.Errorf("%w: invalid count %d", ErrUnparseable, parsed.Count)
	}

	var timeRange slotfind.TimeRange
	switch parsed.TimeRange {
	case "today":
		timeRange = slotfind.Today
	case "next_3_days":
		timeRange = slotfind.Next3Days
	case "this_week", "":
		timeRange = slotfind.ThisWeek
	default:
		c.logger.Debug("unknown time_range, defaulting to this_week", "value", parsed.TimeRange)
		timeRange = slotfind.ThisWeek
	}

	var pref slotfind.Preference
	switch parsed.PreferredTime {
	case "morning":
		pref = slotfind.Morning
	case "afternoon":
		pref = slotfind.Afternoon
	case "evening":
		pref = slotfind.Evening
	default:
		pref = slotfind.NoPreference
	}

	return &slotfind.Request{
		Title:           title,
		DurationMinutes: parsed.DurationMinutes,
		Count:           parsed.Count,
		TimeRange:       timeRange,
		Preference:      pref,
		OriginalText:    original,
	}, nil
}

// extractJSON finds a JSON object in text that may carry markdown
// fences or explanatory prose around it.
func extractJSON(text string) (string, bool) {
	if isValidJSON(text) {
		return text, true
	}
	for _, fence := range []string{"```json", "```"} {
		if start := strings.Index(text, fence); start != -1 {
			start += len(fence)
			if end := strings.Index(text[start:], "```"); end != -1 {
				candidate := strings.TrimSpace(text[start : start+end])
				if isValidJSON(candidate) {
					return candidate, true
				}
			}
		}
	}
	if start := strings.Index(text, "{"); start != -1 {
		if end := strings.LastIndex(text, "}"); end > start {
			candidate := strings.TrimSpace(text[start : end+1])
			if isValidJSON(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func isValidJSON(s string) bool {
	var js map[string]any
	return json.Unmarshal([]byte(s), &js) == nil
}

// isTransientError reports whether a Gemini error is worth retrying.
func isTransientError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"rate limit", "quota", "timeout", "deadline", "unavailable",
		"internal server error", "502", "503", "504",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
