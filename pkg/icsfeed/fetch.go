// Package icsfeed fetches and parses ICS subscription feeds (Canvas,
// Outlook, ad-hoc calendars) into raw event records for the merged
// calendar view. Fetching is resilient: conditional requests against a
// memory cache, exponential backoff, and fallback to the last good
// body when the upstream misbehaves.
package icsfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/sundial-dev/sundial/pkg/constants"
)

// errPermanent marks fetch failures that retrying cannot fix.
var errPermanent = errors.New("icsfeed: permanent fetch error")

// Source is one ICS subscription.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Fetcher retrieves ICS feeds.
type Fetcher struct {
	client *http.Client
	cache  *feedCache
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. cacheTTL bounds how long an unchanged
// body may be served without revalidation succeeding.
func NewFetcher(cacheTTL time.Duration, logger *slog.Logger) *Fetcher {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  newFeedCache(cacheTTL),
		logger: logger,
	}
}

// Fetch downloads and parses one source.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]RawEvent, error) {
	body, err := f.fetchBody(ctx, src)
	if err != nil {
		return nil, err
	}
	return ParseFeed(src, body)
}

// FetchAll fetches every source, collecting per-source errors instead
// of failing the whole merge on one bad feed.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]RawEvent, []error) {
	var events []RawEvent
	var errs []error
	for _, src := range sources {
		evs, err := f.Fetch(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			f.logger.Error("feed fetch failed", "id", src.ID, "url", redactURL(src.URL), "error", err)
			continue
		}
		events = append(events, evs...)
	}
	return events, errs
}

func (f *Fetcher) fetchBody(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("icsfeed: source URL is empty")
	}

	cached, hasCached := f.cache.get(src.URL)

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", "sundial/1.0")
			if hasCached && cached.ETag != "" {
				req.Header.Set("If-None-Match", cached.ETag)
			}
			if hasCached && cached.LastModified != "" {
				req.Header.Set("If-Modified-Since", cached.LastModified)
			}

			resp, err := f.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := resp.Body.Close(); cerr != nil {
					f.logger.Debug("failed to close feed body", "error", cerr)
				}
			}()

			switch {
			case resp.StatusCode == http.StatusOK:
				data, rerr := io.ReadAll(io.LimitReader(resp.Body, constants.MaxFeedBytes))
				if rerr != nil {
					return rerr
				}
				f.cache.set(src.URL, cacheEntry{
					Body:         data,
					ETag:         resp.Header.Get("ETag"),
					LastModified: resp.Header.Get("Last-Modified"),
				})
				body = data
				return nil
			case resp.StatusCode == http.StatusNotModified:
				if !hasCached {
					return errors.New("icsfeed: 304 Not Modified without a cached body")
				}
				body = cached.Body
				return nil
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
				return fmt.Errorf("icsfeed: HTTP %d from feed", resp.StatusCode)
			default:
				return fmt.Errorf("%w: HTTP %d from feed", errPermanent, resp.StatusCode)
			}
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errPermanent)
		}),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Debug("retrying feed fetch", "attempt", n+1, "url", redactURL(src.URL), "error", err)
		}),
	)
	if err != nil {
		// Serve the last good copy when the upstream is down.
		if hasCached && len(cached.Body) > 0 {
			f.logger.Warn("feed unreachable, serving cached body", "id", src.ID, "url", redactURL(src.URL), "error", err)
			return cached.Body, nil
		}
		return nil, err
	}
	return body, nil
}

// redactURL strips path and query from feed URLs before logging:
// Canvas and Outlook feed URLs embed per-user access tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
