// Package robots implements component 4.D, the Robots Gate: a per-origin
// cache of parsed robots.txt with in-flight fetch coalescing, consulted by
// the orchestrator's admission policy before a URL is enqueued.
package robots

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/d-zero-dev/nitpicker-go/pkg/failure"
	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

// FetchTimeout is the per-origin robots.txt fetch deadline, per spec §4.D.
const FetchTimeout = 10 * time.Second

// originEntry holds the cached robots rules for one origin, or nil rules
// meaning "no restrictions" — the outcome of a non-200 response or
// transport failure, which spec §4.D and §7.4 both treat as non-fatal.
type originEntry struct {
	ready chan struct{}
	rules *robotstxt.RobotsData
}

// Gate is the robots.txt admission gate. One Gate is owned per crawl
// session.
type Gate struct {
	mu        sync.Mutex
	entries   map[string]*originEntry
	client    *http.Client
	userAgent string
	disabled  bool
}

// New constructs a Gate. When disabled is true, IsAllowed always returns
// true without ever fetching anything, per spec §4.D ("when the gate is
// disabled by configuration, every URL is allowed").
func New(userAgent string, disabled bool) *Gate {
	return &Gate{
		entries:   make(map[string]*originEntry),
		client:    &http.Client{Timeout: FetchTimeout},
		userAgent: userAgent,
		disabled:  disabled,
	}
}

// FetchError reports a recoverable robots.txt fetch failure. Per spec
// §4.D/§7.4 the gate never fails admission on a fetch error; it falls back
// to "no restrictions" and records the failure for diagnostics only.
type FetchError struct {
	Origin string
	Cause  error
}

func (e *FetchError) Error() string {
	return "robots fetch failed for " + e.Origin + ": " + e.Cause.Error()
}

func (e *FetchError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsAllowed reports whether u may be scraped. Non-HTTP schemes are always
// allowed. If this call performed the fetch for u's origin and it failed,
// fetchErr carries the failure for diagnostics (calls that waited on or
// followed that fetch get nil), and the URL is still allowed.
func (g *Gate) IsAllowed(ctx context.Context, u urlutil.Canonical) (allowed bool, crawlDelay time.Duration, fetchErr failure.ClassifiedError) {
	if !u.IsHTTP() {
		return true, 0, nil
	}
	if g.disabled {
		return true, 0, nil
	}

	origin := u.Scheme + "://" + u.Host
	if u.Port != "" {
		origin = u.Scheme + "://" + u.Host + ":" + u.Port
	}

	entry, err := g.getOrFetch(ctx, origin)
	if err != nil {
		return true, 0, err
	}
	if entry.rules == nil {
		return true, 0, nil
	}

	group := entry.rules.FindGroup(g.userAgent)
	allowed = group.Test(u.Path())
	return allowed, group.CrawlDelay, nil
}

// getOrFetch returns the cached entry for origin, fetching it if this is
// the first time origin is seen. Concurrent callers for the same origin
// coalesce onto the same in-flight fetch via the entry's ready channel,
// held in the cache before the fetch completes.
func (g *Gate) getOrFetch(ctx context.Context, origin string) (*originEntry, *FetchError) {
	g.mu.Lock()
	entry, exists := g.entries[origin]
	if !exists {
		entry = &originEntry{ready: make(chan struct{})}
		g.entries[origin] = entry
		g.mu.Unlock()

		rules, err := g.fetch(ctx, origin)
		entry.rules = rules
		close(entry.ready)
		if err != nil {
			return entry, &FetchError{Origin: origin, Cause: err}
		}
		return entry, nil
	}
	g.mu.Unlock()

	select {
	case <-entry.ready:
		return entry, nil
	case <-ctx.Done():
		return &originEntry{}, &FetchError{Origin: origin, Cause: ctx.Err()}
	}
}

func (g *Gate) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	reqCtx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "text/plain, */*;q=0.8")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil
	}

	rules, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, nil
	}
	return rules, nil
}
