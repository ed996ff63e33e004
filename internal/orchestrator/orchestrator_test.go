package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-zero-dev/nitpicker-go/internal/archive"
	"github.com/d-zero-dev/nitpicker-go/internal/config"
	"github.com/d-zero-dev/nitpicker-go/internal/events"
	"github.com/d-zero-dev/nitpicker-go/internal/orchestrator"
	"github.com/d-zero-dev/nitpicker-go/internal/scraper"
	"github.com/d-zero-dev/nitpicker-go/pkg/failure"
	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

type fakeScraper struct {
	mu        sync.Mutex
	responses map[string]scraper.Result
	calls     []string
}

func (f *fakeScraper) Scrape(_ context.Context, target string, _ scraper.Options) scraper.Result {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	result, ok := f.responses[target]
	f.mu.Unlock()
	if !ok {
		return scraper.Result{Type: scraper.ResultError, Err: &scraper.ScraperError{Name: "NotFound", Message: target}}
	}
	return result
}

func (f *fakeScraper) callCount(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == target {
			n++
		}
	}
	return n
}

type fakeArchive struct {
	mu             sync.Mutex
	pages          map[string]archive.Page
	resources      map[string]archive.Resource
	htmlFiles      map[string]string
	referrers      [][4]string
	closed         bool
	failUpsertPage bool
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		pages:     make(map[string]archive.Page),
		resources: make(map[string]archive.Resource),
		htmlFiles: make(map[string]string),
	}
}

func (a *fakeArchive) UpsertPage(page archive.Page) failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failUpsertPage {
		return &archive.Error{Message: "forced failure"}
	}
	a.pages[page.URL] = page
	return nil
}

func (a *fakeArchive) UpsertResource(resource archive.Resource) failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resources[resource.URL] = resource
	return nil
}

func (a *fakeArchive) LinkPageToResource(string, string) failure.ClassifiedError { return nil }

func (a *fakeArchive) RecordReferrer(from, to, anchorText, through string) failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.referrers = append(a.referrers, [4]string{from, to, anchorText, through})
	return nil
}

func (a *fakeArchive) hasReferrerTo(to string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.referrers {
		if r[1] == to {
			return true
		}
	}
	return false
}

func (a *fakeArchive) WriteHTML(pageURL, html string) failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.htmlFiles[pageURL] = html
	return nil
}

func (a *fakeArchive) Close() failure.ClassifiedError {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeArchive) pageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pages)
}

func (a *fakeArchive) hasPage(url string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pages[url]
	return ok
}

func mustParse(t *testing.T, raw string) urlutil.Canonical {
	t.Helper()
	c, err := urlutil.Parse(raw)
	require.NoError(t, err)
	return c
}

func TestRunCrawlsSeedAndFollowsInternalAnchors(t *testing.T) {
	seed := mustParse(t, "http://h/")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).WithIgnoreRobots(true).Build()
	require.NoError(t, err)

	sc := &fakeScraper{responses: map[string]scraper.Result{
		"http://h/": {
			Type: scraper.ResultSuccess,
			PageData: scraper.PageData{
				URL:        "http://h/",
				StatusCode: 200,
				HTML:       "<html>root</html>",
				Anchors: []scraper.Anchor{
					{Href: "/page2", Text: "p2"},
					{Href: "http://other.example/x", Text: "ext"},
				},
			},
		},
		"http://h/page2": {
			Type: scraper.ResultSuccess,
			PageData: scraper.PageData{
				URL:        "http://h/page2",
				StatusCode: 200,
				HTML:       "<html>page2</html>",
			},
		},
	}}
	ar := newFakeArchive()

	o := orchestrator.New(cfg, sc, ar, nil)

	done := false
	o.Events().OnDone(func() { done = true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := o.Run(ctx)
	require.Nil(t, runErr)

	assert.True(t, done)
	assert.True(t, ar.closed)
	assert.Equal(t, 2, ar.pageCount())
	assert.True(t, ar.hasPage("http://h/"))
	assert.True(t, ar.hasPage("http://h/page2"))
	assert.False(t, ar.hasPage("http://other.example/x"), "external anchor without fetchExternal must not be scraped")
	assert.Equal(t, 0, sc.callCount("http://other.example/x"))
}

func TestRunAbortsOnFatalArchiveError(t *testing.T) {
	seed := mustParse(t, "http://h/")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).WithIgnoreRobots(true).Build()
	require.NoError(t, err)

	sc := &fakeScraper{responses: map[string]scraper.Result{
		"http://h/": {
			Type:     scraper.ResultSuccess,
			PageData: scraper.PageData{URL: "http://h/", StatusCode: 200, HTML: "<html></html>"},
		},
	}}
	ar := newFakeArchive()
	ar.failUpsertPage = true

	o := orchestrator.New(cfg, sc, ar, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := o.Run(ctx)
	require.NotNil(t, runErr)
	assert.Equal(t, failure.SeverityFatal, runErr.Severity())
}

func TestRunHonorsRetryBudgetOnScraperError(t *testing.T) {
	seed := mustParse(t, "http://h/")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).WithRetry(2).WithIgnoreRobots(true).Build()
	require.NoError(t, err)

	sc := &fakeScraper{responses: map[string]scraper.Result{}}
	ar := newFakeArchive()

	o := orchestrator.New(cfg, sc, ar, nil)

	var errEvents int
	var errMu sync.Mutex
	o.Events().OnError(func(events.ErrorPayload) {
		errMu.Lock()
		errEvents++
		errMu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := o.Run(ctx)
	require.Nil(t, runErr)
	assert.Equal(t, 3, sc.callCount("http://h/"))
	assert.Equal(t, 0, ar.pageCount())
	errMu.Lock()
	assert.Equal(t, 3, errEvents)
	errMu.Unlock()
}

func TestRunRecordsReferrerForAnchorsNotAdmitted(t *testing.T) {
	seed := mustParse(t, "http://h/")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).WithIgnoreRobots(true).Build()
	require.NoError(t, err)

	sc := &fakeScraper{responses: map[string]scraper.Result{
		"http://h/": {
			Type: scraper.ResultSuccess,
			PageData: scraper.PageData{
				URL:        "http://h/",
				StatusCode: 200,
				HTML:       "<html>root</html>",
				Anchors: []scraper.Anchor{
					{Href: "http://other.example/x", Text: "ext"},
				},
			},
		},
	}}
	ar := newFakeArchive()

	o := orchestrator.New(cfg, sc, ar, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := o.Run(ctx)
	require.Nil(t, runErr)

	assert.False(t, ar.hasPage("http://other.example/x"), "external anchor without fetchExternal must not be scraped")
	assert.Equal(t, 0, sc.callCount("http://other.example/x"))
	assert.True(t, ar.hasReferrerTo("http://other.example/x"), "referrer edge must be recorded even when the target is never admitted")
}

func TestRunPersistsNonTargetPageForEachRedirectHop(t *testing.T) {
	// Scenario 2: http://h/redirect/start redirects through an intermediate
	// hop to http://h/redirect/end. Each hop earns its own non-target Page
	// record, in addition to the target Page at the resolved destination.
	seed := mustParse(t, "http://h/redirect/start")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).WithIgnoreRobots(true).Build()
	require.NoError(t, err)

	sc := &fakeScraper{responses: map[string]scraper.Result{
		"http://h/redirect/start": {
			Type: scraper.ResultSuccess,
			PageData: scraper.PageData{
				URL:        "http://h/redirect/end",
				StatusCode: 200,
				HTML:       "<html>end</html>",
				RedirectChain: []string{
					"http://h/redirect/start",
					"http://h/redirect/middle",
				},
				RedirectHops: []scraper.RedirectHop{
					{URL: "http://h/redirect/start", StatusCode: 301, StatusText: "Moved Permanently"},
					{URL: "http://h/redirect/middle", StatusCode: 302, StatusText: "Found"},
				},
			},
		},
	}}
	ar := newFakeArchive()

	o := orchestrator.New(cfg, sc, ar, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := o.Run(ctx)
	require.Nil(t, runErr)

	require.True(t, ar.hasPage("http://h/redirect/start"))
	require.True(t, ar.hasPage("http://h/redirect/middle"))
	require.True(t, ar.hasPage("http://h/redirect/end"))

	startPage := ar.pages["http://h/redirect/start"]
	assert.False(t, startPage.IsTarget)
	assert.Equal(t, 301, startPage.StatusCode)

	middlePage := ar.pages["http://h/redirect/middle"]
	assert.False(t, middlePage.IsTarget)
	assert.Equal(t, 302, middlePage.StatusCode)

	endPage := ar.pages["http://h/redirect/end"]
	assert.True(t, endPage.IsTarget)
	assert.Equal(t, 200, endPage.StatusCode)
}

func TestRunDeduplicatesResourcesByWithoutHash(t *testing.T) {
	// Two pages reference the same resource, once with a fragment — both
	// observations must share one archived Resource, deduplicated through
	// the same withoutHash-keyed cache the destination shortcut uses.
	seed := mustParse(t, "http://h/")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).WithIgnoreRobots(true).Build()
	require.NoError(t, err)

	sc := &fakeScraper{responses: map[string]scraper.Result{
		"http://h/": {
			Type: scraper.ResultSuccess,
			PageData: scraper.PageData{
				URL:        "http://h/",
				StatusCode: 200,
				HTML:       "<html>root</html>",
				Anchors: []scraper.Anchor{
					{Href: "/page2", Text: "p2"},
				},
			},
			Resources: []scraper.Resource{
				{URL: "http://h/shared.css#v1", StatusCode: 200},
			},
		},
		"http://h/page2": {
			Type: scraper.ResultSuccess,
			PageData: scraper.PageData{
				URL:        "http://h/page2",
				StatusCode: 200,
				HTML:       "<html>page2</html>",
			},
			Resources: []scraper.Resource{
				{URL: "http://h/shared.css#v2", StatusCode: 200},
			},
		},
	}}
	ar := newFakeArchive()

	o := orchestrator.New(cfg, sc, ar, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := o.Run(ctx)
	require.Nil(t, runErr)

	ar.mu.Lock()
	defer ar.mu.Unlock()
	assert.Len(t, ar.resources, 1, "the same resource observed from two pages must be upserted once")
}

func TestRunWithFromListDoesNotFollowAnchors(t *testing.T) {
	seed := mustParse(t, "http://h/")
	cfg, err := config.WithDefault([]urlutil.Canonical{seed}).WithIgnoreRobots(true).WithFromList(true).Build()
	require.NoError(t, err)

	sc := &fakeScraper{responses: map[string]scraper.Result{
		"http://h/": {
			Type: scraper.ResultSuccess,
			PageData: scraper.PageData{
				URL:        "http://h/",
				StatusCode: 200,
				HTML:       "<html>root</html>",
				Anchors: []scraper.Anchor{
					{Href: "/page2", Text: "p2"},
				},
			},
		},
	}}
	ar := newFakeArchive()

	o := orchestrator.New(cfg, sc, ar, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := o.Run(ctx)
	require.Nil(t, runErr)

	assert.Equal(t, 1, ar.pageCount())
	assert.Equal(t, 0, sc.callCount("http://h/page2"))
}
