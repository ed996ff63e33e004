// Package orchestrator implements component 4.G, the Crawler Orchestrator:
// the control loop that admits seed URLs, dispatches scrapes across a
// bounded worker pool, and drives every other component (scope, exclude,
// robots, frontier, pagination, archive) to a terminal state for every
// discovered URL before the crawl exits.
package orchestrator

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/d-zero-dev/nitpicker-go/internal/archive"
	"github.com/d-zero-dev/nitpicker-go/internal/config"
	"github.com/d-zero-dev/nitpicker-go/internal/destcache"
	"github.com/d-zero-dev/nitpicker-go/internal/events"
	"github.com/d-zero-dev/nitpicker-go/internal/exclude"
	"github.com/d-zero-dev/nitpicker-go/internal/frontier"
	"github.com/d-zero-dev/nitpicker-go/internal/logging"
	"github.com/d-zero-dev/nitpicker-go/internal/pagination"
	"github.com/d-zero-dev/nitpicker-go/internal/robots"
	"github.com/d-zero-dev/nitpicker-go/internal/scope"
	"github.com/d-zero-dev/nitpicker-go/internal/scraper"
	"github.com/d-zero-dev/nitpicker-go/pkg/failure"
	"github.com/d-zero-dev/nitpicker-go/pkg/limiter"
	"github.com/d-zero-dev/nitpicker-go/pkg/timeutil"
	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

// Orchestrator wires every other component together and drives one crawl
// session from seed admission to archive close.
type Orchestrator struct {
	cfg config.Config

	scope      *scope.Scope
	exclude    *exclude.Filter
	robotsGate *robots.Gate
	limiter    *limiter.ConcurrentRateLimiter
	scraper    scraper.Scraper
	archive    archive.Archive
	events     *events.Registry
	logger     logging.Logger
	destCache  *destcache.Cache
	tracker    *pagination.BatchTracker

	frontier *frontier.Frontier

	fatalOnce sync.Once
	fatalErr  failure.ClassifiedError
	cancel    context.CancelFunc
}

// New constructs an Orchestrator for one crawl session. cfg must already be
// Build()-validated. logger may be nil, in which case diagnostics are
// discarded.
func New(cfg config.Config, scraperImpl scraper.Scraper, archiveImpl archive.Archive, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop{}
	}

	backoffParam := timeutil.NewBackoffParam(time.Second, 2, 30*time.Second)

	return &Orchestrator{
		cfg:          cfg,
		scope:        scope.New(cfg.ScopeURLs()),
		exclude:      exclude.New(cfg.Excludes(), cfg.ExcludeKeywords(), cfg.ExcludeUrls()),
		robotsGate:   robots.New(cfg.UserAgent(), cfg.IgnoreRobots()),
		limiter:      limiter.NewConcurrentRateLimiter(0, backoffParam),
		scraper:      scraperImpl,
		archive:      archiveImpl,
		events:       events.NewRegistry(),
		logger:       logger,
		destCache:    destcache.New(),
		tracker:      pagination.NewBatchTracker(),
	}
}

// Events returns the Registry callers subscribe to before calling Run.
func (o *Orchestrator) Events() *events.Registry {
	return o.events
}

// Run admits the seed URLs and drives the crawl to completion: it returns
// once every frontier entry has reached a terminal state and the archive
// has been closed, or, once in-flight scrapes have finished, with a fatal
// error if one occurred (spec §7's "fatal errors are raised out of the
// orchestrator").
func (o *Orchestrator) Run(ctx context.Context) failure.ClassifiedError {
	o.destCache.Reset()
	o.tracker.Reset()

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	defer cancel()

	policy := newAdmissionPolicy(o.scope, o.exclude, o.robotsGate, o.cfg.IgnoreRobots(), o.cfg.MaxExcludedDepth())
	o.frontier = frontier.New(policy, o.cfg.Retry())

	for _, seed := range o.cfg.SeedURLs() {
		seed = o.scope.InjectScopeAuth(seed)
		if o.cfg.DisableQueries() {
			seed = seed.WithoutQuery()
		}
		o.frontier.Add(runCtx, frontier.Candidate{
			URL:          seed,
			Mode:         frontier.ModeFullScrape,
			Source:       frontier.SourceSeed,
			Depth:        0,
			IsExternal:   false,
			IsLowerLayer: true,
		})
	}

	sem := make(chan struct{}, o.configuredParallels())
	var wg sync.WaitGroup

	for {
		if runCtx.Err() != nil {
			break
		}
		if o.frontier.PendingCount() == 0 {
			break
		}

		entry, ok := o.frontier.Take(runCtx)
		if !ok {
			// Queue is momentarily empty but a worker may still be about to
			// enqueue more discoveries (PendingCount > 0 above included
			// in-flight); yield briefly rather than busy-spinning.
			time.Sleep(time.Millisecond)
			continue
		}

		o.events.URL(entry.URL.String())

		sem <- struct{}{}
		wg.Add(1)
		go func(entry frontier.Entry) {
			defer wg.Done()
			defer func() { <-sem }()
			o.processEntry(runCtx, entry)
		}(*entry)

		if o.cfg.Interval() > 0 {
			time.Sleep(o.cfg.Interval())
		}
	}

	wg.Wait()

	if o.fatalErr != nil {
		return o.fatalErr
	}
	if err := o.archive.Close(); err != nil {
		return err
	}
	o.events.Done()
	return nil
}

func (o *Orchestrator) reportFatal(err failure.ClassifiedError) {
	o.fatalOnce.Do(func() {
		o.fatalErr = err
		o.cancel()
	})
}

// configuredParallels is cfg.Parallels(), floored at 1. It bounds both the
// worker pool (Run) and the pagination predictor's speculative batch size,
// per spec §4.F's "N = configured concurrency."
func (o *Orchestrator) configuredParallels() int {
	parallels := o.cfg.Parallels()
	if parallels <= 0 {
		return 1
	}
	return parallels
}

// processEntry dispatches one scrape and handles its result, per spec
// §4.G step 3.
func (o *Orchestrator) processEntry(ctx context.Context, entry frontier.Entry) {
	host := entry.URL.Host
	mode := resolveScrapeMode(o.cfg, entry)

	// The destination cache is a HEAD-style shortcut (spec §5/§9): a
	// metadata-only probe only needs a destination's resolved URL and
	// status, and if some earlier scrape in this session already resolved
	// that exact destination, there is no need to dispatch the scraper
	// again just to learn the same thing. Full scrapes always go out
	// fresh, since a cached status can't stand in for the HTML/anchors a
	// full scrape needs.
	destKey := entry.URL.WithoutHash()
	if mode == scraper.ModeMetadataOnly {
		if cached, ok := o.destCache.Get(destKey); ok {
			o.handleCachedDest(entry, cached)
			return
		}
	}

	if delay := o.limiter.ResolveDelay(host); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
	o.limiter.MarkDispatchedNow(host)

	opts := scraper.Options{
		Mode:          mode,
		CaptureImages: o.cfg.CaptureImages(),
		UserAgent:     o.cfg.UserAgent(),
	}
	if path := o.cfg.ExecutablePath(); path != nil {
		opts.ExecutablePath = *path
	}

	result := o.scraper.Scrape(ctx, entry.URL.String(), opts)

	switch result.Type {
	case scraper.ResultSuccess:
		status := result.PageData.StatusCode
		if status >= 500 || status == 429 {
			o.limiter.Backoff(host)
		} else {
			o.limiter.ResetBackoff(host)
		}
		if status >= 500 {
			// A 5xx response is retried within the retry budget; once the
			// budget is spent it is finalized below as a terminal page.
			dest := &frontier.Dest{FinalURL: result.PageData.URL, StatusCode: status, StatusText: result.PageData.StatusText, ContentType: result.PageData.ContentType}
			if o.frontier.Retry(entry.Key, dest) {
				return
			}
		}
		o.destCache.Set(destKey, destcache.Entry{
			FinalURL:   result.PageData.URL,
			StatusCode: result.PageData.StatusCode,
		})
		o.handleScrapeSuccess(ctx, entry, result)
	case scraper.ResultSkipped:
		o.frontier.Skip(entry.Key)
	case scraper.ResultError:
		o.limiter.Backoff(host)
		o.handleScrapeError(entry, result)
	}
}

// resolveScrapeMode applies spec §4.G step 3.a's mode rules: external
// anchors without fetchExternal and, in non-recursive crawls, anything but
// a seed are downgraded to metadata-only, as is any entry the frontier
// itself already tracks as metadata-only (e.g. a predicted or external
// discovery that was never upgraded).
func resolveScrapeMode(cfg config.Config, entry frontier.Entry) scraper.Mode {
	switch {
	case entry.IsExternal && !cfg.FetchExternal():
		return scraper.ModeMetadataOnly
	case !cfg.Recursive() && entry.Source != frontier.SourceSeed:
		return scraper.ModeMetadataOnly
	case entry.Mode == frontier.ModeMetadataOnly:
		return scraper.ModeMetadataOnly
	default:
		return scraper.ModeFullScrape
	}
}

// handleCachedDest finalizes entry from a previously cached destination
// result instead of dispatching a new scrape, recording a non-target Page
// so the destination still shows up in the archive once per URL.
func (o *Orchestrator) handleCachedDest(entry frontier.Entry, cached destcache.Entry) {
	dest := &frontier.Dest{FinalURL: cached.FinalURL, StatusCode: cached.StatusCode}
	o.frontier.Done(entry.Key, dest, entry.IsExternal)

	archivePage := archive.Page{
		URL:        cached.FinalURL,
		StatusCode: cached.StatusCode,
		IsTarget:   false,
		IsExternal: entry.IsExternal,
	}
	if err := o.archive.UpsertPage(archivePage); err != nil {
		o.reportFatal(err)
	}
}

// handleScrapeSuccess is handleScrapeEnd from spec §4.G: it finalizes the
// frontier entry, persists the page (unless it is a discarded predicted
// URL, spec §4.F/§8), and — for full-scrape mode — walks anchors and
// resources.
func (o *Orchestrator) handleScrapeSuccess(ctx context.Context, entry frontier.Entry, result scraper.Result) {
	page := result.PageData

	dest := &frontier.Dest{
		FinalURL:    page.URL,
		StatusCode:  page.StatusCode,
		StatusText:  page.StatusText,
		ContentType: page.ContentType,
	}
	o.frontier.Done(entry.Key, dest, entry.IsExternal)

	if pagination.ShouldDiscardPredicted(entry.Source, page.StatusCode) {
		o.logger.Debugf("discarding predicted URL %s (status %d)", page.URL, page.StatusCode)
		return
	}

	// Every redirect hop gets its own non-target Page record: the resolved
	// page.URL above is the destination, so spec §3/§8 scenario 2 ("A Page
	// record for /redirect/start exists with isTarget=false") requires the
	// origin and any intermediate hops to be persisted separately.
	for _, hop := range page.RedirectHops {
		hopPage := archive.Page{
			URL:        hop.URL,
			StatusCode: hop.StatusCode,
			StatusText: hop.StatusText,
			IsTarget:   false,
			IsExternal: entry.IsExternal,
		}
		if err := o.archive.UpsertPage(hopPage); err != nil {
			o.reportFatal(err)
			return
		}
	}

	archivePage := archive.Page{
		URL:           page.URL,
		RedirectChain: page.RedirectChain,
		StatusCode:    page.StatusCode,
		StatusText:    page.StatusText,
		ContentType:   page.ContentType,
		ContentLength: page.ContentLength,
		Headers:       page.Headers,
		Title:         page.Meta.Title,
		Description:   page.Meta.Description,
		OpenGraph:     page.Meta.OpenGraph,
		RobotsMeta:    page.Meta.RobotsMeta,
		Canonical:     page.Meta.Canonical,
		Alternates:    page.Meta.Alternates,
		Lang:          page.Meta.Lang,
		IsTarget:      !entry.IsExternal && !page.IsSkipped,
		IsExternal:    entry.IsExternal,
		IsSkipped:     page.IsSkipped,
	}
	for _, a := range page.Anchors {
		archivePage.Anchors = append(archivePage.Anchors, a.Href)
	}
	for _, img := range page.Images {
		archivePage.Images = append(archivePage.Images, img.Src)
	}

	if err := o.archive.UpsertPage(archivePage); err != nil {
		o.reportFatal(err)
		return
	}
	if page.HTML != "" {
		if err := o.archive.WriteHTML(page.URL, page.HTML); err != nil {
			o.reportFatal(err)
			return
		}
		o.events.WriteFile(page.URL)
	}

	if entry.Mode == frontier.ModeFullScrape && !page.IsSkipped {
		if !o.cfg.FromList() {
			// fromList treats the seeds as the complete URL set: anchors are
			// never followed, per spec §6's CrawlerOptions.fromList.
			o.processAnchors(ctx, entry, page)
		}
		o.handleResources(entry, result.Resources)
	}
}

func (o *Orchestrator) handleScrapeError(entry frontier.Entry, result scraper.Result) {
	o.events.Error(events.ErrorPayload{URL: entry.URL.String(), Err: result.Err})

	dest := &frontier.Dest{StatusCode: -1, StatusText: "UnknownError"}
	if retried := o.frontier.Retry(entry.Key, dest); !retried {
		o.logger.Warnf("exhausted retries for %s", entry.URL.String())
	}
}

// processAnchors implements the anchor-iteration half of handleScrapeEnd:
// classify external, inject scope auth, recompute withoutHash, admit per
// the recursive/lower-layer/fetchExternal rules, and feed every anchor
// through the pagination predictor in page order.
func (o *Orchestrator) processAnchors(ctx context.Context, entry frontier.Entry, page scraper.PageData) {
	from := entry.URL.String()
	depth := entry.Depth + 1

	for _, a := range page.Anchors {
		resolved, err := resolveAnchor(entry.URL, a.Href)
		if err != nil {
			continue
		}
		canon, err := urlutil.Parse(resolved)
		if err != nil {
			// Invalid URL: admission refused, not logged as error (spec §7.7).
			continue
		}
		if o.cfg.DisableQueries() {
			canon = canon.WithoutQuery()
		}

		isExternal := o.scope.IsExternal(canon)
		if !isExternal {
			canon = o.scope.InjectScopeAuth(canon)
		}
		isLowerLayer := o.scope.IsInAnyLowerLayer(canon)
		withoutHash := canon.WithoutHash()

		referrer := &frontier.ReferrerEdge{From: from, To: withoutHash, AnchorText: a.Text, Through: withoutHash}

		// Every anchor gets a referrer edge regardless of whether it is
		// admitted into the frontier (spec §8: an excluded/out-of-scope
		// target is "recorded as referrer edge only; no Page record").
		if err := o.archive.RecordReferrer(referrer.From, referrer.To, referrer.AnchorText, referrer.Through); err != nil {
			o.reportFatal(err)
			return
		}

		var mode frontier.Mode
		admit := true
		switch {
		case !o.cfg.Recursive():
			mode = frontier.ModeMetadataOnly
		case isLowerLayer:
			mode = frontier.ModeFullScrape
		case isExternal && o.cfg.FetchExternal():
			mode = frontier.ModeMetadataOnly
		default:
			admit = false
		}

		if admit {
			o.frontier.Add(ctx, frontier.Candidate{
				URL:          canon,
				Mode:         mode,
				Source:       frontier.SourceAnchor,
				Depth:        depth,
				IsExternal:   isExternal,
				IsLowerLayer: isLowerLayer,
				Referrer:     referrer,
			})
		}

		if previous, ok := o.tracker.Observe(canon); ok {
			if pattern, detected := pagination.Detect(previous, canon); detected {
				o.enqueuePredicted(ctx, canon, pattern, depth, isExternal, isLowerLayer)
			}
		}
	}
}

func (o *Orchestrator) enqueuePredicted(ctx context.Context, curr urlutil.Canonical, pattern pagination.Pattern, depth int, isExternal, isLowerLayer bool) {
	mode := frontier.ModeFullScrape
	if !o.cfg.Recursive() {
		mode = frontier.ModeMetadataOnly
	}
	for _, predicted := range pagination.Generate(curr, pattern, o.configuredParallels()) {
		o.frontier.Add(ctx, frontier.Candidate{
			URL:          predicted,
			Mode:         mode,
			Source:       frontier.SourcePredicted,
			Depth:        depth,
			IsExternal:   isExternal,
			IsLowerLayer: isLowerLayer,
		})
	}
}

// handleResources implements handleResourceResponse from spec §4.G: new
// resources (by withoutHash) are persisted once, referrer edges upserted
// for every observation. "New" is tracked through the same destCache the
// metadata-only dispatch shortcut consults (spec §3's "Resources are
// deduplicated by withoutHash across the crawl" is the same withoutHash
// keying spec §5/§9 describe for the destination cache), rather than a
// second map serving the identical purpose.
func (o *Orchestrator) handleResources(entry frontier.Entry, resources []scraper.Resource) {
	pageURL := entry.URL.String()

	for _, r := range resources {
		key := r.URL
		if canon, err := urlutil.Parse(r.URL); err == nil {
			key = canon.WithoutHash()
		}

		_, seen := o.destCache.Get(key)
		isNew := !seen
		if isNew {
			o.destCache.Set(key, destcache.Entry{FinalURL: r.URL, StatusCode: r.StatusCode})
		}

		if isNew {
			archiveResource := archive.Resource{
				URL:           r.URL,
				StatusCode:    r.StatusCode,
				StatusText:    r.StatusText,
				ContentType:   r.ContentType,
				ContentLength: r.ContentLength,
				IsExternal:    r.IsExternal,
				Compression:   r.Compression,
				CDN:           r.CDN,
				Headers:       r.Headers,
			}
			if err := o.archive.UpsertResource(archiveResource); err != nil {
				o.reportFatal(err)
				return
			}
		}
		if err := o.archive.LinkPageToResource(pageURL, r.URL); err != nil {
			o.reportFatal(err)
			return
		}
		if err := o.archive.RecordReferrer(pageURL, r.URL, "", r.URL); err != nil {
			o.reportFatal(err)
			return
		}
	}
}

// resolveAnchor resolves href against base, absolute or relative, the way a
// browser would when collecting outbound links.
func resolveAnchor(base urlutil.Canonical, href string) (string, error) {
	baseURL, err := url.Parse(base.String())
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}
