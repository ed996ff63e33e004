// Package scraper defines the Scraper port spec §6 names as an external
// collaborator, plus one reference adapter (DefaultScraper) built on
// net/http and goquery so the crawler core can be exercised end to end in
// tests without a headless browser.
package scraper

import (
	"context"
	"time"
)

// Mode selects how thoroughly a URL is scraped.
type Mode int

const (
	ModeFullScrape Mode = iota
	ModeMetadataOnly
)

// Options configures one Scrape call.
type Options struct {
	Mode           Mode
	CaptureImages  bool
	UserAgent      string
	ExecutablePath string
	Timeout        time.Duration
}

// Anchor is one discovered outbound link.
type Anchor struct {
	Href string
	Text string
}

// Image is one discovered <img> reference.
type Image struct {
	Src string
	Alt string
}

// Meta carries the structured page metadata spec §4 (supplemented
// features) names: title, description, OpenGraph tags, robots directives,
// canonical/alternate links, and language.
type Meta struct {
	Title       string
	Description string
	OpenGraph   map[string]string
	RobotsMeta  string
	Canonical   string
	Alternates  []string
	Lang        string
}

// RedirectHop is one intermediate response in a redirect chain: the URL
// that was requested and the redirect status it returned, before the
// client followed it on to the next hop (or the final destination).
type RedirectHop struct {
	URL        string
	StatusCode int
	StatusText string
}

// PageData is the full result of a successful full-mode scrape. URL is the
// final, resolved URL a redirect chain settled on — RedirectChain lists
// the original and any intermediate URLs visited to get there, and
// RedirectHops carries each of their own statuses so the orchestrator can
// persist a non-target Page record per hop, per spec §3/§8 scenario 2.
type PageData struct {
	URL           string
	RedirectChain []string
	RedirectHops  []RedirectHop
	StatusCode    int
	StatusText    string
	ContentType   string
	ContentLength *int64
	Headers       map[string]string
	Meta          Meta
	Anchors       []Anchor
	Images        []Image
	HTML          string
	IsTarget      bool
	IsExternal    bool
	IsSkipped     bool
}

// Resource is a network sub-request observed during a page scrape.
type Resource struct {
	URL           string
	StatusCode    int
	StatusText    string
	ContentType   string
	ContentLength *int64
	IsExternal    bool
	Compression   string
	CDN           string
	Headers       map[string]string
}

// ResultType discriminates the three ScrapeResult variants spec §6 names.
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultSkipped
	ResultError
)

// ScraperError is the {name, message} error shape spec §6 requires for the
// "error" ScrapeResult variant.
type ScraperError struct {
	Name    string
	Message string
}

func (e ScraperError) Error() string {
	return e.Name + ": " + e.Message
}

// Result is the outcome of one Scrape call.
type Result struct {
	Type      ResultType
	PageData  PageData
	Resources []Resource
	Reason    string
	Err       *ScraperError
}

// Scraper is the external port the orchestrator dispatches scrapes
// through. A production implementation is a headless browser; see spec §1.
type Scraper interface {
	Scrape(ctx context.Context, url string, opts Options) Result
}
