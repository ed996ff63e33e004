// Package archive defines the Archive port spec §6 names as an external
// collaborator, plus one reference adapter (TarArchive) — a tar container
// with an embedded JSON catalog, since no SQLite driver is grounded
// anywhere in the reference corpus this module was built from (see
// DESIGN.md). A production archive backed by SQLite is pluggable behind
// the same Archive interface.
package archive

import "github.com/d-zero-dev/nitpicker-go/pkg/failure"

// Page is the durable projection of a successfully scraped URL, per spec
// §3.
type Page struct {
	URL           string            `json:"url"`
	RedirectChain []string          `json:"redirectChain,omitempty"`
	StatusCode    int               `json:"statusCode"`
	StatusText    string            `json:"statusText"`
	ContentType   string            `json:"contentType,omitempty"`
	ContentLength *int64            `json:"contentLength,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Title         string            `json:"title,omitempty"`
	Description   string            `json:"description,omitempty"`
	OpenGraph     map[string]string `json:"openGraph,omitempty"`
	RobotsMeta    string            `json:"robotsMeta,omitempty"`
	Canonical     string            `json:"canonical,omitempty"`
	Alternates    []string          `json:"alternates,omitempty"`
	Lang          string            `json:"lang,omitempty"`
	Anchors       []string          `json:"anchors,omitempty"`
	Images        []string          `json:"images,omitempty"`
	IsTarget      bool              `json:"isTarget"`
	IsExternal    bool              `json:"isExternal"`
	IsSkipped     bool              `json:"isSkipped"`
}

// Resource is a network sub-request observed during a page scrape, per
// spec §3. Resources are deduplicated by withoutHash across the crawl.
type Resource struct {
	URL           string            `json:"url"`
	StatusCode    int               `json:"statusCode"`
	StatusText    string            `json:"statusText"`
	ContentType   string            `json:"contentType,omitempty"`
	ContentLength *int64            `json:"contentLength,omitempty"`
	IsExternal    bool              `json:"isExternal"`
	Compression   string            `json:"compression,omitempty"`
	CDN           string            `json:"cdn,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
}

// ReferrerRecord is one (from, to, anchor-text, through) edge, per spec
// §3.
type ReferrerRecord struct {
	From       string `json:"from"`
	To         string `json:"to"`
	AnchorText string `json:"anchorText,omitempty"`
	Through    string `json:"through"`
}

// Archive is the persistence port the orchestrator writes through. It is
// explicitly out of the crawler core's scope per spec §1; the core only
// depends on this interface.
type Archive interface {
	UpsertPage(page Page) failure.ClassifiedError
	UpsertResource(resource Resource) failure.ClassifiedError
	LinkPageToResource(pageURL, resourceURL string) failure.ClassifiedError
	RecordReferrer(from, to, anchorText, through string) failure.ClassifiedError
	WriteHTML(pageURL, html string) failure.ClassifiedError
	Close() failure.ClassifiedError
}
