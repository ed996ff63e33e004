package frontier

/*
 Frontier - manages crawl state & ordering
*/

import (
	"time"

	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

// Status is a frontier entry's lifecycle state: new → queued → in-flight →
// {done | queued(retry) | skipped}, per the state machine in spec §4.
type Status int

const (
	StatusQueued Status = iota
	StatusInFlight
	StatusDone
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusInFlight:
		return "in-flight"
	case StatusDone:
		return "done"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Mode distinguishes a full page scrape from a metadata-only probe. A key
// may be upgraded from MetadataOnly to FullScrape but never downgraded.
type Mode int

const (
	ModeMetadataOnly Mode = iota
	ModeFullScrape
)

func (m Mode) String() string {
	if m == ModeFullScrape {
		return "full-scrape"
	}
	return "metadata-only"
}

// DiscoverySource records how a URL first entered the frontier.
type DiscoverySource int

const (
	SourceSeed DiscoverySource = iota
	SourceAnchor
	SourcePredicted
)

func (s DiscoverySource) String() string {
	switch s {
	case SourceSeed:
		return "seed"
	case SourceAnchor:
		return "anchor"
	case SourcePredicted:
		return "predicted"
	default:
		return "unknown"
	}
}

// Dest is the best-known scrape outcome for an entry, recorded once a
// scrape result (success or exhausted-retry error) is accepted. A skipped
// entry has no Dest.
type Dest struct {
	FinalURL    string
	StatusCode  int
	StatusText  string
	ContentType string
}

// ReferrerEdge is one (from, to, anchor-text, through) relation, per spec
// §3. Through equals To unless a redirect intervened, in which case
// Through is the original anchor target.
type ReferrerEdge struct {
	From       string
	To         string
	AnchorText string
	Through    string
}

// Candidate is what a caller passes to Add: everything needed to admit and
// enqueue (or reject) a newly discovered URL. depth and isExternal are
// supplied by the caller because computing them (scope matching) is not
// the frontier's concern — see AdmissionPolicy.
type Candidate struct {
	URL          urlutil.Canonical
	Mode         Mode
	Source       DiscoverySource
	Depth        int
	IsExternal   bool
	IsLowerLayer bool
	Referrer     *ReferrerEdge
}

// Entry is one frontier entry, keyed by
// protocolAgnosticKey(withoutHashAndAuth(URL)).
type Entry struct {
	Key          string
	URL          urlutil.Canonical
	Status       Status
	Mode         Mode
	Source       DiscoverySource
	Depth        int
	RetryCount   int
	Dest         *Dest
	IsExternal   bool
	IsLowerLayer bool
	QueuedAt     time.Time
}

// Snapshot returns a shallow copy of e, safe to read outside the frontier's
// lock.
func (e *Entry) Snapshot() Entry {
	return *e
}
