// Package frontier implements component 4.E, the Link List: the pivotal
// data structure that dedups discovered URLs, tracks their lifecycle, and
// hands them out to the orchestrator's worker pool in FIFO order.
package frontier

import (
	"context"
	"sync"
	"time"

	"github.com/d-zero-dev/nitpicker-go/pkg/failure"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs by protocol-agnostic key
- Track crawl depth and retry counts
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- HTML extraction
	- archive persistence
	- rate limiting

It is a data structure + admission gate, not a pipeline executor. All
mutating operations are serialized behind a single mutex, per spec §5.
*/

// AdmissionPolicy decides whether a newly discovered URL may be enqueued.
// It composes the scope matcher, exclusion filter, and robots gate (4.B-D);
// the frontier itself holds no opinion on any of them, only on this
// contract. Admit also returns a crawlDelay; Frontier.Add discards it, so
// it does not reach the rate limiter.
type AdmissionPolicy interface {
	Admit(ctx context.Context, candidate Candidate) (admitted bool, crawlDelay time.Duration, err failure.ClassifiedError)
}

// Frontier holds every discovered URL's lifecycle entry, a FIFO of queued
// keys, the in-flight key set, and the referrer adjacency map.
type Frontier struct {
	mu       sync.Mutex
	policy   AdmissionPolicy
	maxRetry int

	entries   map[string]*Entry
	queue     *FIFOQueue[string]
	inFlight  Set[string]
	referrers map[string][]ReferrerEdge
}

// New constructs an empty Frontier. policy is consulted by Add for every
// newly discovered key; maxRetry bounds Retry's queued(retry) loop.
func New(policy AdmissionPolicy, maxRetry int) *Frontier {
	return &Frontier{
		policy:    policy,
		maxRetry:  maxRetry,
		entries:   make(map[string]*Entry),
		queue:     NewFIFOQueue[string](),
		inFlight:  NewSet[string](),
		referrers: make(map[string][]ReferrerEdge),
	}
}

// Add canonicalizes and admits candidate. If the key is new, it consults
// the AdmissionPolicy: a denial records a StatusSkipped entry (not an
// error, per spec §7.5) so repeat discoveries are a no-op, while an
// admission enqueues it. If the key already exists and is currently
// metadata-only while candidate requests a full scrape, it is upgraded —
// never the reverse. Any supplied referrer edge is recorded regardless of
// the admission outcome, per spec §8 ("referrer edges pointing at /admin/*
// are still recorded on the referrer, not on the skipped target").
//
// Add returns true if it changed queue membership (i.e. a new entry was
// enqueued).
func (f *Frontier) Add(ctx context.Context, candidate Candidate) (bool, failure.ClassifiedError) {
	key := candidate.URL.ProtocolAgnosticKey()

	f.mu.Lock()
	if candidate.Referrer != nil {
		f.referrers[key] = append(f.referrers[key], *candidate.Referrer)
	}

	if existing, ok := f.entries[key]; ok {
		upgraded := false
		if existing.Mode == ModeMetadataOnly && candidate.Mode == ModeFullScrape {
			existing.Mode = ModeFullScrape
			existing.IsExternal = candidate.IsExternal
			existing.IsLowerLayer = candidate.IsLowerLayer
			if existing.Status == StatusDone && existing.Dest == nil {
				existing.Status = StatusQueued
				f.queue.Enqueue(key)
				upgraded = true
			}
		}
		f.mu.Unlock()
		return upgraded, nil
	}
	f.mu.Unlock()

	// The policy consultation may block on a robots.txt fetch; it must run
	// without the frontier lock held, per spec §5 ("none of these hold the
	// link-list lock").
	admitted, _, err := f.policy.Admit(ctx, candidate)
	if err != nil && failure.IsFatal(err) {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entries[key]; ok {
		// Raced with a concurrent Add for the same key while this one was
		// blocked on admission; the entry that won the race stands.
		return false, nil
	}

	entry := &Entry{
		Key:          key,
		URL:          candidate.URL,
		Mode:         candidate.Mode,
		Source:       candidate.Source,
		Depth:        candidate.Depth,
		IsExternal:   candidate.IsExternal,
		IsLowerLayer: candidate.IsLowerLayer,
		QueuedAt:     time.Now(),
	}

	if !admitted {
		entry.Status = StatusSkipped
		f.entries[key] = entry
		return false, nil
	}

	entry.Status = StatusQueued
	f.entries[key] = entry
	f.queue.Enqueue(key)
	return true, nil
}

// Take pops the next queued key and moves it to in-flight. It returns
// (nil, false) if the queue is empty or ctx has already been canceled —
// cancellation must make Take return nothing immediately rather than drain
// the remaining queue, per spec §5.
func (f *Frontier) Take(ctx context.Context) (*Entry, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key, ok := f.queue.Dequeue()
	if !ok {
		return nil, false
	}

	entry := f.entries[key]
	entry.Status = StatusInFlight
	f.inFlight.Add(key)
	snapshot := entry.Snapshot()
	return &snapshot, true
}

// Done accepts a scrape result for key: merges dest and isExternal, and
// transitions the entry to StatusDone. It returns the finalized entry, or
// (nil, false) if key is not known.
func (f *Frontier) Done(key string, dest *Dest, isExternal bool) (*Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[key]
	if !ok {
		return nil, false
	}

	entry.Dest = dest
	entry.IsExternal = isExternal
	entry.Status = StatusDone
	f.inFlight.Remove(key)

	snapshot := entry.Snapshot()
	return &snapshot, true
}

// Skip marks key done without page data (handleIgnoreAndSkip in spec
// §4.G), used for scraper "skipped" results.
func (f *Frontier) Skip(key string) (*Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[key]
	if !ok {
		return nil, false
	}

	entry.Status = StatusSkipped
	f.inFlight.Remove(key)

	snapshot := entry.Snapshot()
	return &snapshot, true
}

// Retry requeues key if its retry count is still under maxRetry,
// incrementing the count and moving it to the queue tail. Once the limit
// is reached, it marks the entry done with dest as its best-known outcome
// (spec §4.E, §7.1).
func (f *Frontier) Retry(key string, dest *Dest) (retried bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[key]
	if !ok {
		return false
	}

	f.inFlight.Remove(key)

	if entry.RetryCount < f.maxRetry {
		entry.RetryCount++
		entry.Status = StatusQueued
		f.queue.Enqueue(key)
		return true
	}

	entry.Dest = dest
	entry.Status = StatusDone
	return false
}

// IsMetadataOnly reports whether key's current mode is metadata-only. It
// returns false for an unknown key.
func (f *Frontier) IsMetadataOnly(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[key]
	return ok && entry.Mode == ModeMetadataOnly
}

// Size returns the total number of distinct keys ever admitted or skipped.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// PendingCount returns the number of keys still queued or in-flight. The
// orchestrator's main loop terminates when this reaches zero — checking
// both, not just the queue, avoids the race where the queue is briefly
// empty but a worker is about to enqueue more discoveries.
func (f *Frontier) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Size() + f.inFlight.Size()
}

// ReferrersOf returns the referrer edges recorded for key, in insertion
// order. The returned slice is a copy.
func (f *Frontier) ReferrersOf(key string) []ReferrerEdge {
	f.mu.Lock()
	defer f.mu.Unlock()
	edges := f.referrers[key]
	out := make([]ReferrerEdge, len(edges))
	copy(out, edges)
	return out
}

// Get returns a snapshot of the entry for key, if known.
func (f *Frontier) Get(key string) (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[key]
	if !ok {
		return Entry{}, false
	}
	return entry.Snapshot(), true
}

// AdmissionPolicyFunc adapts a plain function to AdmissionPolicy.
type AdmissionPolicyFunc func(ctx context.Context, candidate Candidate) (bool, time.Duration, failure.ClassifiedError)

func (f AdmissionPolicyFunc) Admit(ctx context.Context, candidate Candidate) (bool, time.Duration, failure.ClassifiedError) {
	return f(ctx, candidate)
}
