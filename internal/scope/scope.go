// Package scope implements component 4.B, the Scope Matcher: deciding
// whether a URL belongs to the crawl's scope roots, and injecting the
// scope's credentials into same-host anchors that lack their own.
package scope

import (
	"sort"
	"strings"

	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

// Entry is one scope root: a canonical URL the crawl must fully cover,
// including any userinfo it carries.
type Entry struct {
	URL urlutil.Canonical
}

// Scope is a set of URLs keyed by host, each host's entries kept
// deepest-path-first so the first prefix match is always the best one.
type Scope struct {
	byHost map[string][]Entry
}

// New builds a Scope from the given scope root URLs, grouping by host and
// sorting each host's entries by path depth, deepest first.
func New(roots []urlutil.Canonical) *Scope {
	s := &Scope{byHost: make(map[string][]Entry)}
	for _, root := range roots {
		s.byHost[root.Host] = append(s.byHost[root.Host], Entry{URL: root})
	}
	for host, entries := range s.byHost {
		sorted := make([]Entry, len(entries))
		copy(sorted, entries)
		sort.SliceStable(sorted, func(i, j int) bool {
			return len(sorted[i].URL.Segments) > len(sorted[j].URL.Segments)
		})
		s.byHost[host] = sorted
	}
	return s
}

// IsExternal reports whether u's host has no scope entries at all.
func (s *Scope) IsExternal(u urlutil.Canonical) bool {
	_, ok := s.byHost[u.Host]
	return !ok
}

// BestScope returns the scope entry whose path is the longest prefix of
// u's path, and true if one was found.
func (s *Scope) BestScope(u urlutil.Canonical) (Entry, bool) {
	entries, ok := s.byHost[u.Host]
	if !ok {
		return Entry{}, false
	}
	for _, entry := range entries {
		if isPathPrefix(entry.URL.Segments, u.Segments) {
			return entry, true
		}
	}
	return Entry{}, false
}

// IsInAnyLowerLayer reports whether u falls under some scope root's path,
// i.e. whether BestScope finds a match.
func (s *Scope) IsInAnyLowerLayer(u urlutil.Canonical) bool {
	_, ok := s.BestScope(u)
	return ok
}

// InjectScopeAuth returns a copy of u with userinfo set to the best
// matching scope entry's userinfo, if u has none of its own and a scope
// entry matches. It is the caller's responsibility to do this before
// enqueue, per spec §4.B, so that authenticated scrapes reuse the
// credentials.
func (s *Scope) InjectScopeAuth(u urlutil.Canonical) urlutil.Canonical {
	if u.HasUserinfo() {
		return u
	}
	entry, ok := s.BestScope(u)
	if !ok || !entry.URL.HasUserinfo() {
		return u
	}
	return u.WithUserinfo(entry.URL.Userinfo)
}

func isPathPrefix(prefix, segments []string) bool {
	if len(prefix) > len(segments) {
		return false
	}
	for i, p := range prefix {
		if !strings.EqualFold(p, segments[i]) {
			return false
		}
	}
	return true
}
