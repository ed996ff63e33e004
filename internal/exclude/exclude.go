// Package exclude implements component 4.C, the Exclusion Filter: glob,
// keyword, and prefix exclusions applied to a candidate URL before it is
// admitted to the frontier.
package exclude

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

// Filter holds the compiled exclusion rules for one crawl session. It is
// pure and idempotent: calling Excludes twice with the same URL returns the
// same answer; callers that want to avoid repeating the match work may
// cache the result alongside their own frontier entry, per spec §4.C.
type Filter struct {
	globs    []glob.Glob
	keywords []string
	prefixes []string
}

// New compiles globs, keywords, and prefixes into a Filter. Invalid glob
// patterns are skipped rather than failing construction, since a
// misconfigured single pattern should not disable every exclusion rule.
func New(globs []string, keywords []string, prefixes []string) *Filter {
	f := &Filter{
		keywords: keywords,
		prefixes: prefixes,
	}
	for _, pattern := range globs {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		f.globs = append(f.globs, compiled)
	}
	return f
}

// Excludes reports whether u should be skipped: any glob matches its
// normalized form, or any keyword is a substring of it, or any prefix is a
// string-prefix of its protocol-agnostic key.
func (f *Filter) Excludes(u urlutil.Canonical) bool {
	normalized := u.WithoutHash()

	for _, g := range f.globs {
		if g.Match(normalized) {
			return true
		}
	}

	for _, keyword := range f.keywords {
		if keyword != "" && strings.Contains(normalized, keyword) {
			return true
		}
	}

	key := u.ProtocolAgnosticKey()
	for _, prefix := range f.prefixes {
		if prefix != "" && strings.HasPrefix(key, toProtocolAgnosticPrefix(prefix)) {
			return true
		}
	}

	return false
}

// toProtocolAgnosticPrefix mirrors ProtocolAgnosticKey's scheme stripping
// so a configured "http://h/secret" prefix matches both http and https
// targets, the same dedup behavior the frontier applies everywhere else.
func toProtocolAgnosticPrefix(prefix string) string {
	if idx := strings.Index(prefix, "://"); idx >= 0 {
		return "//" + prefix[idx+3:]
	}
	return prefix
}
