// Package urlutil implements component 4.A, the URL Canonicalizer: parsing
// and normalizing raw URL strings, and deriving the dedup views the
// frontier and archive key everything by.
//
// Parse is pure, deterministic, idempotent, and context-free: the
// same input string always normalizes to the same Canonical value, and
// normalizing an already-canonical URL is a no-op.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// QueryPair is one query-string key/value, kept in insertion order. The
// standard library's url.Values is a map and cannot preserve order, which
// the canonicalizer and pagination decomposer both depend on (§3, §4.F).
type QueryPair struct {
	Key   string
	Value string
}

// Canonical is the normalized form of a URL: lowercased scheme and host,
// default ports stripped, dot-segments resolved, query order preserved as
// encountered.
type Canonical struct {
	Scheme   string
	Userinfo string // "user:pass", empty if absent
	Host     string
	Port     string // empty if default or absent
	Segments []string
	Query    []QueryPair
	Fragment string
}

// ErrInvalidURL is returned by Parse for unparseable input. Per spec §4.A,
// an invalid URL is never enqueued; it is returned to the caller instead.
var ErrInvalidURL = errors.New("invalid URL")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Parse parses raw and returns its Canonical form, or ErrInvalidURL if raw
// cannot be parsed as a URL at all.
func Parse(raw string) (Canonical, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Canonical{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return FromURL(*parsed), nil
}

// FromURL builds a Canonical directly from a parsed net/url.URL, applying
// the same normalization Parse does.
func FromURL(u url.URL) Canonical {
	scheme := lowerASCII(u.Scheme)
	host := lowerASCII(u.Hostname())

	port := u.Port()
	if defaultPort, ok := defaultPorts[scheme]; ok && port == defaultPort {
		port = ""
	}

	userinfo := ""
	if u.User != nil {
		userinfo = u.User.String()
	}

	segments := splitAndClean(u.EscapedPath())

	var query []QueryPair
	if u.RawQuery != "" {
		query = parseOrderedQuery(u.RawQuery)
	}

	return Canonical{
		Scheme:   scheme,
		Userinfo: userinfo,
		Host:     host,
		Port:     port,
		Segments: segments,
		Query:    query,
		Fragment: "",
	}
}

func lowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

func splitAndClean(escapedPath string) []string {
	if escapedPath == "" || escapedPath == "/" {
		return nil
	}
	cleaned := path.Clean(escapedPath)
	if cleaned == "/" || cleaned == "." {
		return nil
	}
	parts := strings.Split(strings.Trim(cleaned, "/"), "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

func parseOrderedQuery(rawQuery string) []QueryPair {
	pairs := strings.Split(rawQuery, "&")
	result := make([]QueryPair, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		decodedKey, errKey := url.QueryUnescape(key)
		if errKey == nil {
			key = decodedKey
		}
		decodedValue, errValue := url.QueryUnescape(value)
		if errValue == nil {
			value = decodedValue
		}
		result = append(result, QueryPair{Key: key, Value: value})
	}
	return result
}

// Path renders the normalized path, always beginning with "/".
func (c Canonical) Path() string {
	if len(c.Segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(c.Segments, "/")
}

// RawQuery renders the query string (without leading "?") in insertion
// order.
func (c Canonical) RawQuery() string {
	if len(c.Query) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c.Query))
	for _, pair := range c.Query {
		parts = append(parts, url.QueryEscape(pair.Key)+"="+url.QueryEscape(pair.Value))
	}
	return strings.Join(parts, "&")
}

// SortedQuery returns the query pairs sorted by key, used by the pagination
// decomposer (§4.F) to compare query sets independent of original order.
func (c Canonical) SortedQuery() []QueryPair {
	sorted := make([]QueryPair, len(c.Query))
	copy(sorted, c.Query)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})
	return sorted
}

func (c Canonical) authority() string {
	host := c.Host
	if c.Port != "" {
		host += ":" + c.Port
	}
	if c.Userinfo != "" {
		return c.Userinfo + "@" + host
	}
	return host
}

// WithoutHash renders scheme://[userinfo@]host[:port]/path[?query], the
// fragment always stripped.
func (c Canonical) WithoutHash() string {
	s := c.Scheme + "://" + c.authority() + c.Path()
	if q := c.RawQuery(); q != "" {
		s += "?" + q
	}
	return s
}

// WithoutHashAndAuth is WithoutHash with userinfo removed, the frontier's
// primary grouping view (§3).
func (c Canonical) WithoutHashAndAuth() string {
	without := c
	without.Userinfo = ""
	return without.WithoutHash()
}

// ProtocolAgnosticKey is WithoutHashAndAuth with the scheme stripped to
// "//host...", so http and https variants of the same resource collapse to
// one frontier entry (§3).
func (c Canonical) ProtocolAgnosticKey() string {
	withoutHashAndAuth := c.WithoutHashAndAuth()
	_, rest, found := strings.Cut(withoutHashAndAuth, "://")
	if !found {
		return withoutHashAndAuth
	}
	return "//" + rest
}

// WithoutQuery returns a copy of c with all query parameters removed, used
// when CrawlerOptions.DisableQueries strips query strings during
// canonicalization (spec §6).
func (c Canonical) WithoutQuery() Canonical {
	without := c
	without.Query = nil
	return without
}

// IsHTTP reports whether c's scheme is http or https.
func (c Canonical) IsHTTP() bool {
	return c.Scheme == "http" || c.Scheme == "https"
}

// String renders the full canonical URL including any fragment.
func (c Canonical) String() string {
	s := c.WithoutHash()
	if c.Fragment != "" {
		s += "#" + c.Fragment
	}
	return s
}

// WithUserinfo returns a copy of c with its userinfo replaced.
func (c Canonical) WithUserinfo(userinfo string) Canonical {
	with := c
	with.Userinfo = userinfo
	return with
}

// HasUserinfo reports whether c already carries credentials.
func (c Canonical) HasUserinfo() bool {
	return c.Userinfo != ""
}
