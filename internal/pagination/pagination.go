// Package pagination implements component 4.F, the Pagination Predictor:
// detecting a single-token numeric progression across consecutively
// discovered same-shape anchors (from any page, see BatchTracker), and
// speculatively generating the next N URLs in that progression.
package pagination

import (
	"strconv"
	"strings"
	"sync"

	"github.com/d-zero-dev/nitpicker-go/internal/frontier"
	"github.com/d-zero-dev/nitpicker-go/pkg/urlutil"
)

// Pattern is a detected single-token numeric progression: which token
// position varies, by how much, and the current URL's value there.
type Pattern struct {
	TokenIndex    int
	Step          int
	CurrentNumber int
}

// Detect compares prev and curr, both already canonicalized, and reports
// the numeric progression between them if one exists. Both URLs must
// share host:port, the same path-segment count, and the same query key
// set in the same order (spec §4.F); exactly one token position — a path
// segment or a query value, in that concatenated order — may differ, and
// that difference must be a positive integer step.
func Detect(prev, curr urlutil.Canonical) (Pattern, bool) {
	if prev.Host != curr.Host || prev.Port != curr.Port {
		return Pattern{}, false
	}
	if len(prev.Segments) != len(curr.Segments) {
		return Pattern{}, false
	}

	prevSortedQuery := prev.SortedQuery()
	currSortedQuery := curr.SortedQuery()
	if len(prevSortedQuery) != len(currSortedQuery) {
		return Pattern{}, false
	}
	for i := range prevSortedQuery {
		if prevSortedQuery[i].Key != currSortedQuery[i].Key {
			return Pattern{}, false
		}
	}

	prevTokens := tokensOf(prev.Segments, prevSortedQuery)
	currTokens := tokensOf(curr.Segments, currSortedQuery)

	diffIndex := -1
	for i := range prevTokens {
		if prevTokens[i] != currTokens[i] {
			if diffIndex != -1 {
				return Pattern{}, false
			}
			diffIndex = i
		}
	}
	if diffIndex == -1 {
		return Pattern{}, false
	}

	prevNum, errPrev := strconv.Atoi(prevTokens[diffIndex])
	currNum, errCurr := strconv.Atoi(currTokens[diffIndex])
	if errPrev != nil || errCurr != nil {
		return Pattern{}, false
	}

	step := currNum - prevNum
	if step <= 0 {
		return Pattern{}, false
	}

	return Pattern{TokenIndex: diffIndex, Step: step, CurrentNumber: currNum}, true
}

func tokensOf(segments []string, sortedQuery []urlutil.QueryPair) []string {
	tokens := make([]string, 0, len(segments)+len(sortedQuery))
	tokens = append(tokens, segments...)
	for _, pair := range sortedQuery {
		tokens = append(tokens, pair.Value)
	}
	return tokens
}

// Generate produces n predicted URLs following pattern from curr,
// substituting pattern.TokenIndex with CurrentNumber + k*Step for
// k = 1..n.
func Generate(curr urlutil.Canonical, pattern Pattern, n int) []urlutil.Canonical {
	if n <= 0 {
		return nil
	}
	predicted := make([]urlutil.Canonical, 0, n)
	for k := 1; k <= n; k++ {
		nextValue := pattern.CurrentNumber + k*pattern.Step
		predicted = append(predicted, substitute(curr, pattern.TokenIndex, strconv.Itoa(nextValue)))
	}
	return predicted
}

func substitute(curr urlutil.Canonical, tokenIndex int, newValue string) urlutil.Canonical {
	result := curr
	segmentCount := len(curr.Segments)

	if tokenIndex < segmentCount {
		segments := make([]string, segmentCount)
		copy(segments, curr.Segments)
		segments[tokenIndex] = newValue
		result.Segments = segments
		return result
	}

	sortedQuery := curr.SortedQuery()
	targetKey := sortedQuery[tokenIndex-segmentCount].Key

	query := make([]urlutil.QueryPair, len(curr.Query))
	copy(query, curr.Query)
	for i, pair := range query {
		if pair.Key == targetKey {
			query[i].Value = newValue
			break
		}
	}
	result.Query = query
	return result
}

// ShouldDiscardPredicted reports whether a resolved predicted URL's page
// record must be discarded rather than persisted: any non-2xx/3xx status,
// per spec §4.F and §8 ("no Page record for v is persisted").
func ShouldDiscardPredicted(source frontier.DiscoverySource, statusCode int) bool {
	if source != frontier.SourcePredicted {
		return false
	}
	return statusCode < 200 || statusCode >= 400
}

// BatchTracker remembers the most recently observed anchor URL for each
// pagination "shape" — its host:port plus its path/query tokens with any
// purely-numeric token collapsed to a placeholder — so Detect can be given
// true predecessor/current pairs regardless of which page discovered
// either one. Spec §4.F's progression is page-to-page by nature (scenario
// 1: "/p/" links to "/p/page/1"; "/p/page/1" links to "/p/page/2"), so the
// lookup is keyed by URL shape, not by the referring page, which would
// never see two same-pattern anchors on one page's own anchor list. It
// lives outside the frontier, which deliberately knows nothing about
// pagination (spec's frontier responsibilities note).
type BatchTracker struct {
	mu   sync.Mutex
	last map[string]urlutil.Canonical
}

// NewBatchTracker returns an empty tracker.
func NewBatchTracker() *BatchTracker {
	return &BatchTracker{last: make(map[string]urlutil.Canonical)}
}

// Observe records candidate as the latest anchor seen for its shape and
// returns the previously observed same-shape candidate, if any. Callers
// should invoke this once per newly discovered anchor, in discovery
// order, to get meaningful predecessor/current pairs. Safe for concurrent
// use, since anchors from different pages may be processed concurrently.
func (t *BatchTracker) Observe(candidate urlutil.Canonical) (urlutil.Canonical, bool) {
	key := shapeKey(candidate)

	t.mu.Lock()
	defer t.mu.Unlock()
	previous, ok := t.last[key]
	t.last[key] = candidate
	return previous, ok
}

// Reset discards all tracked predecessors, called once per crawl session.
func (t *BatchTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[string]urlutil.Canonical)
}

// shapeKey groups URLs that could be consecutive members of the same
// numeric progression: same host:port, same segment count, same query key
// set, with every purely-numeric token collapsed to "#" so the one token
// that is expected to vary does not itself split the grouping.
func shapeKey(u urlutil.Canonical) string {
	parts := make([]string, 0, len(u.Segments)+len(u.Query)+1)
	parts = append(parts, u.Host+":"+u.Port)
	for _, seg := range u.Segments {
		parts = append(parts, shapeToken(seg))
	}
	for _, pair := range u.SortedQuery() {
		parts = append(parts, pair.Key+"="+shapeToken(pair.Value))
	}
	return strings.Join(parts, "/")
}

func shapeToken(s string) string {
	if _, err := strconv.Atoi(s); err == nil {
		return "#"
	}
	return s
}
