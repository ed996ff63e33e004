package orchestrator

import (
	"context"
	"time"

	"github.com/d-zero-dev/nitpicker-go/internal/exclude"
	"github.com/d-zero-dev/nitpicker-go/internal/frontier"
	"github.com/d-zero-dev/nitpicker-go/internal/robots"
	"github.com/d-zero-dev/nitpicker-go/internal/scope"
	"github.com/d-zero-dev/nitpicker-go/pkg/failure"
)

// admissionPolicy composes the scope matcher, exclusion filter, and robots
// gate (4.B-D) behind frontier.AdmissionPolicy, per spec §4.G: "reject if
// (robots denies) OR (exclusion filter matches) OR (depth beyond
// maxExcludedDepth for an external anchor) OR (URL is not HTTP/HTTPS and
// not a recognized scheme)." The frontier package itself never imports
// scope, exclude, or robots; only the orchestrator wires them together.
type admissionPolicy struct {
	scope            *scope.Scope
	exclude          *exclude.Filter
	robotsGate       *robots.Gate
	ignoreRobots     bool
	maxExcludedDepth int
}

func newAdmissionPolicy(s *scope.Scope, e *exclude.Filter, r *robots.Gate, ignoreRobots bool, maxExcludedDepth int) *admissionPolicy {
	return &admissionPolicy{
		scope:            s,
		exclude:          e,
		robotsGate:       r,
		ignoreRobots:     ignoreRobots,
		maxExcludedDepth: maxExcludedDepth,
	}
}

func (p *admissionPolicy) Admit(ctx context.Context, candidate frontier.Candidate) (bool, time.Duration, failure.ClassifiedError) {
	u := candidate.URL

	if !u.IsHTTP() {
		return false, 0, nil
	}
	if p.exclude.Excludes(u) {
		return false, 0, nil
	}
	if candidate.IsExternal && candidate.Depth > p.maxExcludedDepth {
		return false, 0, nil
	}
	if p.ignoreRobots {
		return true, 0, nil
	}

	allowed, crawlDelay, err := p.robotsGate.IsAllowed(ctx, u)
	if err != nil {
		// A robots fetch failure is non-fatal: it falls back to "no
		// restrictions" (spec §4.D, §7.4). The error is still returned so
		// the caller may log it, but admission proceeds as allowed.
		return true, 0, err
	}
	return allowed, crawlDelay, nil
}
