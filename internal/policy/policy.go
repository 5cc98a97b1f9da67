package policy

import (
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/headwind-sh/headwind/internal/version"
)

// Annotation keys read from and written to managed workloads.
const (
	AnnotationPolicy             = "headwind.sh/policy"
	AnnotationPattern            = "headwind.sh/pattern"
	AnnotationRequireApproval    = "headwind.sh/require-approval"
	AnnotationMinUpdateInterval  = "headwind.sh/min-update-interval"
	AnnotationImages             = "headwind.sh/images"
	AnnotationEventSource        = "headwind.sh/event-source"
	AnnotationPollingInterval    = "headwind.sh/polling-interval"
	AnnotationAutoRollback       = "headwind.sh/auto-rollback"
	AnnotationRollbackTimeout    = "headwind.sh/rollback-timeout"
	AnnotationHealthCheckRetries = "headwind.sh/health-check-retries"

	// Controller-written annotations.
	AnnotationLastUpdate    = "headwind.sh/last-update"
	AnnotationUpdateHistory = "headwind.sh/update-history"
)

// Kind is the update policy applied to a workload.
type Kind string

const (
	KindNone  Kind = "none"
	KindPatch Kind = "patch"
	KindMinor Kind = "minor"
	KindMajor Kind = "major"
	KindAll   Kind = "all"
	KindGlob  Kind = "glob"
	KindForce Kind = "force"
)

// EventSource selects which discovery paths feed a workload.
type EventSource string

const (
	SourceWebhook EventSource = "webhook"
	SourcePolling EventSource = "polling"
	SourceBoth    EventSource = "both"
	SourceNone    EventSource = "none"
)

// Reason explains why a candidate was not admitted.
type Reason string

const (
	ReasonPolicyNone      Reason = "policy-none"
	ReasonEqual           Reason = "equal"
	ReasonNotNewer        Reason = "not-newer"
	ReasonIncomparable    Reason = "incomparable"
	ReasonPatternMismatch Reason = "pattern-mismatch"
	ReasonChangeTooLarge  Reason = "change-exceeds-policy"
)

// Defaults mirrored from the workload annotation contract.
const (
	DefaultMinUpdateInterval  = 300 * time.Second
	DefaultRollbackTimeout    = 300 * time.Second
	DefaultHealthCheckRetries = 3
)

// Policy is the per-workload update configuration parsed from annotations.
type Policy struct {
	Kind    Kind
	Pattern string

	RequireApproval   bool
	MinUpdateInterval time.Duration
	TrackedImages     []string

	EventSource     EventSource
	PollingInterval time.Duration // 0 means the global polling interval

	AutoRollback       bool
	RollbackTimeout    time.Duration
	HealthCheckRetries int
}

// Default returns the policy applied when annotations are absent or invalid.
func Default() Policy {
	return Policy{
		Kind:               KindNone,
		RequireApproval:    true,
		MinUpdateInterval:  DefaultMinUpdateInterval,
		EventSource:        SourceWebhook,
		RollbackTimeout:    DefaultRollbackTimeout,
		HealthCheckRetries: DefaultHealthCheckRetries,
	}
}

// ParseKind parses a policy name. Unknown names fall back to none; the
// second return reports whether the name was recognized.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPatch:
		return KindPatch, true
	case KindMinor:
		return KindMinor, true
	case KindMajor:
		return KindMajor, true
	case KindAll:
		return KindAll, true
	case KindGlob:
		return KindGlob, true
	case KindForce:
		return KindForce, true
	case KindNone:
		return KindNone, true
	}
	return KindNone, false
}

// ParseEventSource parses an event-source name, defaulting to webhook.
func ParseEventSource(s string) (EventSource, bool) {
	switch EventSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourcePolling:
		return SourcePolling, true
	case SourceBoth:
		return SourceBoth, true
	case SourceNone:
		return SourceNone, true
	case SourceWebhook:
		return SourceWebhook, true
	}
	return SourceWebhook, false
}

// FromAnnotations builds the effective policy for a workload. The second
// return reports whether a headwind policy annotation was present at all;
// workloads without one are not managed. Malformed scalar values keep their
// defaults, matching the lenient annotation handling of the rest of the
// ecosystem.
func FromAnnotations(ann map[string]string) (Policy, bool) {
	p := Default()
	raw, ok := ann[AnnotationPolicy]
	if !ok {
		return p, false
	}

	p.Kind, _ = ParseKind(raw)
	p.Pattern = ann[AnnotationPattern]

	if v, ok := ann[AnnotationRequireApproval]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.RequireApproval = b
		}
	}
	if d, ok := parseSeconds(ann[AnnotationMinUpdateInterval]); ok {
		p.MinUpdateInterval = d
	}
	if v, ok := ann[AnnotationImages]; ok {
		for _, img := range strings.Split(v, ",") {
			if img = strings.TrimSpace(img); img != "" {
				p.TrackedImages = append(p.TrackedImages, img)
			}
		}
	}
	if v, ok := ann[AnnotationEventSource]; ok {
		p.EventSource, _ = ParseEventSource(v)
	}
	if d, ok := parseSeconds(ann[AnnotationPollingInterval]); ok {
		p.PollingInterval = d
	}
	if v, ok := ann[AnnotationAutoRollback]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.AutoRollback = b
		}
	}
	if d, ok := parseSeconds(ann[AnnotationRollbackTimeout]); ok {
		p.RollbackTimeout = d
	}
	if v, ok := ann[AnnotationHealthCheckRetries]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.HealthCheckRetries = n
		}
	}

	return p, true
}

func parseSeconds(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// AcceptsWebhook reports whether webhook events feed this workload.
func (p Policy) AcceptsWebhook() bool {
	return p.EventSource == SourceWebhook || p.EventSource == SourceBoth
}

// AcceptsPolling reports whether polling feeds this workload.
func (p Policy) AcceptsPolling() bool {
	return p.EventSource == SourcePolling || p.EventSource == SourceBoth
}

// TracksImage reports whether the repository is tracked. An empty tracked
// set tracks everything. Comparison normalizes the implicit docker.io
// registry so "nginx" and "docker.io/library/nginx" line up.
func (p Policy) TracksImage(repository string) bool {
	if len(p.TrackedImages) == 0 {
		return true
	}
	want := NormalizeRepository(repository)
	for _, img := range p.TrackedImages {
		if NormalizeRepository(img) == want {
			return true
		}
	}
	return false
}

// NormalizeRepository strips an implicit docker.io registry and tag from an
// image reference, leaving a comparable repository path.
func NormalizeRepository(image string) string {
	repo := image
	// Drop a tag, but not a port in the registry host.
	if i := strings.LastIndex(repo, ":"); i > strings.LastIndex(repo, "/") {
		repo = repo[:i]
	}
	repo = strings.TrimPrefix(repo, "docker.io/")
	repo = strings.TrimPrefix(repo, "library/")
	return repo
}

// Admit decides whether candidate is an admissible update from current.
// A false return carries the rejection reason; admission reasons are not
// errors and are counted by the caller.
func (p Policy) Admit(current, candidate string) (bool, Reason) {
	if candidate == current {
		return false, ReasonEqual
	}

	switch p.Kind {
	case KindNone:
		return false, ReasonPolicyNone
	case KindForce:
		return true, ""
	}

	cur := version.Parse(current)
	cand := version.Parse(candidate)
	change := version.Classify(cur, cand)

	switch p.Kind {
	case KindPatch, KindMinor, KindMajor:
		switch change {
		case version.ChangeIncomparable:
			return false, ReasonIncomparable
		case version.ChangeEqual, version.ChangeDowngrade:
			return false, ReasonNotNewer
		case version.ChangePatch:
			return true, ""
		case version.ChangeMinor:
			if p.Kind == KindPatch {
				return false, ReasonChangeTooLarge
			}
			return true, ""
		case version.ChangeMajor:
			if p.Kind == KindMajor {
				return true, ""
			}
			return false, ReasonChangeTooLarge
		}

	case KindAll:
		return p.admitNewer(cur, cand)

	case KindGlob:
		if p.Pattern == "" {
			return false, ReasonPatternMismatch
		}
		matched, err := doublestar.Match(p.Pattern, candidate)
		if err != nil || !matched {
			return false, ReasonPatternMismatch
		}
		return p.admitNewer(cur, cand)
	}

	return false, ReasonPolicyNone
}

// admitNewer accepts strictly newer semver candidates; when either side is
// opaque, any differing candidate is accepted.
func (p Policy) admitNewer(cur, cand version.Version) (bool, Reason) {
	if cur.IsSemver() && cand.IsSemver() {
		if version.Compare(cand, cur) > 0 {
			return true, ""
		}
		return false, ReasonNotNewer
	}
	if cand.Raw != cur.Raw {
		return true, ""
	}
	return false, ReasonEqual
}

// Select runs Admit across a candidate set and returns the greatest
// admissible candidate by version ordering.
func (p Policy) Select(current string, candidates []string) (string, bool) {
	var (
		best    version.Version
		found   bool
		bestRaw string
	)
	for _, c := range candidates {
		ok, _ := p.Admit(current, c)
		if !ok {
			continue
		}
		v := version.Parse(c)
		if !found || version.Compare(v, best) > 0 {
			best, bestRaw, found = v, c, true
		}
	}
	return bestRaw, found
}
