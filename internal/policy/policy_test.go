package policy

import (
	"testing"
	"time"
)

func TestAdmit(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		current    string
		candidate  string
		want       bool
		wantReason Reason
	}{
		{name: "none never admits", policy: Policy{Kind: KindNone}, current: "1.0.0", candidate: "1.0.1", want: false, wantReason: ReasonPolicyNone},
		{name: "patch admits patch", policy: Policy{Kind: KindPatch}, current: "1.25.0", candidate: "1.25.1", want: true},
		{name: "patch blocks minor", policy: Policy{Kind: KindPatch}, current: "1.25.0", candidate: "1.26.0", want: false, wantReason: ReasonChangeTooLarge},
		{name: "patch blocks downgrade", policy: Policy{Kind: KindPatch}, current: "1.25.1", candidate: "1.25.0", want: false, wantReason: ReasonNotNewer},
		{name: "minor admits patch", policy: Policy{Kind: KindMinor}, current: "1.25.0", candidate: "1.25.1", want: true},
		{name: "minor admits minor", policy: Policy{Kind: KindMinor}, current: "1.25.0", candidate: "1.26.0", want: true},
		{name: "minor blocks major", policy: Policy{Kind: KindMinor}, current: "1.25.0", candidate: "2.0.0", want: false, wantReason: ReasonChangeTooLarge},
		{name: "major admits major", policy: Policy{Kind: KindMajor}, current: "1.25.0", candidate: "2.0.0", want: true},
		{name: "major blocks downgrade", policy: Policy{Kind: KindMajor}, current: "2.0.0", candidate: "1.25.0", want: false, wantReason: ReasonNotNewer},
		{name: "semver policy rejects opaque", policy: Policy{Kind: KindMinor}, current: "1.25.0", candidate: "latest", want: false, wantReason: ReasonIncomparable},
		{name: "all admits newer", policy: Policy{Kind: KindAll}, current: "1.25.0", candidate: "2.0.0", want: true},
		{name: "all blocks older", policy: Policy{Kind: KindAll}, current: "2.0.0", candidate: "1.25.0", want: false, wantReason: ReasonNotNewer},
		{name: "all admits differing opaque", policy: Policy{Kind: KindAll}, current: "1.25.0", candidate: "latest", want: true},
		{name: "glob admits matching newer", policy: Policy{Kind: KindGlob, Pattern: "v1.*-stable"}, current: "v1.5-stable", candidate: "v1.10-stable", want: true},
		{name: "glob blocks non-matching", policy: Policy{Kind: KindGlob, Pattern: "v1.*-stable"}, current: "v1.5-stable", candidate: "v2.0-stable", want: false, wantReason: ReasonPatternMismatch},
		{name: "glob without pattern rejects", policy: Policy{Kind: KindGlob}, current: "1.0.0", candidate: "1.0.1", want: false, wantReason: ReasonPatternMismatch},
		{name: "force admits downgrade", policy: Policy{Kind: KindForce}, current: "2.0.0", candidate: "1.0.0", want: true},
		{name: "equal always rejected", policy: Policy{Kind: KindForce}, current: "1.0.0", candidate: "1.0.0", want: false, wantReason: ReasonEqual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := tt.policy.Admit(tt.current, tt.candidate)
			if got != tt.want {
				t.Fatalf("Admit(%q, %q) = %v, want %v (reason %q)", tt.current, tt.candidate, got, tt.want, reason)
			}
			if !tt.want && reason != tt.wantReason {
				t.Errorf("Admit(%q, %q) reason = %q, want %q", tt.current, tt.candidate, reason, tt.wantReason)
			}
		})
	}
}

// Policy ordering: none ⊂ patch ⊂ minor ⊂ major ⊂ all as subsets of
// admitted transitions over a fixed candidate grid.
func TestPolicyOrdering(t *testing.T) {
	kinds := []Kind{KindNone, KindPatch, KindMinor, KindMajor, KindAll}
	current := "1.25.0"
	candidates := []string{"1.25.1", "1.25.2", "1.26.0", "1.27.3", "2.0.0", "3.1.4"}

	admitted := func(k Kind, candidate string) bool {
		ok, _ := Policy{Kind: k}.Admit(current, candidate)
		return ok
	}

	for i := 1; i < len(kinds); i++ {
		weaker, stronger := kinds[i-1], kinds[i]
		for _, c := range candidates {
			if admitted(weaker, c) && !admitted(stronger, c) {
				t.Errorf("policy %s admits %s but %s does not; ordering violated", weaker, c, stronger)
			}
		}
	}
}

// Monotonicity: if a semver policy admits v1 from v0, it admits any v2 > v1
// of the same change class or smaller.
func TestPolicyMonotonicity(t *testing.T) {
	current := "1.2.0"
	chains := [][2]string{{"1.2.1", "1.2.9"}, {"1.3.0", "1.9.0"}, {"2.0.0", "9.0.0"}}

	for _, k := range []Kind{KindPatch, KindMinor, KindMajor, KindAll} {
		p := Policy{Kind: k}
		for _, chain := range chains {
			lo, hi := chain[0], chain[1]
			loOK, _ := p.Admit(current, lo)
			hiOK, _ := p.Admit(current, hi)
			if loOK && !hiOK {
				t.Errorf("policy %s admits %s but not greater %s", k, lo, hi)
			}
		}
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		current    string
		candidates []string
		want       string
		wantOK     bool
	}{
		{
			name:       "minor picks greatest admissible",
			policy:     Policy{Kind: KindMinor},
			current:    "1.25.0",
			candidates: []string{"1.25.1", "1.26.0", "2.0.0"},
			want:       "1.26.0",
			wantOK:     true,
		},
		{
			name:       "glob picks greatest matching",
			policy:     Policy{Kind: KindGlob, Pattern: "v1.*-stable"},
			current:    "v1.5-stable",
			candidates: []string{"v1.10-stable", "v2.0-stable", "v1.5-beta"},
			want:       "v1.10-stable",
			wantOK:     true,
		},
		{
			name:       "nothing admissible",
			policy:     Policy{Kind: KindPatch},
			current:    "1.25.0",
			candidates: []string{"1.24.0", "1.25.0"},
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.policy.Select(tt.current, tt.candidates)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Select() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFromAnnotations(t *testing.T) {
	t.Run("unmanaged without policy annotation", func(t *testing.T) {
		if _, managed := FromAnnotations(map[string]string{"foo": "bar"}); managed {
			t.Error("expected workload without policy annotation to be unmanaged")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		p, managed := FromAnnotations(map[string]string{AnnotationPolicy: "minor"})
		if !managed {
			t.Fatal("expected managed workload")
		}
		if p.Kind != KindMinor {
			t.Errorf("Kind = %v, want minor", p.Kind)
		}
		if !p.RequireApproval {
			t.Error("RequireApproval should default to true")
		}
		if p.MinUpdateInterval != 300*time.Second {
			t.Errorf("MinUpdateInterval = %v, want 300s", p.MinUpdateInterval)
		}
		if p.EventSource != SourceWebhook {
			t.Errorf("EventSource = %v, want webhook", p.EventSource)
		}
		if p.RollbackTimeout != 300*time.Second || p.HealthCheckRetries != 3 {
			t.Errorf("rollback defaults wrong: %v / %d", p.RollbackTimeout, p.HealthCheckRetries)
		}
	})

	t.Run("full annotation set", func(t *testing.T) {
		p, _ := FromAnnotations(map[string]string{
			AnnotationPolicy:             "glob",
			AnnotationPattern:            "v1.*",
			AnnotationRequireApproval:    "false",
			AnnotationMinUpdateInterval:  "60",
			AnnotationImages:             "nginx, ghcr.io/acme/api",
			AnnotationEventSource:        "both",
			AnnotationPollingInterval:    "120",
			AnnotationAutoRollback:       "true",
			AnnotationRollbackTimeout:    "600",
			AnnotationHealthCheckRetries: "5",
		})
		if p.Kind != KindGlob || p.Pattern != "v1.*" {
			t.Errorf("glob parse wrong: %v %q", p.Kind, p.Pattern)
		}
		if p.RequireApproval {
			t.Error("RequireApproval should be false")
		}
		if p.MinUpdateInterval != time.Minute || p.PollingInterval != 2*time.Minute {
			t.Errorf("intervals wrong: %v %v", p.MinUpdateInterval, p.PollingInterval)
		}
		if len(p.TrackedImages) != 2 {
			t.Fatalf("TrackedImages = %v", p.TrackedImages)
		}
		if p.EventSource != SourceBoth {
			t.Errorf("EventSource = %v", p.EventSource)
		}
		if !p.AutoRollback || p.RollbackTimeout != 10*time.Minute || p.HealthCheckRetries != 5 {
			t.Errorf("rollback config wrong: %v %v %d", p.AutoRollback, p.RollbackTimeout, p.HealthCheckRetries)
		}
	})

	t.Run("unknown policy falls back to none", func(t *testing.T) {
		p, managed := FromAnnotations(map[string]string{AnnotationPolicy: "yolo"})
		if !managed || p.Kind != KindNone {
			t.Errorf("unknown policy: managed=%v kind=%v, want managed none", managed, p.Kind)
		}
	})

	t.Run("malformed scalars keep defaults", func(t *testing.T) {
		p, _ := FromAnnotations(map[string]string{
			AnnotationPolicy:            "all",
			AnnotationMinUpdateInterval: "soon",
			AnnotationRequireApproval:   "yep",
		})
		if p.MinUpdateInterval != DefaultMinUpdateInterval || !p.RequireApproval {
			t.Errorf("malformed values should keep defaults: %v %v", p.MinUpdateInterval, p.RequireApproval)
		}
	})
}

func TestTracksImage(t *testing.T) {
	p := Policy{TrackedImages: []string{"nginx", "ghcr.io/acme/api"}}

	tests := []struct {
		repo string
		want bool
	}{
		{"nginx", true},
		{"docker.io/library/nginx", true},
		{"nginx:1.25", true},
		{"ghcr.io/acme/api", true},
		{"ghcr.io/acme/web", false},
	}
	for _, tt := range tests {
		if got := p.TracksImage(tt.repo); got != tt.want {
			t.Errorf("TracksImage(%q) = %v, want %v", tt.repo, got, tt.want)
		}
	}

	if !(Policy{}).TracksImage("anything/at/all") {
		t.Error("empty tracked set should track everything")
	}
}
