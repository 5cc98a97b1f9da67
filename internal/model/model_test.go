package model

import "testing"

func TestSplitImage(t *testing.T) {
	tests := []struct {
		input    string
		wantRepo string
		wantTag  string
	}{
		{"nginx:1.25.0", "nginx", "1.25.0"},
		{"nginx", "nginx", ""},
		{"ghcr.io/acme/api:v2", "ghcr.io/acme/api", "v2"},
		{"registry:5000/app", "registry:5000/app", ""},
		{"registry:5000/app:1.0", "registry:5000/app", "1.0"},
	}
	for _, tt := range tests {
		repo, tag := SplitImage(tt.input)
		if repo != tt.wantRepo || tag != tt.wantTag {
			t.Errorf("SplitImage(%q) = (%q, %q), want (%q, %q)", tt.input, repo, tag, tt.wantRepo, tt.wantTag)
		}
	}
}

func TestJoinImage(t *testing.T) {
	if got := JoinImage("nginx", "1.25.0"); got != "nginx:1.25.0" {
		t.Errorf("JoinImage = %q", got)
	}
	if got := JoinImage("nginx", ""); got != "nginx" {
		t.Errorf("JoinImage without tag = %q", got)
	}
}

func TestImagePushEventRendering(t *testing.T) {
	hub := ImagePushEvent{Repository: "library/nginx", Tag: "1.26.0"}
	if got := hub.FullImage(); got != "library/nginx:1.26.0" {
		t.Errorf("FullImage = %q", got)
	}
	if got := hub.RepositoryRef(); got != "library/nginx" {
		t.Errorf("RepositoryRef = %q", got)
	}

	private := ImagePushEvent{Registry: "ghcr.io", Repository: "acme/api", Tag: "v2"}
	if got := private.FullImage(); got != "ghcr.io/acme/api:v2" {
		t.Errorf("FullImage = %q", got)
	}

	explicit := ImagePushEvent{Registry: "docker.io", Repository: "nginx", Tag: "1.26.0"}
	if got := explicit.FullImage(); got != "nginx:1.26.0" {
		t.Errorf("docker.io should render implicit: %q", got)
	}
}

func TestProposalKey(t *testing.T) {
	a := CandidateProposal{
		Workload: WorkloadRef{Kind: KindDeployment, Namespace: "default", Name: "web"},
		Slot:     "app",
	}
	b := a
	b.Candidate = "nginx:9.9.9"
	if a.Key() != b.Key() {
		t.Error("proposals for the same slot must share a coalescing key")
	}

	c := a
	c.Slot = "sidecar"
	if a.Key() == c.Key() {
		t.Error("different slots must not share a coalescing key")
	}
}

func TestChartPushEventOCIURL(t *testing.T) {
	ev := ChartPushEvent{Registry: "ghcr.io", Repository: "acme/charts/podinfo", Version: "6.5.0"}
	if got := ev.OCIURL(); got != "oci://ghcr.io/acme/charts/podinfo" {
		t.Errorf("OCIURL = %q", got)
	}
}
