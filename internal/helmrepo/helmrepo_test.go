package helmrepo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testIndex = `apiVersion: v1
entries:
  podinfo:
    - version: 6.5.0
    - version: 6.4.1
    - version: 6.4.0
  other-chart:
    - version: 1.0.0
`

func TestListVersionsClassic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index.yaml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(testIndex))
	}))
	defer server.Close()

	client := NewClient(nil)
	versions, err := client.ListVersions(context.Background(), server.URL, "podinfo")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("got %d versions, want 3: %v", len(versions), versions)
	}
	if versions[0] != "6.5.0" {
		t.Errorf("versions[0] = %q, want 6.5.0", versions[0])
	}
}

func TestListVersionsClassicChartMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testIndex))
	}))
	defer server.Close()

	client := NewClient(nil)
	if _, err := client.ListVersions(context.Background(), server.URL, "missing"); err == nil {
		t.Error("expected error for unknown chart")
	}
}

func TestListVersionsClassicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "robot" || pass != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(testIndex))
	}))
	defer server.Close()

	client := NewClient(func(string) *Credentials {
		return &Credentials{Username: "robot", Password: "hunter2"}
	})
	versions, err := client.ListVersions(context.Background(), server.URL, "other-chart")
	if err != nil {
		t.Fatalf("ListVersions with credentials: %v", err)
	}
	if len(versions) != 1 || versions[0] != "1.0.0" {
		t.Errorf("versions = %v, want [1.0.0]", versions)
	}
}

func TestListVersionsInvalidScheme(t *testing.T) {
	client := NewClient(nil)
	if _, err := client.ListVersions(context.Background(), "ftp://charts.example.com", "x"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
