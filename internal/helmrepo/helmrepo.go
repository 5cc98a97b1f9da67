package helmrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"gopkg.in/yaml.v3"
	"resty.dev/v3"
)

// VersionLister enumerates the available versions of a chart. Candidate
// sets for HelmRelease slots come only from the chart repository the
// release references; container registries are never consulted for charts.
type VersionLister interface {
	ListVersions(ctx context.Context, repoURL, chart string) ([]string, error)
}

// Credentials authenticate against a private chart repository.
type Credentials struct {
	Username string
	Password string
}

// Client resolves chart versions from classic (HTTP index.yaml) and OCI
// chart repositories.
type Client struct {
	http  *resty.Client
	creds func(repoURL string) *Credentials
}

// NewClient builds a chart repository client. credentials may be nil for
// anonymous access; when set it is consulted per repository URL.
func NewClient(credentials func(repoURL string) *Credentials) *Client {
	httpClient := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Client{http: httpClient, creds: credentials}
}

// index mirrors the subset of a Helm repository index.yaml we consume.
type index struct {
	Entries map[string][]struct {
		Version string `yaml:"version"`
	} `yaml:"entries"`
}

// ListVersions returns every published version of the chart. For classic
// repositories the chart name selects the entry inside index.yaml; for
// oci:// URLs the repository itself identifies the chart and versions are
// its tags.
func (c *Client) ListVersions(ctx context.Context, repoURL, chart string) ([]string, error) {
	switch {
	case strings.HasPrefix(repoURL, "http://"), strings.HasPrefix(repoURL, "https://"):
		return c.listClassic(ctx, repoURL, chart)
	case strings.HasPrefix(repoURL, "oci://"):
		return c.listOCI(ctx, repoURL)
	}
	return nil, fmt.Errorf("chart repository URL %q is invalid", repoURL)
}

func (c *Client) listClassic(ctx context.Context, repoURL, chart string) ([]string, error) {
	indexURL := strings.TrimSuffix(repoURL, "/") + "/index.yaml"

	req := c.http.R().SetContext(ctx)
	if c.creds != nil {
		if creds := c.creds(repoURL); creds != nil {
			req.SetBasicAuth(creds.Username, creds.Password)
		}
	}

	resp, err := req.Get(indexURL)
	if err != nil {
		return nil, fmt.Errorf("fetching chart index %q: %w", indexURL, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("chart index %q returned status %d", indexURL, resp.StatusCode())
	}

	var idx index
	if err := yaml.Unmarshal([]byte(resp.String()), &idx); err != nil {
		return nil, fmt.Errorf("parsing chart index %q: %w", indexURL, err)
	}

	entries, ok := idx.Entries[chart]
	if !ok {
		return nil, fmt.Errorf("chart %q not found in repository %q", chart, repoURL)
	}

	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Version != "" {
			versions = append(versions, e.Version)
		}
	}
	return versions, nil
}

func (c *Client) listOCI(ctx context.Context, repoURL string) ([]string, error) {
	ref := strings.TrimPrefix(repoURL, "oci://")
	repo, err := name.NewRepository(ref, name.WeakValidation)
	if err != nil {
		return nil, fmt.Errorf("parsing OCI chart repository %q: %w", repoURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tags, err := remote.List(repo,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	)
	if err != nil {
		return nil, fmt.Errorf("listing chart versions for %q: %w", repoURL, err)
	}
	return tags, nil
}
