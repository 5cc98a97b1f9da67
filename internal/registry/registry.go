package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	gocache "github.com/patrickmn/go-cache"
)

// TagLister enumerates the available tags of an image repository. The
// polling dispatcher consumes this interface; tests substitute fakes.
type TagLister interface {
	ListTags(ctx context.Context, image string) ([]string, error)
}

const defaultQueryTimeout = 30 * time.Second

// Client lists tags from container registries, authenticating via the
// ambient keychain (imagePullSecrets resolution is the kubelet's problem;
// the controller uses the default keychain the same way promotion tooling
// does). Tag lists are cached briefly so several workloads tracking the
// same repository within one polling cycle share a single query.
type Client struct {
	timeout time.Duration
	cache   *gocache.Cache
}

// NewClient builds a Client with the given tag-list cache TTL.
func NewClient(cacheTTL time.Duration) *Client {
	return &Client{
		timeout: defaultQueryTimeout,
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// ListTags returns all tags of the repository the image reference points at.
func (c *Client) ListTags(ctx context.Context, image string) ([]string, error) {
	ref, err := name.ParseReference(image, name.WeakValidation)
	if err != nil {
		return nil, fmt.Errorf("parsing image reference %q: %w", image, err)
	}
	repo := ref.Context()

	if cached, ok := c.cache.Get(repo.Name()); ok {
		return cached.([]string), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tags, err := remote.List(repo,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	)
	if err != nil {
		return nil, fmt.Errorf("listing tags for %q: %w", repo.Name(), err)
	}

	c.cache.Set(repo.Name(), tags, gocache.DefaultExpiration)
	return tags, nil
}
