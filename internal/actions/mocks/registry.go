package mocks

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/containerd/errdefs"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Registry is an in-memory implementation of types.Registry for tests.
// Tags without a configured manifest answer FetchTag with a not-found error.
type Registry struct {
	mu          sync.Mutex
	tags        map[string][]string
	listErrors  map[string]error
	manifests   map[string]types.TagInfo
	fetchErrors map[string]error
	listCalls   []string
	fetchCalls  []string
	// OnFetch, when set, is called before every FetchTag.
	OnFetch func(repository, tag string)
}

// NewRegistry creates an empty mock registry.
func NewRegistry() *Registry {
	return &Registry{
		tags:        map[string][]string{},
		listErrors:  map[string]error{},
		manifests:   map[string]types.TagInfo{},
		fetchErrors: map[string]error{},
	}
}

// SetTags sets the tag listing of a repository.
func (r *Registry) SetTags(repository string, tags ...string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tags[repository] = tags

	return r
}

// SetListError makes ListTags fail for a repository.
func (r *Registry) SetListError(repository string, err error) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listErrors[repository] = err

	return r
}

// SetManifest makes FetchTag resolve a tag to a digest.
func (r *Registry) SetManifest(repository, tag, digest string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.manifests[key(repository, tag)] = types.TagInfo{Digest: digest}
	delete(r.fetchErrors, key(repository, tag))

	return r
}

// SetFetchError makes FetchTag fail for a tag.
func (r *Registry) SetFetchError(repository, tag string, err error) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetchErrors[key(repository, tag)] = err

	return r
}

// RemoveManifest makes FetchTag answer not found for a tag.
func (r *Registry) RemoveManifest(repository, tag string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.manifests, key(repository, tag))
	delete(r.fetchErrors, key(repository, tag))

	return r
}

// ListCalls returns the repositories passed to ListTags, in call order.
func (r *Registry) ListCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.listCalls)
}

// FetchCalls returns the "repository:tag" pairs passed to FetchTag, in call order.
func (r *Registry) FetchCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.fetchCalls)
}

// ResetCalls clears the recorded calls.
func (r *Registry) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listCalls = nil
	r.fetchCalls = nil
}

// ListTags returns the configured listing of a repository.
func (r *Registry) ListTags(ctx context.Context, repository string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.listCalls = append(r.listCalls, repository)

	if err := r.listErrors[repository]; err != nil {
		return nil, err
	}

	return slices.Clone(r.tags[repository]), nil
}

// FetchTag returns the configured manifest of a tag.
func (r *Registry) FetchTag(ctx context.Context, repository, tag string) (types.TagInfo, error) {
	if r.OnFetch != nil {
		r.OnFetch(repository, tag)
	}

	if err := ctx.Err(); err != nil {
		return types.TagInfo{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetchCalls = append(r.fetchCalls, key(repository, tag))

	if err := r.fetchErrors[key(repository, tag)]; err != nil {
		return types.TagInfo{}, err
	}

	info, ok := r.manifests[key(repository, tag)]
	if !ok {
		return types.TagInfo{}, fmt.Errorf("%w: manifest %s", errdefs.ErrNotFound, key(repository, tag))
	}

	return info, nil
}

func key(repository, tag string) string {
	return repository + ":" + tag
}
