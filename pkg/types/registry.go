package types

import "context"

// Registry abstracts the registry HTTP API used by the reconciliation engine.
type Registry interface {
	// ListTags returns the tags available for a repository. An error means the listing is unknown.
	ListTags(ctx context.Context, repository string) ([]string, error)
	// FetchTag returns the manifest metadata of a tag. A not-found condition is reported with an
	// error satisfying errdefs.IsNotFound; any other error means the result is unknown.
	FetchTag(ctx context.Context, repository, tag string) (TagInfo, error)
}

// StateStore persists and retrieves the global state.
type StateStore interface {
	// Load returns the persisted state, or an empty state when none exists yet.
	Load(ctx context.Context) (GlobalState, error)
	// Save replaces the persisted state with the given one.
	Save(ctx context.Context, state GlobalState) error
	// String describes the storage location for logging.
	String() string
}
