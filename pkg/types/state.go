package types

import (
	"encoding/json"
	"fmt"
	"slices"
)

// TagInfo is the observable identity of a tag at a point in time.
//
// Two values are equivalent iff their digests are equal; LastModified is informational only.
type TagInfo struct {
	Digest       string `json:"digest"`                  // Manifest digest (e.g., "sha256:abc...").
	LastModified string `json:"last_modified,omitempty"` // Last-Modified header as returned by the registry.
}

// SameAs reports whether two TagInfo values point at the same manifest.
func (t TagInfo) SameAs(other TagInfo) bool {
	return t.Digest == other.Digest
}

// RepositoryState holds the known tags of one repository and the tags confirmed absent.
//
// A tag name is never present in both Tags and NotFound.
type RepositoryState struct {
	Tags     map[string]TagInfo `json:"tags"`      // Known tags and their last observed identity.
	NotFound []string           `json:"not_found"` // Tags confirmed absent on the last check that queried them.
}

// GlobalState maps repository names to their state. It is the sole persisted entity.
type GlobalState map[string]RepositoryState

// NewRepositoryState returns an empty state with initialized collections.
func NewRepositoryState() RepositoryState {
	return RepositoryState{
		Tags:     map[string]TagInfo{},
		NotFound: []string{},
	}
}

// IsNotFound reports whether the tag is recorded as confirmed absent.
func (s RepositoryState) IsNotFound(tag string) bool {
	return slices.Contains(s.NotFound, tag)
}

// Clone returns a deep copy of the state.
func (s RepositoryState) Clone() RepositoryState {
	clone := RepositoryState{
		Tags:     make(map[string]TagInfo, len(s.Tags)),
		NotFound: make([]string, len(s.NotFound)),
	}

	for tag, info := range s.Tags {
		clone.Tags[tag] = info
	}

	copy(clone.NotFound, s.NotFound)

	return clone
}

// legacyRepositoryState is the single-latest-tag shape written by earlier releases.
type legacyRepositoryState struct {
	Tag          string `json:"tag"`
	Digest       string `json:"digest"`
	LastModified string `json:"last_modified"`
}

// UnmarshalJSON decodes a repository state, accepting the legacy single-tag shape.
//
// Legacy entries ({"tag": ..., "digest": ...}) are converted into a state holding that single tag.
func (s *RepositoryState) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("failed to decode repository state: %w", err)
	}

	_, hasTags := keys["tags"]
	_, hasNotFound := keys["not_found"]
	_, hasTag := keys["tag"]

	if !hasTags && !hasNotFound && hasTag {
		var legacy legacyRepositoryState
		if err := json.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("failed to decode legacy repository state: %w", err)
		}

		*s = NewRepositoryState()
		if legacy.Tag != "" && legacy.Digest != "" {
			s.Tags[legacy.Tag] = TagInfo{Digest: legacy.Digest, LastModified: legacy.LastModified}
		}

		return nil
	}

	// Alias drops the method set so the default decoder is used.
	type alias RepositoryState

	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to decode repository state: %w", err)
	}

	*s = RepositoryState(decoded)
	s.normalize()

	return nil
}

// MarshalJSON encodes the state with sorted, non-nil collections.
func (s RepositoryState) MarshalJSON() ([]byte, error) {
	type alias RepositoryState

	out := s.Clone()
	out.normalize()

	data, err := json.Marshal(alias(out))
	if err != nil {
		return nil, fmt.Errorf("failed to encode repository state: %w", err)
	}

	return data, nil
}

// normalize initializes nil collections, sorts and de-duplicates NotFound and enforces
// that no tag is both known and absent.
func (s *RepositoryState) normalize() {
	if s.Tags == nil {
		s.Tags = map[string]TagInfo{}
	}

	notFound := make([]string, 0, len(s.NotFound))

	for _, tag := range s.NotFound {
		if _, known := s.Tags[tag]; known {
			continue
		}

		notFound = append(notFound, tag)
	}

	slices.Sort(notFound)
	s.NotFound = slices.Compact(notFound)
}
