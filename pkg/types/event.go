package types

// ChangeKind classifies a detected change.
type ChangeKind string

const (
	// ChangeNew marks a tag that had no previously known digest.
	ChangeNew ChangeKind = "NEW"
	// ChangeUpdated marks a known tag whose digest changed.
	ChangeUpdated ChangeKind = "UPDATED"
)

// ChangeEvent is a single change detected during a run. Events are never persisted.
type ChangeEvent struct {
	Kind           ChangeKind `json:"kind"`
	Repository     string     `json:"repository"`
	Tag            string     `json:"tag"`
	Digest         string     `json:"digest"`
	PreviousDigest string     `json:"previous_digest,omitempty"`
	LastModified   string     `json:"last_modified,omitempty"`
}

// Summary aggregates the counters of a run.
type Summary struct {
	Repositories       int `json:"repositories"`        // Repositories processed.
	RepositoriesFailed int `json:"repositories_failed"` // Repositories whose tag listing failed.
	TagsChecked        int `json:"tags_checked"`        // Manifest lookups issued.
	TagsSkipped        int `json:"tags_skipped"`        // Selected tags skipped as previously not found.
	New                int `json:"new"`                 // NEW events.
	Updated            int `json:"updated"`             // UPDATED events.
	NotFound           int `json:"not_found"`           // Lookups answered with not-found.
	Unknown            int `json:"unknown"`             // Lookups that failed for any other reason.
}

// Changes returns the number of change events counted in the summary.
func (s Summary) Changes() int {
	return s.New + s.Updated
}

// Add accumulates another summary into this one.
func (s *Summary) Add(other Summary) {
	s.Repositories += other.Repositories
	s.RepositoriesFailed += other.RepositoriesFailed
	s.TagsChecked += other.TagsChecked
	s.TagsSkipped += other.TagsSkipped
	s.New += other.New
	s.Updated += other.Updated
	s.NotFound += other.NotFound
	s.Unknown += other.Unknown
}
