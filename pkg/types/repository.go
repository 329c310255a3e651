package types

// RepositoryConfig describes one repository to watch.
//
// A nil or empty Tags slice means no explicit selection; the selector mode then decides
// whether all available tags or only the latest one are evaluated.
type RepositoryConfig struct {
	Name string   `json:"name"`           // Repository path on the registry (e.g., "windows/servercore").
	Tags []string `json:"tags,omitempty"` // Exact tag names or shell-glob patterns.
}

// HasSelector reports whether the repository restricts evaluation to explicit tags or patterns.
func (r RepositoryConfig) HasSelector() bool {
	return len(r.Tags) > 0
}
