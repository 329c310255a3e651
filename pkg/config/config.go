// Package config loads the repositories document of tagwatch.
// The document is validated against an embedded JSON Schema, then every repository name,
// exact tag and tag pattern is checked before any network or state I/O happens.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/registry/manifest"
	"github.com/nicholas-fedor/tagwatch/pkg/selector"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// DefaultPath is the repositories document read when no path is configured.
const DefaultPath = "config.json"

// schemaResource is the name the embedded schema is registered under.
const schemaResource = "repositories.schema.json"

//go:embed repositories.schema.json
var schemaData []byte

// Errors for configuration loading.
var (
	// errSchemaViolation indicates the document does not match the schema.
	errSchemaViolation = errors.New("document does not match schema")
	// errInvalidEntry indicates a repository entry is neither a name nor a name-bearing object.
	errInvalidEntry = errors.New("invalid repository entry")
)

// Error is a configuration error. It is fatal and raised before any registry or state access.
type Error struct {
	Path string // Document path, empty for in-memory documents.
	Err  error  // Underlying cause.
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Path == "" {
		return "configuration error: " + e.Err.Error()
	}

	return fmt.Sprintf("configuration error in %s: %s", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Document is a loaded repositories document.
type Document struct {
	Registry     string                   // Registry override, empty for the default registry.
	Repositories []types.RepositoryConfig // Repositories in document order.
}

// repositoryEntry decodes an entry given either as a bare name or as an object.
type repositoryEntry types.RepositoryConfig

// UnmarshalJSON accepts "name" and {"name": ..., "tags": [...]}.
func (e *repositoryEntry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*e = repositoryEntry{Name: name}

		return nil
	}

	var object struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}

	if err := json.Unmarshal(data, &object); err != nil {
		return fmt.Errorf("%w: %w", errInvalidEntry, err)
	}

	*e = repositoryEntry{Name: object.Name, Tags: object.Tags}

	return nil
}

// rawDocument is the decoded form of the document.
type rawDocument struct {
	Registry string            `json:"registry"`
	Repos    []repositoryEntry `json:"repos"`
}

// Load reads and validates the repositories document at path.
//
// Parameters:
//   - path: Document path; empty selects DefaultPath.
//
// Returns:
//   - *Document: The validated document.
//   - error: A *Error for any missing, malformed or invalid document.
func Load(path string) (*Document, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	doc, err := Parse(data)
	if err != nil {
		var cfgErr *Error
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}

		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"path":         path,
		"repositories": len(doc.Repositories),
	}).Debug("Loaded repositories document")

	return doc, nil
}

// Parse validates a repositories document held in memory.
func Parse(data []byte) (*Document, error) {
	if err := validateSchema(data); err != nil {
		return nil, &Error{Err: err}
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Err: err}
	}

	doc := &Document{
		Registry:     strings.TrimSpace(raw.Registry),
		Repositories: make([]types.RepositoryConfig, 0, len(raw.Repos)),
	}

	seen := make(map[string]int, len(raw.Repos))

	for index, entry := range raw.Repos {
		repo := types.RepositoryConfig(entry)

		if first, ok := seen[repo.Name]; ok {
			logrus.WithFields(logrus.Fields{
				"repository": repo.Name,
				"first":      first,
				"entry":      index,
			}).Warn("Repository listed more than once, entries are checked in order against shared state")
		} else {
			seen[repo.Name] = index
		}

		if err := validateRepository(repo); err != nil {
			return nil, &Error{Err: fmt.Errorf("entry %d: %w", index, err)}
		}

		doc.Repositories = append(doc.Repositories, repo)
	}

	return doc, nil
}

// validateRepository checks a repository name and its tag patterns.
func validateRepository(repo types.RepositoryConfig) error {
	if _, err := manifest.ValidateRepository(repo.Name); err != nil {
		return err
	}

	for _, tag := range repo.Tags {
		if selector.IsPattern(tag) {
			if err := selector.ValidatePattern(tag); err != nil {
				return err
			}

			continue
		}

		if err := manifest.ValidateTag(repo.Name, tag); err != nil {
			return err
		}
	}

	return nil
}

// validateSchema checks the document against the embedded schema.
func validateSchema(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, bytes.NewReader(schemaData)); err != nil {
		return fmt.Errorf("failed to add embedded schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return fmt.Errorf("failed to compile embedded schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			var messages []string
			collectErrors(validationErr, &messages)

			return fmt.Errorf("%w:\n%s", errSchemaViolation, strings.Join(messages, "\n"))
		}

		return fmt.Errorf("%w: %w", errSchemaViolation, err)
	}

	return nil
}

// collectErrors flattens nested validation errors into readable lines.
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}

		*messages = append(*messages, fmt.Sprintf("- %s: %s", location, err.Message))
	}

	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
