// Package manifest provides functionality for constructing URLs to access repository
// tag listings and image manifests in tagwatch. It validates repository names and tags
// against the reference grammar before building registry-specific URLs.
package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/distribution/reference"
	"github.com/sirupsen/logrus"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker distribution media types not covered by the OCI image spec.
const (
	MediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
)

// AcceptedMediaTypes lists the manifest media types requested from the registry.
// Indexes come first so multi-platform tags resolve to their index digest.
var AcceptedMediaTypes = []string{
	ocispec.MediaTypeImageIndex,
	MediaTypeDockerManifestList,
	ocispec.MediaTypeImageManifest,
	MediaTypeDockerManifest,
}

// Errors for manifest operations.
var (
	// errInvalidRepository indicates the repository name does not match the reference grammar.
	errInvalidRepository = errors.New("invalid repository name")
	// errInvalidTag indicates the tag does not match the reference grammar.
	errInvalidTag = errors.New("invalid tag")
	// errMissingBaseURL indicates no registry base URL was supplied.
	errMissingBaseURL = errors.New("registry base URL is required")
)

// AcceptHeader returns the Accept header value for manifest requests.
func AcceptHeader() string {
	return strings.Join(AcceptedMediaTypes, ", ")
}

// ValidateRepository checks a repository name against the reference grammar.
//
// Parameters:
//   - repository: Repository path (e.g., "windows/servercore").
//
// Returns:
//   - reference.Named: The validated name.
//   - error: Non-nil if the name is malformed.
func ValidateRepository(repository string) (reference.Named, error) {
	named, err := reference.WithName(repository)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", errInvalidRepository, repository, err)
	}

	return named, nil
}

// ValidateTag checks a tag against the reference grammar for the given repository.
func ValidateTag(repository, tag string) error {
	named, err := ValidateRepository(repository)
	if err != nil {
		return err
	}

	if _, err := reference.WithTag(named, tag); err != nil {
		return fmt.Errorf("%w %q: %w", errInvalidTag, tag, err)
	}

	return nil
}

// BuildTagsURL constructs the tag-listing URL of a repository.
//
// Parameters:
//   - base: Registry base URL (scheme and host).
//   - repository: Repository path.
//
// Returns:
//   - string: Tags URL (e.g., "https://mcr.microsoft.com/v2/windows/servercore/tags/list").
//   - error: Non-nil if the repository name is invalid.
func BuildTagsURL(base *url.URL, repository string) (string, error) {
	if base == nil {
		return "", errMissingBaseURL
	}

	named, err := ValidateRepository(repository)
	if err != nil {
		return "", err
	}

	tagsURL := url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   fmt.Sprintf("/v2/%s/tags/list", named.Name()),
	}

	logrus.WithFields(logrus.Fields{
		"repository": repository,
		"url":        tagsURL.String(),
	}).Trace("Built tags URL")

	return tagsURL.String(), nil
}

// BuildManifestURL constructs the manifest URL of a repository tag.
//
// Parameters:
//   - base: Registry base URL (scheme and host).
//   - repository: Repository path.
//   - tag: Tag name.
//
// Returns:
//   - string: Manifest URL (e.g., "https://mcr.microsoft.com/v2/windows/servercore/manifests/ltsc2022").
//   - error: Non-nil if the repository or tag is invalid.
func BuildManifestURL(base *url.URL, repository, tag string) (string, error) {
	if base == nil {
		return "", errMissingBaseURL
	}

	named, err := ValidateRepository(repository)
	if err != nil {
		return "", err
	}

	tagged, err := reference.WithTag(named, tag)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", errInvalidTag, tag, err)
	}

	manifestURL := url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   fmt.Sprintf("/v2/%s/manifests/%s", tagged.Name(), tagged.Tag()),
	}

	logrus.WithFields(logrus.Fields{
		"repository": repository,
		"tag":        tag,
		"url":        manifestURL.String(),
	}).Trace("Built manifest URL")

	return manifestURL.String(), nil
}
