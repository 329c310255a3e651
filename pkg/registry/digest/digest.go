// Package digest provides functionality for extracting and validating manifest digests in tagwatch.
// It turns registry manifest responses into TagInfo values, rejecting responses whose
// Docker-Content-Digest header is missing or malformed so they are never recorded as state.
package digest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	godigest "github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// ContentDigestHeader is the HTTP header key used to retrieve the digest from a registry’s response.
// This header, "Docker-Content-Digest", contains the digest value (e.g., "sha256:abc...") of a manifest,
// allowing tagwatch to identify a tag's content without downloading the manifest body.
const ContentDigestHeader = "Docker-Content-Digest"

// LastModifiedHeader is the HTTP header carrying the manifest's modification time.
const LastModifiedHeader = "Last-Modified"

// Errors for digest extraction.
var (
	// errMissingDigest indicates the registry response carries no digest header.
	errMissingDigest = errors.New("registry response has no content digest")
	// errMalformedDigest indicates the digest header is not a valid digest string.
	errMalformedDigest = errors.New("registry response has a malformed content digest")
)

// Parse validates a digest string and returns it in canonical form.
//
// Surrounding whitespace is trimmed before validation; algorithm and encoding must be
// well-formed (e.g., "sha256:" followed by 64 lowercase hex characters).
//
// Parameters:
//   - value: Raw digest value from a header or document.
//
// Returns:
//   - string: The validated digest.
//   - error: Non-nil if the value is empty or malformed.
func Parse(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errMissingDigest
	}

	parsed, err := godigest.Parse(value)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", errMalformedDigest, value, err)
	}

	return parsed.String(), nil
}

// ExtractTagInfo builds a TagInfo from a manifest response's headers.
//
// Parameters:
//   - resp: The HTTP response from a manifest HEAD or GET request.
//
// Returns:
//   - types.TagInfo: Digest and Last-Modified value of the manifest.
//   - error: Non-nil if the digest header is missing or malformed.
func ExtractTagInfo(resp *http.Response) (types.TagInfo, error) {
	digest, err := Parse(resp.Header.Get(ContentDigestHeader))
	if err != nil {
		logrus.WithError(err).WithField("status", resp.Status).
			Debug("Registry responded without a usable digest")

		return types.TagInfo{}, err
	}

	info := types.TagInfo{
		Digest:       digest,
		LastModified: resp.Header.Get(LastModifiedHeader),
	}

	logrus.WithFields(logrus.Fields{
		"digest":        info.Digest,
		"last_modified": info.LastModified,
	}).Trace("Extracted tag info from manifest response")

	return info, nil
}
