// Package helpers provides utility functions for registry-related operations in tagwatch.
// It includes methods for normalizing registry base URLs and following paginated responses.
package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Default registry settings.
const (
	// DefaultRegistryHost is the registry queried when none is configured.
	DefaultRegistryHost = "mcr.microsoft.com"
	// DefaultScheme is applied to registry addresses given without a scheme.
	DefaultScheme = "https"
)

// errInvalidRegistryURL indicates the configured registry address cannot be used.
var errInvalidRegistryURL = errors.New("invalid registry address")

// NormalizeRegistryURL turns a registry address into a base URL.
//
// A bare host ("mcr.microsoft.com", "localhost:5000") gets the https scheme, an explicit
// http or https scheme is kept, and any path, query or trailing slash is dropped.
// An empty address resolves to DefaultRegistryHost.
func NormalizeRegistryURL(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		address = DefaultRegistryHost
	}

	if !strings.Contains(address, "://") {
		address = DefaultScheme + "://" + address
	}

	parsed, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidRegistryURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", errInvalidRegistryURL, parsed.Scheme)
	}

	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", errInvalidRegistryURL, address)
	}

	return &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}, nil
}

// NextLink extracts the target of a `Link: <...>; rel="next"` header and resolves it
// against the request URL. It returns an empty string when there is no next page.
func NextLink(resp *http.Response) string {
	for _, header := range resp.Header.Values("Link") {
		for link := range strings.SplitSeq(header, ",") {
			target, params, found := strings.Cut(strings.TrimSpace(link), ";")
			if !found || !isNextRelation(params) {
				continue
			}

			target = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(target), "<"), ">")

			ref, err := url.Parse(target)
			if err != nil {
				return ""
			}

			if resp.Request != nil && resp.Request.URL != nil {
				return resp.Request.URL.ResolveReference(ref).String()
			}

			return ref.String()
		}
	}

	return ""
}

// isNextRelation reports whether the link parameters declare rel="next".
func isNextRelation(params string) bool {
	for param := range strings.SplitSeq(params, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(param), "=")
		if found && strings.EqualFold(key, "rel") && strings.Trim(value, `"`) == "next" {
			return true
		}
	}

	return false
}
