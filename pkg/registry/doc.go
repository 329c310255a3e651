// Package registry provides functionality for interacting with container registries in tagwatch.
// It lists repository tags and resolves tag manifests to digests over the registry HTTP API v2.
//
// Key components:
//   - Client: Implements types.Registry (ListTags, FetchTag) on top of net/http.
//   - digest: Extracts and validates manifest digests from responses.
//   - helpers: Utilities for registry address normalization and pagination links.
//   - manifest: Validates names and constructs tags and manifest URLs.
//
// Usage example:
//
//	client, err := registry.NewClient("mcr.microsoft.com", 10*time.Second)
//	if err != nil {
//	    logrus.WithError(err).Fatal("Invalid registry")
//	}
//	tags, err := client.ListTags(ctx, "windows/servercore")
//	info, err := client.FetchTag(ctx, "windows/servercore", "ltsc2022")
//	if errdefs.IsNotFound(err) {
//	    // the tag is confirmed absent
//	}
//
// Not-found answers are reported with errors satisfying errdefs.IsNotFound; every other failure
// is transient and should be retried on the next run.
package registry
