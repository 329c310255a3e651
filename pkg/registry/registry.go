package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/containerd/errdefs"
	godigest "github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/registry/digest"
	"github.com/nicholas-fedor/tagwatch/pkg/registry/helpers"
	"github.com/nicholas-fedor/tagwatch/pkg/registry/manifest"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// DefaultTimeout bounds every registry request unless configured otherwise.
const DefaultTimeout = 10 * time.Second

const (
	// maxTagPages caps pagination so a misbehaving registry cannot loop forever.
	maxTagPages = 1000
	// maxBodyBytes caps the size of decoded response bodies.
	maxBodyBytes = 16 << 20
)

// UserAgent is the User-Agent header value used in registry requests.
// It is overridden at startup with the build version.
var UserAgent = "tagwatch/unknown"

// Errors for registry operations.
var (
	// errListTagsFailed indicates the tag listing of a repository could not be retrieved.
	errListTagsFailed = errors.New("failed to list tags")
	// errFetchManifestFailed indicates the manifest metadata of a tag could not be retrieved.
	errFetchManifestFailed = errors.New("failed to fetch manifest")
	// errUnexpectedStatus indicates the registry answered with a non-success status.
	errUnexpectedStatus = errors.New("unexpected registry response status")
	// errTooManyPages indicates the tag listing exceeded the pagination limit.
	errTooManyPages = errors.New("tag listing exceeded page limit")
)

// tagsResponse is the JSON body of a tag-listing response.
type tagsResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Client talks to a registry's HTTP API v2. It implements types.Registry.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	userAgent  string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header value.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a registry client for the given address.
//
// Parameters:
//   - address: Registry host or URL; empty selects the default registry.
//   - timeout: Per-request timeout; zero or negative selects DefaultTimeout.
//   - opts: Optional client customizations.
//
// Returns:
//   - *Client: Configured client.
//   - error: Non-nil if the address is invalid.
func NewClient(address string, timeout time.Duration, opts ...Option) (*Client, error) {
	base, err := helpers.NormalizeRegistryURL(address)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  UserAgent,
	}

	for _, opt := range opts {
		opt(client)
	}

	logrus.WithFields(logrus.Fields{
		"registry": base.String(),
		"timeout":  timeout,
	}).Debug("Initialized registry client")

	return client, nil
}

// NewFactory returns a types.RegistryFactory producing Clients.
func NewFactory(opts ...Option) types.RegistryFactory {
	return func(address string, timeout time.Duration) (types.Registry, error) {
		return NewClient(address, timeout, opts...)
	}
}

// BaseURL returns the registry base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ListTags returns all tags of a repository, following pagination links.
//
// Parameters:
//   - ctx: Context for request lifecycle control.
//   - repository: Repository path.
//
// Returns:
//   - []string: Tags in registry order.
//   - error: Non-nil on any transport, status or decoding failure.
func (c *Client) ListTags(ctx context.Context, repository string) ([]string, error) {
	fields := logrus.Fields{"repository": repository}

	next, err := manifest.BuildTagsURL(c.base, repository)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errListTagsFailed, errors.Join(errdefs.ErrInvalidArgument, err))
	}

	var tags []string

	for page := 0; next != ""; page++ {
		if page >= maxTagPages {
			return nil, fmt.Errorf("%w: %w", errListTagsFailed, errTooManyPages)
		}

		pageTags, link, err := c.listTagsPage(ctx, next)
		if err != nil {
			logrus.WithError(err).WithFields(fields).WithField("url", next).
				Debug("Failed to fetch tag page")

			return nil, fmt.Errorf("%w for %s: %w", errListTagsFailed, repository, err)
		}

		tags = append(tags, pageTags...)
		next = link
	}

	logrus.WithFields(fields).WithField("count", len(tags)).Debug("Listed repository tags")

	return tags, nil
}

// listTagsPage fetches one page of a tag listing and returns its tags and the next page URL.
func (c *Client) listTagsPage(ctx context.Context, pageURL string) ([]string, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pageURL)
	if err != nil {
		return nil, "", err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errdefs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, "", err
	}

	var body tagsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("failed to decode tag listing: %w", err)
	}

	return body.Tags, helpers.NextLink(resp), nil
}

// FetchTag returns the manifest metadata of a repository tag.
//
// A HEAD request is tried first. When the registry rejects HEAD or omits the digest header,
// a GET request is issued and the digest is taken from its header or computed from the body.
//
// Parameters:
//   - ctx: Context for request lifecycle control.
//   - repository: Repository path.
//   - tag: Tag name.
//
// Returns:
//   - types.TagInfo: Digest and Last-Modified value of the tag's manifest.
//   - error: Satisfies errdefs.IsNotFound when the registry reports the tag missing; any other
//     error means the result is unknown.
func (c *Client) FetchTag(ctx context.Context, repository, tag string) (types.TagInfo, error) {
	fields := logrus.Fields{"repository": repository, "tag": tag}

	manifestURL, err := manifest.BuildManifestURL(c.base, repository, tag)
	if err != nil {
		return types.TagInfo{}, fmt.Errorf("%w: %w", errFetchManifestFailed, errors.Join(errdefs.ErrInvalidArgument, err))
	}

	info, err := c.headManifest(ctx, manifestURL)
	if err == nil {
		logrus.WithFields(fields).WithField("digest", info.Digest).Debug("Fetched tag digest")

		return info, nil
	}

	if !errors.Is(err, errHeadUnusable) {
		logrus.WithError(err).WithFields(fields).Debug("Manifest HEAD request failed")

		return types.TagInfo{}, fmt.Errorf("%w for %s:%s: %w", errFetchManifestFailed, repository, tag, err)
	}

	logrus.WithFields(fields).Debug("HEAD response unusable, falling back to GET")

	info, err = c.getManifest(ctx, manifestURL)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Debug("Manifest GET request failed")

		return types.TagInfo{}, fmt.Errorf("%w for %s:%s: %w", errFetchManifestFailed, repository, tag, err)
	}

	logrus.WithFields(fields).WithField("digest", info.Digest).Debug("Fetched tag digest")

	return info, nil
}

// errHeadUnusable signals that the HEAD response cannot identify the manifest and GET should be tried.
var errHeadUnusable = errors.New("manifest HEAD response unusable")

// headManifest issues a HEAD request for a manifest.
func (c *Client) headManifest(ctx context.Context, manifestURL string) (types.TagInfo, error) {
	req, err := c.newRequest(ctx, http.MethodHead, manifestURL)
	if err != nil {
		return types.TagInfo{}, err
	}

	req.Header.Set("Accept", manifest.AcceptHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.TagInfo{}, fmt.Errorf("%w: %w", errdefs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return types.TagInfo{}, errHeadUnusable
	}

	if err := checkStatus(resp); err != nil {
		return types.TagInfo{}, err
	}

	info, err := digest.ExtractTagInfo(resp)
	if err != nil {
		return types.TagInfo{}, fmt.Errorf("%w: %w", errHeadUnusable, err)
	}

	return info, nil
}

// getManifest issues a GET request for a manifest.
func (c *Client) getManifest(ctx context.Context, manifestURL string) (types.TagInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, manifestURL)
	if err != nil {
		return types.TagInfo{}, err
	}

	req.Header.Set("Accept", manifest.AcceptHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.TagInfo{}, fmt.Errorf("%w: %w", errdefs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return types.TagInfo{}, err
	}

	if resp.Header.Get(digest.ContentDigestHeader) != "" {
		return digest.ExtractTagInfo(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.TagInfo{}, fmt.Errorf("failed to read manifest body: %w", err)
	}

	if len(body) == 0 {
		return types.TagInfo{}, fmt.Errorf("%w: empty manifest body", errUnexpectedStatus)
	}

	return types.TagInfo{
		Digest:       godigest.FromBytes(body).String(),
		LastModified: resp.Header.Get(digest.LastModifiedHeader),
	}, nil
}

// newRequest builds a request carrying the client's User-Agent.
func (c *Client) newRequest(ctx context.Context, method, target string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	return req, nil
}

// checkStatus maps a non-success response to an error. 404 maps to errdefs.ErrNotFound.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", errdefs.ErrNotFound, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w: %s", errdefs.ErrUnavailable, errUnexpectedStatus, resp.Status)
	default:
		return fmt.Errorf("%w: %s", errUnexpectedStatus, resp.Status)
	}
}
