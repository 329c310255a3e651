package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// Backend names accepted by New.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// DefaultDocumentName is the default state file name and object key.
const DefaultDocumentName = "windows_container_state.json"

// Errors for state persistence.
var (
	// ErrLoadFailed indicates the persisted state exists but could not be read or decoded.
	ErrLoadFailed = errors.New("failed to load state")
	// ErrSaveFailed indicates the new state could not be persisted.
	ErrSaveFailed = errors.New("failed to save state")
	// ErrInvalidConfig indicates the backend configuration is unusable.
	ErrInvalidConfig = errors.New("invalid state configuration")
)

// Config selects and configures a state backend.
type Config struct {
	Backend  string // "local" (default) or "s3".
	File     string // Path of the state file for the local backend.
	Bucket   string // Bucket for the s3 backend; required.
	Key      string // Object key for the s3 backend.
	Region   string // Optional AWS region override.
	Endpoint string // Optional S3-compatible endpoint; enables path-style addressing.
	S3Client S3API  // Optional client, used instead of one built from the AWS configuration.
}

// New creates the state store selected by the configuration.
//
// Parameters:
//   - ctx: Context used while loading AWS configuration.
//   - cfg: Backend selection and settings.
//
// Returns:
//   - types.StateStore: The configured store.
//   - error: Non-nil wrapping ErrInvalidConfig if the configuration is unusable.
func New(ctx context.Context, cfg Config) (types.StateStore, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))

	clog := logrus.WithField("backend", backend)

	switch backend {
	case "", BackendLocal:
		path := cfg.File
		if path == "" {
			path = DefaultDocumentName
		}

		clog.WithField("file", path).Debug("Using local state file")

		return NewFileStore(path), nil
	case BackendS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("%w: bucket is required for the %s backend", ErrInvalidConfig, BackendS3)
		}

		key := cfg.Key
		if key == "" {
			key = DefaultDocumentName
		}

		client := cfg.S3Client
		if client == nil {
			built, err := newS3Client(ctx, cfg.Region, cfg.Endpoint)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}

			client = built
		}

		clog.WithFields(logrus.Fields{
			"bucket": cfg.Bucket,
			"key":    key,
		}).Debug("Using S3 state object")

		return NewS3Store(client, cfg.Bucket, key), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (expected %q or %q)",
			ErrInvalidConfig, cfg.Backend, BackendLocal, BackendS3)
	}
}
