package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// jsonContentType is the content type of stored state objects.
const jsonContentType = "application/json"

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the state in a single S3 object.
type S3Store struct {
	client S3API
	bucket string
	key    string
}

// NewS3Store creates a store for the given bucket and key.
func NewS3Store(client S3API, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

// newS3Client builds an S3 client from the default AWS configuration chain.
func newS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Load reads the state object. A missing object yields an empty state.
func (s *S3Store) Load(ctx context.Context) (types.GlobalState, error) {
	clog := logrus.WithFields(logrus.Fields{"bucket": s.bucket, "key": s.key})

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			clog.Debug("State object does not exist, starting empty")

			return types.GlobalState{}, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	defer out.Body.Close()

	state, err := Decode(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrLoadFailed, s, err)
	}

	clog.WithField("repositories", len(state)).Debug("Loaded state object")

	return state, nil
}

// Save replaces the state object. S3 replaces objects atomically.
func (s *S3Store) Save(ctx context.Context, state types.GlobalState) error {
	data, err := marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(jsonContentType),
	})
	if err != nil {
		return fmt.Errorf("%w to %s: %w", ErrSaveFailed, s, err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket":       s.bucket,
		"key":          s.key,
		"repositories": len(state),
	}).Debug("Saved state object")

	return nil
}

// String returns the object location.
func (s *S3Store) String() string {
	return "s3://" + s.bucket + "/" + s.key
}

// isNotFound reports whether an S3 error means the object does not exist.
func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}

	return false
}
