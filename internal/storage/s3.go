package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	cfg "github.com/doclane/doclane/internal/config"
	"github.com/doclane/doclane/internal/retry"
)

// ErrNotFound is returned when an object does not exist after the stat
// retry budget is exhausted.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// ObjectStore is the blob store contract the pipeline depends on.
// Implementations must tolerate brief read-after-write inconsistency:
// existence checks retry before concluding not-found.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	StreamGet(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) (bool, []string)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// streamBufferSize is the chunked-read buffer for StreamGet. Large
// objects are served without proportional memory growth.
const streamBufferSize = 4 << 20 // 4MiB

// S3Store implements ObjectStore against any S3-compatible endpoint
// (MinIO, AWS S3, Cloudflare R2, DigitalOcean Spaces, etc.).
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	// externalEndpoint rewrites presigned URL hosts when the store is
	// reachable only via an internal network alias.
	externalEndpoint string
	useSSL           bool
	statRetry        retry.Policy
}

// Config holds the connection settings for an S3-compatible store.
type Config struct {
	Region           string
	Bucket           string
	AccessKey        string
	SecretKey        string
	Endpoint         string
	ExternalEndpoint string
	UseSSL           bool
}

// New creates an S3 object store from app config.
func New(c *cfg.Config) (*S3Store, error) {
	slog.Info("initializing object store",
		"bucket", c.S3Bucket,
		"region", c.S3Region,
		"endpoint", c.S3Endpoint,
	)
	return NewS3Store(Config{
		Region:           c.S3Region,
		Bucket:           c.S3Bucket,
		AccessKey:        c.S3AccessKey,
		SecretKey:        c.S3SecretKey,
		Endpoint:         c.S3Endpoint,
		ExternalEndpoint: c.S3ExternalEndpoint,
		UseSSL:           c.S3UseSSL,
	})
}

// NewS3Store creates a new store instance and ensures the bucket exists.
func NewS3Store(c Config) (*S3Store, error) {
	ctx := context.Background()

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(c.Region))

	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if c.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true // Required for MinIO and some S3-compatible services
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	store := &S3Store{
		client:           client,
		presignClient:    s3.NewPresignClient(client),
		bucket:           c.Bucket,
		externalEndpoint: c.ExternalEndpoint,
		useSSL:           c.UseSSL,
		statRetry:        retry.Default,
	}

	if err := store.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return store, nil
}

// ensureBucket checks if the bucket exists, creates it if not.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %q does not exist and could not be created: %w", s.bucket, err)
	}

	slog.Info("created bucket", "bucket", s.bucket)
	return nil
}

// Put stores an object, preserving the declared content type.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return nil
}

// Stat returns object metadata. Both a missing object and a zero-byte
// stat result are treated as transient (the store may exhibit brief
// read-after-write inconsistency) and retried before ErrNotFound or the
// last error is returned.
func (s *S3Store) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	var info *ObjectInfo

	err := s.statRetry.Do(ctx, func() error {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return err
		}

		size := aws.ToInt64(out.ContentLength)
		if size == 0 {
			// Zero bytes right after a write usually means the object
			// is not fully visible yet, not an empty object.
			return fmt.Errorf("object %s visible with zero size", key)
		}

		info = &ObjectInfo{
			Size:        size,
			ContentType: aws.ToString(out.ContentType),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	return info, nil
}

type chunkedBody struct {
	*bufio.Reader
	closer io.Closer
}

func (b *chunkedBody) Close() error {
	return b.closer.Close()
}

// StreamGet opens a chunked reader over the object. The whole object is
// never buffered in memory; Accept-Encoding is forced to identity so
// transport compression cannot break byte-range assumptions.
func (s *S3Store) StreamGet(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, smithyhttp.AddHeaderValue("Accept-Encoding", "identity"))
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	body := &chunkedBody{
		Reader: bufio.NewReaderSize(out.Body, streamBufferSize),
		closer: out.Body,
	}
	return body, info, nil
}

// Delete removes an object.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

// DeleteMany removes a set of objects, continuing past individual
// failures. It reports whether everything was deleted and which keys
// failed.
func (s *S3Store) DeleteMany(ctx context.Context, keys []string) (bool, []string) {
	var failed []string
	for _, key := range keys {
		err := s.Delete(ctx, key)
		if err != nil {
			slog.Error("failed to delete object", "key", key, "error", err)
			failed = append(failed, key)
		}
	}
	return len(failed) == 0, failed
}

// PresignGet generates a presigned GET URL. When an external endpoint is
// configured the URL host is rewritten so clients outside the internal
// network can reach it; the signed query is carried over untouched.
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}

	return rewriteExternalURL(req.URL, s.externalEndpoint, s.useSSL)
}

// rewriteExternalURL swaps the URL's host for the external endpoint and
// normalizes the query exactly once. Re-encoding an already-encoded
// query would corrupt the presign signature.
func rewriteExternalURL(raw, externalEndpoint string, useSSL bool) (string, error) {
	if externalEndpoint == "" {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned URL: %w", err)
	}

	if u.Host == externalEndpoint {
		return raw, nil
	}

	u.Host = externalEndpoint
	u.Scheme = "http"
	if useSSL {
		u.Scheme = "https"
	}

	// Decode and re-encode the query once so parameters do not end up
	// double-encoded.
	q, err := url.ParseQuery(u.RawQuery)
	if err == nil {
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// isNotFound recognizes missing-object errors from the S3 API.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}
