// Package storage provides the S3-compatible backing store client used by
// the transfer and migration layers.
//
// It wraps minio-go with the capability surface the rest of the codebase
// consumes: bucket existence and creation, streaming put/get, stat, delete,
// server-side copy, recursive prefix listing and presigned URLs. All
// operations take the bucket explicitly so the migration engine can work
// across buckets with a single client.
//
// # Usage Example
//
//	s3, err := storage.New(
//		"s3.amazonaws.com",
//		"access-key",
//		"secret-key",
//		true,  // use TLS
//		false, // trace mode
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = s3.Put(ctx, "files", "reports/q3.pdf", body, size, storage.PutOptions{})
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nimamiri9248/bucketmover/logger"
	"github.com/nimamiri9248/bucketmover/pkg/metrics"
)

// ObjectStore is the backing store capability surface consumed by the
// transfer and migration layers. *S3Storage implements it; tests use an
// in-memory fake.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Delete(ctx context.Context, bucket, key string) error
	Copy(ctx context.Context, destBucket, destKey, srcBucket, srcKey string) error
	ListObjects(ctx context.Context, bucket, prefix string, recursive bool) (<-chan ObjectInfo, <-chan error)
	PresignedURL(ctx context.Context, method, bucket, key string, expiry time.Duration) (string, error)
}

// PutOptions carries the optional parameters of a Put.
type PutOptions struct {
	ContentType  string
	PartSize     int64
	UserMetadata map[string]string
}

// ObjectInfo describes one object in list results.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// S3Storage is the minio-go backed ObjectStore.
type S3Storage struct {
	Client *minio.Client
}

func New(endpoint, accessKeyID, secretAccessKey string, useSSL bool, trace bool) (*S3Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		logger.Error("STORAGE: Failed to initialize S3 client", "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// Enable detailed tracing of requests and responses for debugging
	if trace {
		client.TraceOn(os.Stdout)
	}

	return &S3Storage{Client: client}, nil
}

// BucketExists reports whether the bucket exists.
func (s *S3Storage) BucketExists(ctx context.Context, bucket string) (bool, error) {
	start := time.Now()
	exists, err := s.Client.BucketExists(ctx, bucket)
	observe("BUCKET_EXISTS", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	return exists, nil
}

// EnsureBucket creates the bucket if it does not already exist. It is
// idempotent; concurrent creation races are tolerated.
func (s *S3Storage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	start := time.Now()
	err = s.Client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	observe("MAKE_BUCKET", start, err)
	if err != nil {
		// Another writer may have created it between the probe and here.
		if exists, probeErr := s.Client.BucketExists(ctx, bucket); probeErr == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	logger.Info("STORAGE: Created bucket", "bucket", bucket)
	return nil
}

// Put streams body into bucket/key. A size of -1 lets minio-go run a
// multipart upload in PartSize chunks without knowing the total length.
func (s *S3Storage) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error {
	start := time.Now()

	putOpts := minio.PutObjectOptions{
		ContentType:    opts.ContentType,
		UserMetadata:   opts.UserMetadata,
		SendContentMd5: true,
	}
	if opts.PartSize > 0 {
		putOpts.PartSize = uint64(opts.PartSize)
	}

	_, err := s.Client.PutObject(ctx, bucket, key, body, size, putOpts)
	observe("PUT", start, err)
	return err
}

// Get opens a read stream for bucket/key. The caller owns the returned
// ReadCloser and must close it exactly once.
func (s *S3Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	start := time.Now()

	object, err := s.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		observe("GET", start, err)
		return nil, err
	}

	// GetObject is lazy; force the first request so open-time errors
	// (NoSuchKey in particular) surface here rather than on first Read.
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		observe("GET", start, err)
		return nil, err
	}

	observe("GET", start, nil)
	return object, nil
}

// Exists checks if an object with the given key exists in the bucket.
func (s *S3Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	start := time.Now()
	_, err := s.Client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	observe("STAT", start, err)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
}

// Delete removes bucket/key. Deleting an absent key is not an error at
// this layer; minio treats it as a no-op.
func (s *S3Storage) Delete(ctx context.Context, bucket, key string) error {
	start := time.Now()
	err := s.Client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	observe("DELETE", start, err)
	return err
}

// Copy performs a server-side copy of srcBucket/srcKey to
// destBucket/destKey without moving bytes through this process.
func (s *S3Storage) Copy(ctx context.Context, destBucket, destKey, srcBucket, srcKey string) error {
	start := time.Now()

	src := minio.CopySrcOptions{
		Bucket: srcBucket,
		Object: srcKey,
	}
	dst := minio.CopyDestOptions{
		Bucket: destBucket,
		Object: destKey,
	}

	_, err := s.Client.CopyObject(ctx, dst, src)
	observe("COPY", start, err)
	if err != nil {
		return fmt.Errorf("failed to copy object %s/%s to %s/%s: %w", srcBucket, srcKey, destBucket, destKey, err)
	}
	return nil
}

// ListObjects lists objects under prefix. Objects arrive on the first
// channel; a single listing failure arrives on the second, after which
// both channels are closed. Ordering is not guaranteed by the backend.
func (s *S3Storage) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) (<-chan ObjectInfo, <-chan error) {
	objectCh := make(chan ObjectInfo)
	errCh := make(chan error, 1)

	go func() {
		defer close(objectCh)
		defer close(errCh)

		opts := minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: recursive,
		}

		for object := range s.Client.ListObjects(ctx, bucket, opts) {
			if object.Err != nil {
				errCh <- object.Err
				return
			}

			select {
			case objectCh <- ObjectInfo{
				Key:          object.Key,
				Size:         object.Size,
				LastModified: object.LastModified,
				ETag:         object.ETag,
			}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return objectCh, errCh
}

// PresignedURL returns a time-limited URL for direct access to one object.
// Method is an HTTP verb, typically GET or PUT.
func (s *S3Storage) PresignedURL(ctx context.Context, method, bucket, key string, expiry time.Duration) (string, error) {
	start := time.Now()

	var u *url.URL
	var err error
	switch method {
	case http.MethodGet, "":
		u, err = s.Client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	case http.MethodPut:
		u, err = s.Client.PresignedPutObject(ctx, bucket, key, expiry)
	case http.MethodHead:
		u, err = s.Client.PresignedHeadObject(ctx, bucket, key, expiry, url.Values{})
	default:
		err = fmt.Errorf("unsupported presign method %q", method)
	}
	observe("PRESIGN", start, err)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// IsNotFound reports whether err is the backend's object-absent response.
func IsNotFound(err error) bool {
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return minioErr.StatusCode == 404 || minioErr.Code == "NoSuchKey" || minioErr.Code == "NotFound"
	}
	return false
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.S3OperationsTotal.WithLabelValues(op, status).Inc()
	metrics.S3OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
