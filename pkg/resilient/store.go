// Package resilient wraps an object store with circuit breakers and
// retries. Operations are grouped into three breaker classes (read,
// write, delete) so a failing write path does not block reads. Transient
// errors are retried with exponential backoff; permanent ones (missing
// objects, denied access) stop the retry loop immediately.
package resilient

import (
	"context"
	"io"
	"time"

	"github.com/nimamiri9248/bucketmover/pkg/circuitbreaker"
	"github.com/nimamiri9248/bucketmover/pkg/result"
	"github.com/nimamiri9248/bucketmover/pkg/retry"
	"github.com/nimamiri9248/bucketmover/storage"
)

// Store decorates a storage.ObjectStore. It implements the same
// interface, so callers cannot tell it apart from the raw store.
type Store struct {
	inner storage.ObjectStore

	readBreaker   *circuitbreaker.CircuitBreaker
	writeBreaker  *circuitbreaker.CircuitBreaker
	deleteBreaker *circuitbreaker.CircuitBreaker

	readBackoff   retry.BackoffConfig
	writeBackoff  retry.BackoffConfig
	deleteBackoff retry.BackoffConfig
}

func breakerSettings(name string, minRequests uint32, ratio float64) circuitbreaker.Settings {
	settings := circuitbreaker.DefaultSettings(name)
	settings.ReadyToTrip = func(counts circuitbreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= minRequests && failureRatio >= ratio
	}
	return settings
}

// New wraps inner with the default breaker and backoff configuration.
func New(inner storage.ObjectStore) *Store {
	return &Store{
		inner:         inner,
		readBreaker:   circuitbreaker.NewCircuitBreaker(breakerSettings("s3_read", 5, 0.6)),
		writeBreaker:  circuitbreaker.NewCircuitBreaker(breakerSettings("s3_write", 3, 0.5)),
		deleteBreaker: circuitbreaker.NewCircuitBreaker(breakerSettings("s3_delete", 3, 0.5)),
		readBackoff: retry.BackoffConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
			Jitter:          true,
			MaxRetries:      4,
		},
		writeBackoff: retry.BackoffConfig{
			InitialInterval: 1 * time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
			Jitter:          true,
			MaxRetries:      3,
		},
		deleteBackoff: retry.BackoffConfig{
			InitialInterval: 1 * time.Second,
			MaxInterval:     15 * time.Second,
			Multiplier:      2.0,
			Jitter:          true,
			MaxRetries:      3,
		},
	}
}

// Inner returns the wrapped store.
func (s *Store) Inner() storage.ObjectStore {
	return s.inner
}

// classify turns a backend error into a retry decision: transient errors
// retry, everything else stops immediately.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if result.IsRetryable(result.Classify(err), err) {
		return err
	}
	return retry.Stop(err)
}

func (s *Store) execute(ctx context.Context, cb *circuitbreaker.CircuitBreaker, backoff retry.BackoffConfig, fn func() error) error {
	return retry.WithRetry(ctx, func() error {
		return classify(circuitbreaker.WrapWithContext(ctx, cb, func(context.Context) error {
			return fn()
		}))
	}, backoff)
}

func (s *Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	var exists bool
	err := s.execute(ctx, s.readBreaker, s.readBackoff, func() error {
		var innerErr error
		exists, innerErr = s.inner.BucketExists(ctx, bucket)
		return innerErr
	})
	return exists, err
}

func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	return s.execute(ctx, s.writeBreaker, s.writeBackoff, func() error {
		return s.inner.EnsureBucket(ctx, bucket)
	})
}

// Put is not retried: the body reader is consumed by the first attempt
// and cannot be replayed. The write breaker still counts the outcome.
func (s *Store) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) error {
	return circuitbreaker.WrapWithContext(ctx, s.writeBreaker, func(context.Context) error {
		return s.inner.Put(ctx, bucket, key, body, size, opts)
	})
}

// Get retries the open, not the stream: once a reader is handed out,
// mid-stream failures are the caller's to handle.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	var reader io.ReadCloser
	err := s.execute(ctx, s.readBreaker, s.readBackoff, func() error {
		var innerErr error
		reader, innerErr = s.inner.Get(ctx, bucket, key)
		return innerErr
	})
	return reader, err
}

func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	var exists bool
	err := s.execute(ctx, s.readBreaker, s.readBackoff, func() error {
		var innerErr error
		exists, innerErr = s.inner.Exists(ctx, bucket, key)
		return innerErr
	})
	return exists, err
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	return s.execute(ctx, s.deleteBreaker, s.deleteBackoff, func() error {
		return s.inner.Delete(ctx, bucket, key)
	})
}

func (s *Store) Copy(ctx context.Context, destBucket, destKey, srcBucket, srcKey string) error {
	return s.execute(ctx, s.writeBreaker, s.writeBackoff, func() error {
		return s.inner.Copy(ctx, destBucket, destKey, srcBucket, srcKey)
	})
}

// ListObjects is passed through: the listing is an incremental stream
// and cannot be transparently restarted without re-emitting objects.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) (<-chan storage.ObjectInfo, <-chan error) {
	return s.inner.ListObjects(ctx, bucket, prefix, recursive)
}

// PresignedURL is signed locally by the client, so there is nothing to
// retry; it still goes through the read breaker for uniform accounting.
func (s *Store) PresignedURL(ctx context.Context, method, bucket, key string, expiry time.Duration) (string, error) {
	var url string
	err := circuitbreaker.WrapWithContext(ctx, s.readBreaker, func(context.Context) error {
		var innerErr error
		url, innerErr = s.inner.PresignedURL(ctx, method, bucket, key, expiry)
		return innerErr
	})
	return url, err
}

// BreakerStates reports the current state of each breaker class, keyed
// by class name. Used by the health endpoint.
func (s *Store) BreakerStates() map[string]circuitbreaker.State {
	return map[string]circuitbreaker.State{
		"read":   s.readBreaker.State(),
		"write":  s.writeBreaker.State(),
		"delete": s.deleteBreaker.State(),
	}
}
