// Package transfer implements single-object streaming operations against
// one bucket of the backing store: upload, download, delete and presigned
// URL generation. Every fallible operation returns a result.Result so
// callers branch on Ok() instead of inspecting raw errors.
package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"lukechampine.com/blake3"

	"github.com/nimamiri9248/bucketmover/logger"
	"github.com/nimamiri9248/bucketmover/pkg/metrics"
	"github.com/nimamiri9248/bucketmover/pkg/result"
	"github.com/nimamiri9248/bucketmover/storage"
)

const (
	// DefaultPartSize is the multipart upload part size when the caller
	// does not override it.
	DefaultPartSize = 5 * 1024 * 1024

	// DefaultChunkSize is the download chunk size of StreamFile.
	DefaultChunkSize = 8 * 1024

	// DefaultPresignExpiry is the presigned URL lifetime when the caller
	// does not override it.
	DefaultPresignExpiry = time.Hour

	defaultContentType = "application/octet-stream"
)

// Options tunes a Service. Zero values fall back to the package defaults.
type Options struct {
	PartSize      int64
	ChunkSize     int
	PresignExpiry time.Duration
	ContentHash   bool // log a BLAKE3 content hash for every completed upload
}

// Service performs streaming transfers against a single bucket.
type Service struct {
	store         storage.ObjectStore
	bucket        string
	partSize      int64
	chunkSize     int
	presignExpiry time.Duration
	contentHash   bool
}

// NewService returns a Service bound to bucket.
func NewService(store storage.ObjectStore, bucket string, opts Options) *Service {
	if opts.PartSize <= 0 {
		opts.PartSize = DefaultPartSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = DefaultPresignExpiry
	}
	return &Service{
		store:         store,
		bucket:        bucket,
		partSize:      opts.PartSize,
		chunkSize:     opts.ChunkSize,
		presignExpiry: opts.PresignExpiry,
		contentHash:   opts.ContentHash,
	}
}

// EnsureBucket creates the service bucket if it does not exist.
func (s *Service) EnsureBucket(ctx context.Context) result.Result[struct{}] {
	if err := s.store.EnsureBucket(ctx, s.bucket); err != nil {
		return result.Errf[struct{}](result.CodeBucketAccess, "failed to ensure bucket %q: %v", s.bucket, err)
	}
	return result.Ok(struct{}{})
}

// UploadOptions carries the optional parameters of UploadStream.
type UploadOptions struct {
	ContentType string
	PartSize    int64
}

// UploadStream streams data into the bucket under the key derived from
// directory and filename, without buffering the whole payload. The input
// is closed exactly once on every exit path. An empty filename fails
// validation before any backend call.
func (s *Service) UploadStream(ctx context.Context, data io.ReadCloser, directory, filename string, opts UploadOptions) result.Result[string] {
	closed := false
	closeData := func() {
		if closed {
			return
		}
		closed = true
		if err := data.Close(); err != nil {
			logger.Warn("TRANSFER: Failed to close upload input", "error", err)
		}
	}
	defer closeData()

	if filename == "" {
		return result.Err[string](result.CodeUnknown, "filename must be provided")
	}

	key := storage.ObjectKey(directory, filename)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	partSize := opts.PartSize
	if partSize <= 0 {
		partSize = s.partSize
	}

	var body io.Reader = data
	var hasher *blake3.Hasher
	if s.contentHash {
		hasher = blake3.New(32, nil)
		body = io.TeeReader(data, hasher)
	}

	counter := &countingReader{r: body}
	err := s.store.Put(ctx, s.bucket, key, counter, -1, storage.PutOptions{
		ContentType: contentType,
		PartSize:    partSize,
	})
	if err != nil {
		code := result.CodeUnknown
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) {
			code = result.CodeUploadFailed
		}
		res := result.Errf[string](code, "upload failed for '%s': %v", key, err)
		res.Err().Retryable = result.IsRetryable(code, err)
		return res
	}

	metrics.TransferBytesTotal.WithLabelValues("upload").Add(float64(counter.n))
	if hasher != nil {
		logger.Info("TRANSFER: Upload complete",
			"key", key,
			"bytes", counter.n,
			"blake3", hex.EncodeToString(hasher.Sum(nil)))
	} else {
		logger.Info("TRANSFER: Upload complete", "key", key, "bytes", counter.n)
	}

	return result.Ok(key)
}

// StreamFile opens the object derived from directory and filename and
// returns a lazy, finite, non-restartable sequence of byte chunks plus a
// terminal-error channel. At most one error is sent; both channels are
// closed when the stream ends for any reason. The underlying connection
// is released exactly once whether the consumer drains the stream, the
// context is cancelled, or the backend fails mid-stream.
func (s *Service) StreamFile(ctx context.Context, directory, filename string) (<-chan []byte, <-chan *result.Error) {
	chunks := make(chan []byte)
	errCh := make(chan *result.Error, 1)

	key := storage.ObjectKey(directory, filename)

	obj, err := s.store.Get(ctx, s.bucket, key)
	if err != nil {
		close(chunks)
		if storage.IsNotFound(err) {
			errCh <- &result.Error{Code: result.CodeNotFound, Message: fmt.Sprintf("object not found: '%s'", key)}
		} else {
			errCh <- &result.Error{
				Code:      result.CodeStreamFailed,
				Message:   fmt.Sprintf("failed to open stream for '%s': %v", key, err),
				Retryable: result.IsRetryable(result.CodeStreamFailed, err),
			}
		}
		close(errCh)
		return chunks, errCh
	}

	go func() {
		defer close(chunks)
		defer close(errCh)
		defer func() {
			if err := obj.Close(); err != nil {
				logger.Warn("TRANSFER: Failed to close object stream", "key", key, "error", err)
			}
		}()

		var total int64
		buf := make([]byte, s.chunkSize)
		for {
			n, readErr := obj.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
					total += int64(n)
				case <-ctx.Done():
					metrics.TransferBytesTotal.WithLabelValues("download").Add(float64(total))
					return
				}
			}
			if readErr == io.EOF {
				metrics.TransferBytesTotal.WithLabelValues("download").Add(float64(total))
				return
			}
			if readErr != nil {
				metrics.TransferBytesTotal.WithLabelValues("download").Add(float64(total))
				errCh <- &result.Error{
					Code:      result.CodeStreamFailed,
					Message:   fmt.Sprintf("stream read failed for '%s': %v", key, readErr),
					Retryable: result.IsRetryable(result.CodeStreamFailed, readErr),
				}
				return
			}
		}
	}()

	return chunks, errCh
}

// DeleteOutcome is the tri-state result of DeleteFile.
type DeleteOutcome int

const (
	// Deleted means the object existed and was removed.
	Deleted DeleteOutcome = iota
	// NotFound means the object was already absent; deleting it again is
	// not an error.
	NotFound
)

func (o DeleteOutcome) String() string {
	switch o {
	case Deleted:
		return "deleted"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// DeleteFile removes the object derived from directory and filename.
// Deleting an absent object yields NotFound, not a failure.
func (s *Service) DeleteFile(ctx context.Context, directory, filename string) result.Result[DeleteOutcome] {
	key := storage.ObjectKey(directory, filename)

	exists, err := s.store.Exists(ctx, s.bucket, key)
	if err != nil {
		res := result.Errf[DeleteOutcome](result.CodeDeleteFailed, "failed to probe '%s' before delete: %v", key, err)
		res.Err().Retryable = result.IsRetryable(result.CodeDeleteFailed, err)
		return res
	}
	if !exists {
		logger.Debug("TRANSFER: Object already absent", "key", key)
		return result.Ok(NotFound)
	}

	if err := s.store.Delete(ctx, s.bucket, key); err != nil {
		res := result.Errf[DeleteOutcome](result.CodeDeleteFailed, "failed to delete '%s': %v", key, err)
		res.Err().Retryable = result.IsRetryable(result.CodeDeleteFailed, err)
		return res
	}

	logger.Info("TRANSFER: Deleted object", "key", key)
	return result.Ok(Deleted)
}

// PresignOptions carries the optional parameters of PresignedURL.
type PresignOptions struct {
	Expiry time.Duration
	Method string
}

// PresignedURL returns a time-limited URL granting direct access to the
// object derived from directory and filename. Method defaults to GET and
// expiry to one hour.
func (s *Service) PresignedURL(ctx context.Context, directory, filename string, opts PresignOptions) result.Result[string] {
	key := storage.ObjectKey(directory, filename)

	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = s.presignExpiry
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	u, err := s.store.PresignedURL(ctx, method, s.bucket, key, expiry)
	if err != nil {
		return result.Errf[string](result.CodePresignFailed, "failed to presign '%s': %v", key, err)
	}
	return result.Ok(u)
}

// countingReader counts bytes as they pass through.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
