package testutils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/nimamiri9248/bucketmover/storage"
)

// NotFoundError returns the backend's object-absent response, shaped like
// the real minio error so classification code behaves identically.
func NotFoundError() error {
	return minio.ErrorResponse{StatusCode: 404, Code: "NoSuchKey", Message: "The specified key does not exist."}
}

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// trackedReader counts Close calls so tests can assert exactly-once release.
type trackedReader struct {
	*bytes.Reader
	mock   *MockObjectStore
	key    string
	closed int
}

func (r *trackedReader) Close() error {
	r.closed++
	r.mock.mu.Lock()
	r.mock.closeCounts[r.key] = r.closed
	r.mock.mu.Unlock()
	return nil
}

// MockObjectStore is an in-memory storage.ObjectStore for tests. It keeps
// objects per bucket, records every operation in order, and can be
// configured to fail specific operations on specific keys.
type MockObjectStore struct {
	mu          sync.Mutex
	buckets     map[string]map[string]*object
	calls       []string
	errors      map[string]error // "OP bucket/key" -> injected error
	closeCounts map[string]int
}

// NewMockObjectStore creates an empty mock with the given buckets.
func NewMockObjectStore(buckets ...string) *MockObjectStore {
	m := &MockObjectStore{
		buckets:     make(map[string]map[string]*object),
		errors:      make(map[string]error),
		closeCounts: make(map[string]int),
	}
	for _, b := range buckets {
		m.buckets[b] = make(map[string]*object)
	}
	return m
}

// FailOn makes the given operation fail for bucket/key. Operation names
// match the ObjectStore methods: PUT, GET, STAT, DELETE, COPY, LIST,
// PRESIGN, BUCKET_EXISTS, MAKE_BUCKET. Use key "" for bucket-level ops.
func (m *MockObjectStore) FailOn(op, bucket, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[opKey(op, bucket, key)] = err
}

func opKey(op, bucket, key string) string {
	return fmt.Sprintf("%s %s/%s", op, bucket, key)
}

func (m *MockObjectStore) injected(op, bucket, key string) error {
	return m.errors[opKey(op, bucket, key)]
}

func (m *MockObjectStore) record(op, bucket, key string) {
	m.calls = append(m.calls, opKey(op, bucket, key))
}

// Calls returns the recorded operations in invocation order.
func (m *MockObjectStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many operations of any kind were recorded.
func (m *MockObjectStore) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CloseCount returns how many times the reader for bucket/key was closed.
func (m *MockObjectStore) CloseCount(bucket, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCounts[bucket+"/"+key]
}

// SetObject stores data under bucket/key, creating the bucket if needed.
func (m *MockObjectStore) SetObject(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]*object)
	}
	m.buckets[bucket][key] = &object{data: data, modified: time.Now()}
}

// GetObjectData returns the stored bytes for bucket/key.
func (m *MockObjectStore) GetObjectData(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, false
	}
	o, ok := b[key]
	if !ok {
		return nil, false
	}
	return o.data, true
}

// GetObjectMetadata returns the user metadata stored with bucket/key.
func (m *MockObjectStore) GetObjectMetadata(bucket, key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[bucket]; ok {
		if o, ok := b[key]; ok {
			return o.metadata
		}
	}
	return nil
}

// Keys returns the sorted keys stored in bucket.
func (m *MockObjectStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ObjectStore implementation

func (m *MockObjectStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("BUCKET_EXISTS", bucket, "")
	if err := m.injected("BUCKET_EXISTS", bucket, ""); err != nil {
		return false, err
	}
	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *MockObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("MAKE_BUCKET", bucket, "")
	if err := m.injected("MAKE_BUCKET", bucket, ""); err != nil {
		return err
	}
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]*object)
	}
	return nil
}

func (m *MockObjectStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) error {
	m.mu.Lock()
	m.record("PUT", bucket, key)
	err := m.injected("PUT", bucket, key)
	m.mu.Unlock()
	if err != nil {
		// Drain per real client behavior; the caller still owns the closer.
		_, _ = io.Copy(io.Discard, body)
		return err
	}

	data, readErr := io.ReadAll(body)
	if readErr != nil {
		return readErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		return minio.ErrorResponse{StatusCode: 404, Code: "NoSuchBucket"}
	}
	m.buckets[bucket][key] = &object{
		data:        data,
		contentType: opts.ContentType,
		metadata:    opts.UserMetadata,
		modified:    time.Now(),
	}
	return nil
}

func (m *MockObjectStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GET", bucket, key)
	if err := m.injected("GET", bucket, key); err != nil {
		return nil, err
	}
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, minio.ErrorResponse{StatusCode: 404, Code: "NoSuchBucket"}
	}
	o, ok := b[key]
	if !ok {
		return nil, NotFoundError()
	}
	return &trackedReader{Reader: bytes.NewReader(o.data), mock: m, key: bucket + "/" + key}, nil
}

func (m *MockObjectStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("STAT", bucket, key)
	if err := m.injected("STAT", bucket, key); err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	b, ok := m.buckets[bucket]
	if !ok {
		return false, nil
	}
	_, ok = b[key]
	return ok, nil
}

func (m *MockObjectStore) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DELETE", bucket, key)
	if err := m.injected("DELETE", bucket, key); err != nil {
		return err
	}
	if b, ok := m.buckets[bucket]; ok {
		delete(b, key)
	}
	return nil
}

func (m *MockObjectStore) Copy(ctx context.Context, destBucket, destKey, srcBucket, srcKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("COPY", srcBucket, srcKey)
	if err := m.injected("COPY", srcBucket, srcKey); err != nil {
		return err
	}
	src, ok := m.buckets[srcBucket]
	if !ok {
		return minio.ErrorResponse{StatusCode: 404, Code: "NoSuchBucket"}
	}
	o, ok := src[srcKey]
	if !ok {
		return NotFoundError()
	}
	dst, ok := m.buckets[destBucket]
	if !ok {
		return minio.ErrorResponse{StatusCode: 404, Code: "NoSuchBucket"}
	}
	cp := *o
	cp.data = append([]byte(nil), o.data...)
	cp.modified = time.Now()
	dst[destKey] = &cp
	return nil
}

func (m *MockObjectStore) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) (<-chan storage.ObjectInfo, <-chan error) {
	objectCh := make(chan storage.ObjectInfo)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.record("LIST", bucket, prefix)
	injectedErr := m.injected("LIST", bucket, prefix)
	var infos []storage.ObjectInfo
	if b, ok := m.buckets[bucket]; ok {
		for k, o := range b {
			if strings.HasPrefix(k, prefix) {
				infos = append(infos, storage.ObjectInfo{
					Key:          k,
					Size:         int64(len(o.data)),
					LastModified: o.modified,
				})
			}
		}
	}
	m.mu.Unlock()

	go func() {
		defer close(objectCh)
		defer close(errCh)
		if injectedErr != nil {
			errCh <- injectedErr
			return
		}
		for _, info := range infos {
			select {
			case objectCh <- info:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return objectCh, errCh
}

func (m *MockObjectStore) PresignedURL(ctx context.Context, method, bucket, key string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PRESIGN", bucket, key)
	if err := m.injected("PRESIGN", bucket, key); err != nil {
		return "", err
	}
	if method == "" {
		method = "GET"
	}
	return fmt.Sprintf("https://mock.s3/%s/%s?method=%s&expires=%d", bucket, key, method, int(expiry.Seconds())), nil
}
