package migration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimamiri9248/bucketmover/testutils"
)

func setupBuckets(t *testing.T) *testutils.MockObjectStore {
	t.Helper()
	mock := testutils.NewMockObjectStore("hello", "hello2")
	mock.SetObject("hello", "hello5/hello2/a.txt", []byte("alpha"))
	mock.SetObject("hello", "hello5/hello2/b/c.txt", []byte("charlie"))
	return mock
}

func run(t *testing.T, mock *testutils.MockObjectStore, opts Options) (Counters, error) {
	t.Helper()
	orch, err := New(mock, opts)
	require.NoError(t, err)
	return orch.Run(context.Background())
}

func TestRunMovesAllObjects(t *testing.T) {
	mock := setupBuckets(t)

	counters, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
	})
	require.NoError(t, err)

	assert.Equal(t, Counters{Moved: 2, Copied: 2, Skipped: 0, Errors: 0}, counters)
	assert.Equal(t, []string{"hello8/hello2/a.txt", "hello8/hello2/b/c.txt"}, mock.Keys("hello2"))
	assert.Empty(t, mock.Keys("hello"), "source must end empty")

	data, ok := mock.GetObjectData("hello2", "hello8/hello2/a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("alpha"), data)
}

func TestRunSkipsExistingDestination(t *testing.T) {
	mock := setupBuckets(t)
	mock.SetObject("hello2", "hello8/hello2/a.txt", []byte("pre-existing"))

	counters, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
	})
	require.NoError(t, err)

	assert.Equal(t, Counters{Moved: 1, Copied: 1, Skipped: 1, Errors: 0}, counters)

	// The skipped object is mutated on neither side.
	srcData, ok := mock.GetObjectData("hello", "hello5/hello2/a.txt")
	require.True(t, ok, "skipped source object must remain")
	assert.Equal(t, []byte("alpha"), srcData)

	destData, ok := mock.GetObjectData("hello2", "hello8/hello2/a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("pre-existing"), destData, "existing destination must not be overwritten")
}

func TestRunOverwrite(t *testing.T) {
	mock := setupBuckets(t)
	mock.SetObject("hello2", "hello8/hello2/a.txt", []byte("pre-existing"))

	counters, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
		Overwrite:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, Counters{Moved: 2, Copied: 2, Skipped: 0, Errors: 0}, counters)

	destData, ok := mock.GetObjectData("hello2", "hello8/hello2/a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("alpha"), destData, "overwrite replaces the destination object")

	for _, call := range mock.Calls() {
		assert.False(t, strings.HasPrefix(call, "STAT "), "overwrite mode must not probe the destination")
	}
}

func TestRunCreatesDestinationBucket(t *testing.T) {
	mock := testutils.NewMockObjectStore("hello")
	mock.SetObject("hello", "p/x.txt", []byte("x"))

	counters, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "p",
		DestBucket:   "brand-new",
		DestPrefix:   "q",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.Moved)
	assert.Equal(t, []string{"q/x.txt"}, mock.Keys("brand-new"))
}

func TestRunMissingSourceBucketIsFatal(t *testing.T) {
	mock := testutils.NewMockObjectStore("hello2")

	counters, err := run(t, mock, Options{
		SourceBucket: "nope",
		DestBucket:   "hello2",
	})

	var precond *PreconditionError
	require.ErrorAs(t, err, &precond)
	assert.Contains(t, precond.Error(), "nope")
	assert.Equal(t, Counters{}, counters, "no counters are emitted for a fatal precondition")
}

func TestRunCopyFailureIsIsolated(t *testing.T) {
	mock := setupBuckets(t)
	mock.FailOn("COPY", "hello", "hello5/hello2/a.txt", errors.New("copy exploded"))

	counters, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
	})
	require.NoError(t, err, "per-object copy failures never abort the run")

	assert.Equal(t, Counters{Moved: 1, Copied: 1, Skipped: 0, Errors: 1}, counters)

	// Safety invariant: the failed object is still in the source.
	_, ok := mock.GetObjectData("hello", "hello5/hello2/a.txt")
	assert.True(t, ok, "an object whose copy failed must never leave the source")
	_, ok = mock.GetObjectData("hello2", "hello8/hello2/a.txt")
	assert.False(t, ok)
}

func TestRunDeleteFailureLeavesDuplicate(t *testing.T) {
	mock := setupBuckets(t)
	mock.FailOn("DELETE", "hello", "hello5/hello2/a.txt", errors.New("delete exploded"))

	counters, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
	})
	require.NoError(t, err, "per-object delete failures never abort the run")

	assert.Equal(t, Counters{Moved: 1, Copied: 2, Skipped: 0, Errors: 1}, counters)

	// Duplicate, not data loss: both sides hold the object.
	_, ok := mock.GetObjectData("hello", "hello5/hello2/a.txt")
	assert.True(t, ok)
	_, ok = mock.GetObjectData("hello2", "hello8/hello2/a.txt")
	assert.True(t, ok)
}

func TestRunAmbiguousDestinationProbeIsFatal(t *testing.T) {
	mock := setupBuckets(t)
	mock.FailOn("STAT", "hello2", "hello8/hello2/a.txt", minio.ErrorResponse{StatusCode: 403, Code: "AccessDenied"})

	_, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
	})

	var precond *PreconditionError
	require.ErrorAs(t, err, &precond, "an ambiguous destination state must abort the whole run")
	assert.Equal(t, "destination probe", precond.Op)
}

func TestRunCopyPrecedesDelete(t *testing.T) {
	mock := setupBuckets(t)

	_, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
	})
	require.NoError(t, err)

	copied := make(map[string]bool)
	for _, call := range mock.Calls() {
		if op, rest, ok := strings.Cut(call, " "); ok {
			switch op {
			case "COPY":
				copied[rest] = true
			case "DELETE":
				assert.True(t, copied[rest], "delete of %s must be preceded by its copy", rest)
			}
		}
	}
}

func TestRunCounterInvariant(t *testing.T) {
	mock := testutils.NewMockObjectStore("src", "dst")
	const total = 40
	for i := 0; i < total; i++ {
		key := fmt.Sprintf("data/obj-%02d", i)
		mock.SetObject("src", key, []byte("payload"))
		switch i % 5 {
		case 1:
			mock.FailOn("COPY", "src", key, errors.New("copy failed"))
		case 2:
			mock.FailOn("DELETE", "src", key, errors.New("delete failed"))
		case 3:
			mock.SetObject("dst", "moved/obj-"+fmt.Sprintf("%02d", i), []byte("already there"))
		}
	}

	counters, err := run(t, mock, Options{
		SourceBucket: "src",
		SourcePrefix: "data",
		DestBucket:   "dst",
		DestPrefix:   "moved",
		Workers:      4,
	})
	require.NoError(t, err)

	// Every listed object reaches exactly one terminal classification.
	assert.Equal(t, int64(total), counters.Skipped+counters.Moved+counters.Errors)
	assert.Equal(t, int64(8), counters.Skipped)
	assert.Equal(t, int64(16), counters.Errors)
	assert.Equal(t, int64(16), counters.Moved)
	assert.Equal(t, counters.Moved+int64(8), counters.Copied, "copied counts moved plus delete-failed objects")
}

func TestRunEmptyPrefix(t *testing.T) {
	mock := testutils.NewMockObjectStore("src", "dst")

	counters, err := run(t, mock, Options{
		SourceBucket: "src",
		SourcePrefix: "nothing/here",
		DestBucket:   "dst",
	})
	require.NoError(t, err)
	assert.Equal(t, Counters{}, counters)
}

func TestRunDryRun(t *testing.T) {
	mock := setupBuckets(t)

	counters, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
		DryRun:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, Counters{Moved: 2, Copied: 2}, counters)
	assert.Empty(t, mock.Keys("hello2"), "dry run must not mutate the destination")
	assert.Len(t, mock.Keys("hello"), 2, "dry run must not mutate the source")
}

func TestRunDryRunDoesNotTouchCheckpoint(t *testing.T) {
	cp, err := OpenCheckpoint(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer cp.Close()

	mock := setupBuckets(t)

	opts := Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
		Checkpoint:   cp,
	}

	dryOpts := opts
	dryOpts.DryRun = true
	counters, err := run(t, mock, dryOpts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counters.Moved)

	_, found, err := cp.State("hello5/hello2/a.txt")
	require.NoError(t, err)
	assert.False(t, found, "a simulated move must leave no checkpoint record")

	// The real run still moves everything.
	counters, err = run(t, mock, opts)
	require.NoError(t, err)
	assert.Equal(t, Counters{Moved: 2, Copied: 2}, counters)
	assert.Equal(t, []string{"hello8/hello2/a.txt", "hello8/hello2/b/c.txt"}, mock.Keys("hello2"))
	assert.Empty(t, mock.Keys("hello"))
}

// cancellingCopyStore cancels the run context from inside the first Copy
// call, while the single worker is mid-object and the scheduler is
// blocked handing out the next one.
type cancellingCopyStore struct {
	*testutils.MockObjectStore
	cancel context.CancelFunc
	once   sync.Once
}

func (s *cancellingCopyStore) Copy(ctx context.Context, destBucket, destKey, srcBucket, srcKey string) error {
	s.once.Do(s.cancel)
	return s.MockObjectStore.Copy(ctx, destBucket, destKey, srcBucket, srcKey)
}

func TestRunCancelledMidRunDrainsInFlight(t *testing.T) {
	mock := testutils.NewMockObjectStore("src", "dst")
	for i := 0; i < 3; i++ {
		mock.SetObject("src", fmt.Sprintf("data/obj-%d", i), []byte("payload"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := &cancellingCopyStore{MockObjectStore: mock, cancel: cancel}

	orch, err := New(inner, Options{
		SourceBucket: "src",
		SourcePrefix: "data",
		DestBucket:   "dst",
		DestPrefix:   "moved",
		Workers:      1,
	})
	require.NoError(t, err)

	counters, err := orch.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The in-flight object runs to completion; the rest are never
	// scheduled and stay untouched in the source.
	assert.Equal(t, Counters{Moved: 1, Copied: 1}, counters)
	assert.Len(t, mock.Keys("dst"), 1)
	assert.Len(t, mock.Keys("src"), 2)
}

func TestRunCancelled(t *testing.T) {
	mock := setupBuckets(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch, err := New(mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
	})
	require.NoError(t, err)

	_, err = orch.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunWithCheckpointResume(t *testing.T) {
	cp, err := OpenCheckpoint(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer cp.Close()

	mock := setupBuckets(t)

	opts := Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
		Checkpoint:   cp,
	}

	counters, err := run(t, mock, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counters.Moved)

	// Simulate a leftover source object reappearing after the run, as an
	// interrupted listing would leave behind.
	mock.SetObject("hello", "hello5/hello2/a.txt", []byte("alpha"))

	counters, err = run(t, mock, opts)
	require.NoError(t, err)
	assert.Equal(t, Counters{Skipped: 1}, counters, "keys recorded moved are not reprocessed")
}

func TestRunWithCheckpointRetriesFailedDelete(t *testing.T) {
	cp, err := OpenCheckpoint(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer cp.Close()

	// Previous run copied the object but failed to delete the source:
	// both sides hold it and the checkpoint remembers why.
	mock := testutils.NewMockObjectStore("hello", "hello2")
	mock.SetObject("hello", "hello5/hello2/a.txt", []byte("alpha"))
	mock.SetObject("hello2", "hello8/hello2/a.txt", []byte("alpha"))
	require.NoError(t, cp.Record("hello5/hello2/a.txt", "hello8/hello2/a.txt", OutcomeDeleteFailed, "delete exploded"))

	counters, err := run(t, mock, Options{
		SourceBucket: "hello",
		SourcePrefix: "hello5/hello2",
		DestBucket:   "hello2",
		DestPrefix:   "hello8/hello2",
		Checkpoint:   cp,
	})
	require.NoError(t, err)

	// The stale duplicate is recognized and cleaned up instead of being
	// misclassified as a destination conflict.
	assert.Equal(t, Counters{Moved: 1, Copied: 1}, counters)
	assert.Empty(t, mock.Keys("hello"))
	_, ok := mock.GetObjectData("hello2", "hello8/hello2/a.txt")
	assert.True(t, ok)

	state, found, err := cp.State("hello5/hello2/a.txt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, OutcomeMoved, state)
}

func TestNewValidatesBuckets(t *testing.T) {
	mock := testutils.NewMockObjectStore()

	_, err := New(mock, Options{DestBucket: "d"})
	assert.Error(t, err)

	_, err = New(mock, Options{SourceBucket: "s"})
	assert.Error(t, err)
}
