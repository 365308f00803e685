// Package migration implements bulk prefix migration between buckets:
// every object under a source prefix is server-side copied to a
// destination prefix and then deleted from the source.
//
// The engine distinguishes two failure classes. Precondition failures
// (missing source bucket, an ambiguous destination probe) abort the whole
// run and surface as *PreconditionError. Per-object failures (copy or
// delete) are isolated: they are logged, counted in the run's error
// counter, and never stop the remaining objects.
//
// An object is never removed from the source before its copy at the
// destination is confirmed; a failed delete therefore leaves a duplicate,
// not a loss.
package migration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimamiri9248/bucketmover/logger"
	"github.com/nimamiri9248/bucketmover/pkg/metrics"
	"github.com/nimamiri9248/bucketmover/storage"
)

// Outcome is the terminal classification of one object within a run.
type Outcome string

const (
	OutcomeSkipped      Outcome = "skipped"
	OutcomeCopyFailed   Outcome = "copy_failed"
	OutcomeMoved        Outcome = "moved"
	OutcomeDeleteFailed Outcome = "delete_failed"
)

// PreconditionError is a fatal error detected before or during a run that
// makes continuing unsafe. It aborts the whole run, unlike per-object
// failures which are isolated and counted.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("migration precondition failed (%s): %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// Options configures one migration run.
type Options struct {
	SourceBucket string
	SourcePrefix string
	DestBucket   string
	DestPrefix   string

	// Overwrite skips the destination existence probe and always copies.
	Overwrite bool

	// Workers bounds the number of objects processed concurrently.
	// Values below 1 mean sequential processing.
	Workers int

	// DryRun logs what would happen without mutating the buckets or the
	// checkpoint.
	DryRun bool

	// Checkpoint, when non-nil, records per-key terminal states so an
	// interrupted run can be resumed without reprocessing moved objects.
	Checkpoint *Checkpoint
}

// Counters is the accounting of one completed (or aborted) run.
type Counters struct {
	Moved   int64
	Copied  int64
	Skipped int64
	Errors  int64
}

func (c Counters) String() string {
	return fmt.Sprintf("moved=%d, copied=%d, skipped=%d, errors=%d", c.Moved, c.Copied, c.Skipped, c.Errors)
}

// Orchestrator runs prefix migrations against a backing store.
type Orchestrator struct {
	store storage.ObjectStore
	opts  Options

	srcPrefix  string
	destPrefix string

	moved   atomic.Int64
	copied  atomic.Int64
	skipped atomic.Int64
	errors  atomic.Int64
}

// New returns an Orchestrator for the given run. Prefixes are normalized
// once here; the rest of the engine relies on that.
func New(store storage.ObjectStore, opts Options) (*Orchestrator, error) {
	if opts.SourceBucket == "" {
		return nil, fmt.Errorf("source bucket must be provided")
	}
	if opts.DestBucket == "" {
		return nil, fmt.Errorf("destination bucket must be provided")
	}
	return &Orchestrator{
		store:      store,
		opts:       opts,
		srcPrefix:  storage.NormalizePrefix(opts.SourcePrefix),
		destPrefix: storage.NormalizePrefix(opts.DestPrefix),
	}, nil
}

// Run migrates all objects under the source prefix and reports the run
// counters. On a fatal precondition failure it returns the counters
// accumulated so far together with a *PreconditionError; when the context
// is cancelled it stops scheduling new objects, drains the ones in
// flight, and returns the partial counters with the context error.
func (o *Orchestrator) Run(ctx context.Context) (Counters, error) {
	start := time.Now()

	exists, err := o.store.BucketExists(ctx, o.opts.SourceBucket)
	if err != nil {
		metrics.MigrationRunsTotal.WithLabelValues("failed").Inc()
		return Counters{}, &PreconditionError{Op: "source bucket check", Err: err}
	}
	if !exists {
		metrics.MigrationRunsTotal.WithLabelValues("failed").Inc()
		return Counters{}, &PreconditionError{Op: "source bucket check", Err: fmt.Errorf("source bucket does not exist: %s", o.opts.SourceBucket)}
	}

	if err := o.store.EnsureBucket(ctx, o.opts.DestBucket); err != nil {
		metrics.MigrationRunsTotal.WithLabelValues("failed").Inc()
		return Counters{}, &PreconditionError{Op: "destination bucket ensure", Err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A fatal per-object condition (ambiguous destination probe) aborts
	// the whole run: record it once and stop scheduling.
	var fatalMu sync.Mutex
	var fatalErr error
	abort := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
		cancel()
	}

	objectCh, listErrCh := o.store.ListObjects(runCtx, o.opts.SourceBucket, o.srcPrefix, true)

	workers := o.opts.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan storage.ObjectInfo)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for obj := range jobs {
				metrics.MigrationObjectsInFlight.Inc()
				o.processObject(runCtx, obj.Key, abort)
				metrics.MigrationObjectsInFlight.Dec()
			}
		}()
	}

scheduling:
	for obj := range objectCh {
		select {
		case jobs <- obj:
		case <-runCtx.Done():
			break scheduling
		}
	}
	close(jobs)
	wg.Wait()

	counters := o.snapshot()

	fatalMu.Lock()
	runErr := fatalErr
	fatalMu.Unlock()

	if runErr == nil {
		if err := ctx.Err(); err != nil {
			runErr = err
		}
	}
	if runErr == nil {
		if err := <-listErrCh; err != nil {
			runErr = &PreconditionError{Op: "source listing", Err: err}
		}
	}

	metrics.MigrationDuration.Observe(time.Since(start).Seconds())
	switch {
	case runErr == nil:
		metrics.MigrationRunsTotal.WithLabelValues("completed").Inc()
	case ctx.Err() != nil:
		metrics.MigrationRunsTotal.WithLabelValues("cancelled").Inc()
	default:
		metrics.MigrationRunsTotal.WithLabelValues("failed").Inc()
	}

	logger.Info("MIGRATION: Run finished",
		"source", fmt.Sprintf("%s/%s", o.opts.SourceBucket, o.srcPrefix),
		"dest", fmt.Sprintf("%s/%s", o.opts.DestBucket, o.destPrefix),
		"moved", counters.Moved,
		"copied", counters.Copied,
		"skipped", counters.Skipped,
		"errors", counters.Errors,
		"duration", time.Since(start).Round(time.Millisecond))

	return counters, runErr
}

// processObject takes one listed key through the per-object state
// machine. Copy strictly precedes delete; a failure in either is counted
// and isolated. A destination probe failure other than not-found calls
// abort: an ambiguous destination state must not be silently bypassed.
func (o *Orchestrator) processObject(ctx context.Context, key string, abort func(error)) {
	tail := key
	if o.srcPrefix != "" && strings.HasPrefix(key, o.srcPrefix) {
		tail = key[len(o.srcPrefix):]
	}
	destKey := o.destPrefix + tail

	if o.opts.Checkpoint != nil {
		state, found, err := o.opts.Checkpoint.State(key)
		if err != nil {
			logger.Warn("MIGRATION: Checkpoint lookup failed", "key", key, "error", err)
		} else if found {
			switch state {
			case OutcomeMoved:
				logger.Info("MIGRATION: SKIP (already moved in previous run)", "key", key)
				o.finish(key, destKey, OutcomeSkipped, nil)
				return
			case OutcomeDeleteFailed:
				// The copy already succeeded in a previous run; only the
				// source cleanup is outstanding. Retry just the delete so
				// the stale duplicate is not misclassified as a conflict.
				o.deleteSource(ctx, key, destKey)
				return
			}
		}
	}

	if !o.opts.Overwrite {
		exists, err := o.store.Exists(ctx, o.opts.DestBucket, destKey)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			abort(&PreconditionError{Op: "destination probe", Err: fmt.Errorf("probing %s/%s: %w", o.opts.DestBucket, destKey, err)})
			return
		}
		if exists {
			logger.Info("MIGRATION: SKIP (exists)", "dest", fmt.Sprintf("%s/%s", o.opts.DestBucket, destKey))
			o.finish(key, destKey, OutcomeSkipped, nil)
			return
		}
	}

	logger.Info("MIGRATION: COPY",
		"source", fmt.Sprintf("%s/%s", o.opts.SourceBucket, key),
		"dest", fmt.Sprintf("%s/%s", o.opts.DestBucket, destKey),
		"dry_run", o.opts.DryRun)

	if o.opts.DryRun {
		o.finish(key, destKey, OutcomeMoved, nil)
		return
	}

	if err := o.store.Copy(ctx, o.opts.DestBucket, destKey, o.opts.SourceBucket, key); err != nil {
		logger.Error("MIGRATION: Copy failed", "key", key, "error", err)
		o.finish(key, destKey, OutcomeCopyFailed, err)
		return
	}

	o.deleteSource(ctx, key, destKey)
}

// deleteSource removes the source object after a confirmed copy.
func (o *Orchestrator) deleteSource(ctx context.Context, key, destKey string) {
	logger.Info("MIGRATION: DELETE", "source", fmt.Sprintf("%s/%s", o.opts.SourceBucket, key))

	if err := o.store.Delete(ctx, o.opts.SourceBucket, key); err != nil {
		// Source and destination both hold the object now: a duplicate,
		// not data loss.
		logger.Error("MIGRATION: Delete failed, source object retained", "key", key, "error", err)
		o.finish(key, destKey, OutcomeDeleteFailed, err)
		return
	}

	o.finish(key, destKey, OutcomeMoved, nil)
}

// finish applies the terminal classification of one object to the run
// counters, metrics and checkpoint. Dry runs never touch the checkpoint:
// a simulated move must not make a later real run skip the key.
func (o *Orchestrator) finish(key, destKey string, outcome Outcome, cause error) {
	switch outcome {
	case OutcomeSkipped:
		o.skipped.Add(1)
	case OutcomeCopyFailed:
		o.errors.Add(1)
	case OutcomeMoved:
		o.copied.Add(1)
		o.moved.Add(1)
	case OutcomeDeleteFailed:
		o.copied.Add(1)
		o.errors.Add(1)
	}
	metrics.MigrationObjectsTotal.WithLabelValues(string(outcome)).Inc()

	if o.opts.Checkpoint != nil && !o.opts.DryRun {
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		if err := o.opts.Checkpoint.Record(key, destKey, outcome, msg); err != nil {
			logger.Warn("MIGRATION: Checkpoint write failed", "key", key, "error", err)
		}
	}
}

func (o *Orchestrator) snapshot() Counters {
	return Counters{
		Moved:   o.moved.Load(),
		Copied:  o.copied.Load(),
		Skipped: o.skipped.Load(),
		Errors:  o.errors.Load(),
	}
}
