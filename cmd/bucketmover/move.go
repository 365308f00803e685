package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/nimamiri9248/bucketmover/logger"
	"github.com/nimamiri9248/bucketmover/migration"
	"github.com/nimamiri9248/bucketmover/server/metricsrv"
)

func handleMove() {
	fs := flag.NewFlagSet("move", flag.ExitOnError)

	configPath := fs.String("config", defaultConfigPath, "Path to TOML configuration file")
	sourceBucket := fs.String("source-bucket", "", "Bucket to move objects out of (required)")
	sourcePrefix := fs.String("source-prefix", "", "Only move objects under this prefix")
	destBucket := fs.String("dest-bucket", "", "Bucket to move objects into (required)")
	destPrefix := fs.String("dest-prefix", "", "Prefix to place moved objects under")
	workers := fs.Int("workers", 0, "Concurrent per-object workers (overrides config)")
	overwrite := fs.Bool("overwrite", false, "Overwrite objects that already exist at the destination")
	dryRun := fs.Bool("dry-run", false, "Log what would be moved without copying or deleting anything")
	checkpointPath := fs.String("checkpoint", "", "SQLite checkpoint database for resumable runs (overrides config)")
	metricsAddr := fs.String("metrics-addr", "", "Listen address for /metrics and /healthz (overrides config)")

	fs.Usage = func() {
		fmt.Printf(`Move all objects under a prefix to another bucket/prefix

Every object is copied to the destination first and deleted from the
source only after the copy succeeded. Objects already present at the
destination are skipped unless --overwrite is given.

Usage:
  bucketmover move [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Printf(`
Examples:
  bucketmover move --source-bucket hello --source-prefix hello5/hello2 --dest-bucket hello2 --dest-prefix hello8/hello2
  bucketmover move --source-bucket hello --dest-bucket archive --workers 8 --checkpoint ./move.db
`)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	if *sourceBucket == "" || *destBucket == "" {
		fmt.Println("Error: --source-bucket and --dest-bucket are required")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	store, err := newStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to create S3 client: %v", err)
	}

	if *workers == 0 {
		*workers = cfg.Migration.Workers
	}
	if *checkpointPath == "" {
		*checkpointPath = cfg.Migration.CheckpointPath
	}
	if *metricsAddr == "" {
		*metricsAddr = cfg.Migration.MetricsAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *metricsAddr != "" {
		errChan := make(chan error, 1)
		go metricsrv.Start(ctx, metricsrv.ServerOptions{Addr: *metricsAddr, Breakers: store}, errChan)
		go func() {
			if err := <-errChan; err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	var checkpoint *migration.Checkpoint
	if *checkpointPath != "" {
		checkpoint, err = migration.OpenCheckpoint(*checkpointPath)
		if err != nil {
			logger.Fatalf("Failed to open checkpoint database: %v", err)
		}
		defer checkpoint.Close()
	}

	orch, err := migration.New(store, migration.Options{
		SourceBucket: *sourceBucket,
		SourcePrefix: *sourcePrefix,
		DestBucket:   *destBucket,
		DestPrefix:   *destPrefix,
		Overwrite:    *overwrite || cfg.Migration.Overwrite,
		Workers:      *workers,
		DryRun:       *dryRun,
		Checkpoint:   checkpoint,
	})
	if err != nil {
		logger.Fatalf("Invalid migration options: %v", err)
	}

	counters, err := orch.Run(ctx)
	if err != nil {
		var precond *migration.PreconditionError
		switch {
		case errors.As(err, &precond):
			logger.Errorf("Migration aborted: %v", precond)
		case errors.Is(err, context.Canceled):
			logger.Errorf("Migration interrupted: %s", counters.String())
		default:
			logger.Errorf("Migration failed: %v", err)
		}
		os.Exit(1)
	}

	fmt.Printf("Migration complete: %s\n", counters.String())
	if counters.Errors > 0 {
		os.Exit(2)
	}
}
