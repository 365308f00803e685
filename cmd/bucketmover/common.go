package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimamiri9248/bucketmover/config"
	"github.com/nimamiri9248/bucketmover/logger"
	"github.com/nimamiri9248/bucketmover/pkg/resilient"
	"github.com/nimamiri9248/bucketmover/storage"
)

const defaultConfigPath = "config.toml"

// loadConfig reads the TOML configuration and initializes logging. A
// missing file is only an error when the path was given explicitly;
// credentials can then still come from the environment.
func loadConfig(configPath string) (config.Config, error) {
	cfg := config.NewDefaultConfig()

	err := config.Load(configPath, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && configPath == defaultConfigPath {
			cfg.ApplyEnvOverrides()
		} else {
			return cfg, err
		}
	}

	if _, err := logger.Initialize(cfg.Logging); err != nil {
		return cfg, fmt.Errorf("failed to initialize logging: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// newStore builds the S3 client wrapped with retries and circuit
// breakers.
func newStore(cfg config.Config) (*resilient.Store, error) {
	s3, err := storage.New(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, !cfg.S3.DisableTLS, cfg.S3.Trace)
	if err != nil {
		return nil, err
	}
	return resilient.New(s3), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Infof("Received signal: %s, shutting down...", sig)
		cancel()
	}()

	return ctx, cancel
}
