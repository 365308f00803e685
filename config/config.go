// Package config loads and validates the bucketmover TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// S3Config holds S3 configuration.
//
// There are deliberately no defaults for endpoint or credentials: a
// configuration that does not name them explicitly is rejected at startup.
type S3Config struct {
	Endpoint   string `toml:"endpoint"`
	DisableTLS bool   `toml:"disable_tls"`
	AccessKey  string `toml:"access_key"`
	SecretKey  string `toml:"secret_key"`
	Bucket     string `toml:"bucket"`
	Trace      bool   `toml:"trace"` // Enable detailed S3 request/response tracing
}

// MigrationConfig holds defaults for prefix migration runs. All of these
// can be overridden per run with command-line flags.
type MigrationConfig struct {
	Workers        int    `toml:"workers"`         // Concurrent per-object workers (default: 1, sequential)
	Overwrite      bool   `toml:"overwrite"`       // Overwrite existing destination objects
	CheckpointPath string `toml:"checkpoint_path"` // SQLite checkpoint database path ("" disables resumability)
	MetricsAddr    string `toml:"metrics_addr"`    // Address for the /metrics listener ("" disables it)
}

// TransferConfig holds tunables for the streaming transfer paths.
type TransferConfig struct {
	PartSize      string `toml:"part_size"`      // Multipart upload part size (default: "5mb")
	ChunkSize     string `toml:"chunk_size"`     // Download chunk size (default: "8kb")
	PresignExpiry string `toml:"presign_expiry"` // Default presigned URL lifetime (default: "1h")
	ContentHash   bool   `toml:"content_hash"`   // Log a BLAKE3 content hash for every completed upload
}

// Config is the root configuration.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	S3        S3Config        `toml:"s3"`
	Transfer  TransferConfig  `toml:"transfer"`
	Migration MigrationConfig `toml:"migration"`
}

// NewDefaultConfig returns a configuration with safe defaults. Credentials
// have no defaults and must come from the config file or environment.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		S3: S3Config{
			Endpoint:  "",
			AccessKey: "",
			SecretKey: "",
			Bucket:    "",
		},
		Transfer: TransferConfig{
			PartSize:      "5mb",
			ChunkSize:     "8kb",
			PresignExpiry: "1h",
			ContentHash:   true,
		},
		Migration: MigrationConfig{
			Workers: 1,
		},
	}
}

// Load reads a TOML config file into cfg. Unknown keys are rejected so a
// typo in the file surfaces immediately. Credentials may alternatively be
// supplied via the BUCKETMOVER_ACCESS_KEY and BUCKETMOVER_SECRET_KEY
// environment variables, which take precedence over the file.
func Load(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown configuration keys in %s: %s", path, strings.Join(keys, ", "))
	}

	cfg.ApplyEnvOverrides()
	return nil
}

// ApplyEnvOverrides lets BUCKETMOVER_* environment variables override
// the file-based S3 settings. Load calls this; it is exported for
// callers that run without a configuration file at all.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BUCKETMOVER_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv("BUCKETMOVER_ACCESS_KEY"); v != "" {
		c.S3.AccessKey = v
	}
	if v := os.Getenv("BUCKETMOVER_SECRET_KEY"); v != "" {
		c.S3.SecretKey = v
	}
	if v := os.Getenv("BUCKETMOVER_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
}

// Validate checks that the configuration is complete enough to construct
// an S3 client. It is called once at startup; a failure here is fatal.
func (c *Config) Validate() error {
	var missing []string
	if c.S3.Endpoint == "" {
		missing = append(missing, "s3.endpoint")
	}
	if c.S3.AccessKey == "" {
		missing = append(missing, "s3.access_key")
	}
	if c.S3.SecretKey == "" {
		missing = append(missing, "s3.secret_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Migration.Workers < 0 {
		return fmt.Errorf("migration.workers must not be negative, got %d", c.Migration.Workers)
	}

	if _, err := c.Transfer.GetPartSize(); err != nil {
		return fmt.Errorf("invalid transfer.part_size: %w", err)
	}
	if _, err := c.Transfer.GetChunkSize(); err != nil {
		return fmt.Errorf("invalid transfer.chunk_size: %w", err)
	}
	if _, err := c.Transfer.GetPresignExpiry(); err != nil {
		return fmt.Errorf("invalid transfer.presign_expiry: %w", err)
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}

	return nil
}

// GetPartSize parses the multipart upload part size.
func (t *TransferConfig) GetPartSize() (int64, error) {
	if t.PartSize == "" {
		return 5 * 1024 * 1024, nil
	}
	return ParseSize(t.PartSize)
}

// GetChunkSize parses the download chunk size.
func (t *TransferConfig) GetChunkSize() (int, error) {
	if t.ChunkSize == "" {
		return 8 * 1024, nil
	}
	n, err := ParseSize(t.ChunkSize)
	return int(n), err
}

// GetPresignExpiry parses the default presigned URL lifetime.
func (t *TransferConfig) GetPresignExpiry() (time.Duration, error) {
	if t.PresignExpiry == "" {
		return time.Hour, nil
	}
	return time.ParseDuration(t.PresignExpiry)
}

// ParseSize parses human-friendly sizes like "5mb", "8kb", "512".
func ParseSize(s string) (int64, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	if str == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(str, "gb"):
		multiplier = 1024 * 1024 * 1024
		str = strings.TrimSuffix(str, "gb")
	case strings.HasSuffix(str, "mb"):
		multiplier = 1024 * 1024
		str = strings.TrimSuffix(str, "mb")
	case strings.HasSuffix(str, "kb"):
		multiplier = 1024
		str = strings.TrimSuffix(str, "kb")
	case strings.HasSuffix(str, "b"):
		str = strings.TrimSuffix(str, "b")
	}

	var n int64
	if _, err := fmt.Sscanf(str, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive, got %q", s)
	}
	return n * multiplier, nil
}
