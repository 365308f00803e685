package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/nimamiri9248/bucketmover/config"
	"github.com/nimamiri9248/bucketmover/logger"
	"github.com/nimamiri9248/bucketmover/pkg/result"
	"github.com/nimamiri9248/bucketmover/transfer"
)

// newTransferService builds a transfer.Service for a single bucket from
// the loaded configuration.
func newTransferService(cfg config.Config, bucket string) (*transfer.Service, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	partSize, err := cfg.Transfer.GetPartSize()
	if err != nil {
		return nil, err
	}
	chunkSize, err := cfg.Transfer.GetChunkSize()
	if err != nil {
		return nil, err
	}
	presignExpiry, err := cfg.Transfer.GetPresignExpiry()
	if err != nil {
		return nil, err
	}

	return transfer.NewService(store, bucket, transfer.Options{
		PartSize:      partSize,
		ChunkSize:     chunkSize,
		PresignExpiry: presignExpiry,
		ContentHash:   cfg.Transfer.ContentHash,
	}), nil
}

// fatalResult reports a failed operation and exits.
func fatalResult(op string, err *result.Error) {
	logger.Fatalf("%s failed: [%s] %s", op, err.Code, err.Message)
}

func resolveBucket(flagValue string, cfg config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg.S3.Bucket == "" {
		fmt.Println("Error: no bucket given (use --bucket or set s3.bucket in the config)")
		os.Exit(1)
	}
	return cfg.S3.Bucket
}

func handleUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)

	configPath := fs.String("config", defaultConfigPath, "Path to TOML configuration file")
	bucket := fs.String("bucket", "", "Target bucket (default: s3.bucket from config)")
	dir := fs.String("dir", "", "Key prefix to upload under")
	file := fs.String("file", "", "Object filename (required)")
	source := fs.String("source", "-", "Local file to upload, or - for stdin")
	contentType := fs.String("content-type", "", "Content type of the uploaded object")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	svc, err := newTransferService(cfg, resolveBucket(*bucket, cfg))
	if err != nil {
		logger.Fatalf("Failed to create transfer service: %v", err)
	}

	var body io.ReadCloser = os.Stdin
	if *source != "-" {
		f, err := os.Open(*source)
		if err != nil {
			logger.Fatalf("Failed to open %s: %v", *source, err)
		}
		body = f
	}

	ctx, cancel := signalContext()
	defer cancel()

	res := svc.UploadStream(ctx, body, *dir, *file, transfer.UploadOptions{ContentType: *contentType})
	if !res.Ok() {
		fatalResult("Upload", res.Err())
	}
	fmt.Printf("Uploaded %s\n", res.Value())
}

func handleDownload() {
	fs := flag.NewFlagSet("download", flag.ExitOnError)

	configPath := fs.String("config", defaultConfigPath, "Path to TOML configuration file")
	bucket := fs.String("bucket", "", "Source bucket (default: s3.bucket from config)")
	dir := fs.String("dir", "", "Key prefix of the object")
	file := fs.String("file", "", "Object filename (required)")
	output := fs.String("output", "-", "Local file to write, or - for stdout")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	svc, err := newTransferService(cfg, resolveBucket(*bucket, cfg))
	if err != nil {
		logger.Fatalf("Failed to create transfer service: %v", err)
	}

	var out io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			logger.Fatalf("Failed to create %s: %v", *output, err)
		}
		defer f.Close()
		out = f
	}

	ctx, cancel := signalContext()
	defer cancel()

	chunks, errs := svc.StreamFile(ctx, *dir, *file)
	for chunk := range chunks {
		if _, err := out.Write(chunk); err != nil {
			cancel()
			for range chunks {
			}
			<-errs
			logger.Fatalf("Failed to write output: %v", err)
		}
	}
	if streamErr := <-errs; streamErr != nil {
		fatalResult("Download", streamErr)
	}
}

func handleDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)

	configPath := fs.String("config", defaultConfigPath, "Path to TOML configuration file")
	bucket := fs.String("bucket", "", "Bucket to delete from (default: s3.bucket from config)")
	dir := fs.String("dir", "", "Key prefix of the object")
	file := fs.String("file", "", "Object filename (required)")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	svc, err := newTransferService(cfg, resolveBucket(*bucket, cfg))
	if err != nil {
		logger.Fatalf("Failed to create transfer service: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	res := svc.DeleteFile(ctx, *dir, *file)
	if !res.Ok() {
		fatalResult("Delete", res.Err())
	}
	fmt.Println(res.Value().String())
}

func handlePresign() {
	fs := flag.NewFlagSet("presign", flag.ExitOnError)

	configPath := fs.String("config", defaultConfigPath, "Path to TOML configuration file")
	bucket := fs.String("bucket", "", "Bucket containing the object (default: s3.bucket from config)")
	dir := fs.String("dir", "", "Key prefix of the object")
	file := fs.String("file", "", "Object filename (required)")
	method := fs.String("method", "GET", "HTTP method the URL grants (GET, PUT or HEAD)")
	expiry := fs.Duration("expiry", 0, "URL lifetime (default: transfer.presign_expiry from config)")

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	svc, err := newTransferService(cfg, resolveBucket(*bucket, cfg))
	if err != nil {
		logger.Fatalf("Failed to create transfer service: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	res := svc.PresignedURL(ctx, *dir, *file, transfer.PresignOptions{
		Method: *method,
		Expiry: *expiry,
	})
	if !res.Ok() {
		fatalResult("Presign", res.Err())
	}
	fmt.Println(res.Value())
}
