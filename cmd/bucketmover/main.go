package main

import (
	"fmt"
	"os"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "move":
		handleMove()
	case "upload":
		handleUpload()
	case "download":
		handleDownload()
	case "delete":
		handleDelete()
	case "presign":
		handlePresign()
	case "version", "--version":
		fmt.Printf("bucketmover %s (commit: %s, built: %s)\n", version, commit, date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`BucketMover S3 Transfer Tool

Usage:
  bucketmover <command> [options]

Commands:
  move      Move all objects under a prefix to another bucket/prefix
  upload    Upload a file or stdin to a bucket
  download  Download an object to a file or stdout
  delete    Delete an object (absent objects are not an error)
  presign   Generate a time-limited URL for an object
  version   Show version information
  help      Show this help message

Examples:
  bucketmover move --source-bucket hello --source-prefix hello5/hello2 --dest-bucket hello2 --dest-prefix hello8/hello2
  bucketmover upload --bucket uploads --dir reports/2026 --file summary.pdf --source ./summary.pdf
  bucketmover download --bucket uploads --dir reports/2026 --file summary.pdf --output -
  bucketmover delete --bucket uploads --dir reports/2026 --file summary.pdf
  bucketmover presign --bucket uploads --dir reports/2026 --file summary.pdf --expiry 15m
  bucketmover move --config /path/to/config.toml --source-bucket hello --dest-bucket hello2

Use 'bucketmover <command> --help' for more information about a command.

Exit status is 0 on success, 1 on a fatal error and 2 when a move
completed but some objects failed.
`)
}
