package storage

import "strings"

// ObjectKey joins a directory and filename into an object key. The
// directory is stripped of leading and trailing separators, so the
// resulting key never starts with "/". A given (directory, filename)
// pair always produces exactly one key.
func ObjectKey(directory, filename string) string {
	directory = strings.Trim(directory, "/")
	if directory == "" {
		return filename
	}
	return directory + "/" + filename
}

// NormalizePrefix normalizes a key prefix to either the empty string or a
// string ending in exactly one "/". It is idempotent.
func NormalizePrefix(p string) string {
	if p == "" {
		return ""
	}
	return strings.TrimRight(p, "/") + "/"
}
