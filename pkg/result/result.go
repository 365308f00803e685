// Package result provides a typed success/error envelope for fallible
// object storage operations.
//
// Every fallible operation in the transfer layer returns a Result instead
// of a bare error, so callers can branch on Ok() without unwrapping chains
// of wrapped errors. A failed Result carries a Code from a closed taxonomy
// plus a human-readable message, and an explicit Retryable flag that
// callers use to decide whether a retry makes sense.
//
// # Usage
//
//	res := svc.UploadStream(ctx, body, "reports", "q3.pdf", transfer.UploadOptions{})
//	if !res.Ok() {
//		if res.Err().Retryable {
//			// schedule a retry
//		}
//		return res.Err()
//	}
//	key := res.Value()
package result

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

// Code identifies the failure class of a storage operation.
type Code string

const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeUploadFailed  Code = "UPLOAD_FAILED"
	CodeStreamFailed  Code = "STREAM_FAILED"
	CodeDeleteFailed  Code = "DELETE_FAILED"
	CodePresignFailed Code = "PRESIGN_FAILED"
	CodeBucketAccess  Code = "BUCKET_ACCESS"
	CodeUnknown       Code = "UNKNOWN"
)

// Error is the failure payload of a Result.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result wraps either a value of type T or an Error. The zero value is a
// failed result with a nil error; construct results with Ok and Err.
type Result[T any] struct {
	ok    bool
	value T
	err   *Error
}

// Ok returns a successful Result carrying value.
func Ok[T any](value T) Result[T] {
	return Result[T]{ok: true, value: value}
}

// Err returns a failed Result with the given code and message.
// Retryable defaults to false; use ErrRetryable for transient failures.
func Err[T any](code Code, msg string) Result[T] {
	return Result[T]{err: &Error{Code: code, Message: msg}}
}

// Errf is Err with fmt.Sprintf formatting of the message.
func Errf[T any](code Code, format string, args ...any) Result[T] {
	return Err[T](code, fmt.Sprintf(format, args...))
}

// ErrRetryable returns a failed Result marked retryable.
func ErrRetryable[T any](code Code, msg string) Result[T] {
	return Result[T]{err: &Error{Code: code, Message: msg, Retryable: true}}
}

// FromError builds a failed Result from a backend error, classifying it
// into the taxonomy and setting Retryable for transient failure classes.
func FromError[T any](err error, msg string) Result[T] {
	code := Classify(err)
	return Result[T]{err: &Error{
		Code:      code,
		Message:   fmt.Sprintf("%s: %v", msg, err),
		Retryable: IsRetryable(code, err),
	}}
}

// Ok reports whether the result is a success.
func (r Result[T]) Ok() bool {
	return r.ok
}

// Value returns the success value. It is only meaningful when Ok() is true.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the failure payload, or nil for a successful result.
func (r Result[T]) Err() *Error {
	return r.err
}

// Unwrap returns the value and a plain error, for callers that prefer the
// conventional two-value form.
func (r Result[T]) Unwrap() (T, error) {
	if r.ok {
		return r.value, nil
	}
	var zero T
	if r.err == nil {
		return zero, &Error{Code: CodeUnknown, Message: "uninitialized result"}
	}
	return zero, r.err
}

// Classify maps a backend error to a Code. minio.ErrorResponse status and
// S3 error codes take precedence over string matching.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		switch {
		case minioErr.StatusCode == 404, minioErr.Code == "NoSuchKey", minioErr.Code == "NotFound", minioErr.Code == "NoSuchBucket":
			return CodeNotFound
		case minioErr.StatusCode == 403, minioErr.Code == "AccessDenied":
			return CodeBucketAccess
		}
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "NoSuchKey") || strings.Contains(errStr, "NotFound"):
		return CodeNotFound
	case strings.Contains(errStr, "AccessDenied") || strings.Contains(errStr, "Forbidden"):
		return CodeBucketAccess
	default:
		return CodeUnknown
	}
}

// IsRetryable reports whether an error of the given code is worth
// retrying. NOT_FOUND and access failures never are; timeouts, throttling
// and transient network errors are.
func IsRetryable(code Code, err error) bool {
	if code == CodeNotFound || code == CodeBucketAccess {
		return false
	}
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transient := []string{
		"connection refused",
		"connection reset",
		"i/o timeout",
		"network unreachable",
		"no such host",
		"temporary failure",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"gateway timeout",
		"timeout",
		"slowdown",
		"throttling",
		"rate limit",
	}
	for _, s := range transient {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
