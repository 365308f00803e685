package result

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOk(t *testing.T) {
	res := Ok("dir/a.txt")

	assert.True(t, res.Ok())
	assert.Equal(t, "dir/a.txt", res.Value())
	assert.Nil(t, res.Err())

	v, err := res.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "dir/a.txt", v)
}

func TestErr(t *testing.T) {
	res := Err[string](CodeUploadFailed, "upload error for 'dir/a.txt'")

	assert.False(t, res.Ok())
	require.NotNil(t, res.Err())
	assert.Equal(t, CodeUploadFailed, res.Err().Code)
	assert.Equal(t, "upload error for 'dir/a.txt'", res.Err().Message)
	assert.False(t, res.Err().Retryable, "retryable must default to false")
	assert.Empty(t, res.Value())
}

func TestErrRetryable(t *testing.T) {
	res := ErrRetryable[string](CodeStreamFailed, "connection reset")
	require.NotNil(t, res.Err())
	assert.True(t, res.Err().Retryable)
}

func TestUnwrapFailed(t *testing.T) {
	res := Err[int](CodeNotFound, "object not found: 'a.txt'")

	v, err := res.Unwrap()
	assert.Zero(t, v)
	require.Error(t, err)

	var resErr *Error
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, CodeNotFound, resErr.Code)
}

func TestErrorString(t *testing.T) {
	e := &Error{Code: CodeDeleteFailed, Message: "boom"}
	assert.Equal(t, "DELETE_FAILED: boom", e.Error())
}

func TestZeroValueIsFailure(t *testing.T) {
	var res Result[string]
	assert.False(t, res.Ok())

	_, err := res.Unwrap()
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{
			name: "minio 404",
			err:  minio.ErrorResponse{StatusCode: 404, Code: "NoSuchKey"},
			want: CodeNotFound,
		},
		{
			name: "minio no such bucket",
			err:  minio.ErrorResponse{StatusCode: 404, Code: "NoSuchBucket"},
			want: CodeNotFound,
		},
		{
			name: "minio access denied",
			err:  minio.ErrorResponse{StatusCode: 403, Code: "AccessDenied"},
			want: CodeBucketAccess,
		},
		{
			name: "wrapped minio error",
			err:  fmt.Errorf("stat failed: %w", minio.ErrorResponse{StatusCode: 404, Code: "NotFound"}),
			want: CodeNotFound,
		},
		{
			name: "string match not found",
			err:  errors.New("NoSuchKey: the key does not exist"),
			want: CodeNotFound,
		},
		{
			name: "opaque error",
			err:  errors.New("something went sideways"),
			want: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(CodeNotFound, errors.New("NoSuchKey")), "NOT_FOUND is never retryable")
	assert.False(t, IsRetryable(CodeBucketAccess, errors.New("AccessDenied")))
	assert.True(t, IsRetryable(CodeUnknown, errors.New("connection refused")))
	assert.True(t, IsRetryable(CodeUploadFailed, errors.New("503 SlowDown")))
	assert.True(t, IsRetryable(CodeUnknown, context.DeadlineExceeded))
	assert.False(t, IsRetryable(CodeUnknown, context.Canceled), "cancellation is not transient")
	assert.False(t, IsRetryable(CodeUnknown, errors.New("invalid argument")))
}

func TestFromError(t *testing.T) {
	src := minio.ErrorResponse{StatusCode: 404, Code: "NoSuchKey"}
	res := FromError[string](src, "stat 'dir/a.txt'")

	require.NotNil(t, res.Err())
	assert.Equal(t, CodeNotFound, res.Err().Code)
	assert.Contains(t, res.Err().Message, "dir/a.txt")
	assert.False(t, res.Err().Retryable)

	res = FromError[string](errors.New("i/o timeout"), "put 'dir/a.txt'")
	assert.Equal(t, CodeUnknown, res.Err().Code)
	assert.True(t, res.Err().Retryable)
}
