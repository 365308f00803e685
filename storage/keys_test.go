package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		directory string
		filename  string
		want      string
	}{
		{"", "a.txt", "a.txt"},
		{"/dir/", "a.txt", "dir/a.txt"},
		{"dir", "a.txt", "dir/a.txt"},
		{"/dir", "a.txt", "dir/a.txt"},
		{"dir/", "a.txt", "dir/a.txt"},
		{"a/b/c", "d.txt", "a/b/c/d.txt"},
		{"//deep//", "f", "deep/f"},
		{"/", "a.txt", "a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.directory+"+"+tt.filename, func(t *testing.T) {
			got := ObjectKey(tt.directory, tt.filename)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, byte('/'), got[0], "object keys never start with a separator")
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"a", "a/"},
		{"a/", "a/"},
		{"a//", "a/"},
		{"hello5/hello2", "hello5/hello2/"},
		{"hello5/hello2/", "hello5/hello2/"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePrefix(tt.in))
		})
	}
}

func TestNormalizePrefixIdempotent(t *testing.T) {
	inputs := []string{"", "a", "a/", "a//", "x/y/z", "x/y/z///", "/"}
	for _, in := range inputs {
		once := NormalizePrefix(in)
		assert.Equal(t, once, NormalizePrefix(once), "NormalizePrefix must be idempotent for %q", in)
	}
}
