// Package testutils provides testing utilities shared across the
// bucketmover test suites.
//
// Key components:
//   - MockObjectStore: an in-memory ObjectStore with per-operation error
//     injection, call recording and reader close tracking
package testutils
