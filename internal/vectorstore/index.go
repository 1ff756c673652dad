package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultNamespace holds the general grammar corpus.
const DefaultNamespace = "japanese_grammar"

// Sentinel errors for index operations.
var (
	// ErrIndexUnavailable is returned when the backend cannot accept a write.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch is returned when an upsert's vectors do not match
	// the dimension recorded for the namespace.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidNamespace indicates namespace name validation failure.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// namespacePattern: lowercase letters, numbers, underscores, 1-64 characters.
var namespacePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

var courseIDReplacer = regexp.MustCompile(`[^a-z0-9_]+`)

// Entry is one chunk stored in a namespace.
type Entry struct {
	// ID is the chunk id. Upserting an existing id replaces it.
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// Result is one similarity match.
type Result struct {
	ID       string
	Content  string
	Metadata map[string]string
	Score    float32
}

// Index stores chunk vectors per namespace.
//
// Query never fails on an empty or missing namespace; it returns an empty
// slice. Implementations are safe for concurrent use, but only Serialized
// guarantees a single writer per namespace.
type Index interface {
	Upsert(ctx context.Context, namespace string, entries []Entry) error
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]Result, error)
	Exists(ctx context.Context, namespace string) (bool, error)
	Count(ctx context.Context, namespace string) (int, error)
	// Delete removes entries by id. Unknown ids and missing namespaces are
	// not an error.
	Delete(ctx context.Context, namespace string, ids []string) error
	Drop(ctx context.Context, namespace string) error
	Close() error
}

// DimensionRegistry records the embedding dimension of each namespace.
type DimensionRegistry interface {
	// Dimension returns the recorded dimension, or ok == false when the
	// namespace has none yet.
	Dimension(ctx context.Context, namespace string) (dim int, ok bool, err error)
	SetDimension(ctx context.Context, namespace string, dim int) error
	ForgetDimension(ctx context.Context, namespace string) error
}

// ValidateNamespace validates a namespace against ^[a-z0-9_]{1,64}$.
// Rejects uppercase, special chars, path traversal and spaces.
func ValidateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("%w: namespace cannot be empty", ErrInvalidNamespace)
	}
	if !namespacePattern.MatchString(name) {
		return fmt.Errorf("%w: namespace must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidNamespace, name)
	}
	return nil
}

// CourseNamespace returns the namespace for a course id. Characters outside
// [a-z0-9_] are folded to underscores and the result is capped at 64 chars.
func CourseNamespace(courseID string) string {
	id := courseIDReplacer.ReplaceAllString(strings.ToLower(strings.TrimSpace(courseID)), "_")
	ns := "course_" + id
	if len(ns) > 64 {
		ns = ns[:64]
	}
	return ns
}

// vectorDimension returns the shared dimension of entries.
func vectorDimension(entries []Entry) (int, error) {
	dim := 0
	for _, e := range entries {
		if e.ID == "" {
			return 0, fmt.Errorf("%w: entry without id", ErrInvalidConfig)
		}
		if len(e.Vector) == 0 {
			return 0, fmt.Errorf("%w: entry %s has no vector", ErrDimensionMismatch, e.ID)
		}
		if dim == 0 {
			dim = len(e.Vector)
			continue
		}
		if len(e.Vector) != dim {
			return 0, fmt.Errorf("%w: entry %s has %d dimensions, batch has %d", ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
	}
	return dim, nil
}
