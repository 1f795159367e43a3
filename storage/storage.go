package storage

import (
	"context"
	"io"
	"strings"
	"time"
)

// FileInfo contains metadata about a stored object.
type FileInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Storage defines the object storage operations.
type Storage interface {
	// Upload writes data from reader to the given path.
	Upload(ctx context.Context, path string, reader io.Reader) error

	// Download returns a reader for the object at the given path.
	// The caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at the given path.
	// Returns nil if the object does not exist.
	Delete(ctx context.Context, path string) error

	// Exists checks whether an object exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns metadata for all objects whose path starts with prefix,
	// sorted by path.
	List(ctx context.Context, prefix string) ([]FileInfo, error)
}

// UploadString stores content at path.
func UploadString(ctx context.Context, s Storage, path, content string) error {
	return s.Upload(ctx, path, strings.NewReader(content))
}

// DeleteOlderThan removes the objects under prefix last modified before
// cutoff and returns how many were removed. It keeps going after a failed
// delete and returns the first error.
func DeleteOlderThan(ctx context.Context, s Storage, prefix string, cutoff time.Time) (int, error) {
	files, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	var firstErr error
	for _, f := range files {
		if !f.LastModified.Before(cutoff) {
			continue
		}
		if err := s.Delete(ctx, f.Path); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
