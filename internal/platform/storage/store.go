package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidPath is returned for empty, absolute-escaping or traversal paths.
	ErrInvalidPath = errors.New("storage: invalid path")
)

// Entry is a file or directory listed from the document store.
type Entry struct {
	Name       string
	Path       string
	IsDir      bool
	Size       int64
	ModifiedAt time.Time
}

// Object is an opened file. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// DocumentStore persists generated quote and contract PDFs.
// Paths are slash separated and relative to the store root.
type DocumentStore interface {
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error
	List(ctx context.Context, dir string) ([]Entry, error)
	Open(ctx context.Context, path string) (Object, error)
	URL(ctx context.Context, path string) (string, error)
	Ping(ctx context.Context) error
}
