package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process DocumentStore for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	files   map[string]memoryFile
	baseURL string
	now     func() time.Time
}

type memoryFile struct {
	data        []byte
	contentType string
	modifiedAt  time.Time
}

// NewMemoryStore returns an empty store whose URLs are prefixed with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		files:   make(map[string]memoryFile),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Put implements DocumentStore.
func (s *MemoryStore) Put(_ context.Context, name string, body io.Reader, _ int64, contentType string) error {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return ErrInvalidPath
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.files[rel] = memoryFile{data: data, contentType: contentType, modifiedAt: s.now()}
	s.mu.Unlock()
	return nil
}

// List implements DocumentStore.
func (s *MemoryStore) List(_ context.Context, dir string) ([]Entry, error) {
	rel, err := CleanPath(dir)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if rel != "" {
		prefix = rel + "/"
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var entries []Entry
	for name, file := range s.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if child, _, nested := strings.Cut(rest, "/"); nested {
			if !seen[child] {
				seen[child] = true
				entries = append(entries, Entry{Name: child, Path: prefix + child, IsDir: true})
			}
			continue
		}
		entries = append(entries, Entry{
			Name:       rest,
			Path:       name,
			Size:       int64(len(file.data)),
			ModifiedAt: file.modifiedAt,
		})
	}
	if rel != "" && len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	SortEntries(entries)
	return entries, nil
}

// Open implements DocumentStore.
func (s *MemoryStore) Open(_ context.Context, name string) (Object, error) {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return Object{}, ErrInvalidPath
	}
	s.mu.RLock()
	file, ok := s.files[rel]
	s.mu.RUnlock()
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return Object{
		Body:        io.NopCloser(bytes.NewReader(file.data)),
		Size:        int64(len(file.data)),
		ContentType: file.contentType,
	}, nil
}

// URL implements DocumentStore.
func (s *MemoryStore) URL(_ context.Context, name string) (string, error) {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return "", ErrInvalidPath
	}
	return s.baseURL + "/" + escapePath(rel), nil
}

// Ping implements DocumentStore.
func (s *MemoryStore) Ping(context.Context) error { return nil }
