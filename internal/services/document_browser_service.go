package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/recophone/api/internal/platform/storage"
)

const folderStatConcurrency = 5

var (
	// ErrDocumentPathInvalid indicates a traversal attempt or malformed path.
	ErrDocumentPathInvalid = errors.New("document browser: invalid path")
	// ErrDocumentNotFound indicates the path does not exist.
	ErrDocumentNotFound = errors.New("document browser: not found")
)

// DocumentDownload is an opened document ready to stream. Callers must close Body.
type DocumentDownload struct {
	Name string
	storage.Object
}

// DocumentBrowserServiceDeps wires the back-office document browser.
type DocumentBrowserServiceDeps struct {
	Store  storage.DocumentStore
	Logger Logger
}

// DocumentBrowserService lists and streams stored quote folders for the admin.
type DocumentBrowserService struct {
	store  storage.DocumentStore
	logger Logger
}

// NewDocumentBrowserService validates dependencies.
func NewDocumentBrowserService(deps DocumentBrowserServiceDeps) (*DocumentBrowserService, error) {
	if deps.Store == nil {
		return nil, errors.New("document browser: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &DocumentBrowserService{store: deps.Store, logger: logger}, nil
}

// Folders lists root folders with their stats, most recently active first.
func (s *DocumentBrowserService) Folders(ctx context.Context) ([]FolderSummary, error) {
	root, err := s.store.List(ctx, "")
	if err != nil {
		return nil, s.translate(err)
	}
	var dirs []storage.Entry
	for _, entry := range root {
		if entry.IsDir {
			dirs = append(dirs, entry)
		}
	}

	summaries := make([]FolderSummary, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(folderStatConcurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			summaries[i] = s.summarize(gctx, dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

// summarize never fails: an unreadable folder is reported empty.
func (s *DocumentBrowserService) summarize(ctx context.Context, dir storage.Entry) FolderSummary {
	summary := FolderSummary{Name: dir.Name, Path: dir.Path, LastActivity: dir.ModifiedAt}
	children, err := s.store.List(ctx, dir.Path)
	if err != nil {
		s.logger(ctx, "documents.folder_stat_failed", map[string]any{"path": dir.Path, "error": err.Error()})
		return summary
	}
	for _, child := range children {
		if child.IsDir {
			summary.SubfolderCount++
		} else {
			summary.FileCount++
			summary.TotalSize += child.Size
		}
		if child.ModifiedAt.After(summary.LastActivity) {
			summary.LastActivity = child.ModifiedAt
		}
	}
	return summary
}

// Browse lists a directory with directories first, then by name.
func (s *DocumentBrowserService) Browse(ctx context.Context, path string) ([]DocumentEntry, error) {
	rel, err := storage.CleanPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrDocumentPathInvalid, path)
	}
	entries, err := s.store.List(ctx, rel)
	if err != nil {
		return nil, s.translate(err)
	}
	storage.SortEntries(entries)
	out := make([]DocumentEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, DocumentEntry{
			Name:       entry.Name,
			Path:       entry.Path,
			IsDir:      entry.IsDir,
			Size:       entry.Size,
			ModifiedAt: entry.ModifiedAt,
		})
	}
	return out, nil
}

// Open streams a single file.
func (s *DocumentBrowserService) Open(ctx context.Context, path string) (DocumentDownload, error) {
	rel, err := storage.CleanPath(path)
	if err != nil || rel == "" {
		return DocumentDownload{}, fmt.Errorf("%w: %q", ErrDocumentPathInvalid, path)
	}
	obj, err := s.store.Open(ctx, rel)
	if err != nil {
		return DocumentDownload{}, s.translate(err)
	}
	if obj.ContentType == "" || obj.ContentType == "application/octet-stream" {
		obj.ContentType = storage.ContentTypeFor(rel)
	}
	name := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		name = rel[i+1:]
	}
	s.logger(ctx, "documents.download", map[string]any{"path": rel})
	return DocumentDownload{Name: name, Object: obj}, nil
}

func (s *DocumentBrowserService) translate(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		return fmt.Errorf("%w: %v", ErrDocumentPathInvalid, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	default:
		return err
	}
}
