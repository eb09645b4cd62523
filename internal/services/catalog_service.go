package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// CatalogSource returns the raw catalog document.
type CatalogSource func(ctx context.Context) ([]byte, error)

// FileCatalogSource reads the catalog from a JSON file on disk.
func FileCatalogSource(path string) CatalogSource {
	return func(context.Context) ([]byte, error) {
		return os.ReadFile(path)
	}
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Source CatalogSource
	Clock  func() time.Time
	Logger Logger
}

// CatalogService serves the normalized catalog and keeps the last good copy across reloads.
type CatalogService struct {
	source CatalogSource
	clock  func() time.Time
	logger Logger

	mu      sync.RWMutex
	current *Catalog
	lastErr error
}

// NewCatalogService constructs the catalog service. Call Reload to load the first copy.
func NewCatalogService(deps CatalogServiceDeps) (*CatalogService, error) {
	if deps.Source == nil {
		return nil, errors.New("catalog service: source is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &CatalogService{
		source: deps.Source,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// Reload reads and normalizes the catalog. On failure the previous catalog keeps being served.
func (s *CatalogService) Reload(ctx context.Context) (Catalog, error) {
	raw, err := s.source(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		s.fail(ctx, err)
		return Catalog{}, err
	}
	catalog, err := NormalizeCatalog(raw)
	if err != nil {
		s.fail(ctx, err)
		return Catalog{}, err
	}
	catalog.LoadedAt = s.clock()

	s.mu.Lock()
	s.current = &catalog
	s.lastErr = nil
	s.mu.Unlock()

	s.logger(ctx, "catalog.reloaded", map[string]any{
		"categories": len(catalog.Categories),
		"models":     countModels(catalog),
	})
	return catalog, nil
}

func (s *CatalogService) fail(ctx context.Context, err error) {
	s.mu.Lock()
	s.lastErr = err
	hasCatalog := s.current != nil
	s.mu.Unlock()
	s.logger(ctx, "catalog.reload_failed", map[string]any{
		"error":      err.Error(),
		"keptLatest": hasCatalog,
	})
}

// Catalog returns the current catalog, or ErrCatalogUnavailable when none was ever loaded.
func (s *CatalogService) Catalog(context.Context) (Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		if s.lastErr != nil {
			return Catalog{}, s.lastErr
		}
		return Catalog{}, ErrCatalogUnavailable
	}
	return *s.current, nil
}

// Extras returns the fixed services offered on every model.
func (s *CatalogService) Extras() []RepairOption {
	return CatalogExtras()
}

func countModels(c Catalog) int {
	total := 0
	for _, category := range c.Categories {
		total += len(category.Models)
	}
	return total
}
