package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultProductFeedTTL     = 5 * time.Minute
	defaultProductFeedTimeout = 8 * time.Second
	maxProductFeedBytes       = 8 << 20
)

// ErrProductFeedUnavailable indicates the feed could not be fetched and no earlier copy exists.
var ErrProductFeedUnavailable = errors.New("products: feed unavailable")

// ProductCatalogServiceDeps configures the refurbished-device feed client.
// An empty FeedURL serves an empty catalog.
type ProductCatalogServiceDeps struct {
	FeedURL    string
	TTL        time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     Logger
}

type productFeedEntry struct {
	products  []Product
	byID      map[string]Product
	fetchedAt time.Time
}

// ProductCatalogService fetches, normalizes and caches the supplier feed.
// A failed refresh keeps serving the previous copy.
type ProductCatalogService struct {
	feedURL string
	ttl     time.Duration
	timeout time.Duration
	client  *http.Client
	cache   *lru.Cache[string, productFeedEntry]
	group   singleflight.Group
	clock   func() time.Time
	logger  Logger
}

func NewProductCatalogService(deps ProductCatalogServiceDeps) (*ProductCatalogService, error) {
	cache, err := lru.New[string, productFeedEntry](4)
	if err != nil {
		return nil, fmt.Errorf("product catalog: cache: %w", err)
	}
	svc := &ProductCatalogService{
		feedURL: strings.TrimSpace(deps.FeedURL),
		ttl:     deps.TTL,
		timeout: deps.Timeout,
		client:  deps.HTTPClient,
		cache:   cache,
		logger:  deps.Logger,
	}
	if svc.ttl <= 0 {
		svc.ttl = defaultProductFeedTTL
	}
	if svc.timeout <= 0 {
		svc.timeout = defaultProductFeedTimeout
	}
	if svc.client == nil {
		svc.client = &http.Client{}
	}
	if svc.logger == nil {
		svc.logger = nopLogger
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc.clock = func() time.Time { return clock().UTC() }
	return svc, nil
}

// Products returns the normalized feed.
func (s *ProductCatalogService) Products(ctx context.Context) ([]Product, error) {
	entry, err := s.entry(ctx)
	if err != nil {
		return nil, err
	}
	return entry.products, nil
}

// List filters, sorts and pages the feed.
func (s *ProductCatalogService) List(ctx context.Context, filter ProductFilter) (ProductPage, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return ProductPage{}, err
	}
	return FilterProducts(append([]Product(nil), products...), filter), nil
}

// Product looks a product up by its stable id.
func (s *ProductCatalogService) Product(ctx context.Context, id string) (Product, bool, error) {
	entry, err := s.entry(ctx)
	if err != nil {
		return Product{}, false, err
	}
	p, ok := entry.byID[strings.TrimSpace(id)]
	return p, ok, nil
}

func (s *ProductCatalogService) entry(ctx context.Context) (productFeedEntry, error) {
	if s.feedURL == "" {
		return productFeedEntry{}, nil
	}
	now := s.clock()
	cached, ok := s.cache.Get(s.feedURL)
	if ok && now.Sub(cached.fetchedAt) < s.ttl {
		return cached, nil
	}

	v, err, _ := s.group.Do(s.feedURL, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		if ok {
			s.logger(ctx, "products.feed.stale", map[string]any{
				"error":     err.Error(),
				"fetchedAt": cached.fetchedAt.Format(time.RFC3339),
			})
			return cached, nil
		}
		return productFeedEntry{}, fmt.Errorf("%w: %v", ErrProductFeedUnavailable, err)
	}
	return v.(productFeedEntry), nil
}

func (s *ProductCatalogService) refresh(ctx context.Context) (productFeedEntry, error) {
	raw, err := s.fetch(ctx)
	if err != nil {
		s.logger(ctx, "products.feed.fetch_failed", map[string]any{"error": err.Error()})
		return productFeedEntry{}, err
	}
	items, err := ParseProductFeed(raw)
	if err != nil {
		s.logger(ctx, "products.feed.parse_failed", map[string]any{"error": err.Error()})
		return productFeedEntry{}, err
	}
	entry := productFeedEntry{
		products:  make([]Product, 0, len(items)),
		byID:      make(map[string]Product, len(items)),
		fetchedAt: s.clock(),
	}
	for _, item := range items {
		p := NormalizeProduct(item)
		if _, dup := entry.byID[p.ID]; dup {
			continue
		}
		entry.byID[p.ID] = p
		entry.products = append(entry.products, p)
	}
	s.cache.Add(s.feedURL, entry)
	s.logger(ctx, "products.feed.refreshed", map[string]any{"products": len(entry.products)})
	return entry, nil
}

func (s *ProductCatalogService) fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("feed answered %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxProductFeedBytes))
}
