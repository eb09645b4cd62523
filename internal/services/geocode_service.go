package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/recophone/api/internal/platform/textutil"
)

const maxGeocodeQueryRunes = 140

var (
	// ErrGeocodeQueryRequired indicates an empty query.
	ErrGeocodeQueryRequired = errors.New("geocode: query is required")
	// ErrGeocodeNotFound indicates the provider returned no result.
	ErrGeocodeNotFound = errors.New("geocode: address not found")
	// ErrGeocodeUpstream indicates a non-2xx or malformed provider response.
	ErrGeocodeUpstream = errors.New("geocode: upstream error")
	// ErrGeocodeTimeout indicates the provider did not answer in time.
	ErrGeocodeTimeout = errors.New("geocode: upstream timeout")
)

// LatLon is a WGS84 coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies in range.
func (p LatLon) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// GeocodeResult is the best match for a free-text address.
type GeocodeResult struct {
	Point       LatLon
	DisplayName string
	Cached      bool
}

// GeocodeServiceDeps configures the Nominatim client.
type GeocodeServiceDeps struct {
	BaseURL    string
	UserAgent  string
	Country    string
	Timeout    time.Duration
	CacheSize  int
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     Logger
}

type geocodeEntry struct {
	result    GeocodeResult
	expiresAt time.Time
}

// GeocodeService resolves addresses through Nominatim with an LRU cache.
type GeocodeService struct {
	baseURL   string
	userAgent string
	country   string
	timeout   time.Duration
	ttl       time.Duration
	client    *http.Client
	cache     *lru.Cache[string, geocodeEntry]
	clock     func() time.Time
	logger    Logger
}

// NewGeocodeService constructs the service.
func NewGeocodeService(deps GeocodeServiceDeps) (*GeocodeService, error) {
	base := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if base == "" {
		return nil, errors.New("geocode service: base url is required")
	}
	if strings.TrimSpace(deps.UserAgent) == "" {
		return nil, errors.New("geocode service: user agent is required")
	}
	size := deps.CacheSize
	if size <= 0 {
		size = 500
	}
	cache, err := lru.New[string, geocodeEntry](size)
	if err != nil {
		return nil, fmt.Errorf("geocode service: cache: %w", err)
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	country := strings.ToLower(strings.TrimSpace(deps.Country))
	if country == "" {
		country = "be"
	}
	return &GeocodeService{
		baseURL:   base,
		userAgent: deps.UserAgent,
		country:   country,
		timeout:   timeout,
		ttl:       ttl,
		client:    client,
		cache:     cache,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// SanitizeGeocodeQuery collapses whitespace and caps the query length.
func SanitizeGeocodeQuery(raw string) string {
	return textutil.Truncate(textutil.CollapseSpaces(raw), maxGeocodeQueryRunes)
}

// Geocode resolves query in the default country.
func (s *GeocodeService) Geocode(ctx context.Context, query string) (GeocodeResult, error) {
	return s.GeocodeIn(ctx, query, s.country)
}

// GeocodeIn resolves query restricted to a country code.
func (s *GeocodeService) GeocodeIn(ctx context.Context, query, country string) (GeocodeResult, error) {
	q := SanitizeGeocodeQuery(query)
	if q == "" {
		return GeocodeResult{}, ErrGeocodeQueryRequired
	}
	country = strings.ToLower(strings.TrimSpace(country))
	if country == "" {
		country = s.country
	}
	key := country + "|" + strings.ToLower(q)
	now := s.clock()
	if entry, ok := s.cache.Get(key); ok {
		if now.Before(entry.expiresAt) {
			result := entry.result
			result.Cached = true
			return result, nil
		}
		s.cache.Remove(key)
	}

	result, err := s.lookup(ctx, q, country)
	if err != nil {
		s.logger(ctx, "geocode.failed", map[string]any{"error": err.Error()})
		return GeocodeResult{}, err
	}
	s.cache.Add(key, geocodeEntry{result: result, expiresAt: now.Add(s.ttl)})
	return result, nil
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (s *GeocodeService) lookup(ctx context.Context, q, country string) (GeocodeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	params.Set("countrycodes", country)
	params.Set("q", q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("%w: %v", ErrGeocodeUpstream, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "fr-BE,fr;q=0.9,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return GeocodeResult{}, ErrGeocodeTimeout
		}
		return GeocodeResult{}, fmt.Errorf("%w: %v", ErrGeocodeUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return GeocodeResult{}, fmt.Errorf("%w: status %d", ErrGeocodeUpstream, resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&places); err != nil {
		return GeocodeResult{}, fmt.Errorf("%w: %v", ErrGeocodeUpstream, err)
	}
	if len(places) == 0 {
		return GeocodeResult{}, ErrGeocodeNotFound
	}
	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	point := LatLon{Lat: lat, Lon: lon}
	if latErr != nil || lonErr != nil || !point.Valid() {
		return GeocodeResult{}, fmt.Errorf("%w: invalid coordinates", ErrGeocodeUpstream)
	}
	return GeocodeResult{Point: point, DisplayName: places[0].DisplayName}, nil
}
