package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const earthRadiusKm = 6371.0

// Distance modes reported to callers.
const (
	DistanceModeDriving   = "driving"
	DistanceModeHaversine = "haversine"
)

var (
	// ErrInvalidCoordinates indicates a latitude or longitude out of range.
	ErrInvalidCoordinates = errors.New("distance: invalid coordinates")
	// ErrRoutingFailed indicates the routing provider returned no usable route.
	ErrRoutingFailed = errors.New("distance: routing failed")
)

// RouteResult is a distance between two points. DurationMin is nil for straight-line estimates.
type RouteResult struct {
	DistanceKm  float64
	DurationMin *float64
	Mode        string
}

// DistanceServiceDeps configures the OSRM client.
type DistanceServiceDeps struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     Logger
}

// DistanceService computes driving distances through an OSRM server.
type DistanceService struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	logger    Logger
}

// NewDistanceService constructs the service.
func NewDistanceService(deps DistanceServiceDeps) (*DistanceService, error) {
	base := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if base == "" {
		return nil, errors.New("distance service: base url is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &DistanceService{
		baseURL:   base,
		userAgent: deps.UserAgent,
		timeout:   timeout,
		client:    client,
		logger:    logger,
	}, nil
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Route asks OSRM for the driving route between two points.
func (s *DistanceService) Route(ctx context.Context, from, to LatLon) (RouteResult, error) {
	if !from.Valid() || !to.Valid() {
		return RouteResult{}, ErrInvalidCoordinates
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false&alternatives=false",
		s.baseURL, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RouteResult{}, fmt.Errorf("%w: %v", ErrRoutingFailed, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return RouteResult{}, fmt.Errorf("%w: %v", ErrRoutingFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RouteResult{}, fmt.Errorf("%w: status %d", ErrRoutingFailed, resp.StatusCode)
	}
	var payload osrmResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return RouteResult{}, fmt.Errorf("%w: %v", ErrRoutingFailed, err)
	}
	if payload.Code != "Ok" || len(payload.Routes) == 0 {
		return RouteResult{}, fmt.Errorf("%w: code %q", ErrRoutingFailed, payload.Code)
	}
	duration := payload.Routes[0].Duration / 60
	return RouteResult{
		DistanceKm:  payload.Routes[0].Distance / 1000,
		DurationMin: &duration,
		Mode:        DistanceModeDriving,
	}, nil
}

// Distance returns the driving distance, or the straight-line distance when routing fails.
func (s *DistanceService) Distance(ctx context.Context, from, to LatLon) (RouteResult, error) {
	if !from.Valid() || !to.Valid() {
		return RouteResult{}, ErrInvalidCoordinates
	}
	result, err := s.Route(ctx, from, to)
	if err == nil {
		return result, nil
	}
	s.logger(ctx, "distance.routing_fallback", map[string]any{"error": err.Error()})
	return RouteResult{DistanceKm: HaversineKm(from, to), Mode: DistanceModeHaversine}, nil
}

// HaversineKm returns the great-circle distance in kilometres.
func HaversineKm(from, to LatLon) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(to.Lat - from.Lat)
	dLon := rad(to.Lon - from.Lon)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(from.Lat))*math.Cos(rad(to.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
