package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/recophone/api/internal/platform/textutil"
)

// Travel fee defaults.
const (
	TravelOrigin           = "Rte de Saussin 38/23a, 5190 Jemeppe-sur-Sambre, Belgique"
	TravelFreeRadiusKm     = 15.0
	TravelRatePerKm        = 3.5
	travelCacheTTL         = 15 * time.Minute
	travelRoutingTimeout   = 4 * time.Second
	travelGeocodeCacheSize = 256
)

// ErrTravelAddressIncomplete indicates an address with a blank field.
var ErrTravelAddressIncomplete = errors.New("travel: address is incomplete")

// TravelQuote is the resolved distance and fee for an at-home visit.
type TravelQuote struct {
	DistanceKm float64
	Fee        float64
	Mode       string
}

// TravelFeeCalculatorDeps configures the calculator.
type TravelFeeCalculatorDeps struct {
	Geocoder       Geocoder
	Router         DistanceRouter
	Origin         string
	FreeRadiusKm   float64
	RatePerKm      float64
	CacheTTL       time.Duration
	RoutingTimeout time.Duration
	Clock          func() time.Time
	Logger         Logger
}

type travelPoint struct {
	point     LatLon
	expiresAt time.Time
}

// TravelFeeCalculator resolves the travel fee from the shop to a client address.
type TravelFeeCalculator struct {
	geocoder       Geocoder
	router         DistanceRouter
	origin         string
	freeKm         float64
	ratePerKm      float64
	ttl            time.Duration
	routingTimeout time.Duration
	cache          *lru.Cache[string, travelPoint]
	clock          func() time.Time
	logger         Logger
}

// NewTravelFeeCalculator constructs the calculator.
func NewTravelFeeCalculator(deps TravelFeeCalculatorDeps) (*TravelFeeCalculator, error) {
	if deps.Geocoder == nil {
		return nil, errors.New("travel fee calculator: geocoder is required")
	}
	cache, err := lru.New[string, travelPoint](travelGeocodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("travel fee calculator: cache: %w", err)
	}
	calc := &TravelFeeCalculator{
		geocoder:       deps.Geocoder,
		router:         deps.Router,
		origin:         strings.TrimSpace(deps.Origin),
		freeKm:         deps.FreeRadiusKm,
		ratePerKm:      deps.RatePerKm,
		ttl:            deps.CacheTTL,
		routingTimeout: deps.RoutingTimeout,
		cache:          cache,
		logger:         deps.Logger,
	}
	if calc.origin == "" {
		calc.origin = TravelOrigin
	}
	if calc.freeKm <= 0 {
		calc.freeKm = TravelFreeRadiusKm
	}
	if calc.ratePerKm <= 0 {
		calc.ratePerKm = TravelRatePerKm
	}
	if calc.ttl <= 0 {
		calc.ttl = travelCacheTTL
	}
	if calc.routingTimeout <= 0 {
		calc.routingTimeout = travelRoutingTimeout
	}
	if calc.logger == nil {
		calc.logger = nopLogger
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	calc.clock = func() time.Time { return clock().UTC() }
	return calc, nil
}

// Resolve geocodes both ends, measures the driving distance and prices the trip.
func (c *TravelFeeCalculator) Resolve(ctx context.Context, address Address) (TravelQuote, error) {
	if !address.Complete() {
		return TravelQuote{}, ErrTravelAddressIncomplete
	}
	from, err := c.locate(ctx, c.origin)
	if err != nil {
		return TravelQuote{}, fmt.Errorf("travel: geocode origin: %w", err)
	}
	to, err := c.locate(ctx, address.Line())
	if err != nil {
		return TravelQuote{}, fmt.Errorf("travel: geocode destination: %w", err)
	}

	distance, mode := c.distance(ctx, from, to)
	distance = round2(distance)
	return TravelQuote{
		DistanceKm: distance,
		Fee:        c.fee(distance),
		Mode:       mode,
	}, nil
}

func (c *TravelFeeCalculator) locate(ctx context.Context, text string) (LatLon, error) {
	key := strings.ToLower(textutil.CollapseSpaces(text))
	now := c.clock()
	if cached, ok := c.cache.Get(key); ok && now.Before(cached.expiresAt) {
		return cached.point, nil
	}
	result, err := c.geocoder.Geocode(ctx, text)
	if err != nil {
		return LatLon{}, err
	}
	if !result.Point.Valid() {
		return LatLon{}, ErrInvalidCoordinates
	}
	c.cache.Add(key, travelPoint{point: result.Point, expiresAt: now.Add(c.ttl)})
	return result.Point, nil
}

func (c *TravelFeeCalculator) distance(ctx context.Context, from, to LatLon) (float64, string) {
	if c.router != nil {
		routeCtx, cancel := context.WithTimeout(ctx, c.routingTimeout)
		result, err := c.router.Route(routeCtx, from, to)
		cancel()
		if err == nil && result.DistanceKm >= 0 && !math.IsNaN(result.DistanceKm) {
			return result.DistanceKm, DistanceModeDriving
		}
		if err != nil {
			c.logger(ctx, "travel.routing_fallback", map[string]any{"error": err.Error()})
		}
	}
	return HaversineKm(from, to), DistanceModeHaversine
}

func (c *TravelFeeCalculator) fee(distanceKm float64) float64 {
	return round2(math.Max(0, distanceKm-c.freeKm) * c.ratePerKm)
}

// ComputeTravelFee prices a distance with the default free radius and rate.
func ComputeTravelFee(distanceKm float64) float64 {
	return round2(math.Max(0, distanceKm-TravelFreeRadiusKm) * TravelRatePerKm)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
