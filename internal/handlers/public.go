package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recophone/api/internal/platform/httpx"
	"github.com/recophone/api/internal/services"
)

const (
	defaultGeocodeRatePerMinute  = 30
	defaultDistanceRatePerMinute = 60
)

// GeocodeLookup resolves an address in a country.
type GeocodeLookup interface {
	GeocodeIn(ctx context.Context, query, country string) (services.GeocodeResult, error)
}

// DistanceLookup measures the distance between two points.
type DistanceLookup interface {
	Distance(ctx context.Context, from, to services.LatLon) (services.RouteResult, error)
}

// ProductBrowser lists the refurbished-device storefront.
type ProductBrowser interface {
	List(ctx context.Context, filter services.ProductFilter) (services.ProductPage, error)
}

// PublicHandlers serves the catalog and the geocode/distance proxies used by the wizard.
type PublicHandlers struct {
	catalog  services.CatalogProvider
	geocode  GeocodeLookup
	distance DistanceLookup
	products ProductBrowser

	geocodeLimiter  rateLimiter
	distanceLimiter rateLimiter
}

// PublicOption customises PublicHandlers.
type PublicOption func(*publicConfig)

type publicConfig struct {
	geocodeLimit  int
	distanceLimit int
	clock         func() time.Time
	products      ProductBrowser
}

// WithGeocodeRateLimit overrides the per-IP geocode budget per minute; zero disables it.
func WithGeocodeRateLimit(perMinute int) PublicOption {
	return func(cfg *publicConfig) { cfg.geocodeLimit = perMinute }
}

// WithDistanceRateLimit overrides the per-IP distance budget per minute; zero disables it.
func WithDistanceRateLimit(perMinute int) PublicOption {
	return func(cfg *publicConfig) { cfg.distanceLimit = perMinute }
}

// WithProductCatalog serves GET /products from browser.
func WithProductCatalog(browser ProductBrowser) PublicOption {
	return func(cfg *publicConfig) { cfg.products = browser }
}

// WithPublicClock injects the limiter clock.
func WithPublicClock(clock func() time.Time) PublicOption {
	return func(cfg *publicConfig) { cfg.clock = clock }
}

// NewPublicHandlers wires the public endpoints. Nil services answer 503.
func NewPublicHandlers(catalog services.CatalogProvider, geocode GeocodeLookup, distance DistanceLookup, opts ...PublicOption) *PublicHandlers {
	cfg := publicConfig{
		geocodeLimit:  defaultGeocodeRatePerMinute,
		distanceLimit: defaultDistanceRatePerMinute,
		clock:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &PublicHandlers{
		catalog:         catalog,
		geocode:         geocode,
		distance:        distance,
		products:        cfg.products,
		geocodeLimiter:  newPerMinuteLimiter(cfg.geocodeLimit, cfg.clock),
		distanceLimiter: newPerMinuteLimiter(cfg.distanceLimit, cfg.clock),
	}
}

// Routes registers the public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/catalog", h.getCatalog)
	r.Get("/products", h.getProducts)
	r.With(rateLimit(h.geocodeLimiter)).Get("/geocode", h.getGeocode)
	r.With(rateLimit(h.distanceLimiter)).Get("/distance", h.getDistance)
}

type colorRequirementResponse struct {
	Part string `json:"part"`
}

type repairOptionResponse struct {
	Label         string                    `json:"label"`
	Price         float64                   `json:"price"`
	RequiresColor *colorRequirementResponse `json:"requiresColor,omitempty"`
}

type modelResponse struct {
	Name          string                 `json:"name"`
	Colors        []string               `json:"colors,omitempty"`
	RepairOptions []repairOptionResponse `json:"repairOptions"`
}

type categoryResponse struct {
	Name   string          `json:"name"`
	Brand  string          `json:"brand"`
	Models []modelResponse `json:"models"`
}

type catalogResponse struct {
	Categories []categoryResponse     `json:"categories"`
	Extras     []repairOptionResponse `json:"extras"`
	LoadedAt   string                 `json:"loadedAt,omitempty"`
}

func newRepairOptions(options []services.RepairOption) []repairOptionResponse {
	out := make([]repairOptionResponse, 0, len(options))
	for _, opt := range options {
		item := repairOptionResponse{Label: opt.Label, Price: opt.Price}
		if opt.RequiresColor != nil {
			item.RequiresColor = &colorRequirementResponse{Part: string(opt.RequiresColor.Part)}
		}
		out = append(out, item)
	}
	return out
}

func newCatalogResponse(catalog services.Catalog) catalogResponse {
	extras := catalog.Extras
	if len(extras) == 0 {
		extras = services.CatalogExtras()
	}
	resp := catalogResponse{
		Categories: make([]categoryResponse, 0, len(catalog.Categories)),
		Extras:     newRepairOptions(extras),
	}
	if !catalog.LoadedAt.IsZero() {
		resp.LoadedAt = catalog.LoadedAt.UTC().Format(time.RFC3339)
	}
	for _, category := range catalog.Categories {
		out := categoryResponse{Name: category.Name, Brand: string(category.Brand), Models: make([]modelResponse, 0, len(category.Models))}
		for _, model := range category.Models {
			out.Models = append(out.Models, modelResponse{
				Name:          model.Name,
				Colors:        model.Colors,
				RepairOptions: newRepairOptions(model.RepairOptions),
			})
		}
		resp.Categories = append(resp.Categories, out)
	}
	return resp
}

func (h *PublicHandlers) getCatalog(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		unavailable(w, r, "catalog")
		return
	}
	catalog, err := h.catalog.Catalog(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSONResponse(w, http.StatusOK, newCatalogResponse(catalog))
}

type geocodeResponse struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
	Cached      bool    `json:"cached"`
}

func (h *PublicHandlers) getGeocode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.geocode == nil {
		unavailable(w, r, "geocode")
		return
	}
	query := r.URL.Query()
	if strings.TrimSpace(query.Get("q")) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "q is required", http.StatusBadRequest))
		return
	}
	result, err := h.geocode.GeocodeIn(ctx, query.Get("q"), query.Get("country"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGeocodeQueryRequired):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "q is required", http.StatusBadRequest))
		case errors.Is(err, services.ErrGeocodeNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("not_found", "address not found", http.StatusNotFound))
		case errors.Is(err, services.ErrGeocodeTimeout):
			httpx.WriteError(ctx, w, httpx.NewError("upstream_timeout", "geocoding timed out", http.StatusGatewayTimeout))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("upstream_error", "geocoding failed", http.StatusBadGateway))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, geocodeResponse{
		Lat:         result.Point.Lat,
		Lon:         result.Point.Lon,
		DisplayName: result.DisplayName,
		Cached:      result.Cached,
	})
}

type distanceResponse struct {
	DistanceKm  float64  `json:"distanceKm"`
	DurationMin *float64 `json:"durationMin"`
	Mode        string   `json:"mode"`
}

// parseLatLon reads "lat,lon".
func parseLatLon(raw string) (services.LatLon, bool) {
	latRaw, lonRaw, ok := strings.Cut(strings.TrimSpace(raw), ",")
	if !ok {
		return services.LatLon{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil {
		return services.LatLon{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonRaw), 64)
	if err != nil {
		return services.LatLon{}, false
	}
	point := services.LatLon{Lat: lat, Lon: lon}
	return point, point.Valid()
}

func (h *PublicHandlers) getDistance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	from, okFrom := parseLatLon(query.Get("from"))
	to, okTo := parseLatLon(query.Get("to"))
	if !okFrom || !okTo {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_coordinates", "from and to must be lat,lon within range", http.StatusBadRequest))
		return
	}
	if strings.EqualFold(query.Get("mode"), services.DistanceModeHaversine) {
		writeJSONResponse(w, http.StatusOK, distanceResponse{DistanceKm: services.HaversineKm(from, to), Mode: services.DistanceModeHaversine})
		return
	}
	if h.distance == nil {
		unavailable(w, r, "distance")
		return
	}
	result, err := h.distance.Distance(ctx, from, to)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCoordinates) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_coordinates", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("upstream_error", "distance lookup failed", http.StatusBadGateway))
		return
	}
	writeJSONResponse(w, http.StatusOK, distanceResponse{
		DistanceKm:  result.DistanceKm,
		DurationMin: result.DurationMin,
		Mode:        result.Mode,
	})
}
