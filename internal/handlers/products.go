package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/recophone/api/internal/platform/httpx"
	"github.com/recophone/api/internal/services"
)

const maxProductPageSize = 60

type productResponse struct {
	ID        string   `json:"id"`
	SKU       string   `json:"sku,omitempty"`
	Name      string   `json:"name"`
	Brand     string   `json:"brand"`
	Grade     string   `json:"grade"`
	Capacity  string   `json:"capacity,omitempty"`
	Color     string   `json:"color,omitempty"`
	State     string   `json:"state,omitempty"`
	PriceEUR  *float64 `json:"priceEur"`
	UnitPrice *int64   `json:"unitPrice"`
	Display   string   `json:"displayPrice"`
	URL       string   `json:"url,omitempty"`
	Image     string   `json:"image,omitempty"`
}

type productFacetsResponse struct {
	Brands     []string `json:"brands"`
	Capacities []string `json:"capacities"`
	Grades     []string `json:"grades"`
}

type productListResponse struct {
	Items      []productResponse     `json:"items"`
	Total      int                   `json:"total"`
	NextOffset *int                  `json:"nextOffset,omitempty"`
	Facets     productFacetsResponse `json:"facets"`
}

func newProductResponse(p services.Product) productResponse {
	resp := productResponse{
		ID:       p.ID,
		SKU:      p.SKU,
		Name:     p.Name,
		Brand:    p.Brand,
		Grade:    p.Grade,
		Capacity: p.Capacity,
		Color:    p.Color,
		State:    p.State,
		PriceEUR: p.PriceEUR,
		Display:  p.Display,
		URL:      p.URL,
		Image:    p.Image,
	}
	if p.PriceEUR != nil {
		cents := services.ToCents(*p.PriceEUR)
		resp.UnitPrice = &cents
	}
	return resp
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// parseProductFilter reads q, brand, capacity, grade, minPrice, maxPrice, sort, offset and limit.
// Prices accept a decimal comma.
func parseProductFilter(r *http.Request) (services.ProductFilter, error) {
	q := r.URL.Query()
	filter := services.ProductFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		Brand:    strings.TrimSpace(q.Get("brand")),
		Capacity: strings.TrimSpace(q.Get("capacity")),
		Grade:    strings.TrimSpace(q.Get("grade")),
	}
	switch sort := services.ProductSort(strings.TrimSpace(q.Get("sort"))); sort {
	case "", services.ProductSortPriceDesc, services.ProductSortPriceAsc, services.ProductSortName:
		filter.Sort = sort
	default:
		return filter, errors.New("sort must be price_desc, price_asc or name_asc")
	}
	for name, dst := range map[string]**float64{"minPrice": &filter.MinPrice, "maxPrice": &filter.MaxPrice} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
		if err != nil || v < 0 {
			return filter, errors.New(name + " must be a positive amount")
		}
		*dst = &v
	}
	for name, dst := range map[string]*int{"offset": &filter.Offset, "limit": &filter.Limit} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return filter, errors.New(name + " must be a non-negative integer")
		}
		*dst = v
	}
	filter.Limit = min(filter.Limit, maxProductPageSize)
	return filter, nil
}

func (h *PublicHandlers) getProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		unavailable(w, r, "products")
		return
	}
	filter, err := parseProductFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.products.List(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("products_unavailable", "product feed unavailable", http.StatusServiceUnavailable))
		return
	}
	resp := productListResponse{
		Items: make([]productResponse, 0, len(page.Items)),
		Total: page.Total,
		Facets: productFacetsResponse{
			Brands:     nonNil(page.Facets.Brands),
			Capacities: nonNil(page.Facets.Capacities),
			Grades:     nonNil(page.Facets.Grades),
		},
	}
	for _, p := range page.Items {
		resp.Items = append(resp.Items, newProductResponse(p))
	}
	if next := filter.Offset + len(page.Items); len(page.Items) > 0 && next < page.Total {
		resp.NextOffset = &next
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSONResponse(w, http.StatusOK, resp)
}
