package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectGrade(t *testing.T) {
	tests := []struct {
		name              string
		grade, title, url string
		want              string
	}{
		{name: "grade field", grade: "Grade A", title: "iPhone 13", want: ProductGradeA},
		{name: "grade in name", title: "iPhone 12 64GB Grade B", want: ProductGradeB},
		{name: "grade in url slug", title: "iPhone XR 128Go", url: "https://shop.example/iphone-xr-grade-c-noir", want: ProductGradeC},
		{name: "mix field", grade: "Mix ABC", want: ProductGradeMixABC},
		{name: "mix in url", url: "https://shop.example/iphone-11-mixabc", want: ProductGradeMixABC},
		{name: "bare plus", grade: "A+", want: ProductGradeA},
		{name: "model letter is not a grade", title: "Samsung A52 Grade A", want: ProductGradeA},
		{name: "field wins over name", grade: "Grade C", title: "iPhone 13 Grade B", want: ProductGradeC},
		{name: "unknown label", grade: "Grade Premium", want: "PREMIUM"},
		{name: "no grade", title: "Galaxy S21 Reconditionné", want: ProductGradeOther},
		{name: "empty", want: ProductGradeOther},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectGrade(tc.grade, tc.title, tc.url))
		})
	}
}

func TestProductBrand(t *testing.T) {
	cases := map[string]string{
		"iPad Air 2020 64GB":  ProductBrandIPad,
		"Apple iPhone 14 Pro": ProductBrandIPhone,
		"Galaxy Z Flip 5":     ProductBrandSamsung,
		"Samsung Note 20":     ProductBrandSamsung,
		"Google Pixel 7":      ProductBrandOther,
		"":                    ProductBrandOther,
	}
	for name, want := range cases {
		assert.Equal(t, want, ProductBrand(name), name)
	}
}

func TestFallbackCapacity(t *testing.T) {
	assert.Equal(t, "128 GB", FallbackCapacity("iPhone 13 128Go Noir"))
	assert.Equal(t, "64 GB", FallbackCapacity("iPhone 12 64 GB"))
	assert.Equal(t, "1 TB", FallbackCapacity("iPhone 15 Pro Max 1 To"))
	assert.Empty(t, FallbackCapacity("Pixel 7"))
}

func TestCanonicalColor(t *testing.T) {
	assert.Equal(t, "Minuit", CanonicalColor("Midnight"))
	assert.Equal(t, "Bleu nuit", CanonicalColor("bleu-nuit"))
	assert.Equal(t, "Gris sidéral", CanonicalColor("Space Gray"))
	assert.Equal(t, "Noir", CanonicalColor("Graphite"))
	assert.Empty(t, CanonicalColor("Mix Color"))
	assert.Empty(t, CanonicalColor(""))

	assert.Equal(t, "Vert", ProductColor(FeedItem{Name: "iPhone 13", URL: "https://shop.example/iphone-13-vert/"}))
	assert.Equal(t, "Product RED", ProductColor(FeedItem{Name: "iPhone 13 Rouge", Color: "Mix Color"}))
	assert.Empty(t, ProductColor(FeedItem{Name: "iPhone 13"}))
}

func TestParseEuroPrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"€ 181,95", 181.95, true},
		{"242€95", 242.95, true},
		{"1.234,50 €", 1234.5, true},
		{"1\u00a0234,50\u00a0€", 1234.5, true},
		{"181.95", 181.95, true},
		{"sur demande", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseEuroPrice(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.InDelta(t, tc.want, got, 1e-9, tc.raw)
	}
}

func TestParseProductFeed(t *testing.T) {
	items, err := ParseProductFeed([]byte(`{"data":[{"name":"iPhone 13","price_raw_eur":399,"capacity":7},{"name":""},{"sku":"x"},5]}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "iPhone 13", items[0].Name)
	require.NotNil(t, items[0].PriceEUR)
	assert.InDelta(t, 399, *items[0].PriceEUR, 1e-9)
	assert.Empty(t, items[0].Capacity)

	items, err = ParseProductFeed([]byte(`[{"name":"Galaxy S21"}]`))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = ParseProductFeed([]byte(`{"unexpected":true}`))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = ParseProductFeed([]byte(`{`))
	require.Error(t, err)
}

func TestNormalizeProduct(t *testing.T) {
	item := FeedItem{SKU: "IP13-128-A", Name: "iPhone 13 128Go", Price: "€ 449,95", Grade: "Grade A", Color: "Midnight"}
	p := NormalizeProduct(item)
	assert.Equal(t, ProductBrandIPhone, p.Brand)
	assert.Equal(t, ProductGradeA, p.Grade)
	assert.Equal(t, "128 GB", p.Capacity)
	assert.Equal(t, "Minuit", p.Color)
	require.NotNil(t, p.PriceEUR)
	assert.InDelta(t, 449.95, *p.PriceEUR, 1e-9)
	assert.Equal(t, "449,95\u00a0€", p.Display)
	assert.Regexp(t, `^utp_[0-9a-f]+$`, p.ID)
	assert.Equal(t, p.ID, NormalizeProduct(item).ID)

	item.Grade = "Grade B"
	assert.NotEqual(t, p.ID, NormalizeProduct(item).ID)

	assert.Equal(t, "Prix sur demande", NormalizeProduct(FeedItem{Name: "iPhone 8"}).Display)
}

func sampleProducts() []Product {
	feed := []FeedItem{
		{Name: "iPhone 13 128Go Grade A", Price: "449,95 €"},
		{Name: "iPhone 12 64Go Grade B", Price: "299 €"},
		{Name: "iPhone 14 128Go Grade A", Price: "299 €"},
		{Name: "Galaxy S21 128Go Mix ABC", Price: "259 €"},
		{Name: "iPad Air 2020 256Go Grade C", Price: "329 €"},
		{Name: "Pixel 7 Grade A"},
	}
	out := make([]Product, 0, len(feed))
	for _, item := range feed {
		out = append(out, NormalizeProduct(item))
	}
	return out
}

func productNames(products []Product) []string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	return names
}

func TestFilterProducts(t *testing.T) {
	products := sampleProducts()

	page := FilterProducts(products, ProductFilter{})
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, []string{
		"iPhone 13 128Go Grade A",
		"iPad Air 2020 256Go Grade C",
		"iPhone 14 128Go Grade A",
		"iPhone 12 64Go Grade B",
		"Galaxy S21 128Go Mix ABC",
		"Pixel 7 Grade A",
	}, productNames(page.Items))

	page = FilterProducts(products, ProductFilter{Sort: ProductSortPriceAsc, Brand: "iphone"})
	assert.Equal(t, []string{"iPhone 14 128Go Grade A", "iPhone 12 64Go Grade B", "iPhone 13 128Go Grade A"}, productNames(page.Items))

	minPrice, maxPrice := 260.0, 330.0
	page = FilterProducts(products, ProductFilter{MinPrice: &minPrice, MaxPrice: &maxPrice, Grade: "a"})
	assert.Equal(t, []string{"iPhone 14 128Go Grade A"}, productNames(page.Items))

	page = FilterProducts(products, ProductFilter{Query: "GALAXY", Capacity: "128 GB"})
	assert.Equal(t, []string{"Galaxy S21 128Go Mix ABC"}, productNames(page.Items))

	page = FilterProducts(products, ProductFilter{Sort: ProductSortName, Offset: 4, Limit: 5})
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, []string{"iPhone 14 128Go Grade A", "Pixel 7 Grade A"}, productNames(page.Items))

	assert.Equal(t, []string{ProductBrandIPhone, ProductBrandSamsung, ProductBrandIPad}, page.Facets.Brands)
	assert.Equal(t, []string{"64 GB", "128 GB", "256 GB"}, page.Facets.Capacities)
	assert.Equal(t, []string{ProductGradeMixABC, ProductGradeA, ProductGradeB, ProductGradeC}, page.Facets.Grades)
}

func TestProductCatalogServiceCachesFeed(t *testing.T) {
	var hits atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"name":"iPhone 13 128Go","grade":"Grade A","price_raw_eur":449.95},{"name":"Galaxy S21","price":"259 €"}]}`))
	}))
	defer srv.Close()

	now := time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
	svc, err := NewProductCatalogService(ProductCatalogServiceDeps{
		FeedURL: srv.URL,
		TTL:     5 * time.Minute,
		Clock:   func() time.Time { return now },
	})
	require.NoError(t, err)
	ctx := context.Background()

	products, err := svc.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	_, err = svc.List(ctx, ProductFilter{Grade: "A"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	found, ok, err := svc.Product(ctx, products[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "iPhone 13 128Go", found.Name)
	_, ok, err = svc.Product(ctx, "utp_missing")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(6 * time.Minute)
	fail.Store(true)
	products, err = svc.Products(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, int32(2), hits.Load())

	fail.Store(false)
	_, err = svc.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestProductCatalogServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, err := NewProductCatalogService(ProductCatalogServiceDeps{FeedURL: srv.URL})
	require.NoError(t, err)
	_, err = svc.Products(context.Background())
	require.ErrorIs(t, err, ErrProductFeedUnavailable)

	empty, err := NewProductCatalogService(ProductCatalogServiceDeps{})
	require.NoError(t, err)
	page, err := empty.List(context.Background(), ProductFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}
