package services

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/recophone/api/internal/platform/pdf"
	"github.com/recophone/api/internal/platform/textutil"
)

// Product brands shown as storefront filters.
const (
	ProductBrandIPhone  = "iPhone"
	ProductBrandSamsung = "Samsung"
	ProductBrandIPad    = "iPad"
	ProductBrandOther   = "Autre"
)

// Product grades. Feeds sometimes carry other labels ("A+", "Premium"); those pass through upper-cased.
const (
	ProductGradeA      = "A"
	ProductGradeB      = "B"
	ProductGradeC      = "C"
	ProductGradeMixABC = "MixABC"
	ProductGradeOther  = "Autre"
)

// ProductSort orders a product listing.
type ProductSort string

const (
	ProductSortPriceDesc ProductSort = "price_desc"
	ProductSortPriceAsc  ProductSort = "price_asc"
	ProductSortName      ProductSort = "name_asc"
)

// FeedItem is one raw entry of the refurbished-device supplier feed.
// Fields of the wrong JSON type are dropped rather than failing the whole feed.
type FeedItem struct {
	SKU         string
	Name        string
	Price       string
	PriceEUR    *float64
	Capacity    string
	Grade       string
	State       string
	URL         string
	Image       string
	Color       string
	VariantID   string
	ScrapedAt   *float64
	SourcePrice *float64
	MarginEUR   *float64
}

// Product is a normalized, sellable refurbished device.
type Product struct {
	ID        string
	SKU       string
	Name      string
	Brand     string
	Grade     string
	GradeRaw  string
	Capacity  string
	Color     string
	State     string
	PriceEUR  *float64
	Display   string
	URL       string
	Image     string
	Recency   float64
	ScrapedAt *float64
}

var feedArrayKeys = []string{"items", "data", "products", "results", "listings", "devices", "entries"}

// ParseProductFeed accepts a bare JSON array or an object wrapping one under a known key.
// Entries without a name are skipped.
func ParseProductFeed(raw []byte) ([]FeedItem, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("product feed: %w", err)
	}
	var entries []any
	switch v := doc.(type) {
	case []any:
		entries = v
	case map[string]any:
		for _, key := range feedArrayKeys {
			if arr, ok := v[key].([]any); ok {
				entries = arr
				break
			}
		}
	}
	items := make([]FeedItem, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := feedItemFrom(obj)
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func feedItemFrom(obj map[string]any) FeedItem {
	str := func(key string) string {
		s, _ := obj[key].(string)
		return strings.TrimSpace(s)
	}
	num := func(key string) *float64 {
		n, ok := obj[key].(float64)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return &n
	}
	return FeedItem{
		SKU:         str("sku"),
		Name:        str("name"),
		Price:       str("price"),
		PriceEUR:    num("price_raw_eur"),
		Capacity:    str("capacity"),
		Grade:       str("grade"),
		State:       str("state"),
		URL:         str("url"),
		Image:       str("image"),
		Color:       str("color"),
		VariantID:   str("variant_id"),
		ScrapedAt:   num("scraped_at"),
		SourcePrice: num("price_source_raw_eur"),
		MarginEUR:   num("margin_eur"),
	}
}

// NormalizeProduct enriches a feed item with brand, grade, capacity, colour, price and a stable id.
func NormalizeProduct(item FeedItem) Product {
	capacity := item.Capacity
	if capacity == "" {
		capacity = FallbackCapacity(item.Name)
	}
	price := ProductPriceEUR(item)
	p := Product{
		SKU:       item.SKU,
		Name:      textutil.CollapseSpaces(item.Name),
		Brand:     ProductBrand(item.Name),
		Grade:     DetectGrade(item.Grade, item.Name, item.URL),
		GradeRaw:  item.Grade,
		Capacity:  capacity,
		Color:     ProductColor(item),
		State:     item.State,
		PriceEUR:  price,
		URL:       item.URL,
		Image:     item.Image,
		Recency:   RecencyScore(item.Name),
		ScrapedAt: item.ScrapedAt,
	}
	p.ID = productID(item, capacity)
	switch {
	case price != nil:
		p.Display = pdf.Euro(*price)
	case item.Price != "":
		p.Display = item.Price
	default:
		p.Display = "Prix sur demande"
	}
	return p
}

// productID hashes the identifying fields with FNV-1a so the id survives feed refreshes.
func productID(item FeedItem, capacity string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.Join([]string{item.SKU, item.URL, item.Name, capacity, item.Grade, item.State, item.Color}, "|")))
	return "utp_" + strconv.FormatUint(uint64(h.Sum32()), 16)
}

var (
	ipadPattern          = regexp.MustCompile(`\bipad\b`)
	productIPhonePattern = regexp.MustCompile(`\biphones?\b|\bapple\b`)
	samsungPattern       = regexp.MustCompile(`samsung|galaxy|\bnote\b|z\s?(flip|fold)`)
)

// ProductBrand tags a product name as iPhone, Samsung, iPad or Autre.
func ProductBrand(name string) string {
	s := strings.ToLower(name)
	switch {
	case s == "":
		return ProductBrandOther
	case ipadPattern.MatchString(s):
		return ProductBrandIPad
	case productIPhonePattern.MatchString(s):
		return ProductBrandIPhone
	case samsungPattern.MatchString(s):
		return ProductBrandSamsung
	default:
		return ProductBrandOther
	}
}

var capacityPattern = regexp.MustCompile(`(?i)(\d+)\s?(GB|Go|TB|To)\b`)

// FallbackCapacity reads "128 GB" style capacities out of a product name.
func FallbackCapacity(name string) string {
	m := capacityPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	unit := strings.ToUpper(m[2])
	switch unit {
	case "GO":
		unit = "GB"
	case "TO":
		unit = "TB"
	}
	return m[1] + " " + unit
}

var (
	mixGradePattern   = regexp.MustCompile(`mix\s*abc`)
	namedGradePattern = regexp.MustCompile(`\bgrade?\s*([abc])\+?(?:\s|$|[^a-z0-9])`)
	bareGradePattern  = regexp.MustCompile(`(?:^|\s)([abc])\+?(?:\s|$)`)
	otherGradePattern = regexp.MustCompile(`\bgrade?\s*([a-z0-9+]+)`)
)

// DetectGrade derives the grade from the grade field, then the name, then the URL slug.
// An explicit "Grade X" wins over a lone letter.
func DetectGrade(grade, name, url string) string {
	raw := strings.TrimSpace(strings.Join(nonEmpty(grade, name, strings.NewReplacer("-", " ", "_", " ").Replace(url)), " "))
	if raw == "" {
		return ProductGradeOther
	}
	t := textutil.Fold(raw)
	if mixGradePattern.MatchString(t) {
		return ProductGradeMixABC
	}
	if m := namedGradePattern.FindStringSubmatch(t + " "); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := bareGradePattern.FindStringSubmatch(t); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := otherGradePattern.FindStringSubmatch(t); m != nil {
		return strings.ToUpper(m[1])
	}
	return ProductGradeOther
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func gradeRank(grade string) int {
	switch grade {
	case ProductGradeMixABC:
		return 0
	case ProductGradeA:
		return 1
	case ProductGradeB:
		return 2
	case ProductGradeC:
		return 3
	default:
		return 10
	}
}

var ambiguousColors = []string{"mix color", "mix", "assorti", "assorted", "various", "random", "multi", "multicolor"}

var colorPatterns = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`\bminuit\b|\bmidnight\b`), "Minuit"},
	{regexp.MustCompile(`\bstarlight\b`), "Starlight"},
	{regexp.MustCompile(`\bbleu\s?nuit\b|\bnavy\b`), "Bleu nuit"},
	{regexp.MustCompile(`\bnoir\b|\bblack\b|\bgraphite\b|\bblac\b`), "Noir"},
	{regexp.MustCompile(`\bblanc\b|\bwhite\b`), "Blanc"},
	{regexp.MustCompile(`\bbleu\b|\bblue\b`), "Bleu"},
	{regexp.MustCompile(`\bvert\b|\bgreen\b`), "Vert"},
	{regexp.MustCompile(`\brouge\b|\bred\b`), "Product RED"},
	{regexp.MustCompile(`\bviolet\b|\bpurple\b|\bpourpre\b`), "Violet"},
	{regexp.MustCompile(`\brose\b|\bpink\b|\bcorail\b|\bcoral\b`), "Rose"},
	{regexp.MustCompile(`\bjaune\b|\byellow\b`), "Jaune"},
	{regexp.MustCompile(`\bargent\b|\bsilver\b`), "Argent"},
	{regexp.MustCompile(`\bgris\s*sideral\b|\bspace\s*gr[ae]y\b`), "Gris sidéral"},
	{regexp.MustCompile(`\bor\b|\bgold\b`), "Or"},
}

// CanonicalColor maps a colour label in French or English to the storefront label.
// Mixed or assorted colours give "".
func CanonicalColor(raw string) string {
	t := strings.NewReplacer("-", " ", "_", " ").Replace(textutil.Fold(raw))
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	for _, a := range ambiguousColors {
		if strings.Contains(t, a) {
			return ""
		}
	}
	for _, p := range colorPatterns {
		if p.re.MatchString(t) {
			return p.label
		}
	}
	return ""
}

// ProductColor looks for a colour in the color field, the URL slug, the name and the image file, in that order.
func ProductColor(item FeedItem) string {
	candidates := []string{item.Color, lastPathSegment(item.URL), item.Name, lastPathSegment(item.Image)}
	for _, c := range candidates {
		if color := CanonicalColor(c); color != "" {
			return color
		}
	}
	return ""
}

func lastPathSegment(value string) string {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

var (
	recencyIPhone  = regexp.MustCompile(`iphone\s*(\d{1,2})`)
	recencyYear    = regexp.MustCompile(`20([1-4]\d)`)
	recencyZFold   = regexp.MustCompile(`z\s*fold\s*(\d+)`)
	recencyZFlip   = regexp.MustCompile(`z\s*flip\s*(\d+)`)
	recencyGalaxyS = regexp.MustCompile(`\bs\s?(\d{2})\b`)
	recencyNote    = regexp.MustCompile(`note\s*(\d+)`)
	recencyGalaxyA = regexp.MustCompile(`\ba\s?(\d{2,3})\b`)
)

// RecencyScore ranks models so newer ones sort first on price ties.
func RecencyScore(name string) float64 {
	s := strings.ToLower(name)
	if s == "" {
		return 0
	}
	if m := recencyIPhone.FindStringSubmatch(s); m != nil {
		base := atof(m[1])
		switch {
		case strings.Contains(s, "pro max"):
			base += 0.3
		case strings.Contains(s, "pro"):
			base += 0.2
		case strings.Contains(s, "plus"):
			base += 0.1
		}
		return 1000 + base
	}
	if strings.Contains(s, "iphone se") {
		return 1010
	}
	if ipadPattern.MatchString(s) {
		base := 920.0
		switch {
		case strings.Contains(s, "pro"):
			base += 0.3
		case strings.Contains(s, "air"):
			base += 0.2
		case strings.Contains(s, "mini"):
			base += 0.1
		}
		if m := recencyYear.FindStringSubmatch(s); m != nil {
			base += atof(m[1]) / 100
		}
		return base
	}
	for _, r := range []struct {
		re   *regexp.Regexp
		base float64
		div  float64
	}{
		{recencyZFold, 950, 1},
		{recencyZFlip, 940, 1},
		{recencyGalaxyS, 900, 1},
		{recencyNote, 880, 1},
		{recencyGalaxyA, 800, 10},
	} {
		if m := r.re.FindStringSubmatch(s); m != nil {
			return r.base + atof(m[1])/r.div
		}
	}
	return 0
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

var (
	euroMiddlePattern = regexp.MustCompile(`(?:^|\s)(\d+)\s*€\s*(\d{1,2})(?:\D|$)`)
	priceCharsPattern = regexp.MustCompile(`[^\d,.\-]`)
	thousandsDot      = regexp.MustCompile(`\.(\d{3})(?:\D|$)`)
)

// ProductPriceEUR prefers the numeric feed price and falls back to parsing the display string.
func ProductPriceEUR(item FeedItem) *float64 {
	if item.PriceEUR != nil {
		v := *item.PriceEUR
		return &v
	}
	v, ok := ParseEuroPrice(item.Price)
	if !ok {
		return nil
	}
	return &v
}

// ParseEuroPrice reads "€ 181,95", "1.234,50 €", "242€95" or "181.95".
func ParseEuroPrice(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if s == "" {
		return 0, false
	}
	if m := euroMiddlePattern.FindStringSubmatch(s); m != nil {
		dec := m[2]
		if len(dec) == 1 {
			dec += "0"
		}
		v, err := strconv.ParseFloat(m[1]+"."+dec, 64)
		return v, err == nil
	}
	t := priceCharsPattern.ReplaceAllString(s, "")
	if strings.Contains(t, ",") && strings.LastIndex(t, ",") > strings.LastIndex(t, ".") {
		for thousandsDot.MatchString(t) {
			t = thousandsDot.ReplaceAllStringFunc(t, func(m string) string { return m[1:] })
		}
		t = strings.Replace(t, ",", ".", 1)
	} else {
		t = strings.ReplaceAll(t, ",", "")
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ProductFilter narrows and orders a listing. Zero values disable a filter.
type ProductFilter struct {
	Query    string
	Brand    string
	Capacity string
	Grade    string
	MinPrice *float64
	MaxPrice *float64
	Sort     ProductSort
	Offset   int
	Limit    int
}

// ProductFacets lists the filter values present in the feed.
type ProductFacets struct {
	Brands     []string
	Capacities []string
	Grades     []string
}

// ProductPage is one window of a filtered, sorted listing.
type ProductPage struct {
	Items  []Product
	Total  int
	Facets ProductFacets
}

const defaultProductPageSize = 12

// FilterProducts applies f to products and returns the requested page with the facets of the whole feed.
func FilterProducts(products []Product, f ProductFilter) ProductPage {
	needle := strings.ToLower(strings.TrimSpace(f.Query))
	matched := make([]Product, 0, len(products))
	for _, p := range products {
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		if f.Brand != "" && !strings.EqualFold(f.Brand, "all") && !strings.EqualFold(p.Brand, f.Brand) {
			continue
		}
		if f.Capacity != "" && !strings.EqualFold(f.Capacity, "all") && !strings.EqualFold(p.Capacity, f.Capacity) {
			continue
		}
		if f.Grade != "" && !strings.EqualFold(f.Grade, "all") && !strings.EqualFold(p.Grade, f.Grade) {
			continue
		}
		if f.MinPrice != nil && (p.PriceEUR == nil || *p.PriceEUR < *f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && (p.PriceEUR == nil || *p.PriceEUR > *f.MaxPrice) {
			continue
		}
		matched = append(matched, p)
	}
	sortProducts(matched, f.Sort)

	limit := f.Limit
	if limit <= 0 {
		limit = defaultProductPageSize
	}
	offset := min(max(f.Offset, 0), len(matched))
	end := min(offset+limit, len(matched))
	return ProductPage{
		Items:  matched[offset:end],
		Total:  len(matched),
		Facets: productFacets(products),
	}
}

func sortProducts(products []Product, order ProductSort) {
	price := func(p Product, missing float64) float64 {
		if p.PriceEUR == nil {
			return missing
		}
		return *p.PriceEUR
	}
	slices.SortStableFunc(products, func(a, b Product) int {
		var c int
		switch order {
		case ProductSortPriceAsc:
			c = cmpFloat(price(a, math.Inf(1)), price(b, math.Inf(1)))
		case ProductSortName:
			c = strings.Compare(textutil.Fold(a.Name), textutil.Fold(b.Name))
		default:
			c = cmpFloat(price(b, math.Inf(-1)), price(a, math.Inf(-1)))
		}
		if c != 0 {
			return c
		}
		return cmpFloat(b.Recency, a.Recency)
	})
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func productFacets(products []Product) ProductFacets {
	brands := map[string]bool{}
	capacities := map[string]bool{}
	grades := map[string]bool{}
	for _, p := range products {
		if p.Brand != ProductBrandOther {
			brands[p.Brand] = true
		}
		if p.Capacity != "" {
			capacities[p.Capacity] = true
		}
		if p.Grade != ProductGradeOther {
			grades[p.Grade] = true
		}
	}
	facets := ProductFacets{}
	for _, brand := range []string{ProductBrandIPhone, ProductBrandSamsung, ProductBrandIPad} {
		if brands[brand] {
			facets.Brands = append(facets.Brands, brand)
		}
	}
	for c := range capacities {
		facets.Capacities = append(facets.Capacities, c)
	}
	slices.SortFunc(facets.Capacities, func(a, b string) int {
		if c := cmpFloat(atof(capacityDigits(a)), atof(capacityDigits(b))); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	for g := range grades {
		facets.Grades = append(facets.Grades, g)
	}
	slices.SortFunc(facets.Grades, func(a, b string) int {
		if c := gradeRank(a) - gradeRank(b); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return facets
}

func capacityDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
