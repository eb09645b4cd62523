package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/recophone/api/internal/domain"
)

// ErrCatalogUnavailable is returned when no valid catalog can be served.
var ErrCatalogUnavailable = errors.New("catalog: unavailable")

var (
	yearPattern       = regexp.MustCompile(`(20\d{2}|19\d{2})`)
	iphonePattern     = regexp.MustCompile(`(?i)\biphone\b`)
	iphoneXPattern    = regexp.MustCompile(`(?i)\bx(s|r)?\b`)
	romanPattern      = regexp.MustCompile(`(?i)\b[IVXLCDM]{1,6}\b`)
	digitsPattern     = regexp.MustCompile(`(\d{1,3})`)
	familyNumPattern  = regexp.MustCompile(`(?i)\b(air|mini|pro)\s*(\d{1,2})\b`)
	miniPattern       = regexp.MustCompile(`\bmini\b`)
	sePattern         = regexp.MustCompile(`\bse\b`)
	plusPattern       = regexp.MustCompile(`\bplus\b`)
	proPattern        = regexp.MustCompile(`\bpro\b`)
	ultraPattern      = regexp.MustCompile(`\bultra\b`)
	maxPattern        = regexp.MustCompile(`\bmax\b`)
	backPartPattern   = regexp.MustCompile(`(face arrière|dos|back (glass|cover)|coque arrière)`)
	framePartPattern  = regexp.MustCompile(`(châssis|chassis|frame)`)
	samsungSPattern   = regexp.MustCompile(`galaxy\s*s`)
	samsungAPattern   = regexp.MustCompile(`galaxy\s*a`)
	samsungTabSPat    = regexp.MustCompile(`tab\s*s`)
	samsungTabAPat    = regexp.MustCompile(`tab\s*a`)
	xiaomiRedmiNote   = regexp.MustCompile(`redmi\s*note`)
	repairRankPattern = []struct {
		rank    int
		pattern *regexp.Regexp
	}{
		{1, regexp.MustCompile(`écran|ecran|screen|lcd|oled`)},
		{2, regexp.MustCompile(`batterie|battery`)},
		{3, regexp.MustCompile(`charge|port|connecteur`)},
		{4, regexp.MustCompile(`(cam(é|e)ra).*(arri|rear)`)},
		{5, regexp.MustCompile(`(cam(é|e)ra).*(avant|front)`)},
		{6, regexp.MustCompile(`haut.*parleur|speaker`)},
		{7, regexp.MustCompile(`micro`)},
		{8, regexp.MustCompile(`bouton|power|volume|home|vibreur|taptic`)},
		{9, regexp.MustCompile(`capteur|proximit|face id|touch id`)},
		{10, regexp.MustCompile(`antenne|réseau|reseau|wifi|bluetooth|nfc`)},
		{98, backPartPattern},
		{99, framePartPattern},
	}
)

const defaultRepairRank = 50

// CatalogExtras are the fixed services offered on every model.
func CatalogExtras() []domain.RepairOption {
	return []domain.RepairOption{
		{Label: "Désoxydation", Price: 80},
		{Label: "Récupération / Transfert de données", Price: 50},
		{Label: "Nettoyage & Diagnostic", Price: 15},
	}
}

type legacyCategory struct {
	Categorie string        `json:"categorie"`
	Modeles   []legacyModel `json:"modeles"`
}

type legacyModel struct {
	Nom         string         `json:"nom"`
	Reparations []legacyRepair `json:"reparations"`
}

type legacyRepair struct {
	Type string        `json:"type"`
	Prix flexiblePrice `json:"prix"`
}

type pricesV2 struct {
	Version int        `json:"version"`
	Devices []deviceV2 `json:"devices"`
}

type deviceV2 struct {
	Brand   string     `json:"brand"`
	Family  string     `json:"family"`
	Model   string     `json:"model"`
	Colors  []string   `json:"colors"`
	Repairs []repairV2 `json:"repairs"`
}

type repairV2 struct {
	Type     string      `json:"type"`
	Label    string      `json:"label"`
	Variants []variantV2 `json:"variants"`
}

type variantV2 struct {
	Price flexiblePrice `json:"price"`
	Grade string        `json:"grade"`
	SKU   string        `json:"sku"`
}

// flexiblePrice accepts 49.9 as well as "49.9". Invalid values decode to NaN.
type flexiblePrice float64

func (p *flexiblePrice) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		*p = flexiblePrice(math.NaN())
		return nil
	}
	*p = flexiblePrice(v)
	return nil
}

func (p flexiblePrice) valid() bool {
	v := float64(p)
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// NormalizeCatalog converts either catalog shape into the canonical ordered catalog.
// The legacy shape is an array of {categorie, modeles}; the current one is {version: 2, devices}.
// It is a pure function of raw.
func NormalizeCatalog(raw []byte) (domain.Catalog, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return domain.Catalog{}, fmt.Errorf("%w: empty catalog", ErrCatalogUnavailable)
	}

	var categories []domain.Category
	switch trimmed[0] {
	case '[':
		var probe []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return domain.Catalog{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		if len(probe) == 0 || probe[0]["categorie"] == nil || probe[0]["modeles"] == nil {
			return domain.Catalog{}, fmt.Errorf("%w: unrecognised catalog format", ErrCatalogUnavailable)
		}
		var legacy []legacyCategory
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return domain.Catalog{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		categories = adaptLegacy(legacy)
	case '{':
		var v2 pricesV2
		if err := json.Unmarshal(trimmed, &v2); err != nil {
			return domain.Catalog{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		if v2.Version != 2 || v2.Devices == nil {
			return domain.Catalog{}, fmt.Errorf("%w: unrecognised catalog format", ErrCatalogUnavailable)
		}
		categories = adaptV2(v2)
	default:
		return domain.Catalog{}, fmt.Errorf("%w: unrecognised catalog format", ErrCatalogUnavailable)
	}

	sortCatalog(categories)
	return domain.Catalog{Categories: categories, Extras: CatalogExtras()}, nil
}

func adaptLegacy(in []legacyCategory) []domain.Category {
	out := make([]domain.Category, 0, len(in))
	index := make(map[string]int, len(in))
	for _, c := range in {
		name := strings.TrimSpace(c.Categorie)
		if name == "" {
			continue
		}
		pos, ok := index[name]
		if !ok {
			pos = len(out)
			index[name] = pos
			out = append(out, domain.Category{Name: name, Brand: BrandOfCategory(name)})
		}
		for _, m := range c.Modeles {
			options := make([]domain.RepairOption, 0, len(m.Reparations))
			for _, r := range m.Reparations {
				label := strings.TrimSpace(r.Type)
				if label == "" || !r.Prix.valid() {
					continue
				}
				options = append(options, newRepairOption(label, float64(r.Prix)))
			}
			out[pos].Models = mergeModel(out[pos].Models, domain.Model{Name: strings.TrimSpace(m.Nom), RepairOptions: options})
		}
	}
	return out
}

func adaptV2(in pricesV2) []domain.Category {
	var out []domain.Category
	index := make(map[string]int)
	for _, d := range in.Devices {
		model := strings.TrimSpace(d.Model)
		if model == "" {
			continue
		}
		name := CategoryLabel(d.Brand, d.Family)
		pos, ok := index[name]
		if !ok {
			pos = len(out)
			index[name] = pos
			out = append(out, domain.Category{Name: name, Brand: brandFromV2(d.Brand, name)})
		}
		options := make([]domain.RepairOption, 0, len(d.Repairs))
		for _, r := range d.Repairs {
			label := strings.TrimSpace(r.Label)
			if label == "" {
				label = strings.TrimSpace(r.Type)
			}
			if label == "" {
				continue
			}
			price, ok := minVariantPrice(r.Variants)
			if !ok {
				continue
			}
			options = append(options, newRepairOption(label, price))
		}
		out[pos].Models = mergeModel(out[pos].Models, domain.Model{Name: model, Colors: d.Colors, RepairOptions: options})
	}
	return out
}

func minVariantPrice(variants []variantV2) (float64, bool) {
	best := math.Inf(1)
	for _, v := range variants {
		if v.Price.valid() && float64(v.Price) < best {
			best = float64(v.Price)
		}
	}
	if math.IsInf(best, 1) {
		return 0, false
	}
	return best, true
}

// mergeModel appends m or folds it into an existing model of the same name.
// Repairs with the same label keep the lowest price.
func mergeModel(models []domain.Model, m domain.Model) []domain.Model {
	if m.Name == "" {
		return models
	}
	for i := range models {
		if models[i].Name != m.Name {
			continue
		}
		existing := &models[i]
		for _, color := range m.Colors {
			if !containsString(existing.Colors, color) {
				existing.Colors = append(existing.Colors, color)
			}
		}
	repairs:
		for _, opt := range m.RepairOptions {
			for j := range existing.RepairOptions {
				if existing.RepairOptions[j].Label == opt.Label {
					existing.RepairOptions[j].Price = math.Min(existing.RepairOptions[j].Price, opt.Price)
					continue repairs
				}
			}
			existing.RepairOptions = append(existing.RepairOptions, opt)
		}
		return models
	}
	return append(models, m)
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func newRepairOption(label string, price float64) domain.RepairOption {
	opt := domain.RepairOption{Label: label, Price: price}
	if part, ok := RequiredColorPart(label); ok {
		opt.RequiresColor = &domain.ColorRequirement{Part: part}
	}
	return opt
}

// RequiredColorPart reports whether a repair replaces a coloured housing part.
func RequiredColorPart(label string) (domain.PartKind, bool) {
	l := strings.ToLower(label)
	switch {
	case backPartPattern.MatchString(l):
		return domain.PartKindBack, true
	case framePartPattern.MatchString(l):
		return domain.PartKindFrame, true
	}
	return "", false
}

// CategoryLabel groups a current-format device under its display category.
func CategoryLabel(brand, family string) string {
	b := strings.ToLower(strings.TrimSpace(brand))
	f := strings.ToLower(strings.TrimSpace(family))
	switch b {
	case "apple":
		return strings.TrimSpace(family)
	case "samsung":
		switch {
		case samsungSPattern.MatchString(f):
			return "Samsung - Série S"
		case samsungAPattern.MatchString(f):
			return "Samsung - Série A"
		case samsungTabSPat.MatchString(f):
			return "Samsung - Tab S"
		case samsungTabAPat.MatchString(f):
			return "Samsung - Tab A"
		case strings.Contains(f, "note"):
			return "Samsung - Note"
		}
		return "Samsung - " + strings.TrimSpace(family)
	case "xiaomi":
		switch {
		case xiaomiRedmiNote.MatchString(f):
			return "Xiaomi - Redmi Note"
		case strings.Contains(f, "redmi"):
			return "Xiaomi - Redmi"
		case strings.Contains(f, "poco"):
			return "Xiaomi - Poco"
		case strings.Contains(f, "mi"):
			return "Xiaomi - Mi"
		}
		return "Xiaomi - " + strings.TrimSpace(family)
	}
	return strings.TrimSpace(strings.TrimSpace(brand) + " " + strings.TrimSpace(family))
}

// BrandOfCategory infers the brand from a category name.
func BrandOfCategory(label string) domain.Brand {
	s := strings.ToLower(label)
	switch {
	case strings.Contains(s, "iphone"), strings.Contains(s, "ipad"), strings.HasPrefix(s, "apple"):
		return domain.BrandApple
	case strings.Contains(s, "samsung"), strings.Contains(s, "galaxy"):
		return domain.BrandSamsung
	case strings.Contains(s, "xiaomi"), strings.Contains(s, "redmi"), strings.Contains(s, "poco"), strings.Contains(s, " mi"):
		return domain.BrandXiaomi
	}
	return domain.BrandOther
}

func brandFromV2(brand, label string) domain.Brand {
	switch strings.ToLower(strings.TrimSpace(brand)) {
	case "apple":
		return domain.BrandApple
	case "samsung":
		return domain.BrandSamsung
	case "xiaomi":
		return domain.BrandXiaomi
	}
	return BrandOfCategory(label)
}

func brandPriority(b domain.Brand) int {
	switch b {
	case domain.BrandApple:
		return 0
	case domain.BrandSamsung:
		return 1
	case domain.BrandXiaomi:
		return 2
	}
	return 3
}

func appleFamilyRank(name string) int {
	s := strings.ToLower(name)
	switch {
	case strings.Contains(s, "iphone"):
		return 0
	case strings.Contains(s, "ipad"):
		return 1
	}
	return 2
}

func sortCatalog(categories []domain.Category) {
	col := collate.New(language.French, collate.IgnoreCase)
	compareNames := func(a, b string) int {
		if c := col.CompareString(a, b); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	}

	sort.SliceStable(categories, func(i, j int) bool {
		a, b := categories[i], categories[j]
		if pa, pb := brandPriority(a.Brand), brandPriority(b.Brand); pa != pb {
			return pa < pb
		}
		if a.Brand == domain.BrandApple {
			if ra, rb := appleFamilyRank(a.Name), appleFamilyRank(b.Name); ra != rb {
				return ra < rb
			}
		}
		return compareNames(a.Name, b.Name) < 0
	})

	for ci := range categories {
		models := categories[ci].Models
		sort.SliceStable(models, func(i, j int) bool {
			ka, kb := ChronoKey(models[i].Name), ChronoKey(models[j].Name)
			if ka != kb {
				return ka < kb
			}
			return compareNames(models[i].Name, models[j].Name) < 0
		})
		for mi := range models {
			SortRepairOptions(models[mi].RepairOptions, compareNames)
		}
	}
}

// SortRepairOptions orders repairs by semantic rank, then price, then label.
func SortRepairOptions(options []domain.RepairOption, compareNames func(a, b string) int) {
	if compareNames == nil {
		compareNames = strings.Compare
	}
	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if ra, rb := RepairRank(a.Label), RepairRank(b.Label); ra != rb {
			return ra < rb
		}
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		return compareNames(a.Label, b.Label) < 0
	})
}

// RepairRank is the display rank of a repair label (screen first, frame last).
func RepairRank(label string) int {
	s := strings.ToLower(label)
	for _, entry := range repairRankPattern {
		if entry.pattern.MatchString(s) {
			return entry.rank
		}
	}
	return defaultRepairRank
}

// ChronoKey orders model names from oldest to newest: (year or number) * 100 + variant rank.
func ChronoKey(name string) int {
	if year := extractYear(name); year > 0 {
		return year*100 + variantRank(name)
	}
	return extractModelNumber(name)*100 + variantRank(name)
}

func extractYear(name string) int {
	m := yearPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

func extractModelNumber(name string) int {
	if iphonePattern.MatchString(name) && iphoneXPattern.MatchString(name) {
		return 10
	}
	if roman := romanPattern.FindString(name); roman != "" {
		if v := romanToInt(strings.ToUpper(roman)); v >= 2 && v <= 20 {
			return v
		}
	}
	if m := digitsPattern.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := familyNumPattern.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[2])
		return n
	}
	return 0
}

func romanToInt(s string) int {
	values := map[byte]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}
	total, prev := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		v := values[s[i]]
		if v < prev {
			total -= v
			continue
		}
		total += v
		prev = v
	}
	return total
}

func variantRank(name string) int {
	s := strings.ToLower(name)
	switch {
	case miniPattern.MatchString(s):
		return 1
	case sePattern.MatchString(s):
		return 2
	case plusPattern.MatchString(s):
		return 3
	case proPattern.MatchString(s) && !maxPattern.MatchString(s):
		return 4
	case ultraPattern.MatchString(s):
		return 5
	case maxPattern.MatchString(s):
		return 6
	}
	return 0
}
