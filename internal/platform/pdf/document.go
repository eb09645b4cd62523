package pdf

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/recophone/api/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	colorUnknown   = "Je ne sais pas"
	noValue        = "—"
	travelFeeLabel = "Frais de déplacement (estim.)"
)

// DocType selects the document layout.
type DocType string

const (
	DocQuote    DocType = "quote"
	DocContract DocType = "contract"
)

// ParseDocType validates a doc type received over HTTP.
func ParseDocType(raw string) (DocType, bool) {
	switch DocType(strings.ToLower(strings.TrimSpace(raw))) {
	case DocQuote:
		return DocQuote, true
	case DocContract:
		return DocContract, true
	}
	return "", false
}

type row struct {
	Title string
	Color string
	Qty   int
	Price string
}

type view struct {
	Title        string
	Number       string
	Date         string
	Company      domain.CompanyInfo
	ClientLines  []string
	HomeLines    []string
	Rows         []row
	Total        string
	Signature    template.URL
	HomeNotice   bool
	Contract     bool
	BalanceDueBy string
}

// Builder renders documents to HTML.
type Builder struct {
	tmpl *template.Template
	loc  *time.Location
}

// NewBuilder parses the embedded templates. Dates are printed in loc.
func NewBuilder(loc *time.Location) (*Builder, error) {
	tmpl, err := template.New("document").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("pdf: parse templates: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{tmpl: tmpl, loc: loc}, nil
}

// QuoteHTML renders the quote.
func (b *Builder) QuoteHTML(p domain.QuotePayload) ([]byte, error) {
	v := b.baseView("DEVIS", p.QuoteNumber, p.DateISO, p.Company, p.Client, p.Devices, p.TravelFee, p.SignatureDataURL, p.ADomicile, p.Address, p.Appointment)
	return b.execute("quote.html", v)
}

// ContractHTML renders the pay-in-two contract.
func (b *Builder) ContractHTML(p domain.ContractPayload) ([]byte, error) {
	v := b.baseView("CONTRAT", p.ContractNumber, p.DateISO, p.Company, p.Client, p.Devices, p.TravelFee, p.SignatureDataURL, p.ADomicile, p.Address, p.Appointment)
	v.Contract = true
	if delivery := strings.TrimSpace(p.DeliveryDateISO); delivery != "" {
		if t, err := time.Parse(time.RFC3339, delivery); err == nil {
			v.BalanceDueBy = t.In(b.loc).AddDate(0, 0, 30).Format("02/01/2006")
		} else if t, err := time.ParseInLocation(time.DateOnly, delivery, b.loc); err == nil {
			v.BalanceDueBy = t.AddDate(0, 0, 30).Format("02/01/2006")
		}
	}
	return b.execute("contract.html", v)
}

func (b *Builder) execute(name string, v view) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return nil, fmt.Errorf("pdf: render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) baseView(title, number, dateISO string, company domain.CompanyInfo, client domain.QuoteClient,
	devices []domain.QuoteDevice, travelFee *float64, signature string, home bool, addr *domain.Address, appt *domain.Appointment) view {
	date := Date(dateISO, b.loc)
	if date == "" {
		date = time.Now().In(b.loc).Format("02/01/2006")
	}
	v := view{
		Title:      title,
		Number:     number,
		Date:       date,
		Company:    company,
		Signature:  signatureURL(signature),
		HomeNotice: home,
	}

	v.ClientLines = nonEmpty(strings.TrimSpace(client.FirstName+" "+client.LastName), client.Email, client.Phone)
	var apptDate, apptSlot string
	if appt != nil {
		apptDate = Date(appt.Date, b.loc)
		apptSlot = appt.Slot
	}
	if home {
		if addr != nil {
			v.HomeLines = append(v.HomeLines,
				strings.TrimSpace(addr.Street+" "+addr.Number),
				strings.TrimSpace(addr.PostalCode+" "+addr.City))
		}
		if apptDate != "" {
			v.HomeLines = append(v.HomeLines, "Date souhaitée : "+apptDate)
		}
		if apptSlot != "" {
			v.HomeLines = append(v.HomeLines, "Créneau : "+apptSlot)
		}
		if len(v.HomeLines) == 0 {
			v.HomeLines = []string{noValue}
		}
	} else if apptDate != "" {
		v.ClientLines = append(v.ClientLines, "Date souhaitée : "+apptDate)
	}

	var total float64
	for _, device := range devices {
		prefix := orDash(device.Category) + " • " + orDash(device.Model)
		for _, item := range device.Items {
			qty := item.Qty
			if qty < 1 {
				qty = 1
			}
			color := noValue
			if item.Meta != nil {
				color = colorUnknown
				if item.Meta.Color != nil && strings.TrimSpace(*item.Meta.Color) != "" {
					color = *item.Meta.Color
				}
			}
			amount := item.Price * float64(qty)
			total += amount
			v.Rows = append(v.Rows, row{Title: prefix + " — " + item.Label, Color: color, Qty: qty, Price: Euro(amount)})
		}
	}
	if travelFee != nil && *travelFee > 0 {
		total += *travelFee
		v.Rows = append(v.Rows, row{Title: travelFeeLabel, Color: noValue, Qty: 1, Price: Euro(*travelFee)})
	}
	v.Total = Euro(total)
	return v
}

// signatureURL only lets raster data URLs through to the img src.
func signatureURL(raw string) template.URL {
	raw = strings.TrimSpace(raw)
	for _, prefix := range []string{"data:image/png;base64,", "data:image/jpeg;base64,", "data:image/jpg;base64,"} {
		if strings.HasPrefix(raw, prefix) && len(raw) > len(prefix) {
			return template.URL(raw) //nolint:gosec
		}
	}
	return ""
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return noValue
	}
	return v
}
