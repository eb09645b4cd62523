package services

import (
	"math"

	"github.com/recophone/api/internal/domain"
)

// PricingCurrency is the only currency quotes are priced in.
const PricingCurrency = "EUR"

// PricingResolver computes line, device and grand totals. Prices include VAT.
type PricingResolver struct{}

// NewPricingResolver returns a resolver.
func NewPricingResolver() PricingResolver { return PricingResolver{} }

// LineAmount returns price times quantity; a quantity below 1 counts as 1.
func (PricingResolver) LineAmount(item SelectedItem) float64 {
	return item.Price * float64(item.Quantity())
}

// Subtotal sums the line amounts of a device.
func (r PricingResolver) Subtotal(device Device) float64 {
	total := 0.0
	for _, item := range device.Items {
		total += r.LineAmount(item)
	}
	return total
}

// Resolve prices every device and adds the travel fee for at-home visits.
func (r PricingResolver) Resolve(devices []Device, client ClientInfo) QuoteTotals {
	totals := QuoteTotals{
		Currency:  PricingCurrency,
		PerDevice: make([]domain.DeviceTotal, 0, len(devices)),
	}
	for _, device := range devices {
		dt := domain.DeviceTotal{DeviceID: device.ID, Lines: make([]domain.LineAmount, 0, len(device.Items))}
		for _, item := range device.Items {
			amount := r.LineAmount(item)
			dt.Lines = append(dt.Lines, domain.LineAmount{
				Label:  item.Label,
				Price:  item.Price,
				Qty:    item.Quantity(),
				Amount: amount,
			})
			dt.Subtotal += amount
		}
		totals.PerDevice = append(totals.PerDevice, dt)
		totals.GrandTotal += dt.Subtotal
	}
	if client.ADomicile && client.TravelFee != nil {
		totals.TravelFee = *client.TravelFee
		totals.GrandTotal += totals.TravelFee
	}
	return totals
}

// ToCents converts euros to integer cents, rounding half up.
func ToCents(euros float64) int64 {
	return int64(math.Floor(euros*100 + 0.5))
}
