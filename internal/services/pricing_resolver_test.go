package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recophone/api/internal/domain"
)

func TestPricingResolverResolve(t *testing.T) {
	fee := 24.5
	devices := []Device{
		{ID: 1, Items: []SelectedItem{
			{Key: "Écran", Label: "Écran", Price: 119},
			{Key: "Batterie", Label: "Batterie", Price: 69, Qty: 2},
		}},
		{ID: 2, Items: []SelectedItem{
			{Key: "Nettoyage & Diagnostic", Label: "Nettoyage & Diagnostic", Price: 15, Qty: 0},
		}},
	}
	r := NewPricingResolver()

	totals := r.Resolve(devices, ClientInfo{ADomicile: true, TravelFee: &fee})
	require.Len(t, totals.PerDevice, 2)
	assert.Equal(t, "EUR", totals.Currency)
	assert.InDelta(t, 257.0, totals.PerDevice[0].Subtotal, 1e-9)
	assert.Equal(t, domain.LineAmount{Label: "Batterie", Price: 69, Qty: 2, Amount: 138}, totals.PerDevice[0].Lines[1])
	assert.Equal(t, 1, totals.PerDevice[1].Lines[0].Qty)
	assert.InDelta(t, 24.5, totals.TravelFee, 1e-9)
	assert.InDelta(t, 296.5, totals.GrandTotal, 1e-9)

	inShop := r.Resolve(devices, ClientInfo{ADomicile: false, TravelFee: &fee})
	assert.InDelta(t, 272.0, inShop.GrandTotal, 1e-9)
	assert.Zero(t, inShop.TravelFee)

	pending := r.Resolve(devices, ClientInfo{ADomicile: true})
	assert.InDelta(t, 272.0, pending.GrandTotal, 1e-9)
}

func TestPricingResolverEmpty(t *testing.T) {
	totals := NewPricingResolver().Resolve(nil, ClientInfo{})
	assert.Empty(t, totals.PerDevice)
	assert.Zero(t, totals.GrandTotal)
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(1999), ToCents(19.99))
	assert.Equal(t, int64(13), ToCents(0.125))
	assert.Equal(t, int64(8000), ToCents(80))
	assert.Equal(t, int64(0), ToCents(0))
	assert.Equal(t, int64(3150), ToCents(31.5))
}
