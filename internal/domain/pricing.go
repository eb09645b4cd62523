package domain

// QuoteTotals captures the aggregated monetary results of pricing a quote. Amounts are euros.
type QuoteTotals struct {
	Currency   string
	PerDevice  []DeviceTotal
	TravelFee  float64
	GrandTotal float64
}

// DeviceTotal stores the per-device pricing outputs.
type DeviceTotal struct {
	DeviceID int
	Lines    []LineAmount
	Subtotal float64
}

// LineAmount is price times quantity for one selected item.
type LineAmount struct {
	Label  string
	Price  float64
	Qty    int
	Amount float64
}
