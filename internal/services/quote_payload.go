package services

import (
	"strings"
	"time"

	"github.com/recophone/api/internal/domain"
)

// DocumentNumbers are the identifiers printed on generated documents.
type DocumentNumbers struct {
	Quote    string
	Contract string
}

// BuildDocumentBundle projects a wizard state onto the immutable document payloads.
// A contract is built only when the client pays in two instalments.
func BuildDocumentBundle(state WizardState, numbers DocumentNumbers, issuedAt time.Time, loc *time.Location) DocumentBundle {
	if loc == nil {
		loc = time.UTC
	}
	client := state.ClientInfo
	totals := NewPricingResolver().Resolve(state.Devices, client)
	devices := quoteDevices(state.Devices)
	issued := issuedAt.In(loc).Format(time.RFC3339)

	var travelFee, distance *float64
	var address *domain.Address
	var appointment *domain.Appointment
	if client.ADomicile {
		travelFee = copyFloat(client.TravelFee)
		distance = copyFloat(client.DistanceKm)
		if client.Address != nil {
			a := *client.Address
			address = &a
		}
		if state.Appointment.Complete() {
			a := state.Appointment
			appointment = &a
		}
	}

	quote := QuotePayload{
		QuoteNumber: numbers.Quote,
		DateISO:     issued,
		Company:     domain.RecoPhone(),
		Client: domain.QuoteClient{
			FirstName: strings.TrimSpace(client.FirstName),
			LastName:  strings.TrimSpace(client.LastName),
			Email:     strings.TrimSpace(client.Email),
			Phone:     strings.TrimSpace(client.Phone),
			Notes:     strings.TrimSpace(client.Notes),
		},
		Devices:          devices,
		TravelFee:        travelFee,
		DistanceKm:       distance,
		PayInTwo:         client.PayInTwo,
		SignatureDataURL: client.SignatureDataURL,
		ADomicile:        client.ADomicile,
		Address:          address,
		Appointment:      appointment,
		Total:            round2(totals.GrandTotal),
	}
	bundle := DocumentBundle{Quote: quote, PayInTwo: client.PayInTwo}
	if client.PayInTwo {
		contract := ContractPayload{
			ContractNumber:   numbers.Contract,
			QuoteNumber:      numbers.Quote,
			DateISO:          issued,
			Company:          quote.Company,
			Client:           quote.Client,
			Devices:          devices,
			TravelFee:        travelFee,
			SignatureDataURL: client.SignatureDataURL,
			ADomicile:        client.ADomicile,
			Address:          address,
			Appointment:      appointment,
			Total:            quote.Total,
		}
		if appointment != nil {
			contract.DeliveryDateISO = appointment.ISO(loc)
		}
		bundle.Contract = &contract
	}
	return bundle
}

func quoteDevices(devices []Device) []domain.QuoteDevice {
	out := make([]domain.QuoteDevice, 0, len(devices))
	for _, device := range devices {
		if len(device.Items) == 0 {
			continue
		}
		qd := domain.QuoteDevice{Category: device.Category, Model: device.Model, Items: make([]domain.QuoteItem, 0, len(device.Items))}
		for _, item := range device.Items {
			line := domain.QuoteItem{Label: item.Label, Price: item.Price, Qty: item.Quantity()}
			if item.Meta != nil {
				line.Meta = &domain.QuoteItemMeta{Color: copyString(item.Meta.Color), PartKind: item.Meta.PartKind}
			}
			qd.Items = append(qd.Items, line)
		}
		out = append(out, qd)
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
