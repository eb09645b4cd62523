package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recophone/api/internal/domain"
)

type finalizerFunc func(ctx context.Context, state WizardState) (FinalizeResult, error)

func (f finalizerFunc) Finalize(ctx context.Context, state WizardState) (FinalizeResult, error) {
	return f(ctx, state)
}

type recordingTravel struct {
	seq       uint64
	scheduled []Address
	cancels   int
}

func (r *recordingTravel) Schedule(address Address) uint64 {
	r.seq++
	r.scheduled = append(r.scheduled, address)
	return r.seq
}

func (r *recordingTravel) Cancel() {
	r.seq++
	r.cancels++
}

var wizardNow = time.Date(2026, time.March, 7, 10, 30, 0, 0, brussels)

func testCatalog(t *testing.T) Catalog {
	t.Helper()
	catalog, err := NormalizeCatalog([]byte(legacyCatalogJSON))
	require.NoError(t, err)
	return catalog
}

func newTestWizard(t *testing.T, finalizer Finalizer) (*QuoteWizard, *recordingTravel) {
	t.Helper()
	if finalizer == nil {
		finalizer = finalizerFunc(func(context.Context, WizardState) (FinalizeResult, error) {
			return FinalizeResult{QuoteNumber: "RP_00001"}, nil
		})
	}
	travel := &recordingTravel{}
	w, err := NewQuoteWizard(QuoteWizardDeps{
		Catalog:   testCatalog(t),
		Schedule:  NewScheduleResolver(brussels, nil, func() time.Time { return wizardNow }),
		Travel:    travel,
		Finalizer: finalizer,
		Clock:     func() time.Time { return wizardNow },
	})
	require.NoError(t, err)
	return w, travel
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }

func fillClient(t *testing.T, w *QuoteWizard) {
	t.Helper()
	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{
		FirstName: strPtr("Marie"),
		LastName:  strPtr("Dupont"),
		Email:     strPtr("marie@example.be"),
		Phone:     strPtr("0492 09 05 33"),
	}))
}

func TestQuoteWizardDevicesAndSelection(t *testing.T) {
	w, _ := newTestWizard(t, nil)

	err := w.Next()
	require.ErrorIs(t, err, ErrStepInvalid)
	var stepErr *StepValidationError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepModel, stepErr.Step)

	_, err = w.AddDevice("iPhone", "iPhone 99")
	require.ErrorIs(t, err, ErrUnknownModel)

	first, err := w.AddDevice("iPhone", "iPhone XR")
	require.NoError(t, err)
	second, err := w.AddDevice("Samsung Galaxy S", "Galaxy S20")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, domain.BrandApple, first.Brand)
	assert.Equal(t, 1, w.State().ActiveDeviceID)

	require.NoError(t, w.Next())
	assert.Equal(t, StepRepairs, w.CurrentStep())
	require.ErrorIs(t, w.Next(), ErrStepInvalid)

	added, err := w.ToggleItem(1, "Écran", nil)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = w.ToggleItem(1, "Écran", nil)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = w.ToggleItem(1, "Réparation inconnue", nil)
	require.ErrorIs(t, err, ErrUnknownRepair)
	_, err = w.ToggleItem(9, "Écran", nil)
	require.ErrorIs(t, err, ErrUnknownDevice)

	_, err = w.ToggleItem(1, "Face arrière", nil)
	require.NoError(t, err)
	_, err = w.ToggleItem(1, "Désoxydation", nil)
	require.NoError(t, err)
	state := w.State()
	back := state.Devices[0].Items[0]
	require.NotNil(t, back.Meta)
	assert.Nil(t, back.Meta.Color)
	assert.Equal(t, domain.PartKindBack, back.Meta.PartKind)
	assert.Nil(t, state.Devices[0].Items[1].Meta)

	require.NoError(t, w.SetItemColor(1, "Face arrière", strPtr(" Rouge ")))
	assert.Equal(t, "Rouge", *w.State().Devices[0].Items[0].Meta.Color)
	require.ErrorIs(t, w.SetItemColor(1, "Désoxydation", strPtr("Noir")), ErrUnknownRepair)
	require.ErrorIs(t, w.SetItemQty(1, "Désoxydation", 0), ErrInvalidQuantity)
	require.NoError(t, w.SetItemQty(1, "Désoxydation", 2))
	require.ErrorIs(t, w.SetItemQty(1, "Écran", 2), ErrItemNotSelected)

	view := w.View()
	assert.InDelta(t, 99+160.0, view.Totals.GrandTotal, 1e-9)

	require.NoError(t, w.Next())
	assert.Equal(t, StepInfo, w.CurrentStep())

	require.NoError(t, w.SetActiveDevice(2))
	require.NoError(t, w.RemoveDevice(2))
	assert.Equal(t, 1, w.State().ActiveDeviceID)
	require.ErrorIs(t, w.RemoveDevice(2), ErrUnknownDevice)
}

func TestQuoteWizardInfoGate(t *testing.T) {
	w, _ := newTestWizard(t, nil)
	_, err := w.AddDevice("iPhone", "iPhone 13")
	require.NoError(t, err)
	_, err = w.ToggleItem(1, "Écran", nil)
	require.NoError(t, err)
	require.NoError(t, w.Next())
	require.NoError(t, w.Next())

	issues := w.StepIssues(StepInfo)
	assert.Len(t, issues, 4)

	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{
		FirstName: strPtr("Marie"),
		LastName:  strPtr("Dupont"),
		Email:     strPtr("marie@example"),
		Phone:     strPtr("12345"),
		Notes:     strPtr("<b>Sonne</b> deux fois"),
		PayInTwo:  boolPtr(true),
	}))
	assert.Equal(t, "Sonne deux fois", w.State().ClientInfo.Notes)
	assert.Len(t, w.StepIssues(StepInfo), 3)

	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{
		Email:            strPtr("marie@example.be"),
		Phone:            strPtr("+32 492 09 05 33"),
		SignatureDataURL: strPtr("data:image/png;base64,AAAA"),
	}))
	assert.Empty(t, w.StepIssues(StepInfo))
	require.NoError(t, w.Next())
	assert.Equal(t, StepResume, w.CurrentStep())
	assert.ErrorIs(t, w.Next(), ErrStepOutOfRange)

	require.ErrorIs(t, w.GoTo(4), ErrStepOutOfRange)
	require.NoError(t, w.GoTo(1))
	assert.Equal(t, StepRepairs, w.CurrentStep())
	w.Back()
	w.Back()
	assert.Equal(t, StepModel, w.CurrentStep())
}

func TestQuoteWizardAtHomeFlow(t *testing.T) {
	w, travel := newTestWizard(t, nil)
	_, err := w.AddDevice("iPhone", "iPhone 13")
	require.NoError(t, err)
	_, err = w.ToggleItem(1, "Écran", nil)
	require.NoError(t, err)
	require.NoError(t, w.Next())
	require.NoError(t, w.Next())
	fillClient(t, w)

	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{ADomicile: boolPtr(true)}))
	assert.Len(t, w.Steps(), 5)
	assert.Equal(t, StepSchedule, w.Steps()[3])

	address := Address{Street: "Rue de Fer", Number: "1", PostalCode: "5000", City: "Namur"}
	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{Address: &address}))
	require.Len(t, travel.scheduled, 1)
	assert.Equal(t, TravelPending, w.View().TravelStatus)
	require.ErrorIs(t, w.UpdateClientInfo(ClientInfoPatch{CGVAccepted: boolPtr(true)}), ErrCGVRefused)

	assert.False(t, w.ApplyTravel(TravelOutcome{Seq: travel.seq + 1, Quote: TravelQuote{DistanceKm: 99, Fee: 294}}))
	assert.True(t, w.ApplyTravel(TravelOutcome{Seq: travel.seq, Quote: TravelQuote{DistanceKm: 20, Fee: 17.5}}))
	assert.Equal(t, TravelReady, w.View().TravelStatus)

	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{CGVAccepted: boolPtr(true)}))
	assert.Empty(t, w.StepIssues(StepInfo))
	assert.InDelta(t, 219+17.5, w.View().Totals.GrandTotal, 1e-9)

	require.NoError(t, w.Next())
	assert.Equal(t, StepSchedule, w.CurrentStep())
	assert.Equal(t, domain.Appointment{Date: "2026-03-07", Slot: "11:30"}, w.State().Appointment)

	require.NoError(t, w.SelectAppointment("2026-03-21", ""))
	assert.Equal(t, domain.Appointment{Date: "2026-03-21", Slot: "09:00"}, w.State().Appointment)
	require.NoError(t, w.SelectAppointment("2026-03-21", "14:15"))
	require.ErrorIs(t, w.SelectAppointment("2026-03-20", ""), ErrDayNotSelectable)
	require.NoError(t, w.Next())
	assert.Equal(t, StepResume, w.CurrentStep())

	moved := address
	moved.Number = "2"
	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{Address: &moved}))
	state := w.State()
	assert.False(t, state.ClientInfo.CGVAccepted)
	assert.Nil(t, state.ClientInfo.TravelFee)
	require.Len(t, travel.scheduled, 2)

	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{ADomicile: boolPtr(false)}))
	state = w.State()
	assert.Nil(t, state.ClientInfo.Address)
	assert.Nil(t, state.ClientInfo.DistanceKm)
	assert.Equal(t, domain.Appointment{}, state.Appointment)
	assert.Equal(t, 1, travel.cancels)
	assert.Len(t, w.Steps(), 4)
	assert.Equal(t, 3, state.CurrentStep)
	assert.Equal(t, StepResume, w.CurrentStep())
	assert.False(t, w.ApplyTravel(TravelOutcome{Seq: travel.seq, Quote: TravelQuote{DistanceKm: 20, Fee: 17.5}}))
	require.ErrorIs(t, w.SelectAppointment("2026-03-21", ""), ErrAtHomeRequired)
}

func TestQuoteWizardTravelFailureClearsFee(t *testing.T) {
	w, travel := newTestWizard(t, nil)
	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{
		ADomicile: boolPtr(true),
		Address:   &Address{Street: "Rue de Fer", Number: "1", PostalCode: "5000", City: "Namur"},
	}))
	require.True(t, w.ApplyTravel(TravelOutcome{Seq: travel.seq, Err: errors.New("geocode failed")}))
	view := w.View()
	assert.Equal(t, TravelFailed, view.TravelStatus)
	assert.Equal(t, "geocode failed", view.TravelError)
	assert.Nil(t, view.State.ClientInfo.TravelFee)
}

func TestQuoteWizardForbiddenAtHome(t *testing.T) {
	w, travel := newTestWizard(t, nil)
	_, err := w.AddDevice("iPhone", "iPhone XR")
	require.NoError(t, err)
	_, err = w.ToggleItem(1, "Châssis", strPtr("Noir"))
	require.NoError(t, err)
	fillClient(t, w)
	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{
		ADomicile: boolPtr(true),
		Address:   &Address{Street: "Rue de Fer", Number: "1", PostalCode: "5000", City: "Namur"},
	}))
	w.ApplyTravel(TravelOutcome{Seq: travel.seq, Quote: TravelQuote{DistanceKm: 10, Fee: 0}})

	view := w.View()
	assert.True(t, view.Eligibility.Forbidden)
	assert.Equal(t, AtHomeForbiddenReason, view.Eligibility.Reason)
	require.ErrorIs(t, w.UpdateClientInfo(ClientInfoPatch{CGVAccepted: boolPtr(true)}), ErrCGVRefused)
	assert.Contains(t, w.StepIssues(StepInfo), AtHomeForbiddenReason)

	month, err := w.MonthView("2026-03")
	require.NoError(t, err)
	for _, day := range month.Days {
		assert.False(t, day.Selectable, day.Date)
	}
	require.ErrorIs(t, w.SelectAppointment("2026-03-21", ""), ErrDayNotSelectable)

	_, err = w.ToggleItem(1, "Châssis", nil)
	require.NoError(t, err)
	assert.False(t, w.View().Eligibility.Forbidden)
}

func TestQuoteWizardFinalize(t *testing.T) {
	fail := true
	var received WizardState
	w, travel := newTestWizard(t, finalizerFunc(func(_ context.Context, state WizardState) (FinalizeResult, error) {
		received = state
		if fail {
			return FinalizeResult{}, errors.New("smtp down")
		}
		return FinalizeResult{QuoteNumber: "RP_00007", DraftKeys: QuoteDraftKeys}, nil
	}))

	_, err := w.RequestFinalize()
	require.ErrorIs(t, err, ErrNothingSelected)
	_, err = w.ConfirmFinalize(context.Background())
	require.ErrorIs(t, err, ErrFinalizeNotRequested)

	_, err = w.AddDevice("iPhone", "iPhone 13")
	require.NoError(t, err)
	_, err = w.ToggleItem(1, "Écran", nil)
	require.NoError(t, err)
	fillClient(t, w)

	preview, err := w.RequestFinalize()
	require.NoError(t, err)
	assert.Equal(t, "Dupont", preview.Quote.Client.LastName)
	assert.InDelta(t, 219, preview.Quote.Total, 1e-9)
	assert.Nil(t, preview.Contract)
	assert.Equal(t, FinalizeConfirming, w.View().Finalize.Status)

	w.CancelFinalize()
	assert.Equal(t, FinalizeIdle, w.View().Finalize.Status)

	_, err = w.RequestFinalize()
	require.NoError(t, err)
	_, err = w.ConfirmFinalize(context.Background())
	require.EqualError(t, err, "smtp down")
	view := w.View()
	assert.Equal(t, FinalizeConfirming, view.Finalize.Status)
	assert.Equal(t, "smtp down", view.Finalize.LastError)
	assert.Len(t, view.State.Devices, 1)
	assert.Len(t, received.Devices, 1)

	fail = false
	result, err := w.ConfirmFinalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RP_00007", result.QuoteNumber)
	view = w.View()
	assert.Empty(t, view.State.Devices)
	assert.Equal(t, FinalizeIdle, view.Finalize.Status)
	assert.Equal(t, 0, view.CurrentIndex)
	assert.Equal(t, 1, travel.cancels)

	device, err := w.AddDevice("iPhone", "iPhone 13")
	require.NoError(t, err)
	assert.Equal(t, 1, device.ID)
}

func TestQuoteWizardFinalizeRechecksEarlierSteps(t *testing.T) {
	called := false
	w, travel := newTestWizard(t, finalizerFunc(func(context.Context, WizardState) (FinalizeResult, error) {
		called = true
		return FinalizeResult{QuoteNumber: "RP_00001"}, nil
	}))
	_, err := w.AddDevice("iPhone", "iPhone 13")
	require.NoError(t, err)
	_, err = w.ToggleItem(1, "Écran", nil)
	require.NoError(t, err)
	require.NoError(t, w.Next())
	require.NoError(t, w.Next())
	fillClient(t, w)
	require.NoError(t, w.Next())
	require.Equal(t, StepResume, w.CurrentStep())

	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{Email: strPtr(""), ADomicile: boolPtr(true)}))
	assert.Equal(t, StepSchedule, w.CurrentStep())
	require.NoError(t, w.SelectAppointment("2026-03-21", ""))
	require.NoError(t, w.Next())
	require.Equal(t, StepResume, w.CurrentStep())
	require.Empty(t, travel.scheduled)

	_, err = w.RequestFinalize()
	var stepErr *StepValidationError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepInfo, stepErr.Step)
	assert.NotEmpty(t, stepErr.Reasons)
	assert.Equal(t, FinalizeIdle, w.View().Finalize.Status)

	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{Email: strPtr("marie@example.be"), ADomicile: boolPtr(false)}))
	_, err = w.RequestFinalize()
	require.NoError(t, err)

	// Info broken again while the confirmation dialog is open.
	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{Phone: strPtr("12")}))
	_, err = w.ConfirmFinalize(context.Background())
	require.ErrorIs(t, err, ErrStepInvalid)
	assert.False(t, called)
	assert.Equal(t, FinalizeIdle, w.View().Finalize.Status)
	assert.Len(t, w.State().Devices, 1)
}

func TestQuoteWizardRefusedTermsLeaveStateUntouched(t *testing.T) {
	w, travel := newTestWizard(t, nil)
	_, err := w.AddDevice("iPhone", "iPhone 13")
	require.NoError(t, err)
	_, err = w.ToggleItem(1, "Écran", nil)
	require.NoError(t, err)
	fillClient(t, w)
	address := Address{Street: "Rue de Fer", Number: "1", PostalCode: "5000", City: "Namur"}
	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{ADomicile: boolPtr(true), Address: &address}))
	require.True(t, w.ApplyTravel(TravelOutcome{Seq: travel.seq, Quote: TravelQuote{DistanceKm: 20, Fee: 17.5}}))
	before := w.State()

	moved := address
	moved.Number = "9"
	err = w.UpdateClientInfo(ClientInfoPatch{
		FirstName:   strPtr("Jean"),
		Address:     &moved,
		CGVAccepted: boolPtr(true),
	})
	require.ErrorIs(t, err, ErrCGVRefused)
	assert.Equal(t, before, w.State())
	assert.Len(t, travel.scheduled, 1)

	require.ErrorIs(t, w.UpdateClientInfo(ClientInfoPatch{ADomicile: boolPtr(false), CGVAccepted: boolPtr(true)}), ErrCGVRefused)
	assert.Equal(t, before, w.State())

	require.NoError(t, w.UpdateClientInfo(ClientInfoPatch{Address: &address, CGVAccepted: boolPtr(true)}))
	assert.True(t, w.State().ClientInfo.CGVAccepted)
}
