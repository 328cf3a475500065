// File: internal/booking/driver_test.go
package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/snabbsalud/agendabot/internal/browser"
)

func newTestDriver(t *testing.T, page Page) *Driver {
	t.Helper()
	factory := func(ctx context.Context) (Page, error) { return page, nil }
	return NewDriver(factory, testConfig(), zaptest.NewLogger(t))
}

func startRequest() Request {
	return Request{
		DocumentNumber: "12345678-5",
		Service:        "Consultas",
		Specialty:      "Medicina General",
		Location:       "Providencia",
	}
}

// happyPathRules covers the shared prefix plus the availability grid. Locator
// scripts not listed resolve to the clicked fallback.
func happyPathRules() []evalRule {
	return []evalRule{
		{markers: []string{markFirstVisible, markDocNumberSel},
			value: browser.Result{Found: true, Strategy: "input[name='documentNumber']"}},
		{markers: []string{markDateBlocks}, value: []string{
			"MIE 10 SEP 12 horas disponibles",
			"Sin horas disponibles",
			"JUE 11 SEP 3 horas disponibles",
		}},
		{markers: []string{markSlotClick}, value: browser.Result{
			Found: true, Clicked: true, Method: "click", Label: "Reservar 09:15"}},
		{markers: []string{markSlotLabels}, value: []string{
			"Reservar 10:00", "Reservar 09:15", "3 HORAS ESTE DIA"}},
		{markers: []string{markBodyText}, value: "¡Reserva Confirmada! Comprobante enviado."},
	}
}

func TestStartBookingDiscoversOptions(t *testing.T) {
	page := newFakePage()
	page.fallback = clickedResult("ok")
	page.rules = happyPathRules()

	d := newTestDriver(t, page)
	res := d.StartBooking(context.Background(), startRequest())

	require.Equal(t, StatusOptions, res.Status, res.Message)
	require.NotNil(t, res.Options)
	want := &AvailabilityOptions{
		Dates: []string{
			"MIE 10 SEP 12 horas disponibles",
			"JUE 11 SEP 3 horas disponibles",
		},
		Times: []string{"09:15", "10:00"},
	}
	if diff := cmp.Diff(want, res.Options); diff != "" {
		t.Errorf("availability options mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, res.Resumable)
	assert.Equal(t, "Consultas", res.Resumable.Service)
	assert.Equal(t, "Medicina General", res.Resumable.Specialty)
	assert.Equal(t, "Providencia", res.Resumable.Location)

	assert.NotEmpty(t, res.Screenshot)
	assert.Equal(t, []string{"https://portal.test/patientPortal/identifyPatient"}, page.navs)
	assert.Equal(t, 1, page.closeCount(), "the tab is closed exactly once")
}

func TestStartBookingReportsNoAvailability(t *testing.T) {
	page := newFakePage()
	page.fallback = clickedResult("ok")
	page.rules = []evalRule{
		{markers: []string{markFirstVisible, markDocNumberSel},
			value: browser.Result{Found: true, Strategy: "#rut"}},
		{markers: []string{markSlotProbe}, value: browser.Result{Found: false}},
		{markers: []string{markGridProbe}, value: browser.Result{Found: true}},
	}

	d := newTestDriver(t, page)
	res := d.StartBooking(context.Background(), startRequest())

	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Empty(t, res.ErrorKind, "an empty grid is not an automation failure")
	assert.NotEmpty(t, res.Screenshot)
	assert.Equal(t, 1, page.closeCount())
}

func TestStartBookingGridTimeoutIsAnError(t *testing.T) {
	page := newFakePage()
	page.fallback = clickedResult("ok")
	page.rules = []evalRule{
		{markers: []string{markFirstVisible, markDocNumberSel},
			value: browser.Result{Found: true, Strategy: "#rut"}},
		{markers: []string{markSlotProbe}, value: browser.Result{Found: false}},
		{markers: []string{markGridProbe}, value: browser.Result{Found: false}},
	}

	d := newTestDriver(t, page)
	res := d.StartBooking(context.Background(), startRequest())

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, KindPreconditionTimeout, res.ErrorKind)
	assert.Equal(t, 1, page.closeCount())
}

func TestStartBookingNavigationFailure(t *testing.T) {
	page := newFakePage()
	page.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	d := newTestDriver(t, page)
	res := d.StartBooking(context.Background(), startRequest())

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, KindNavigationFailure, res.ErrorKind)
	assert.Equal(t, 1, page.closeCount())
}

func TestStartBookingFactoryFailure(t *testing.T) {
	factory := func(ctx context.Context) (Page, error) {
		return nil, errors.New("browser pool exhausted")
	}
	d := NewDriver(factory, testConfig(), zaptest.NewLogger(t))
	res := d.StartBooking(context.Background(), startRequest())

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, KindNavigationFailure, res.ErrorKind)
}

func TestStartBookingRecoversFromPanic(t *testing.T) {
	page := newFakePage()
	page.panicOnEval = true

	d := newTestDriver(t, page)
	res := d.StartBooking(context.Background(), startRequest())

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "internal failure")
	assert.Equal(t, 1, page.closeCount(), "a panicking stage still releases the tab")
}

func TestConfirmBookingTakesRequestedSlot(t *testing.T) {
	page := newFakePage()
	page.fallback = clickedResult("ok")
	page.rules = append(happyPathRules(),
		evalRule{markers: []string{markDateClick}, value: browser.Result{
			Found: true, Clicked: true, Method: "click", Label: "MIE 10 SEP 12 horas disponibles"}},
		evalRule{markers: []string{markSubmitProbe},
			value: browser.Result{Found: true, Enabled: true, Label: "RESERVAR HORA"}},
		evalRule{markers: []string{markReadValue},
			value: browser.Result{Found: true, Value: "ana@example.cl"}},
		evalRule{markers: []string{markSetValue}, value: browser.Result{Found: true}},
		evalRule{markers: []string{markCheckBoxes}, value: browser.Result{Found: true}},
	)

	req := startRequest()
	req.Date = "MIE 10"
	req.Time = "10:00"
	req.Contact = Contact{Phone: "+56911112222", Email: "ana@example.cl"}

	d := newTestDriver(t, page)
	res := d.ConfirmBooking(context.Background(), req, ResumableContext{
		Service: "Consultas", Specialty: "Medicina General", Location: "Providencia",
	})

	require.Equal(t, StatusSuccess, res.Status, res.Message)
	require.NotNil(t, res.Taken)
	assert.Equal(t, "MIE 10 SEP 12 horas disponibles", res.Taken.Date)
	assert.Equal(t, "10:00", res.Taken.Time)
	assert.Contains(t, res.Message, "10:00")
	assert.NotEmpty(t, res.Screenshot)
	assert.Equal(t, 1, page.closeCount())
}

func TestConfirmBookingFallsBackWhenTimeGone(t *testing.T) {
	page := newFakePage()
	page.fallback = clickedResult("ok")
	page.rules = append(happyPathRules(),
		evalRule{markers: []string{markDateClick}, value: browser.Result{
			Found: true, Clicked: true, Method: "click", Label: "MIE 10 SEP 12 horas disponibles"}},
		evalRule{markers: []string{markSubmitProbe},
			value: browser.Result{Found: true, Enabled: true, Label: "RESERVAR HORA"}},
		evalRule{markers: []string{markReadValue},
			value: browser.Result{Found: true, Value: "ana@example.cl"}},
		evalRule{markers: []string{markSetValue}, value: browser.Result{Found: true}},
		evalRule{markers: []string{markCheckBoxes}, value: browser.Result{Found: true}},
	)

	req := startRequest()
	req.Date = "MIE 10"
	req.Time = "18:45" // no longer offered
	req.Contact = Contact{Email: "ana@example.cl"}

	d := newTestDriver(t, page)
	res := d.ConfirmBooking(context.Background(), req, ResumableContext{Service: "Consultas"})

	require.Equal(t, StatusSuccess, res.Status, res.Message)
	require.NotNil(t, res.Taken)
	assert.Equal(t, "09:15", res.Taken.Time,
		"vanished slot falls back to the chronologically first offer and reports it")
	assert.Contains(t, res.Message, "09:15")
	assert.Equal(t, 1, page.closeCount())
}

func TestConfirmBookingAmbiguousOutcomeIsNeverSuccess(t *testing.T) {
	page := newFakePage()
	page.fallback = clickedResult("ok")
	rules := happyPathRules()
	// Replace the confirmation page text with copy matching no marker set.
	rules[len(rules)-1].value = "Gracias por su visita."
	page.rules = append(rules,
		evalRule{markers: []string{markDateClick}, value: browser.Result{
			Found: true, Clicked: true, Method: "click", Label: "MIE 10 SEP"}},
		evalRule{markers: []string{markSubmitProbe},
			value: browser.Result{Found: true, Enabled: true, Label: "RESERVAR HORA"}},
		evalRule{markers: []string{markReadValue},
			value: browser.Result{Found: true, Value: "ana@example.cl"}},
		evalRule{markers: []string{markSetValue}, value: browser.Result{Found: true}},
		evalRule{markers: []string{markCheckBoxes}, value: browser.Result{Found: true}},
	)

	req := startRequest()
	req.Date = "MIE 10"
	req.Time = "09:15"
	req.Contact = Contact{Email: "ana@example.cl"}

	d := newTestDriver(t, page)
	res := d.ConfirmBooking(context.Background(), req, ResumableContext{Service: "Consultas"})

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, KindAmbiguousOutcome, res.ErrorKind)
	assert.NotEmpty(t, res.Screenshot, "the caller verifies the ambiguous outcome from the capture")
	assert.Equal(t, 1, page.closeCount())
}
