// File: internal/booking/fakes_test.go
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/snabbsalud/agendabot/internal/browser"
	"github.com/snabbsalud/agendabot/internal/config"
)

// evalRule maps scripts to canned evaluation results. A script matches when it
// contains every marker; rules are consulted in order and a rule with times > 0
// is consumed after that many hits.
type evalRule struct {
	markers []string
	value   any
	err     error
	times   int
}

// fakePage is a scripted Page. Unmatched locator scripts resolve to fallback,
// which tests set to a clicked result for happy paths and leave zero for
// failure paths.
type fakePage struct {
	mu       sync.Mutex
	rules    []evalRule
	fallback any

	navErr  error
	shot    string
	shotErr error

	navs   []string
	typed  map[string]string
	closes int

	panicOnEval bool
}

func newFakePage() *fakePage {
	return &fakePage{typed: make(map[string]string), shot: "cGhvdG8="}
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navs = append(f.navs, url)
	return f.navErr
}

func (f *fakePage) Evaluate(ctx context.Context, script string, res any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnEval {
		panic("scripted page failure")
	}
	for i := range f.rules {
		r := &f.rules[i]
		if r.times < 0 {
			continue
		}
		if !containsAll(script, r.markers) {
			continue
		}
		if r.times > 0 {
			r.times--
			if r.times == 0 {
				r.times = -1
			}
		}
		if r.err != nil {
			return r.err
		}
		return decodeInto(r.value, res)
	}
	if f.fallback == nil {
		return decodeInto(browser.Result{}, res)
	}
	return decodeInto(f.fallback, res)
}

func (f *fakePage) SendKeys(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed[selector] = text
	return nil
}

func (f *fakePage) Screenshot(ctx context.Context) (string, error) {
	return f.shot, f.shotErr
}

func (f *fakePage) Sleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func (f *fakePage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakePage) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func containsAll(script string, markers []string) bool {
	for _, m := range markers {
		if !strings.Contains(script, m) {
			return false
		}
	}
	return true
}

func decodeInto(value, out any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("fake evaluation: %w", err)
	}
	return json.Unmarshal(b, out)
}

// clickedResult is the fallback for happy-path tests: every locator finds an
// enabled element and every dispatch lands.
func clickedResult(label string) browser.Result {
	return browser.Result{
		Found: true, Clicked: true, Enabled: true,
		Strategy: "css", Method: "click", Label: label,
	}
}

// Script markers unique to the locator and scraper scripts the stages emit.
const (
	markDateBlocks    = "if (text) out.push(text)"
	markSlotLabels    = `\d{2}/.test(text)`
	markSlotProbe     = `/reservar/.test(t)`
	markGridProbe     = `'.MuiBox-root') !== null`
	markDateClick     = `"sin horas"`
	markSlotClick     = "const want ="
	markSubmitProbe   = "reservar hora"
	markBodyText      = "document.body.innerText"
	markCheckBoxes    = "ticked"
	markSetValue      = "setter.call(el, val)"
	markReadValue     = `value: el.value || ""`
	markFirstVisible  = "return { found: true, strategy: sel };"
	markActivate      = "const activate ="
	markContinueText  = `norm("Continuar")`
	markAceptoText    = `norm("Acepto")`
	markBuscarText    = `norm("buscar")`
	markReservarText  = `norm("Reservar Hora")`
	markDocNumberSel  = "input[name='documentNumber']"
	markFilterService = "input#filterService"
)

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		StageTimeout:        50 * time.Millisecond,
		PollInterval:        time.Millisecond,
		ContinueAttempts:    3,
		ContinueInterval:    time.Millisecond,
		ServiceCardTimeout:  50 * time.Millisecond,
		AvailabilityTimeout: 25 * time.Millisecond,
		TermsWait:           10 * time.Millisecond,
		MaxDates:            5,
		MaxTimes:            10,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Portal: config.PortalConfig{
			URL:          "https://portal.test/patientPortal/identifyPatient",
			DocumentType: "Carnet de Identidad",
		},
		Booking: testBookingConfig(),
	}
}
