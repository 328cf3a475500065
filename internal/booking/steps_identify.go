// File: internal/booking/steps_identify.go
package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/browser"
)

// Structural candidates observed across portal releases. Order is significant:
// specific first, generic last.
var (
	documentSelectOpeners = []string{
		"[role='button'][aria-haspopup='listbox']",
		".MuiSelect-select",
		".MuiFormControl-root .MuiOutlinedInput-root",
		"div[role='button']",
		"[id*='select']",
	}
	documentOptionSelectors = []string{
		"[role='option']",
		"li[role='option']",
		".MuiMenuItem-root",
	}
	documentInputSelectors = []string{
		"input[name='documentNumber']",
		"#rut",
		"input[placeholder*='RUT']",
		"input[placeholder*='rut']",
		"input[type='text'].MuiInputBase-input",
		".MuiInputBase-input[type='text']",
	}
	continueSelectors = []string{"button", "[role='button']"}
)

// identifyPatient opens the document-type selector, picks the requested type,
// types the document number and waits for the server-validated CONTINUAR control
// to enable.
func (s *stepper) identifyPatient(ctx context.Context, docType, docNumber string) error {
	const stage = StageIdentifyPatient

	// Open the dropdown. Structural candidates first, text fallback second; the
	// fallback failing is tolerated because some releases render the listbox open.
	opened, err := s.eval(ctx, browser.ClickJS(browser.Query{Selectors: documentSelectOpeners}))
	if err != nil {
		return fmt.Errorf("%s: opening document selector: %w", stage, err)
	}
	if !opened.Clicked {
		s.log.Debug("Structural dropdown openers failed; trying text fallback.")
		if _, err := s.eval(ctx, browser.ClickJS(browser.Query{Text: "Documento"})); err != nil {
			return fmt.Errorf("%s: text fallback for document selector: %w", stage, err)
		}
	}
	s.settle(ctx, s.cfg.DropdownSettle)

	// Pick the document type by label.
	picked, err := s.clickChecked(ctx, stage, fmt.Sprintf("document type option %q", docType),
		browser.ClickJS(browser.Query{Selectors: documentOptionSelectors, Text: docType}))
	if err != nil {
		return err
	}
	s.log.Info("Document type selected.", zap.String("label", picked.MatchedLabel))
	s.settle(ctx, s.cfg.OptionSettle)

	// Type the number into the first visible candidate input using real key events.
	sel, err := s.eval(ctx, browser.FirstVisibleSelector(documentInputSelectors))
	if err != nil {
		return fmt.Errorf("%s: locating document input: %w", stage, err)
	}
	if !sel.Found {
		return stageErr(stage, KindElementNotFound, "document number input not found")
	}
	if err := s.page.SendKeys(ctx, sel.Strategy, docNumber); err != nil {
		return fmt.Errorf("%s: typing document number: %w", stage, err)
	}
	s.settle(ctx, s.cfg.TypeSettle)

	// The portal validates the document server-side and only then enables
	// CONTINUAR. Bounded retries; never-found and never-enabled are distinct
	// failures with distinct diagnostics.
	findContinue := browser.FindJS(browser.Query{Selectors: continueSelectors, Text: "Continuar"})
	var sawButton bool
	for i := 0; i < s.cfg.ContinueAttempts; i++ {
		res, err := s.eval(ctx, findContinue)
		if err != nil {
			return fmt.Errorf("%s: probing CONTINUAR: %w", stage, err)
		}
		if res.Found {
			sawButton = true
			if res.Enabled {
				if _, err := s.clickChecked(ctx, stage, "CONTINUAR button",
					browser.ClickJS(browser.Query{Selectors: continueSelectors, Text: "Continuar"})); err != nil {
					return err
				}
				s.log.Info("CONTINUAR pressed.")
				s.settle(ctx, s.cfg.PostContinueSettle)
				return nil
			}
		}
		if err := s.page.Sleep(ctx, s.cfg.ContinueInterval); err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
	}

	if !sawButton {
		return stageErr(stage, KindElementNotFound, "CONTINUAR button never appeared")
	}
	return stageErr(stage, KindActionRejected,
		"CONTINUAR never enabled; check the document number format and validity")
}
