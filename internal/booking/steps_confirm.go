// File: internal/booking/steps_confirm.go
package booking

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/browser"
	"github.com/snabbsalud/agendabot/internal/textmatch"
)

var (
	phoneInputSelectors = []string{"input[name='phoneNumber']", "input[type='tel']"}
	emailInputSelectors = []string{"input[type='email']", "input[name='email']"}
)

// acceptTerms clicks the terms modal's accept control when it shows up. The modal
// is optional: not every flow renders it, so absence within the wait window is
// logged, never fatal.
func (s *stepper) acceptTerms(ctx context.Context) {
	acceptQuery := browser.Query{Selectors: []string{"button"}, Text: "Acepto"}
	_, ok := s.pollUntil(ctx, s.cfg.TermsWait, s.cfg.PollInterval,
		browser.FindJS(acceptQuery),
		func(r browser.Result) bool { return r.Found })
	if !ok {
		s.log.Debug("No terms modal within its window; continuing.")
		return
	}
	res, err := s.eval(ctx, browser.ClickJS(acceptQuery))
	if err != nil || !res.Clicked {
		s.log.Warn("Terms modal present but accept click did not land.", zap.Error(err))
		return
	}
	s.log.Info("Terms accepted.", zap.String("label", res.Label))
	s.settle(ctx, s.cfg.SelectionSettle)
}

// checkAllBoxesJS ticks every unchecked checkbox through its label ancestor; the
// raw input is often visually hidden behind the styled control.
const checkAllBoxesJS = `(() => {
	let ticked = 0;
	for (const cb of document.querySelectorAll("input[type='checkbox']")) {
		if (cb.checked) continue;
		const parent = cb.closest('label') || cb.parentElement;
		if (parent) { parent.click(); ticked++; }
	}
	return { found: ticked > 0, value: String(ticked) };
})()`

// fillContact enters phone and email. Both fields are cleared first because the
// portal may pre-populate stale values. The email value is verified after typing
// and, on mismatch, forced through the native setter plus synthetic events: the
// UI framework only reacts to its own event contract, so the native attempt and
// the forced fallback are both necessary.
func (s *stepper) fillContact(ctx context.Context, contact Contact) error {
	const stage = StageFillContact

	if contact.Phone != "" {
		if err := s.clearThenType(ctx, phoneInputSelectors, contact.Phone); err != nil {
			return fmt.Errorf("%s: phone: %w", stage, err)
		}
	}
	if contact.Email != "" {
		if err := s.clearThenType(ctx, emailInputSelectors, contact.Email); err != nil {
			return fmt.Errorf("%s: email: %w", stage, err)
		}
		read, err := s.eval(ctx, browser.ReadValueJS(emailInputSelectors))
		if err != nil {
			return fmt.Errorf("%s: verifying email: %w", stage, err)
		}
		if read.Value != contact.Email {
			s.log.Warn("Email field did not hold the typed value; forcing it.",
				zap.String("observed", read.Value))
			forced, err := s.eval(ctx, browser.SetValueJS(emailInputSelectors, contact.Email))
			if err != nil {
				return fmt.Errorf("%s: forcing email: %w", stage, err)
			}
			if !forced.Found || forced.Value != contact.Email {
				return stageErr(stage, KindActionRejected, "email field rejected both typed and forced value")
			}
		}
	}

	if _, err := s.eval(ctx, checkAllBoxesJS); err != nil {
		return fmt.Errorf("%s: ticking checkboxes: %w", stage, err)
	}
	s.settle(ctx, s.cfg.ContactSettle)
	return nil
}

// clearThenType clears the first visible candidate field and types the value with
// real key events.
func (s *stepper) clearThenType(ctx context.Context, selectors []string, value string) error {
	if cleared, err := s.eval(ctx, browser.SetValueJS(selectors, "")); err != nil {
		return fmt.Errorf("clearing field: %w", err)
	} else if !cleared.Found {
		return stageErr(StageFillContact, KindElementNotFound,
			fmt.Sprintf("no visible input among %v", selectors))
	}
	sel, err := s.eval(ctx, browser.FirstVisibleSelector(selectors))
	if err != nil || !sel.Found {
		return fmt.Errorf("re-locating field after clear: %w", err)
	}
	return s.page.SendKeys(ctx, sel.Strategy, value)
}

// submitProbeJS inspects the final submit control and, when it is disabled,
// which precondition is unmet.
var submitProbeJS = fmt.Sprintf(`(() => {
	const norm = %s;
	for (const btn of document.querySelectorAll('button')) {
		const t = norm(btn.textContent || "");
		if (!t.includes("reservar hora")) continue;
		const st = getComputedStyle(btn);
		const enabled = btn.disabled !== true && btn.getAttribute("aria-disabled") !== "true";
		const unchecked = Array.from(document.querySelectorAll("input[type='checkbox']")).some(cb => !cb.checked);
		const emailEl = document.querySelector("input[type='email']");
		const phoneEl = document.querySelector("input[name='phoneNumber']");
		const missing = [];
		if (unchecked) missing.push("terms");
		if (emailEl && !emailEl.value) missing.push("email");
		if (phoneEl && !phoneEl.value) missing.push("phone");
		return {
			found: true,
			enabled: enabled && st.cursor === "pointer",
			label: (btn.textContent || "").trim(),
			candidates: missing
		};
	}
	return { found: false };
})()`, textmatch.NormalizeJS)

// submitReservation verifies the submit control is actionable, remediating an
// unmet precondition exactly once, clicks it through the dispatch ladder, then
// classifies the resulting page text. The outcome is probabilistic: an unknown
// classification is surfaced as such, never silently treated as success.
func (s *stepper) submitReservation(ctx context.Context, contact Contact) (SubmitClassification, error) {
	const stage = StageSubmitReservation

	probe, err := s.eval(ctx, submitProbeJS)
	if err != nil {
		return SubmitUnknown, fmt.Errorf("%s: probing submit control: %w", stage, err)
	}
	if !probe.Found {
		return SubmitUnknown, stageErr(stage, KindElementNotFound, "RESERVAR HORA button not found")
	}
	if !probe.Enabled {
		// One remediation pass for the diagnosed precondition, then a re-probe.
		s.log.Warn("Submit control disabled; remediating.", zap.Strings("missing", probe.Candidates))
		if err := s.remediate(ctx, probe.Candidates, contact); err != nil {
			return SubmitUnknown, err
		}
		probe, err = s.eval(ctx, submitProbeJS)
		if err != nil {
			return SubmitUnknown, fmt.Errorf("%s: re-probing submit control: %w", stage, err)
		}
		if !probe.Found || !probe.Enabled {
			return SubmitUnknown, stageErr(stage, KindActionRejected,
				fmt.Sprintf("submit control still disabled after remediation (missing: %s)",
					strings.Join(probe.Candidates, ", ")))
		}
	}

	if _, err := s.clickChecked(ctx, stage, "RESERVAR HORA button",
		browser.ClickJS(browser.Query{Selectors: []string{"button"}, Text: "Reservar Hora"})); err != nil {
		return SubmitUnknown, err
	}
	s.settle(ctx, s.cfg.SubmitSettle)

	var bodyText string
	if err := s.page.Evaluate(ctx, `(document.body && document.body.innerText) || ""`, &bodyText); err != nil {
		return SubmitUnknown, fmt.Errorf("%s: reading result page: %w", stage, err)
	}
	return ClassifySubmitOutcome(bodyText), nil
}

func (s *stepper) remediate(ctx context.Context, missing []string, contact Contact) error {
	for _, item := range missing {
		switch item {
		case "terms":
			if _, err := s.eval(ctx, checkAllBoxesJS); err != nil {
				return fmt.Errorf("remediating terms checkbox: %w", err)
			}
		case "email":
			if contact.Email != "" {
				if _, err := s.eval(ctx, browser.SetValueJS(emailInputSelectors, contact.Email)); err != nil {
					return fmt.Errorf("remediating email: %w", err)
				}
			}
		case "phone":
			if contact.Phone != "" {
				if _, err := s.eval(ctx, browser.SetValueJS(phoneInputSelectors, contact.Phone)); err != nil {
					return fmt.Errorf("remediating phone: %w", err)
				}
			}
		}
	}
	s.settle(ctx, s.cfg.ContactSettle)
	return nil
}

// SubmitClassification is the keyword-scan verdict over the post-submit page.
type SubmitClassification string

const (
	SubmitSuccess SubmitClassification = "success"
	SubmitFailure SubmitClassification = "failure"
	SubmitUnknown SubmitClassification = "unknown"
)

var (
	submitSuccessMarkers = []string{
		"reserva confirmada", "hora reservada", "reserva realizada",
		"reserva exitosa", "comprobante", "exito",
	}
	submitFailureMarkers = []string{
		"no se pudo", "no fue posible", "ha ocurrido un error",
		"intente nuevamente", "error",
	}
)

// ClassifySubmitOutcome scans the page text for success and failure markers.
// Success markers win over failure markers when both appear, because the portal's
// confirmation view embeds generic error-handling copy.
func ClassifySubmitOutcome(bodyText string) SubmitClassification {
	n := textmatch.Normalize(bodyText)
	for _, marker := range submitSuccessMarkers {
		if strings.Contains(n, marker) {
			return SubmitSuccess
		}
	}
	for _, marker := range submitFailureMarkers {
		if strings.Contains(n, marker) {
			return SubmitFailure
		}
	}
	return SubmitUnknown
}
