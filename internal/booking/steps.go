// File: internal/booking/steps.go
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/browser"
	"github.com/snabbsalud/agendabot/internal/config"
)

// stepper executes stages against one page. Every stage follows the same shape:
// wait for its precondition, locate and act, then settle or confirm the
// postcondition. Stages are strictly ordered; there are no backward transitions
// within a run.
type stepper struct {
	page Page
	cfg  config.BookingConfig
	log  *zap.Logger
}

func newStepper(page Page, cfg config.BookingConfig, log *zap.Logger) *stepper {
	return &stepper{page: page, cfg: cfg, log: log}
}

// jsEscape marshals s into a JS string literal for script interpolation.
func jsEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// eval runs a locator script and decodes the uniform result shape.
func (s *stepper) eval(ctx context.Context, script string) (browser.Result, error) {
	var res browser.Result
	if err := s.page.Evaluate(ctx, script, &res); err != nil {
		return browser.Result{}, err
	}
	return res, nil
}

// settle is a fixed post-action delay. Polling for framework-internal state is not
// observable from outside, so these delays stand in for it. Tunables, not
// correctness guarantees.
func (s *stepper) settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if err := s.page.Sleep(ctx, d); err != nil {
		s.log.Debug("Settle delay interrupted.", zap.Error(err))
	}
}

// pollUntil evaluates script every interval until pred accepts the result or the
// timeout expires. A timeout is a failure, not "nothing to do"; the last observed
// result is returned alongside so callers can build diagnostics.
func (s *stepper) pollUntil(
	ctx context.Context,
	timeout, interval time.Duration,
	script string,
	pred func(browser.Result) bool,
) (browser.Result, bool) {
	deadline := time.Now().Add(timeout)
	var last browser.Result
	for {
		res, err := s.eval(ctx, script)
		if err == nil {
			last = res
			if pred(res) {
				return res, true
			}
		} else {
			s.log.Debug("Poll evaluation failed; retrying.", zap.Error(err))
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return last, false
		}
		if err := s.page.Sleep(ctx, interval); err != nil {
			return last, false
		}
	}
}

// clickChecked runs a click script and converts the two distinct failure modes:
// nothing matched (ElementNotFound) versus matched but not activatable
// (ActionRejected).
func (s *stepper) clickChecked(ctx context.Context, stage Stage, what, script string) (StepOutcome, error) {
	res, err := s.eval(ctx, script)
	if err != nil {
		return StepOutcome{}, fmt.Errorf("%s: click evaluation: %w", stage, err)
	}
	if !res.Found {
		return StepOutcome{Diagnostics: res.Candidates},
			stageErr(stage, KindElementNotFound,
				fmt.Sprintf("%s not found (seen: %s)", what, browser.DiagnosticSummary(res.Candidates)),
				res.Candidates...)
	}
	if !res.Clicked {
		return StepOutcome{MatchedLabel: res.Label, Diagnostics: res.Candidates},
			stageErr(stage, KindActionRejected,
				fmt.Sprintf("%s found (%q) but no dispatch strategy landed", what, res.Label),
				res.Candidates...)
	}
	s.log.Debug("Activated control.",
		zap.String("stage", string(stage)),
		zap.String("label", res.Label),
		zap.String("strategy", res.Strategy),
		zap.String("method", res.Method))
	return StepOutcome{Succeeded: true, MatchedLabel: res.Label, Diagnostics: res.Candidates}, nil
}
