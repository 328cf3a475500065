// File: internal/booking/steps_slots.go
package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/browser"
	"github.com/snabbsalud/agendabot/internal/textmatch"
)

// slotProbeJS reports whether any real bookable slot button is rendered: reserve
// verb AND an HH:MM time AND no aggregate-counter markers. Counters like
// "3 HORAS ESTE DIA" share the grid's button markup and must not qualify.
var slotProbeJS = fmt.Sprintf(`(() => {
	const norm = %s;
	for (const btn of document.querySelectorAll('button')) {
		const t = norm(btn.textContent || "");
		if (!/reservar/.test(t)) continue;
		if (!/\d{1,2}:\d{2}/.test(t)) continue;
		if (/\d+\s*horas/.test(t)) continue;
		if (t.includes("este dia") || t.includes("esta semana")) continue;
		return { found: true, label: (btn.textContent || "").trim() };
	}
	return { found: false };
})()`, textmatch.NormalizeJS)

// gridProbeJS reports whether the results view rendered at all, slots or not.
const gridProbeJS = `(() => {
	return { found: document.querySelector('.MuiBox-root') !== null };
})()`

// waitAvailability polls until a bookable slot renders. Slots present returns
// true. A rendered results view without slots is a legitimate empty business
// result and returns (false, nil). The view never appearing is an automation
// defect reported as PreconditionTimeout.
func (s *stepper) waitAvailability(ctx context.Context) (bool, error) {
	const stage = StageWaitAvailability

	if _, ok := s.pollUntil(ctx, s.cfg.AvailabilityTimeout, s.cfg.PollInterval,
		slotProbeJS,
		func(r browser.Result) bool { return r.Found }); ok {
		s.settle(ctx, s.cfg.GridSettle)
		return true, nil
	}

	grid, err := s.eval(ctx, gridProbeJS)
	if err != nil {
		return false, fmt.Errorf("%s: probing results grid: %w", stage, err)
	}
	if grid.Found {
		s.log.Info("Results grid rendered with no bookable slots.")
		return false, nil
	}
	return false, stageErr(stage, KindPreconditionTimeout,
		"results view never rendered within the availability window")
}

// clickDateBlockJS scans the date container blocks for one whose full inner text
// matches the target. A block can textually match the date while being unusable:
// any block carrying a "no slots" marker is rejected even on a date match.
func clickDateBlockJS(target string) string {
	return fmt.Sprintf(`(() => {%s
	const norm = %s;
	const target = norm(%s);
	const candidates = [];
	for (const box of document.querySelectorAll('.MuiBox-root')) {
		const parts = Array.from(box.querySelectorAll('p')).map(p => (p.textContent || "").trim());
		const text = parts.join(' ').trim();
		if (!text) continue;
		const t = norm(text);
		candidates.push(text);
		if (!t.includes(target)) continue;
		if (t.includes("sin horas")) continue;
		const method = activate(box);
		return { found: true, clicked: method !== "", method, label: text, candidates };
	}
	return { found: false, clicked: false, candidates };
})()`, browser.ActivateJS, textmatch.NormalizeJS, jsEscape(target))
}

// clickSlotJS activates the slot button carrying the given HH:MM, using the same
// slot predicate as the availability probe.
func clickSlotJS(hhmm string) string {
	return fmt.Sprintf(`(() => {%s
	const norm = %s;
	const want = %s;
	const candidates = [];
	for (const btn of document.querySelectorAll('button')) {
		const raw = (btn.textContent || "").trim();
		const t = norm(raw);
		if (!/reservar/.test(t)) continue;
		if (!/\d{1,2}:\d{2}/.test(t)) continue;
		if (/\d+\s*horas/.test(t)) continue;
		if (t.includes("este dia") || t.includes("esta semana")) continue;
		candidates.push(raw);
		if (!t.includes(want)) continue;
		const method = activate(btn);
		return { found: true, clicked: method !== "", method, label: raw, candidates };
	}
	return { found: false, clicked: false, candidates };
})()`, browser.ActivateJS, textmatch.NormalizeJS, jsEscape(hhmm))
}

// selectDate clicks the date block matching the caller's target descriptor.
func (s *stepper) selectDate(ctx context.Context, target string) (string, error) {
	const stage = StageSelectDate

	outcome, err := s.clickChecked(ctx, stage, fmt.Sprintf("date block %q", target),
		clickDateBlockJS(target))
	if err != nil {
		return "", err
	}
	s.log.Info("Date selected.", zap.String("block", outcome.MatchedLabel))
	s.settle(ctx, s.cfg.SelectionSettle)
	return outcome.MatchedLabel, nil
}

// selectTime books the requested HH:MM when still offered; otherwise it falls
// back to the chronologically first valid slot. A caller who asked for a
// preference and got a substitute is told which slot was actually taken.
func (s *stepper) selectTime(ctx context.Context, want string) (string, error) {
	const stage = StageSelectTime

	var labels []string
	if err := s.page.Evaluate(ctx, slotLabelsJS, &labels); err != nil {
		return "", fmt.Errorf("%s: harvesting slot buttons: %w", stage, err)
	}
	offered := FilterTimes(labels, len(labels)+1)
	if len(offered) == 0 {
		return "", stageErr(stage, KindElementNotFound, "no bookable slot buttons on the selected date")
	}

	chosen := offered[0]
	if want != "" {
		// The offer list is zero-padded HH:MM; a spoken "9:15" must compare equal.
		if padded, ok := SlotTime(want); ok {
			want = padded
		}
		for _, t := range offered {
			if t == want {
				chosen = want
				break
			}
		}
		if chosen != want {
			s.log.Warn("Requested time no longer offered; taking first valid slot.",
				zap.String("requested", want), zap.String("taking", chosen))
		}
	}

	if _, err := s.clickChecked(ctx, stage, fmt.Sprintf("slot button %s", chosen),
		clickSlotJS(chosen)); err != nil {
		return "", err
	}
	s.log.Info("Time slot selected.", zap.String("time", chosen))
	s.settle(ctx, s.cfg.SelectionSettle)
	return chosen, nil
}
