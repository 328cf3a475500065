// File: internal/booking/availability.go
package booking

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/snabbsalud/agendabot/internal/textmatch"
)

// The results grid mixes real slot buttons with decorative counters ("3 HORAS
// ESTE DIA") that look like them. A real slot carries the reserve verb AND an
// HH:MM time AND none of the exclusion markers; anything weaker either clicks a
// non-slot control or reports a false "no availability".

var (
	timeRe        = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	hourCounterRe = regexp.MustCompile(`\d+\s*horas`)
	digitRe       = regexp.MustCompile(`\d`)
)

// slotExclusionMarkers disqualify a button that otherwise looks like a slot.
var slotExclusionMarkers = []string{"este dia", "esta semana"}

// dateExclusionMarkers disqualify a date container block: "no slots" text and
// clinic/professional boilerplate that shares the container markup.
var dateExclusionMarkers = []string{"sin horas", "centro medico", "clinica redsalud", "profesional"}

// IsSlotLabel reports whether a button label denotes a bookable slot.
func IsSlotLabel(label string) bool {
	n := textmatch.Normalize(label)
	if !strings.Contains(n, "reservar") {
		return false
	}
	if !timeRe.MatchString(n) {
		return false
	}
	if hourCounterRe.MatchString(n) {
		return false
	}
	for _, marker := range slotExclusionMarkers {
		if strings.Contains(n, marker) {
			return false
		}
	}
	return true
}

// SlotTime extracts the HH:MM portion of a slot label, normalized to two-digit hours.
func SlotTime(label string) (string, bool) {
	m := timeRe.FindString(label)
	if m == "" {
		return "", false
	}
	if len(m) == 4 { // H:MM
		m = "0" + m
	}
	return m, true
}

// minuteOfDay converts HH:MM to a sortable minute count.
func minuteOfDay(hhmm string) int {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}

// FilterDates reduces raw date-container texts to the canonical offer list:
// exclusion-filtered, deduplicated, first max kept in document order.
func FilterDates(raw []string, max int) []string {
	out := make([]string, 0, max)
	seen := make(map[string]struct{})
	for _, text := range raw {
		trimmed := strings.Join(strings.Fields(text), " ")
		if trimmed == "" || !digitRe.MatchString(trimmed) {
			continue
		}
		n := textmatch.Normalize(trimmed)
		excluded := false
		for _, marker := range dateExclusionMarkers {
			if strings.Contains(n, marker) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, trimmed)
		if len(out) == max {
			break
		}
	}
	return out
}

// FilterTimes reduces raw button labels to the canonical time list: slot-predicate
// filtered, HH:MM extracted, deduplicated, sorted by minute of day, capped.
func FilterTimes(raw []string, max int) []string {
	seen := make(map[string]struct{})
	var times []string
	for _, label := range raw {
		if !IsSlotLabel(label) {
			continue
		}
		t, ok := SlotTime(label)
		if !ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool {
		return minuteOfDay(times[i]) < minuteOfDay(times[j])
	})
	if len(times) > max {
		times = times[:max]
	}
	return times
}

// dateBlocksJS scrapes the full inner text of every date container block.
const dateBlocksJS = `(() => {
	const out = [];
	for (const box of document.querySelectorAll('.MuiBox-root')) {
		const parts = Array.from(box.querySelectorAll('p')).map(p => (p.textContent || "").trim());
		const text = parts.join(' ').trim();
		if (text) out.push(text);
	}
	return out;
})()`

// slotLabelsJS scrapes the label of every button that could plausibly be a slot.
// The authoritative predicate runs on the Go side.
const slotLabelsJS = `(() => {
	const out = [];
	for (const btn of document.querySelectorAll('button')) {
		const text = (btn.textContent || "").trim();
		if (/\d{1,2}:\d{2}/.test(text)) out.push(text);
	}
	return out;
})()`

// extractAvailability harvests the rendered grid into AvailabilityOptions.
// Empty lists are a legitimate result; the caller decides what empty means.
func (s *stepper) extractAvailability(ctx context.Context) (AvailabilityOptions, error) {
	var rawDates, rawTimes []string
	if err := s.page.Evaluate(ctx, dateBlocksJS, &rawDates); err != nil {
		return AvailabilityOptions{}, err
	}
	if err := s.page.Evaluate(ctx, slotLabelsJS, &rawTimes); err != nil {
		return AvailabilityOptions{}, err
	}
	return AvailabilityOptions{
		Dates: FilterDates(rawDates, s.cfg.MaxDates),
		Times: FilterTimes(rawTimes, s.cfg.MaxTimes),
	}, nil
}
