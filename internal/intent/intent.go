// File: internal/intent/intent.go

// Package intent maps a free-form chat message to one of the four conversational
// intents and the booking slots mentioned in it. The primary extractor asks
// Gemini for a JSON-constrained answer; a deterministic keyword extractor covers
// the no-API-key deployment and tests.
package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/snabbsalud/agendabot/internal/textmatch"
)

// Kind is a conversational intent.
type Kind string

const (
	KindSchedule   Kind = "agendar"
	KindCancel     Kind = "borrar"
	KindReschedule Kind = "modificar"
	KindTalk       Kind = "hablar"
)

// Intent is the structured reading of one chat message.
type Intent struct {
	Kind      Kind   `json:"intencion"`
	Specialty string `json:"especialidad,omitempty"`
	Location  string `json:"ubicacion,omitempty"`
	Date      string `json:"fecha,omitempty"`
	Time      string `json:"hora,omitempty"`
}

// Extractor reads one chat message into an Intent.
type Extractor interface {
	Extract(ctx context.Context, message string) (Intent, error)
}

var (
	timeMentionRe = regexp.MustCompile(`\b(\d{1,2}:\d{2})\b`)

	scheduleWords   = []string{"agendar", "reservar", "quiero una hora", "necesito una hora", "pedir hora", "cita"}
	cancelWords     = []string{"cancelar", "anular", "borrar", "eliminar"}
	rescheduleWords = []string{"cambiar", "modificar", "reagendar", "mover"}
)

// KeywordExtractor is the deterministic fallback: keyword buckets for the intent
// kind, a time regex and a catalog scan for the specialty. It never errors.
type KeywordExtractor struct {
	specialties []string
	locations   []string
}

// NewKeywordExtractor builds the fallback over the known specialty and location
// catalogs.
func NewKeywordExtractor(specialties, locations []string) *KeywordExtractor {
	return &KeywordExtractor{specialties: specialties, locations: locations}
}

func (e *KeywordExtractor) Extract(ctx context.Context, message string) (Intent, error) {
	n := textmatch.Normalize(message)

	out := Intent{Kind: KindTalk}
	switch {
	case containsAny(n, cancelWords):
		out.Kind = KindCancel
	case containsAny(n, rescheduleWords):
		out.Kind = KindReschedule
	case containsAny(n, scheduleWords):
		out.Kind = KindSchedule
	}

	if m := timeMentionRe.FindString(n); m != "" {
		out.Time = m
	}
	for _, sp := range e.specialties {
		if strings.Contains(n, textmatch.Normalize(sp)) {
			out.Specialty = sp
			break
		}
	}
	for _, loc := range e.locations {
		if strings.Contains(n, textmatch.Normalize(loc)) {
			out.Location = loc
			break
		}
	}
	return out, nil
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
