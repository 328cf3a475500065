// File: internal/intent/intent_test.go
package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExtractor() *KeywordExtractor {
	return NewKeywordExtractor(
		[]string{"Medicina General", "Dermatología", "Pediatría"},
		[]string{"Providencia", "Santiago Centro"},
	)
}

func TestKeywordExtractorKinds(t *testing.T) {
	cases := []struct {
		message string
		want    Kind
	}{
		{"Hola, quiero agendar una hora con dermatología", KindSchedule},
		{"necesito una hora para pediatria por favor", KindSchedule},
		{"quiero cancelar mi cita de mañana", KindCancel},
		{"puedes anular la reserva?", KindCancel},
		{"necesito cambiar mi hora", KindReschedule},
		{"quiero reagendar para la otra semana", KindReschedule},
		{"hola, tengo una duda sobre mi tratamiento", KindTalk},
	}
	e := testExtractor()
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			got, err := e.Extract(context.Background(), tc.message)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Kind)
		})
	}
}

func TestKeywordExtractorCancelWinsOverSchedule(t *testing.T) {
	// "cancelar la hora que agendé" mentions both buckets; cancelling is the
	// destructive action and must not be misread as a new booking.
	got, err := testExtractor().Extract(context.Background(), "quiero cancelar la hora que agende ayer")
	require.NoError(t, err)
	assert.Equal(t, KindCancel, got.Kind)
}

func TestKeywordExtractorSlots(t *testing.T) {
	got, err := testExtractor().Extract(context.Background(),
		"Agendar Dermatología en Providencia a las 10:30")
	require.NoError(t, err)
	assert.Equal(t, KindSchedule, got.Kind)
	assert.Equal(t, "Dermatología", got.Specialty)
	assert.Equal(t, "Providencia", got.Location)
	assert.Equal(t, "10:30", got.Time)
}

func TestKeywordExtractorAccentInsensitive(t *testing.T) {
	got, err := testExtractor().Extract(context.Background(), "hora con dermatologia porfa")
	require.NoError(t, err)
	assert.Equal(t, "Dermatología", got.Specialty,
		"catalog entries match regardless of accents in the message")
}

func TestParseIntentJSON(t *testing.T) {
	got, err := ParseIntentJSON(`{"intencion":"agendar","especialidad":"Pediatría","hora":"09:15"}`)
	require.NoError(t, err)
	assert.Equal(t, KindSchedule, got.Kind)
	assert.Equal(t, "Pediatría", got.Specialty)
	assert.Equal(t, "09:15", got.Time)
}

func TestParseIntentJSONCodeFence(t *testing.T) {
	raw := "```json\n{\"intencion\":\"borrar\"}\n```"
	got, err := ParseIntentJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, KindCancel, got.Kind)
}

func TestParseIntentJSONUnknownKind(t *testing.T) {
	got, err := ParseIntentJSON(`{"intencion":"saludar"}`)
	require.NoError(t, err)
	assert.Equal(t, KindTalk, got.Kind, "unknown kinds degrade to conversation")
}

func TestParseIntentJSONGarbage(t *testing.T) {
	_, err := ParseIntentJSON("lo siento, no puedo ayudarte con eso")
	assert.Error(t, err)
}
