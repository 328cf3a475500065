package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("strips accents, lowercases and trims", func(t *testing.T) {
		assert.Equal(t, "odontologia", Normalize("  Odontología "))
		assert.Equal(t, "medicina general", Normalize("Medicina General"))
		assert.Equal(t, "nunoa", Normalize("Ñuñoa"))
	})

	t.Run("is idempotent", func(t *testing.T) {
		inputs := []string{"Pediatría", "CONSULTAS", "  Carnet de Identidad  ", "", "ñandú É"}
		for _, in := range inputs {
			once := Normalize(in)
			assert.Equal(t, once, Normalize(once), "Normalize(Normalize(x)) must equal Normalize(x) for %q", in)
		}
	})
}

func TestMatches(t *testing.T) {
	cases := []struct {
		candidate, target string
		want              bool
	}{
		{"Consultas", "Consulta", true},     // mutual containment
		{"Consulta", "Consultas", true},     // symmetric
		{"Odontología", "odontologia", true}, // accent/case insensitive
		{"Pediatría", "Cardiología", false},
		{"Reservar 09:15", "09:15", true},
		{"", "", true},
		{"Consultas", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Matches(tc.candidate, tc.target),
			"Matches(%q, %q)", tc.candidate, tc.target)
	}
}

func TestNormalizeJSAgreesWithGo(t *testing.T) {
	// The JS twin must implement the same canonical form. We cannot run JS here,
	// but the Go side must at least produce the form the JS expression yields for
	// the labels the steps rely on.
	assert.Equal(t, "continuar", Normalize("CONTINUAR"))
	assert.Equal(t, "acepto", Normalize("Acepto "))
	assert.Equal(t, "buscar horas", Normalize("Buscar Horas"))
}
