// File: internal/textmatch/textmatch.go

// Package textmatch normalizes and compares visible portal text. The portal's labels
// drift in capitalization and accents across releases, so elements are located by
// label rather than by exact string identity.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents removes combining marks after NFD decomposition.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize strips diacritics, lowercases and trims the input. It is idempotent.
func Normalize(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		// Transformation only fails on malformed UTF-8; fall back to the raw input.
		out = s
	}
	return strings.TrimSpace(strings.ToLower(out))
}

// Matches reports whether candidate and target refer to the same label.
// True when the normalized forms are equal or either contains the other.
// Equality alone is too brittle against portal releases ("Consulta" vs "Consultas");
// plain substring alone causes false positives, so both directions are required.
func Matches(candidate, target string) bool {
	c, t := Normalize(candidate), Normalize(target)
	if c == "" || t == "" {
		return c == t
	}
	return c == t || strings.Contains(c, t) || strings.Contains(t, c)
}

// NormalizeJS is a JavaScript twin of Normalize for evaluation inside the live
// document, where candidate text only exists in the rendered DOM.
const NormalizeJS = `(s) => (s || "").normalize("NFD").replace(/[\u0300-\u036f]/g, "").toLowerCase().trim()`
