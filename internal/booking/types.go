// File: internal/booking/types.go

// Package booking drives the clinic portal's multi-step reservation form to
// completion: patient identification, service selection, specialty and location
// search, slot selection, contact entry and final confirmation. The portal offers
// no API; every stage works against rendered DOM and visible labels.
package booking

import (
	"context"
	"time"
)

// Page is the narrow surface the stage machine needs from a live browser tab.
// Production pages come from internal/browser; tests substitute scripted fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, script string, res any) error
	SendKeys(ctx context.Context, selector, text string) error
	Screenshot(ctx context.Context) (string, error)
	Sleep(ctx context.Context, d time.Duration) error
	Close() error
}

// PageFactory opens a fresh tab for one booking attempt.
type PageFactory func(ctx context.Context) (Page, error)

// Contact carries the reachability fields the portal requires before submission.
type Contact struct {
	Phone string `json:"telefono"`
	Email string `json:"email"`
}

// Request is the immutable input of one booking attempt. Optional fields left
// empty fall back to the portal's first offer.
type Request struct {
	DocumentType   string  `json:"tipo_documento"`
	DocumentNumber string  `json:"numero_documento"`
	Service        string  `json:"servicio"`
	Specialty      string  `json:"especialidad"`
	Location       string  `json:"ubicacion"`
	Date           string  `json:"fecha,omitempty"`
	Time           string  `json:"hora,omitempty"`
	Doctor         string  `json:"medico,omitempty"`
	Contact        Contact `json:"contacto"`
}

// ResumableContext is the portion of a request already confirmed valid against the
// portal. No live page survives between conversational turns, so the next turn
// replays these verbatim on a fresh tab.
type ResumableContext struct {
	Service   string `json:"servicio"`
	Specialty string `json:"especialidad"`
	Location  string `json:"ubicacion"`
}

// AvailabilityOptions is the canonical ordered list of offered dates and times.
// Dates are deduplicated descriptor strings, capped; times are HH:MM, sorted by
// minute of day, deduplicated, capped. Derived fresh each run, never persisted.
type AvailabilityOptions struct {
	Dates []string `json:"fechas"`
	Times []string `json:"horas"`
}

// Slot is a bookable (date, time) pair, reported back once actually taken.
type Slot struct {
	Date string `json:"fecha"`
	Time string `json:"hora"`
}

// StepOutcome reports one stage invocation: whether it succeeded, the label that
// was actually matched and the candidate labels observed while looking.
type StepOutcome struct {
	Succeeded    bool     `json:"succeeded"`
	MatchedLabel string   `json:"matched_label,omitempty"`
	Diagnostics  []string `json:"diagnostics,omitempty"`
}

// Status tags the externally visible outcome of a driver run.
type Status string

const (
	// StatusOptions: availability discovered; the caller picks a slot next turn.
	StatusOptions Status = "opciones_disponibles"
	// StatusUnavailable: the search completed but the portal offered nothing.
	StatusUnavailable Status = "no_disponible"
	// StatusSuccess: the reservation was submitted and confirmed.
	StatusSuccess Status = "success"
	// StatusError: an automation failure; Message and ErrorKind carry details.
	StatusError Status = "error"
)

// Result is the sole externally visible artifact of a driver run. The screenshot
// is a base64 PNG for human verification, never machine-parsed.
type Result struct {
	Status     Status               `json:"status"`
	Message    string               `json:"message"`
	Options    *AvailabilityOptions `json:"opciones,omitempty"`
	Resumable  *ResumableContext    `json:"estado,omitempty"`
	Taken      *Slot                `json:"datos,omitempty"`
	Screenshot string               `json:"screenshot,omitempty"`
	ErrorKind  ErrorKind            `json:"error_kind,omitempty"`
}
