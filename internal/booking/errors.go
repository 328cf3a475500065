// File: internal/booking/errors.go
package booking

import (
	"errors"
	"fmt"
)

// ErrorKind classifies stage failures for logging and alerting.
type ErrorKind string

const (
	// KindElementNotFound: the locator exhausted all strategies.
	KindElementNotFound ErrorKind = "element_not_found"
	// KindPreconditionTimeout: a stage's trigger UI never appeared.
	KindPreconditionTimeout ErrorKind = "precondition_timeout"
	// KindActionRejected: the control was found but stayed disabled or unclickable
	// beyond the retry budget.
	KindActionRejected ErrorKind = "action_rejected"
	// KindAmbiguousOutcome: the post-submit classification was inconclusive.
	KindAmbiguousOutcome ErrorKind = "ambiguous_outcome"
	// KindNavigationFailure: the initial page load failed.
	KindNavigationFailure ErrorKind = "upstream_navigation_failure"
)

// Stage names one ordered phase of the booking state machine.
type Stage string

const (
	StageIdentifyPatient   Stage = "identify_patient"
	StageSelectService     Stage = "select_service"
	StageSearch            Stage = "search_specialty_location"
	StageWaitAvailability  Stage = "wait_availability"
	StageSelectDate        Stage = "select_date"
	StageSelectTime        Stage = "select_time"
	StageAcceptTerms       Stage = "accept_terms"
	StageFillContact       Stage = "fill_contact"
	StageSubmitReservation Stage = "submit_reservation"
)

// StageError is a stage failure with enough context for a human to act on:
// which stage, which failure class and what labels were actually on screen.
type StageError struct {
	Stage       Stage
	Kind        ErrorKind
	Msg         string
	Diagnostics []string
	Err         error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageErr builds a StageError in place.
func stageErr(stage Stage, kind ErrorKind, msg string, diags ...string) *StageError {
	return &StageError{Stage: stage, Kind: kind, Msg: msg, Diagnostics: diags}
}

// KindOf extracts the failure class from an error chain.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
