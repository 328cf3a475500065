// File: internal/booking/driver.go
package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/snabbsalud/agendabot/internal/config"
)

// Driver owns one browser page per invocation and sequences the stage machine
// over it. The page is closed on every exit path; stage errors and panics are
// converted into the error-tagged Result variant and never escape to the caller.
type Driver struct {
	newPage PageFactory
	cfg     *config.Config
	log     *zap.Logger
}

// NewDriver wires a page factory to the booking configuration.
func NewDriver(newPage PageFactory, cfg *config.Config, logger *zap.Logger) *Driver {
	return &Driver{
		newPage: newPage,
		cfg:     cfg,
		log:     logger.Named("driver"),
	}
}

// StartBooking runs the stages through availability discovery and returns either
// the discovered options with a resumable context, a legitimate "no availability"
// outcome, or an error result.
func (d *Driver) StartBooking(ctx context.Context, req Request) (res Result) {
	page, err := d.newPage(ctx)
	if err != nil {
		return Result{
			Status:    StatusError,
			ErrorKind: KindNavigationFailure,
			Message:   fmt.Sprintf("could not open a browser page: %v", err),
		}
	}
	defer page.Close()
	defer d.recoverToResult(ctx, page, &res)

	st := newStepper(page, d.cfg.Booking, d.log)
	if err := d.runThroughSearch(ctx, st, page, req.DocumentType, req.DocumentNumber,
		req.Service, req.Specialty, req.Location); err != nil {
		return d.failureResult(ctx, page, err)
	}

	hasSlots, err := st.waitAvailability(ctx)
	if err != nil {
		return d.failureResult(ctx, page, err)
	}
	if !hasSlots {
		return Result{
			Status:     StatusUnavailable,
			Message:    "No hay horas disponibles para esta búsqueda.",
			Screenshot: d.bestEffortScreenshot(ctx, page),
		}
	}

	options, err := st.extractAvailability(ctx)
	if err != nil {
		return d.failureResult(ctx, page, err)
	}
	if len(options.Dates) == 0 || len(options.Times) == 0 {
		return Result{
			Status:     StatusUnavailable,
			Message:    "No hay horas disponibles para esta búsqueda.",
			Screenshot: d.bestEffortScreenshot(ctx, page),
		}
	}

	d.log.Info("Availability discovered.",
		zap.Int("dates", len(options.Dates)), zap.Int("times", len(options.Times)))
	return Result{
		Status:     StatusOptions,
		Message:    "Hay horas disponibles. Elige fecha y hora para confirmar.",
		Options:    &options,
		Resumable:  &ResumableContext{Service: req.Service, Specialty: req.Specialty, Location: req.Location},
		Screenshot: d.bestEffortScreenshot(ctx, page),
	}
}

// ConfirmBooking replays the confirmed stages on a fresh page, then selects the
// chosen slot, fills contact data, accepts terms and submits. When the chosen
// date or time is no longer offered, the chronologically first valid substitute
// is taken and reported.
func (d *Driver) ConfirmBooking(ctx context.Context, req Request, resum ResumableContext) (res Result) {
	page, err := d.newPage(ctx)
	if err != nil {
		return Result{
			Status:    StatusError,
			ErrorKind: KindNavigationFailure,
			Message:   fmt.Sprintf("could not open a browser page: %v", err),
		}
	}
	defer page.Close()
	defer d.recoverToResult(ctx, page, &res)

	st := newStepper(page, d.cfg.Booking, d.log)
	if err := d.runThroughSearch(ctx, st, page, req.DocumentType, req.DocumentNumber,
		resum.Service, resum.Specialty, resum.Location); err != nil {
		return d.failureResult(ctx, page, err)
	}

	hasSlots, err := st.waitAvailability(ctx)
	if err != nil {
		return d.failureResult(ctx, page, err)
	}
	if !hasSlots {
		return Result{
			Status:     StatusUnavailable,
			Message:    "Las horas ofrecidas ya no están disponibles.",
			Screenshot: d.bestEffortScreenshot(ctx, page),
		}
	}

	takenDate, err := st.selectDate(ctx, req.Date)
	if err != nil && req.Date != "" && KindOf(err) == KindElementNotFound {
		// Partial-success policy: the requested date vanished from the re-rendered
		// grid. Take the first usable block and tell the caller what was taken.
		d.log.Warn("Requested date no longer offered; taking first available block.",
			zap.String("requested", req.Date))
		takenDate, err = st.selectDate(ctx, "")
	}
	if err != nil {
		return d.failureResult(ctx, page, err)
	}

	takenTime, err := st.selectTime(ctx, req.Time)
	if err != nil {
		return d.failureResult(ctx, page, err)
	}

	st.acceptTerms(ctx)
	if err := st.fillContact(ctx, req.Contact); err != nil {
		return d.failureResult(ctx, page, err)
	}

	verdict, err := st.submitReservation(ctx, req.Contact)
	if err != nil {
		return d.failureResult(ctx, page, err)
	}

	taken := &Slot{Date: takenDate, Time: takenTime}
	shot := d.bestEffortScreenshot(ctx, page)

	switch verdict {
	case SubmitSuccess:
		return Result{
			Status:     StatusSuccess,
			Message:    fmt.Sprintf("¡Reserva completada exitosamente! Hora tomada: %s a las %s.", takenDate, takenTime),
			Taken:      taken,
			Screenshot: shot,
		}
	case SubmitFailure:
		return Result{
			Status:     StatusError,
			ErrorKind:  KindActionRejected,
			Message:    "El portal rechazó la reserva al confirmar. Revisa la captura.",
			Taken:      taken,
			Screenshot: shot,
		}
	default:
		// An unknown classification is reported as an error requiring human
		// verification, never as a silent success.
		return Result{
			Status:     StatusError,
			ErrorKind:  KindAmbiguousOutcome,
			Message:    "No fue posible confirmar el resultado de la reserva. Verifica con la captura.",
			Taken:      taken,
			Screenshot: shot,
		}
	}
}

// runThroughSearch executes the shared stage prefix: navigate, identify, select
// service, search specialty and location.
func (d *Driver) runThroughSearch(
	ctx context.Context,
	st *stepper,
	page Page,
	docType, docNumber, service, specialty, location string,
) error {
	if err := page.Navigate(ctx, d.cfg.Portal.URL); err != nil {
		return &StageError{
			Stage: StageIdentifyPatient,
			Kind:  KindNavigationFailure,
			Msg:   "portal navigation failed",
			Err:   err,
		}
	}
	st.settle(ctx, d.cfg.Booking.PageLoadSettle)

	if docType == "" {
		docType = d.cfg.Portal.DocumentType
	}
	if err := st.identifyPatient(ctx, docType, docNumber); err != nil {
		return err
	}
	d.milestone(ctx, page, "identify_patient")

	if err := st.selectService(ctx, service); err != nil {
		return err
	}
	d.milestone(ctx, page, "select_service")

	if err := st.searchSpecialtyLocation(ctx, specialty, location); err != nil {
		return err
	}
	d.milestone(ctx, page, "search")
	return nil
}

// milestone captures a debug screenshot after a completed stage. Failure shots
// are handled separately; these exist purely for operator triage.
func (d *Driver) milestone(ctx context.Context, page Page, name string) {
	if !d.log.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	shot, err := page.Screenshot(ctx)
	if err != nil {
		d.log.Debug("Milestone screenshot failed.", zap.String("milestone", name), zap.Error(err))
		return
	}
	d.log.Debug("Milestone reached.", zap.String("milestone", name), zap.Int("screenshot_bytes", len(shot)))
}

// failureResult converts a stage error into the error-tagged Result variant,
// attaching a best-effort screenshot taken before the page is torn down.
func (d *Driver) failureResult(ctx context.Context, page Page, err error) Result {
	kind := KindOf(err)
	if kind == "" {
		kind = KindActionRejected
	}
	// A timeout waiting for the availability grid is an automation defect signal,
	// unlike the legitimate empty business outcome; alert at error level.
	d.log.Error("Booking stage failed.", zap.String("kind", string(kind)), zap.Error(err))
	return Result{
		Status:     StatusError,
		ErrorKind:  kind,
		Message:    err.Error(),
		Screenshot: d.bestEffortScreenshot(ctx, page),
	}
}

func (d *Driver) bestEffortScreenshot(ctx context.Context, page Page) string {
	shot, err := page.Screenshot(ctx)
	if err != nil {
		d.log.Debug("Screenshot capture failed.", zap.Error(err))
		return ""
	}
	return shot
}

// recoverToResult converts a stage panic into an error result so no invocation
// ever crashes the caller.
func (d *Driver) recoverToResult(ctx context.Context, page Page, res *Result) {
	if r := recover(); r != nil {
		d.log.Error("Recovered from panic during booking run.", zap.Any("panic", r))
		*res = Result{
			Status:     StatusError,
			ErrorKind:  KindActionRejected,
			Message:    fmt.Sprintf("internal failure: %v", r),
			Screenshot: d.bestEffortScreenshot(ctx, page),
		}
	}
}
