// File: internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/snabbsalud/agendabot/internal/booking"
	"github.com/snabbsalud/agendabot/internal/config"
)

var (
	// ErrSessionNotFound: the session id is unknown or its TTL elapsed.
	ErrSessionNotFound = errors.New("booking session not found or expired")
	// ErrRateLimited: the caller exhausted its portal-replay budget.
	ErrRateLimited = errors.New("too many booking attempts, try again in a minute")
)

// Runner is the slice of the booking driver the orchestrator needs. Tests
// substitute a scripted runner; production wires *booking.Driver.
type Runner interface {
	StartBooking(ctx context.Context, req booking.Request) booking.Result
	ConfirmBooking(ctx context.Context, req booking.Request, resum booking.ResumableContext) booking.Result
}

// Orchestrator sequences conversational turns over the stateless driver. Each
// turn is a full portal run; the per-caller rate limiter bounds how many runs a
// single caller can trigger, since every run costs a Chrome tab for minutes.
type Orchestrator struct {
	runner   Runner
	sessions *SessionStore
	log      *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// New builds an orchestrator with its own session store.
func New(runner Runner, cfg config.SessionsConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		sessions: NewSessionStore(cfg.TTL, cfg.SweepInterval, logger),
		log:      logger.Named("orchestrator"),
		limiters: make(map[string]*rate.Limiter),
		perMin:   cfg.RatePerMinute,
	}
}

// Close releases the session store's sweeper.
func (o *Orchestrator) Close() { o.sessions.Close() }

// Sessions exposes the store for introspection endpoints.
func (o *Orchestrator) Sessions() *SessionStore { return o.sessions }

// Lookup returns a live session by id, refreshing its TTL.
func (o *Orchestrator) Lookup(sessionID string) (*Session, bool) {
	return o.sessions.Get(sessionID)
}

// MarkReplacement records that confirming the session supersedes an existing
// appointment. A miss is harmless: the session may have expired in between.
func (o *Orchestrator) MarkReplacement(sessionID, appointmentID string) {
	if !o.sessions.SetReplaces(sessionID, appointmentID) {
		o.log.Warn("Replacement mark on a dead session.", zap.String("session_id", sessionID))
	}
}

func (o *Orchestrator) limiter(callerKey string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	lim, ok := o.limiters[callerKey]
	if !ok {
		perMin := o.perMin
		if perMin <= 0 {
			perMin = 3
		}
		lim = rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
		o.limiters[callerKey] = lim
	}
	return lim
}

// StartTurn runs the discovery half of a booking. On an options outcome a
// session is opened and its id returned for the confirmation turn.
func (o *Orchestrator) StartTurn(ctx context.Context, callerKey string, req booking.Request) (booking.Result, string, error) {
	if !o.limiter(callerKey).Allow() {
		return booking.Result{}, "", ErrRateLimited
	}

	res := o.runner.StartBooking(ctx, req)
	if res.Status != booking.StatusOptions || res.Resumable == nil {
		return res, "", nil
	}

	options := booking.AvailabilityOptions{}
	if res.Options != nil {
		options = *res.Options
	}
	id := o.sessions.Put(&Session{
		CallerKey:      callerKey,
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		Resumable:      *res.Resumable,
		Options:        options,
	})
	o.log.Info("Booking session opened.",
		zap.String("session_id", id),
		zap.Int("dates", len(options.Dates)),
		zap.Int("times", len(options.Times)))
	return res, id, nil
}

// ConfirmTurn replays the session's confirmed context with the chosen slot and
// contact data. A terminal outcome closes the session; an error outcome keeps it
// so the caller may retry within the TTL.
func (o *Orchestrator) ConfirmTurn(
	ctx context.Context,
	callerKey, sessionID, date, timeOfDay string,
	contact booking.Contact,
) (booking.Result, error) {
	sess, ok := o.sessions.Get(sessionID)
	if !ok || sess.CallerKey != callerKey {
		return booking.Result{}, ErrSessionNotFound
	}
	if !o.limiter(callerKey).Allow() {
		return booking.Result{}, ErrRateLimited
	}

	req := booking.Request{
		DocumentType:   sess.DocumentType,
		DocumentNumber: sess.DocumentNumber,
		Date:           date,
		Time:           timeOfDay,
		Contact:        contact,
	}
	res := o.runner.ConfirmBooking(ctx, req, sess.Resumable)

	switch res.Status {
	case booking.StatusSuccess, booking.StatusUnavailable:
		o.sessions.Delete(sessionID)
		o.log.Info("Booking session closed.",
			zap.String("session_id", sessionID), zap.String("status", string(res.Status)))
	default:
		o.log.Warn("Confirmation turn did not complete; session kept for retry.",
			zap.String("session_id", sessionID), zap.String("status", string(res.Status)))
	}
	return res, nil
}
