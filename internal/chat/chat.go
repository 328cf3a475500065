// File: internal/chat/chat.go

// Package chat turns an authenticated patient's message into booking actions and
// renders the outcome as user-facing Spanish text. It owns no portal logic; it
// decides which orchestrator turn to run and how to speak about the result.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/booking"
	"github.com/snabbsalud/agendabot/internal/intent"
	"github.com/snabbsalud/agendabot/internal/orchestrator"
	"github.com/snabbsalud/agendabot/internal/store"
)

// DefaultService is the portal's top-level card the conversational flow books
// under; the portal's other cards (exams, procedures) are not conversational.
const DefaultService = "Consultas"

// Orchestration is the slice of the orchestrator the chat layer drives.
type Orchestration interface {
	StartTurn(ctx context.Context, callerKey string, req booking.Request) (booking.Result, string, error)
	ConfirmTurn(ctx context.Context, callerKey, sessionID, date, timeOfDay string, contact booking.Contact) (booking.Result, error)
	Lookup(sessionID string) (*orchestrator.Session, bool)
	MarkReplacement(sessionID, appointmentID string)
}

// Repository is the slice of the store the chat layer reads and writes.
type Repository interface {
	ListAppointmentsByPatient(ctx context.Context, patientID string) ([]store.Appointment, error)
	CreateAppointment(ctx context.Context, a *store.Appointment) error
	CancelAppointment(ctx context.Context, patientID, appointmentID string) error
	RescheduleAppointment(ctx context.Context, patientID, appointmentID, date, timeOfDay string) error
}

// Reply is what the API returns for one chat turn.
type Reply struct {
	Message    string                       `json:"mensaje"`
	Status     string                       `json:"status,omitempty"`
	Options    *booking.AvailabilityOptions `json:"opciones,omitempty"`
	SessionID  string                       `json:"session_id,omitempty"`
	Screenshot string                       `json:"screenshot,omitempty"`
}

// Service coordinates one chat turn.
type Service struct {
	intents intent.Extractor
	orch    Orchestration
	repo    Repository
	log     *zap.Logger
}

// New wires the chat service.
func New(intents intent.Extractor, orch Orchestration, repo Repository, logger *zap.Logger) *Service {
	return &Service{intents: intents, orch: orch, repo: repo, log: logger.Named("chat")}
}

// HandleMessage runs one conversational turn for the patient. sessionID is the
// booking session from a previous options reply, empty on a fresh conversation.
func (s *Service) HandleMessage(ctx context.Context, patient *store.Patient, sessionID, message string) (Reply, error) {
	read, err := s.intents.Extract(ctx, message)
	if err != nil {
		return Reply{}, fmt.Errorf("extracting intent: %w", err)
	}
	s.log.Info("Chat turn.",
		zap.String("patient_id", patient.ID),
		zap.String("intent", string(read.Kind)),
		zap.Bool("in_session", sessionID != ""))

	// A slot pick inside an open session confirms regardless of how the
	// classifier read the phrasing; "el miércoles a las 9:15" carries no verb.
	if sessionID != "" && (read.Date != "" || read.Time != "") {
		return s.confirm(ctx, patient, sessionID, read)
	}

	switch read.Kind {
	case intent.KindSchedule:
		return s.startBooking(ctx, patient, read)
	case intent.KindCancel:
		return s.cancel(ctx, patient)
	case intent.KindReschedule:
		return s.reschedule(ctx, patient, read)
	default:
		return Reply{Message: "Hola, soy el asistente de agendamiento. Puedo agendar, cambiar o cancelar " +
			"horas médicas. Por ejemplo: \"quiero una hora con dermatología en Providencia\"."}, nil
	}
}

func (s *Service) startBooking(ctx context.Context, patient *store.Patient, read intent.Intent) (Reply, error) {
	if read.Specialty == "" {
		return Reply{Message: "¿Con qué especialidad quieres agendar? Por ejemplo: medicina general, dermatología, pediatría."}, nil
	}

	req := booking.Request{
		DocumentNumber: patient.RUT,
		Service:        DefaultService,
		Specialty:      read.Specialty,
		Location:       read.Location,
		Contact:        booking.Contact{Phone: patient.Phone, Email: patient.Email},
	}
	res, sessionID, err := s.orch.StartTurn(ctx, patient.ID, req)
	if err != nil {
		return s.orchestrationErrorReply(err)
	}
	return s.renderStart(res, sessionID, read.Specialty), nil
}

func (s *Service) confirm(ctx context.Context, patient *store.Patient, sessionID string, read intent.Intent) (Reply, error) {
	// The session carries the portal-confirmed search; a confirming message like
	// "el miércoles a las 9:15" names no specialty or location itself. Read it
	// before ConfirmTurn, which closes the session on a terminal outcome.
	specialty := read.Specialty
	location := ""
	replaces := ""
	if sess, ok := s.orch.Lookup(sessionID); ok {
		specialty = sess.Resumable.Specialty
		location = sess.Resumable.Location
		replaces = sess.Replaces
	}

	contact := booking.Contact{Phone: patient.Phone, Email: patient.Email}
	res, err := s.orch.ConfirmTurn(ctx, patient.ID, sessionID, read.Date, read.Time, contact)
	if err != nil {
		return s.orchestrationErrorReply(err)
	}

	if res.Status == booking.StatusSuccess && res.Taken != nil {
		if replaces != "" {
			// A reschedule moves the original row instead of inserting a second
			// confirmed appointment.
			err = s.repo.RescheduleAppointment(ctx, patient.ID, replaces, res.Taken.Date, res.Taken.Time)
		} else {
			err = s.repo.CreateAppointment(ctx, &store.Appointment{
				PatientID: patient.ID,
				Service:   DefaultService,
				Specialty: specialty,
				Location:  location,
				Date:      res.Taken.Date,
				Time:      res.Taken.Time,
			})
		}
		if err != nil {
			// The reservation exists on the portal either way; surface the slot and
			// log the bookkeeping failure instead of telling the patient it failed.
			s.log.Error("Appointment taken on the portal but not recorded.", zap.Error(err))
		}
	}
	return s.renderConfirm(res), nil
}

func (s *Service) cancel(ctx context.Context, patient *store.Patient) (Reply, error) {
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patient.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("listing appointments: %w", err)
	}
	for _, a := range appts {
		if a.Status != store.AppointmentConfirmed {
			continue
		}
		if err := s.repo.CancelAppointment(ctx, patient.ID, a.ID); err != nil {
			return Reply{}, fmt.Errorf("cancelling appointment: %w", err)
		}
		return Reply{Message: fmt.Sprintf("Listo, cancelé tu hora de %s del %s a las %s.",
			a.Specialty, a.Date, a.Time)}, nil
	}
	return Reply{Message: "No encontré horas vigentes para cancelar."}, nil
}

func (s *Service) reschedule(ctx context.Context, patient *store.Patient, read intent.Intent) (Reply, error) {
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patient.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("listing appointments: %w", err)
	}
	var current *store.Appointment
	for i := range appts {
		if appts[i].Status == store.AppointmentConfirmed {
			current = &appts[i]
			break
		}
	}
	if current == nil {
		return Reply{Message: "No encontré horas vigentes para cambiar. ¿Quieres agendar una nueva?"}, nil
	}

	if read.Specialty == "" {
		read.Specialty = current.Specialty
	}
	reply, err := s.startBooking(ctx, patient, read)
	if err != nil {
		return reply, err
	}
	if reply.SessionID != "" {
		s.orch.MarkReplacement(reply.SessionID, current.ID)
		reply.Message = fmt.Sprintf("Para cambiar tu hora de %s del %s, %s",
			current.Specialty, current.Date, lowerFirst(reply.Message))
	}
	return reply, nil
}

func (s *Service) renderStart(res booking.Result, sessionID, specialty string) Reply {
	switch res.Status {
	case booking.StatusOptions:
		var b strings.Builder
		fmt.Fprintf(&b, "Encontré horas disponibles para %s.\n", specialty)
		if res.Options != nil {
			if len(res.Options.Dates) > 0 {
				fmt.Fprintf(&b, "Fechas: %s.\n", strings.Join(res.Options.Dates, " | "))
			}
			if len(res.Options.Times) > 0 {
				fmt.Fprintf(&b, "Horas: %s.\n", strings.Join(res.Options.Times, ", "))
			}
		}
		b.WriteString("Respóndeme con la fecha y hora que prefieras para confirmar.")
		return Reply{
			Message:    b.String(),
			Status:     string(res.Status),
			Options:    res.Options,
			SessionID:  sessionID,
			Screenshot: res.Screenshot,
		}
	case booking.StatusUnavailable:
		return Reply{
			Message: "Lo siento, no encontré horas disponibles para esa búsqueda. " +
				"¿Quieres intentar con otra especialidad u otra ubicación?",
			Status:     string(res.Status),
			Screenshot: res.Screenshot,
		}
	default:
		return Reply{
			Message: "Tuve un problema al buscar horas en el portal. " +
				"Por favor intenta nuevamente en unos minutos.",
			Status:     string(res.Status),
			Screenshot: res.Screenshot,
		}
	}
}

func (s *Service) renderConfirm(res booking.Result) Reply {
	switch res.Status {
	case booking.StatusSuccess:
		msg := res.Message
		if msg == "" && res.Taken != nil {
			msg = fmt.Sprintf("¡Reserva completada exitosamente! Hora tomada: %s a las %s.",
				res.Taken.Date, res.Taken.Time)
		}
		return Reply{Message: msg, Status: string(res.Status), Screenshot: res.Screenshot}
	case booking.StatusUnavailable:
		return Reply{
			Message:    "Las horas que te ofrecí ya no están disponibles. ¿Quieres que busque de nuevo?",
			Status:     string(res.Status),
			Screenshot: res.Screenshot,
		}
	default:
		return Reply{
			Message: "No pude confirmar la reserva. Puedes intentar de nuevo con la misma " +
				"fecha y hora, o pedirme que busque otras.",
			Status:     string(res.Status),
			Screenshot: res.Screenshot,
		}
	}
}

func (s *Service) orchestrationErrorReply(err error) (Reply, error) {
	switch {
	case errors.Is(err, orchestrator.ErrRateLimited):
		return Reply{Message: "Estoy procesando varias solicitudes tuyas. Espera un minuto e intenta de nuevo."}, nil
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return Reply{Message: "Esa búsqueda expiró. Dime de nuevo qué especialidad necesitas y busco horas frescas."}, nil
	default:
		return Reply{}, err
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
