// File: internal/api/server.go

// Package api exposes the booking assistant over HTTP: patient registration and
// login, a JWT-guarded profile and appointment surface, and the conversational
// chat endpoint the booking automation sits behind.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/snabbsalud/agendabot/internal/chat"
	"github.com/snabbsalud/agendabot/internal/config"
	"github.com/snabbsalud/agendabot/internal/store"
)

// Repository is the slice of the store the API reads and writes.
type Repository interface {
	CreatePatient(ctx context.Context, p *store.Patient) error
	GetPatientByRUT(ctx context.Context, rut string) (*store.Patient, error)
	ListSpecialties(ctx context.Context) ([]store.Specialty, error)
	ListAppointmentsByPatient(ctx context.Context, patientID string) ([]store.Appointment, error)
}

// Conversation is the chat service surface behind POST /api/chat.
type Conversation interface {
	HandleMessage(ctx context.Context, patient *store.Patient, sessionID, message string) (chat.Reply, error)
}

// Server is the HTTP API.
type Server struct {
	cfg    config.ServerConfig
	store  Repository
	chat   Conversation
	log    *zap.Logger
	router chi.Router
}

// NewServer wires the routes.
func NewServer(cfg config.ServerConfig, repo Repository, conversation Conversation, logger *zap.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		store: repo,
		chat:  conversation,
		log:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/profile", s.handleProfile)
		r.Get("/specialties", s.handleSpecialties)
		r.Get("/appointments", s.handleAppointments)
		r.Post("/chat", s.handleChat)
	})

	s.router = r
	return s
}

// Handler exposes the router for tests and for mounting.
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer builds the net/http server with the configured timeouts. The write
// timeout is generous: a chat turn may hold the connection for a full portal
// replay.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("Request handled.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
