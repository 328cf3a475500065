// File: internal/api/handlers.go
package api

import (
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	patient, ok := PatientFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (s *Server) handleSpecialties(w http.ResponseWriter, r *http.Request) {
	specialties, err := s.store.ListSpecialties(r.Context())
	if err != nil {
		s.log.Error("Listing specialties failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list specialties")
		return
	}
	writeJSON(w, http.StatusOK, specialties)
}

func (s *Server) handleAppointments(w http.ResponseWriter, r *http.Request) {
	patient, ok := PatientFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	appts, err := s.store.ListAppointmentsByPatient(r.Context(), patient.ID)
	if err != nil {
		s.log.Error("Listing appointments failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

type chatRequest struct {
	Message   string `json:"mensaje"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	patient, ok := PatientFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req chatRequest
	if err := jsonAPI.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "mensaje is required")
		return
	}

	reply, err := s.chat.HandleMessage(r.Context(), patient, req.SessionID, req.Message)
	if err != nil {
		s.log.Error("Chat turn failed.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "chat turn failed")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
