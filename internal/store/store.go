// File: internal/store/store.go

// Package store is the PostgreSQL repository behind the API: patients, the
// specialty and doctor catalog, and the appointments the automation takes.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var (
	// ErrNotFound: the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate: a unique constraint (the patient RUT) was violated.
	ErrDuplicate = errors.New("record already exists")
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides the PostgreSQL implementation of the repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// isUniqueViolation reports PostgreSQL error class 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreatePatient inserts a new patient and fills the generated id and timestamp.
func (s *Store) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()

	const query = `
        INSERT INTO patients (id, rut, first_name, last_name, email, phone, password_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.RUT, p.FirstName, p.LastName, p.Email, p.Phone, p.PasswordHash, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("patient %s: %w", p.RUT, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	s.log.Info("Patient registered.", zap.String("rut", p.RUT))
	return nil
}

// GetPatientByRUT fetches one patient by their identity number.
func (s *Store) GetPatientByRUT(ctx context.Context, rut string) (*Patient, error) {
	const query = `
        SELECT id, rut, first_name, last_name, email, phone, password_hash, created_at
        FROM patients
        WHERE rut = $1;
    `
	var p Patient
	err := s.pool.QueryRow(ctx, query, rut).Scan(
		&p.ID, &p.RUT, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.PasswordHash, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", rut, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query patient: %w", err)
	}
	return &p, nil
}

// ListSpecialties returns the bookable specialty catalog in name order.
func (s *Store) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	const query = `SELECT id, name FROM specialties ORDER BY name ASC;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query specialties: %w", err)
	}
	defer rows.Close()

	var specialties []Specialty
	for rows.Next() {
		var sp Specialty
		if err := rows.Scan(&sp.ID, &sp.Name); err != nil {
			return nil, fmt.Errorf("failed to scan specialty row: %w", err)
		}
		specialties = append(specialties, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return specialties, nil
}

// ListDoctorsBySpecialty returns the professionals attached to a specialty.
func (s *Store) ListDoctorsBySpecialty(ctx context.Context, specialtyID string) ([]Doctor, error) {
	const query = `
        SELECT id, full_name, specialty_id
        FROM doctors
        WHERE specialty_id = $1
        ORDER BY full_name ASC;
    `
	rows, err := s.pool.Query(ctx, query, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query doctors: %w", err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.FullName, &d.SpecialtyID); err != nil {
			return nil, fmt.Errorf("failed to scan doctor row: %w", err)
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return doctors, nil
}

// CreateAppointment records a reservation the automation actually took.
func (s *Store) CreateAppointment(ctx context.Context, a *Appointment) error {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	if a.Status == "" {
		a.Status = AppointmentConfirmed
	}

	const query = `
        INSERT INTO appointments (id, patient_id, service, specialty, location, date, time, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.PatientID, a.Service, a.Specialty, a.Location, a.Date, a.Time, a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	s.log.Info("Appointment recorded.",
		zap.String("patient_id", a.PatientID),
		zap.String("date", a.Date),
		zap.String("time", a.Time))
	return nil
}

// ListAppointmentsByPatient returns a patient's appointments, newest first.
func (s *Store) ListAppointmentsByPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	const query = `
        SELECT id, patient_id, service, specialty, location, date, time, status, created_at
        FROM appointments
        WHERE patient_id = $1
        ORDER BY created_at DESC;
    `
	rows, err := s.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Service, &a.Specialty,
			&a.Location, &a.Date, &a.Time, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return appts, nil
}

// CancelAppointment marks one of the patient's appointments cancelled.
func (s *Store) CancelAppointment(ctx context.Context, patientID, appointmentID string) error {
	const query = `
        UPDATE appointments
        SET status = $1
        WHERE id = $2 AND patient_id = $3;
    `
	tag, err := s.pool.Exec(ctx, query, AppointmentCancelled, appointmentID, patientID)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	s.log.Info("Appointment cancelled.", zap.String("appointment_id", appointmentID))
	return nil
}

// RescheduleAppointment moves an appointment to a new slot after a successful
// portal re-booking.
func (s *Store) RescheduleAppointment(ctx context.Context, patientID, appointmentID, date, timeOfDay string) error {
	const query = `
        UPDATE appointments
        SET date = $1, time = $2, status = $3
        WHERE id = $4 AND patient_id = $5;
    `
	tag, err := s.pool.Exec(ctx, query, date, timeOfDay, AppointmentConfirmed, appointmentID, patientID)
	if err != nil {
		return fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", appointmentID, ErrNotFound)
	}
	s.log.Info("Appointment rescheduled.",
		zap.String("appointment_id", appointmentID),
		zap.String("date", date),
		zap.String("time", timeOfDay))
	return nil
}
