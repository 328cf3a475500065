// File: internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more
// robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStorePingFailure(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCreatePatient(t *testing.T) {
	s, mockPool := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO patients`)).
		WithArgs(pgxmock.AnyArg(), "12345678-5", "Ana", "Rojas", "ana@example.cl",
			"+56911112222", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := &Patient{
		RUT: "12345678-5", FirstName: "Ana", LastName: "Rojas",
		Email: "ana@example.cl", Phone: "+56911112222", PasswordHash: "$2a$10$hash",
	}
	err := s.CreatePatient(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID, "the id is generated on insert")
	assert.False(t, p.CreatedAt.IsZero())
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCreatePatientDuplicateRUT(t *testing.T) {
	s, mockPool := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO patients`)).
		WithArgs(pgxmock.AnyArg(), "12345678-5", "Ana", "Rojas", "ana@example.cl",
			"+56911112222", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "patients_rut_key"})

	err := s.CreatePatient(context.Background(), &Patient{
		RUT: "12345678-5", FirstName: "Ana", LastName: "Rojas",
		Email: "ana@example.cl", Phone: "+56911112222",
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetPatientByRUT(t *testing.T) {
	s, mockPool := newTestStore(t)

	created := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "rut", "first_name", "last_name", "email", "phone", "password_hash", "created_at",
	}).AddRow("p-1", "12345678-5", "Ana", "Rojas", "ana@example.cl", "+56911112222", "$2a$10$hash", created)

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, rut, first_name, last_name, email, phone, password_hash, created_at FROM patients`)).
		WithArgs("12345678-5").
		WillReturnRows(rows)

	p, err := s.GetPatientByRUT(context.Background(), "12345678-5")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.FirstName)
	assert.Equal(t, "$2a$10$hash", p.PasswordHash)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetPatientByRUTNotFound(t *testing.T) {
	s, mockPool := newTestStore(t)

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, rut, first_name, last_name, email, phone, password_hash, created_at FROM patients`)).
		WithArgs("99999999-9").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetPatientByRUT(context.Background(), "99999999-9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestListSpecialties(t *testing.T) {
	s, mockPool := newTestStore(t)

	rows := pgxmock.NewRows([]string{"id", "name"}).
		AddRow("s-1", "Dermatología").
		AddRow("s-2", "Medicina General")

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, name FROM specialties ORDER BY name ASC`)).
		WillReturnRows(rows)

	specialties, err := s.ListSpecialties(context.Background())
	require.NoError(t, err)
	require.Len(t, specialties, 2)
	assert.Equal(t, "Dermatología", specialties[0].Name)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCreateAppointmentDefaultsStatus(t *testing.T) {
	s, mockPool := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO appointments`)).
		WithArgs(pgxmock.AnyArg(), "p-1", "Consultas", "Medicina General", "Providencia",
			"MIE 10 SEP", "09:15", AppointmentConfirmed, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &Appointment{
		PatientID: "p-1", Service: "Consultas", Specialty: "Medicina General",
		Location: "Providencia", Date: "MIE 10 SEP", Time: "09:15",
	}
	err := s.CreateAppointment(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, AppointmentConfirmed, a.Status)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestListAppointmentsByPatient(t *testing.T) {
	s, mockPool := newTestStore(t)

	created := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "patient_id", "service", "specialty", "location", "date", "time", "status", "created_at",
	}).
		AddRow("a-2", "p-1", "Consultas", "Dermatología", "Santiago", "JUE 11 SEP", "10:00", AppointmentConfirmed, created).
		AddRow("a-1", "p-1", "Consultas", "Medicina General", "Providencia", "MIE 10 SEP", "09:15", AppointmentCancelled, created.Add(-time.Hour))

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT id, patient_id, service, specialty, location, date, time, status, created_at FROM appointments`)).
		WithArgs("p-1").
		WillReturnRows(rows)

	appts, err := s.ListAppointmentsByPatient(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, "a-2", appts[0].ID, "newest first")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCancelAppointment(t *testing.T) {
	s, mockPool := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE appointments SET status`)).
		WithArgs(AppointmentCancelled, "a-1", "p-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CancelAppointment(context.Background(), "p-1", "a-1")
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCancelAppointmentNotFound(t *testing.T) {
	s, mockPool := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE appointments SET status`)).
		WithArgs(AppointmentCancelled, "a-9", "p-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CancelAppointment(context.Background(), "p-1", "a-9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRescheduleAppointment(t *testing.T) {
	s, mockPool := newTestStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(`UPDATE appointments SET date`)).
		WithArgs("VIE 12 SEP", "11:30", AppointmentConfirmed, "a-1", "p-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.RescheduleAppointment(context.Background(), "p-1", "a-1", "VIE 12 SEP", "11:30")
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
