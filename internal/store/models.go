// File: internal/store/models.go
package store

import "time"

// Patient is a registered portal user. The RUT is the natural key the clinic
// portal identifies patients by; PasswordHash is a bcrypt digest, never the
// plain credential.
type Patient struct {
	ID           string    `json:"id"`
	RUT          string    `json:"rut"`
	FirstName    string    `json:"nombre"`
	LastName     string    `json:"apellido"`
	Email        string    `json:"email"`
	Phone        string    `json:"telefono"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Specialty is a bookable medical specialty.
type Specialty struct {
	ID   string `json:"id"`
	Name string `json:"nombre"`
}

// Doctor is a professional attached to one specialty.
type Doctor struct {
	ID          string `json:"id"`
	FullName    string `json:"nombre_completo"`
	SpecialtyID string `json:"especialidad_id"`
}

// Appointment statuses. An appointment row is written for every confirmed
// reservation and transitions through these values afterwards.
const (
	AppointmentConfirmed = "confirmada"
	AppointmentCancelled = "cancelada"
)

// Appointment records one reservation actually taken on the portal: the slot,
// the search that produced it and the automation outcome.
type Appointment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"paciente_id"`
	Service   string    `json:"servicio"`
	Specialty string    `json:"especialidad"`
	Location  string    `json:"ubicacion"`
	Date      string    `json:"fecha"`
	Time      string    `json:"hora"`
	Status    string    `json:"estado"`
	CreatedAt time.Time `json:"created_at"`
}
