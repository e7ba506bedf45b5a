package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateAppointment writes a only if the stored version still equals
	// a.Version, and bumps it. A lost race returns ErrStaleAppointment.
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Calendar rebuild
	ActiveIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]calendar.Interval, error)
	ReleasedIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]calendar.Interval, error)
	PractitionersWithAppointments(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
