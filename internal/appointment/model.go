package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// IsActive reports whether an appointment in this status still occupies its
// interval.
func (s Status) IsActive() bool {
	return s != StatusCancelled && s != StatusNoShow
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type Role string

const (
	RolePatient      Role = "patient"
	RolePractitioner Role = "practitioner"
	RoleSupervisor   Role = "supervisor"
	RoleAdmin        Role = "admin"
)

// ParseRole accepts the canonical names and the portal's aliases.
func ParseRole(v string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "patient", "paciente":
		return RolePatient, nil
	case "practitioner", "practicante":
		return RolePractitioner, nil
	case "supervisor", "maestro":
		return RoleSupervisor, nil
	case "admin", "administrator":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", v)
}

// Actor is the authenticated caller behind a booking or transition.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type Appointment struct {
	ID                 uuid.UUID
	PractitionerID     uuid.UUID
	PatientID          uuid.UUID
	ServiceID          *uuid.UUID
	StartTime          time.Time
	DurationMinutes    int
	Reason             string
	Status             Status
	Diagnosis          string
	Treatment          string
	PractitionerNotes  string
	SupervisorNotes    string
	CancellationReason string
	Rating             *int
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Interval is the calendar footprint of the appointment.
func (a *Appointment) Interval() calendar.Interval {
	return calendar.Interval{
		AppointmentID:  a.ID,
		PractitionerID: a.PractitionerID,
		Start:          a.StartTime,
		End:            a.EndTime(),
	}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
