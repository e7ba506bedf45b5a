package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrServiceNotFound      = errors.New("service not found")
	ErrPatientNotFound      = errors.New("patient not found")
)

type Practitioner struct {
	ID               uuid.UUID
	Name             string
	Specialty        *string
	DefaultServiceID *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Service struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes int
}

// WorkingHours is one weekday of a practitioner's bookable day, expressed as
// minutes after local midnight.
type WorkingHours struct {
	Weekday time.Weekday
	Open    int
	Close   int
}

// Window is a concrete bookable range on a date.
type Window struct {
	Open  time.Time
	Close time.Time
}

// Contains reports whether [start, end) lies inside the window.
func (w Window) Contains(start, end time.Time) bool {
	return !start.Before(w.Open) && !end.After(w.Close)
}

// Resolve turns working hours into a window on the given date. Open and
// Close are wall-clock minutes, so a DST change that day does not move them.
func (h WorkingHours) Resolve(date time.Time, loc *time.Location) Window {
	y, m, d := date.In(loc).Date()
	return Window{
		Open:  time.Date(y, m, d, 0, h.Open, 0, 0, loc),
		Close: time.Date(y, m, d, 0, h.Close, 0, 0, loc),
	}
}

// Directory is the read-only practitioner and practice catalogue.
type Directory interface {
	Practitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	Service(ctx context.Context, id uuid.UUID) (*Service, error)
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	// Window returns the practitioner's bookable range on date, or false when
	// the practitioner does not work that day.
	Window(ctx context.Context, practitionerID uuid.UUID, date time.Time) (Window, bool, error)
}
