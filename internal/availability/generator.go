package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
)

// MaxDurationMinutes caps a single appointment at one working day.
const MaxDurationMinutes = 480

var (
	ErrInvalidDuration     = errors.New("appointment duration must be between 1 and 480 minutes")
	ErrUnknownPractitioner = errors.New("unknown practitioner")
)

// Policy is the clinic-wide booking policy.
type Policy struct {
	LeadTime        time.Duration
	Step            time.Duration // zero means step by the requested duration
	DefaultDuration int           // minutes
}

// Slot is a candidate start time. It is never persisted.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Label renders the start as clinic wall-clock time.
func (s Slot) Label() string {
	return s.Start.Format("15:04")
}

type Query struct {
	PractitionerID  uuid.UUID
	Date            time.Time
	DurationMinutes *int // nil falls back to the service, then the clinic default
	ServiceID       *uuid.UUID
}

type Generator struct {
	dir    directory.Directory
	index  *calendar.Index
	policy Policy
	now    func() time.Time
}

func NewGenerator(dir directory.Directory, index *calendar.Index, policy Policy, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{dir: dir, index: index, policy: policy, now: now}
}

func (g *Generator) Policy() Policy { return g.policy }

// Practitioner loads a practitioner, mapping a miss to ErrUnknownPractitioner.
func (g *Generator) Practitioner(ctx context.Context, id uuid.UUID) (*directory.Practitioner, error) {
	p, err := g.dir.Practitioner(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrPractitionerNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPractitioner, id)
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	return p, nil
}

// ResolveDuration picks the appointment length in minutes: the explicit value,
// else the requested service, else the practitioner's default service, else
// the clinic default.
func (g *Generator) ResolveDuration(ctx context.Context, p *directory.Practitioner, requested *int, serviceID *uuid.UUID) (int, error) {
	if requested != nil {
		return checkDuration(*requested)
	}

	if serviceID == nil && p != nil {
		serviceID = p.DefaultServiceID
	}
	if serviceID != nil {
		svc, err := g.dir.Service(ctx, *serviceID)
		if err != nil {
			return 0, fmt.Errorf("load service: %w", err)
		}
		return checkDuration(svc.DurationMinutes)
	}

	return checkDuration(g.policy.DefaultDuration)
}

func checkDuration(minutes int) (int, error) {
	if minutes <= 0 || minutes > MaxDurationMinutes {
		return 0, ErrInvalidDuration
	}
	return minutes, nil
}

// Slots lists the free start times for a practitioner on a date. The result
// reflects the calendar at the moment of the call and is never cached.
func (g *Generator) Slots(ctx context.Context, q Query) ([]Slot, error) {
	p, err := g.Practitioner(ctx, q.PractitionerID)
	if err != nil {
		return nil, err
	}
	minutes, err := g.ResolveDuration(ctx, p, q.DurationMinutes, q.ServiceID)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(minutes) * time.Minute

	window, ok, err := g.dir.Window(ctx, q.PractitionerID, q.Date)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	slots := []Slot{}
	if !ok {
		return slots, nil
	}
	if window.Open.Before(g.now().Add(g.policy.LeadTime)) {
		return slots, nil
	}

	booked, err := g.index.Snapshot(ctx, q.PractitionerID, window.Open)
	if err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}

	step := g.policy.Step
	if step <= 0 {
		step = duration
	}
	for t := window.Open; !t.Add(duration).After(window.Close); t = t.Add(step) {
		end := t.Add(duration)
		if calendar.Free(booked, t, end) {
			slots = append(slots, Slot{Start: t, End: end})
		}
	}

	return slots, nil
}
