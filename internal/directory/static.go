package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults is the clinic-wide bookable day, used for practitioners with no
// working hours of their own.
type Defaults struct {
	Location *time.Location
	Open     int
	Close    int
	Weekdays []time.Weekday
}

// Weekdays is Monday through Friday.
var Weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func (d Defaults) hours() []WorkingHours {
	days := d.Weekdays
	if days == nil {
		days = Weekdays
	}
	out := make([]WorkingHours, 0, len(days))
	for _, wd := range days {
		out = append(out, WorkingHours{Weekday: wd, Open: d.Open, Close: d.Close})
	}
	return out
}

func windowFor(hours []WorkingHours, date time.Time, loc *time.Location) (Window, bool) {
	wd := date.In(loc).Weekday()
	for _, h := range hours {
		if h.Weekday == wd && h.Close > h.Open {
			return h.Resolve(date, loc), true
		}
	}
	return Window{}, false
}

// Static is an in-memory Directory.
type Static struct {
	mu            sync.RWMutex
	defaults      Defaults
	practitioners map[uuid.UUID]Practitioner
	hours         map[uuid.UUID][]WorkingHours
	services      map[uuid.UUID]Service
	patients      map[uuid.UUID]bool
}

func NewStatic(defaults Defaults) *Static {
	if defaults.Location == nil {
		defaults.Location = time.Local
	}
	return &Static{
		defaults:      defaults,
		practitioners: make(map[uuid.UUID]Practitioner),
		hours:         make(map[uuid.UUID][]WorkingHours),
		services:      make(map[uuid.UUID]Service),
		patients:      make(map[uuid.UUID]bool),
	}
}

func (s *Static) AddPractitioner(p Practitioner, hours ...WorkingHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.practitioners[p.ID] = p
	if len(hours) > 0 {
		s.hours[p.ID] = hours
	}
}

func (s *Static) AddService(svc Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *Static) AddPatient(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[id] = true
}

func (s *Static) Practitioner(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (s *Static) Service(_ context.Context, id uuid.UUID) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &svc, nil
}

func (s *Static) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patients[id], nil
}

func (s *Static) Window(_ context.Context, practitionerID uuid.UUID, date time.Time) (Window, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.practitioners[practitionerID]; !ok {
		return Window{}, false, ErrPractitionerNotFound
	}
	hours, ok := s.hours[practitionerID]
	if !ok {
		hours = s.defaults.hours()
	}
	w, ok := windowFor(hours, date, s.defaults.Location)
	return w, ok, nil
}
