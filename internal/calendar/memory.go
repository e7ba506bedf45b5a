package calendar

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type dayRef struct {
	practitionerID uuid.UUID
	day            string
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	days map[dayRef]map[uuid.UUID]Interval
	warm map[dayRef]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		days: make(map[dayRef]map[uuid.UUID]Interval),
		warm: make(map[dayRef]bool),
	}
}

func (s *MemoryStore) Warm(_ context.Context, practitionerID uuid.UUID, day string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warm[dayRef{practitionerID, day}], nil
}

func (s *MemoryStore) Load(_ context.Context, practitionerID uuid.UUID, day string, ivs []Interval) error {
	ref := dayRef{practitionerID, day}
	set := make(map[uuid.UUID]Interval, len(ivs))
	for _, iv := range ivs {
		set[iv.AppointmentID] = iv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[ref] = set
	s.warm[ref] = true
	return nil
}

func (s *MemoryStore) Intervals(_ context.Context, practitionerID uuid.UUID, day string) ([]Interval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.days[dayRef{practitionerID, day}]
	out := make([]Interval, 0, len(set))
	for _, iv := range set {
		out = append(out, iv)
	}
	sortIntervals(out)
	return out, nil
}

func (s *MemoryStore) Add(_ context.Context, day string, iv Interval) error {
	ref := dayRef{iv.PractitionerID, day}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.days[ref]
	if !ok {
		set = make(map[uuid.UUID]Interval)
		s.days[ref] = set
	}
	set[iv.AppointmentID] = iv
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, day string, iv Interval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.days[dayRef{iv.PractitionerID, day}], iv.AppointmentID)
	return nil
}

// LocalLocker is a per-key mutex for single-process deployments. Waiting
// honours context cancellation.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-slot }()

	return fn(ctx)
}
