package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/availability"
	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventAppointmentRated     = "APPOINTMENT_RATED"
)

// ErrSlotBeingBooked means the practitioner's calendar stayed locked for the
// whole wait; the caller may retry.
var ErrSlotBeingBooked = errors.New("practitioner calendar is busy, please retry")

// maxTransitionAttempts bounds the reload-and-retry loop on version conflicts.
const maxTransitionAttempts = 3

var auditEvents = map[Action]string{
	ActionConfirm:  EventAppointmentConfirmed,
	ActionCancel:   EventAppointmentCancelled,
	ActionComplete: EventAppointmentCompleted,
	ActionNoShow:   EventAppointmentNoShow,
	ActionRate:     EventAppointmentRated,
}

// Only these reach the notification service.
var notifyEvents = map[Action]string{
	ActionConfirm: notify.EventAppointmentConfirmed,
	ActionCancel:  notify.EventAppointmentCancelled,
}

type Notifier interface {
	Notify(ev notify.Event)
}

type Options struct {
	RequireDiagnosis bool
	Now              func() time.Time
}

type Service struct {
	repo      Repository
	dir       directory.Directory
	index     *calendar.Index
	slots     *availability.Generator
	notifier  Notifier
	lifecycle Lifecycle
	log       *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, dir directory.Directory, index *calendar.Index, slots *availability.Generator, notifier Notifier, log *zap.Logger, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      repo,
		dir:       dir,
		index:     index,
		slots:     slots,
		notifier:  notifier,
		lifecycle: Lifecycle{RequireDiagnosis: opts.RequireDiagnosis, Now: now},
		log:       log,
		now:       now,
	}
}

type BookRequest struct {
	PractitionerID  uuid.UUID
	PatientID       uuid.UUID
	Start           time.Time
	DurationMinutes *int
	Reason          string
	ServiceID       *uuid.UUID
}

// Book re-validates the requested slot and creates a pending appointment.
// The free check and the calendar reservation run in one critical section
// for the practitioner; the lock is released before the appointment is
// written, and the reservation is undone if that write fails.
func (s *Service) Book(ctx context.Context, actor Actor, req BookRequest) (*Appointment, error) {
	if actor.Role == RolePatient && actor.UserID != req.PatientID {
		return nil, fmt.Errorf("%w: patients book for themselves", ErrForbidden)
	}

	exists, err := s.dir.PatientExists(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if !exists {
		return nil, ErrPatientNotFound
	}

	practitioner, err := s.slots.Practitioner(ctx, req.PractitionerID)
	if err != nil {
		return nil, err
	}
	minutes, err := s.slots.ResolveDuration(ctx, practitioner, req.DurationMinutes, req.ServiceID)
	if err != nil {
		return nil, err
	}

	start := req.Start.In(s.index.Location())
	end := start.Add(time.Duration(minutes) * time.Minute)

	if start.Before(s.now().Add(s.slots.Policy().LeadTime)) {
		return nil, ErrLeadTime
	}

	window, ok, err := s.dir.Window(ctx, req.PractitionerID, start)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	if !ok || !window.Contains(start, end) {
		return nil, ErrOutsideWorkingHours
	}

	appt := &Appointment{
		ID:              uuid.New(),
		PractitionerID:  req.PractitionerID,
		PatientID:       req.PatientID,
		ServiceID:       req.ServiceID,
		StartTime:       start,
		DurationMinutes: minutes,
		Reason:          strings.TrimSpace(req.Reason),
		Status:          StatusPending,
	}
	iv := appt.Interval()

	err = s.index.WithPractitioner(ctx, req.PractitionerID, start, func(tx *calendar.Txn) error {
		if !tx.IsFree(iv.Start, iv.End) {
			return ErrSlotTaken
		}
		return tx.Reserve(iv)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotTaken):
			return nil, err
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, ErrSlotBeingBooked
		case errors.Is(err, calendar.ErrConflict):
			s.log.Error("calendar conflict after free check", zap.Error(err))
		}
		return nil, fmt.Errorf("reserve interval: %w", err)
	}

	created, err := s.repo.CreateAppointment(ctx, appt)
	if err != nil {
		s.releaseInterval(ctx, iv, "rollback")
		if errors.Is(err, ErrSlotTaken) {
			// Postgres exclusion constraint caught what the calendar missed
			s.log.Error("calendar out of sync with appointments",
				zap.String("practitioner_id", req.PractitionerID.String()),
				zap.Time("start", start),
			)
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"practitioner_id":  created.PractitionerID.String(),
		"patient_id":       created.PatientID.String(),
		"start_time":       created.StartTime,
		"duration_minutes": created.DurationMinutes,
		"booked_by":        actor.UserID.String(),
	})
	s.notify(notify.EventAppointmentCreated, created)

	return created, nil
}

func (s *Service) releaseInterval(ctx context.Context, iv calendar.Interval, why string) {
	// the caller may have gone away; the calendar must still be fixed up
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.index.Release(ctx, iv); err != nil {
		s.log.Error("release calendar interval",
			zap.String("reason", why),
			zap.String("appointment_id", iv.AppointmentID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) Confirm(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionConfirm, Input{})
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionCancel, Input{CancellationReason: reason})
}

type Completion struct {
	Diagnosis         string
	Treatment         string
	PractitionerNotes string
	SupervisorNotes   string
}

func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID, c Completion) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionComplete, Input{
		Diagnosis:         c.Diagnosis,
		Treatment:         c.Treatment,
		PractitionerNotes: c.PractitionerNotes,
		SupervisorNotes:   c.SupervisorNotes,
	})
}

func (s *Service) MarkNoShow(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionNoShow, Input{})
}

func (s *Service) Rate(ctx context.Context, actor Actor, id uuid.UUID, rating int) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionRate, Input{Rating: rating})
}

// transition applies action with a version compare-and-swap. When another
// writer got there first the appointment is reloaded and the guards run
// again against the new state.
func (s *Service) transition(ctx context.Context, actor Actor, id uuid.UUID, action Action, in Input) (*Appointment, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		next, err := s.lifecycle.Apply(*current, actor, action, in)
		if err != nil {
			return nil, err
		}

		updated, err := s.repo.UpdateAppointment(ctx, &next)
		if errors.Is(err, ErrStaleAppointment) {
			s.log.Debug("appointment changed underneath transition, retrying",
				zap.String("appointment_id", id.String()),
				zap.String("action", string(action)),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s appointment: %w", action, err)
		}

		if action.Releases() {
			s.releaseInterval(ctx, updated.Interval(), string(action))
		}

		payload := map[string]any{
			"from":  string(current.Status),
			"to":    string(updated.Status),
			"actor": actor.UserID.String(),
			"role":  string(actor.Role),
		}
		if action == ActionCancel && updated.CancellationReason != "" {
			payload["reason"] = updated.CancellationReason
		}
		if action == ActionRate {
			payload["rating"] = *updated.Rating
		}
		s.logEvent(ctx, updated.ID, auditEvents[action], payload)

		if evType, ok := notifyEvents[action]; ok {
			s.notify(evType, updated)
		}

		return updated, nil
	}

	return nil, ErrStaleAppointment
}

func (s *Service) canView(actor Actor, a *Appointment) bool {
	switch actor.Role {
	case RolePatient:
		return actor.UserID == a.PatientID
	case RolePractitioner:
		return actor.UserID == a.PractitionerID
	case RoleSupervisor, RoleAdmin:
		return true
	}
	return false
}

func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !s.canView(actor, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, actor Actor, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if actor.Role == RolePatient && actor.UserID != patientID {
		return nil, ErrForbidden
	}
	if actor.Role == RolePractitioner {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListAppointmentsByPractitioner returns a practitioner's agenda for [from, to).
func (s *Service) ListAppointmentsByPractitioner(ctx context.Context, actor Actor, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if actor.Role == RolePatient {
		return nil, ErrForbidden
	}
	if actor.Role == RolePractitioner && actor.UserID != practitionerID {
		return nil, ErrForbidden
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("empty range %s..%s", from, to)
	}

	appointments, err := s.repo.ListByPractitioner(ctx, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments by practitioner: %w", err)
	}
	return appointments, nil
}

// Slots lists bookable start times; see availability.Generator.
func (s *Service) Slots(ctx context.Context, q availability.Query) ([]availability.Slot, error) {
	return s.slots.Slots(ctx, q)
}

type ReconcileReport struct {
	Practitioners int
	Days          int
	Added         int
	Removed       int
}

// ReconcileCalendar is intended to be called by the worker periodically. It
// repairs calendar days in [from, to) against the appointments table.
func (s *Service) ReconcileCalendar(ctx context.Context, from, to time.Time) (ReconcileReport, error) {
	var report ReconcileReport
	loc := s.index.Location()

	practitioners, err := s.repo.PractitionersWithAppointments(ctx, from, to)
	if err != nil {
		return report, fmt.Errorf("list practitioners with appointments: %w", err)
	}

	y, m, d := from.In(loc).Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)

	for _, pid := range practitioners {
		report.Practitioners++
		for day := first; day.Before(to); day = day.AddDate(0, 0, 1) {
			next := day.AddDate(0, 0, 1)

			active, err := s.repo.ActiveIntervals(ctx, pid, day, next)
			if err != nil {
				return report, fmt.Errorf("active intervals: %w", err)
			}
			released, err := s.repo.ReleasedIntervals(ctx, pid, day, next)
			if err != nil {
				return report, fmt.Errorf("released intervals: %w", err)
			}
			if len(active) == 0 && len(released) == 0 {
				continue
			}

			added, removed, err := s.index.Reconcile(ctx, pid, calendar.DayKey(day, loc), active, released)
			if err != nil {
				return report, fmt.Errorf("reconcile %s %s: %w", pid, calendar.DayKey(day, loc), err)
			}
			report.Days++
			report.Added += added
			report.Removed += removed
			if added > 0 || removed > 0 {
				s.log.Warn("calendar drift repaired",
					zap.String("practitioner_id", pid.String()),
					zap.String("day", calendar.DayKey(day, loc)),
					zap.Int("added", added),
					zap.Int("removed", removed),
				)
			}
		}
	}

	return report, nil
}

func (s *Service) notify(evType string, a *Appointment) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(notify.Event{
		Type:           evType,
		AppointmentID:  a.ID,
		PractitionerID: a.PractitionerID,
		PatientID:      a.PatientID,
		Status:         string(a.Status),
		StartTime:      a.StartTime,
		Reason:         a.CancellationReason,
	})
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
