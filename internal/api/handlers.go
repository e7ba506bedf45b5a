package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/availability"
)

const dateLayout = "2006-01-02"

var errInvalidBound = errors.New("expected RFC 3339 time or YYYY-MM-DD")

// Scheduler is the slice of appointment.Service the HTTP layer drives.
type Scheduler interface {
	Slots(ctx context.Context, q availability.Query) ([]availability.Slot, error)
	Book(ctx context.Context, actor appointment.Actor, req appointment.BookRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, actor appointment.Actor, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListAppointmentsByPractitioner(ctx context.Context, actor appointment.Actor, practitionerID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
	Confirm(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, actor appointment.Actor, id uuid.UUID, reason string) (*appointment.Appointment, error)
	Complete(ctx context.Context, actor appointment.Actor, id uuid.UUID, c appointment.Completion) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Rate(ctx context.Context, actor appointment.Actor, id uuid.UUID, rating int) (*appointment.Appointment, error)
}

type Handler struct {
	svc      Scheduler
	log      *zap.Logger
	loc      *time.Location
	validate *validator.Validate
}

func NewHandler(svc Scheduler, log *zap.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, log: log, loc: loc, validate: validator.New()}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	// an empty body decodes as the zero request
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func mustActor(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", errTokenMissing.Error())
	}
	return actor, ok
}

// ListSlots handles GET /practitioners/{id}/slots?date=&duration=&service_id=
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	practitionerID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	q := r.URL.Query()
	date, err := time.ParseInLocation(dateLayout, q.Get("date"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	query := availability.Query{PractitionerID: practitionerID, Date: date}
	if raw := q.Get("duration"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 || minutes > availability.MaxDurationMinutes {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be between 1 and 480 minutes")
			return
		}
		query.DurationMinutes = &minutes
	}
	if query.ServiceID, err = optionalUUID(q.Get("service_id")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
		return
	}

	slots, err := h.svc.Slots(r.Context(), query)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotList(practitionerID, date.Format(dateLayout), slots))
}

// BookAppointment handles POST /appointments
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}

	var req BookAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	patientID := actor.UserID
	if req.PatientID != "" {
		patientID = uuid.MustParse(req.PatientID)
	} else if actor.Role != appointment.RolePatient {
		writeError(w, http.StatusBadRequest, "invalid_request", "patient_id is required when booking for someone else")
		return
	}
	serviceID, _ := optionalUUID(req.ServiceID)

	appt, err := h.svc.Book(r.Context(), actor, appointment.BookRequest{
		PractitionerID:  uuid.MustParse(req.PractitionerID),
		PatientID:       patientID,
		Start:           *req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		ServiceID:       serviceID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// ListPatientAppointments handles GET /appointments?patient_id=&limit=&offset=
// Patients may omit patient_id to list their own.
func (h *Handler) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	patientID := actor.UserID
	if raw := q.Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		patientID = id
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, err := h.svc.ListAppointmentsByPatient(r.Context(), actor, patientID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(items))
}

// ListPractitionerAppointments handles GET /practitioners/{id}/appointments?from=&to=
// Bounds accept RFC 3339 or a date; a date-only "to" includes that whole day.
// Without bounds the next seven days are returned.
func (h *Handler) ListPractitionerAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	practitionerID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	y, m, d := time.Now().In(h.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, h.loc)
	to := from.AddDate(0, 0, 7)

	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, _, err := h.parseBound(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
			return
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, dateOnly, err := h.parseBound(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", err.Error())
			return
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		to = t
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "invalid_range", "from must be before to")
		return
	}

	items, err := h.svc.ListAppointmentsByPractitioner(r.Context(), actor, practitionerID, from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(items))
}

func (h *Handler) parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, h.loc)
	if err != nil {
		return time.Time{}, false, errInvalidBound
	}
	return t, true, nil
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, run func(actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	appt, err := run(actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error) {
		return h.svc.Confirm(r.Context(), actor, id)
	})
}

// CancelAppointment accepts an optional JSON body with a reason.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(w, r, func(actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error) {
		return h.svc.Cancel(r.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	var req CompleteAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(w, r, func(actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error) {
		return h.svc.Complete(r.Context(), actor, id, appointment.Completion{
			Diagnosis:         req.Diagnosis,
			Treatment:         req.Treatment,
			PractitionerNotes: req.PractitionerNotes,
			SupervisorNotes:   req.SupervisorNotes,
		})
	})
}

func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error) {
		return h.svc.MarkNoShow(r.Context(), actor, id)
	})
}

func (h *Handler) RateAppointment(w http.ResponseWriter, r *http.Request) {
	var req RateAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.transition(w, r, func(actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error) {
		return h.svc.Rate(r.Context(), actor, id, req.Rating)
	})
}
