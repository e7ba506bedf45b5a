package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/availability"
	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		writeError(w, http.StatusBadRequest, "invalid_request", fe.Field()+" failed "+fe.Tag())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

// writeServiceError maps domain errors to HTTP responses. Anything unmapped
// is logged and reported as a 500 without internals.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var te *appointment.TransitionError
	switch {
	case errors.As(err, &te):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid_transition",
			Details: te.Error(),
			Reason:  string(te.Reason),
		})
	case errors.Is(err, appointment.ErrInvalidRating),
		errors.Is(err, availability.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, availability.ErrUnknownPractitioner),
		errors.Is(err, directory.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, directory.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "the requested time is no longer available, list slots again")
	case errors.Is(err, appointment.ErrLeadTime):
		writeError(w, http.StatusConflict, "lead_time", err.Error())
	case errors.Is(err, appointment.ErrOutsideWorkingHours):
		writeError(w, http.StatusConflict, "outside_working_hours", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrStaleAppointment):
		writeError(w, http.StatusConflict, "concurrent_update", err.Error())
	case errors.Is(err, calendar.ErrConflict):
		h.log.Error("calendar conflict reached the edge",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "calendar_conflict", "internal scheduling error")
	default:
		h.log.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
