package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/availability"
)

type BookAppointmentRequest struct {
	PractitionerID  string     `json:"practitioner_id" validate:"required,uuid"`
	PatientID       string     `json:"patient_id" validate:"omitempty,uuid"`
	StartTime       *time.Time `json:"start_time" validate:"required"`
	DurationMinutes *int       `json:"duration_minutes,omitempty" validate:"omitempty,min=1,max=480"`
	ServiceID       string     `json:"service_id,omitempty" validate:"omitempty,uuid"`
	Reason          string     `json:"reason" validate:"max=500"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CompleteAppointmentRequest struct {
	Diagnosis         string `json:"diagnosis" validate:"max=2000"`
	Treatment         string `json:"treatment" validate:"max=2000"`
	PractitionerNotes string `json:"practitioner_notes" validate:"max=4000"`
	SupervisorNotes   string `json:"supervisor_notes" validate:"max=4000"`
}

type RateAppointmentRequest struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PractitionerID     uuid.UUID  `json:"practitioner_id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	ServiceID          *uuid.UUID `json:"service_id,omitempty"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	DurationMinutes    int        `json:"duration_minutes"`
	Reason             string     `json:"reason,omitempty"`
	Status             string     `json:"status"`
	Diagnosis          string     `json:"diagnosis,omitempty"`
	Treatment          string     `json:"treatment,omitempty"`
	PractitionerNotes  string     `json:"practitioner_notes,omitempty"`
	SupervisorNotes    string     `json:"supervisor_notes,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	Rating             *int       `json:"rating,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PractitionerID:     a.PractitionerID,
		PatientID:          a.PatientID,
		ServiceID:          a.ServiceID,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime(),
		DurationMinutes:    a.DurationMinutes,
		Reason:             a.Reason,
		Status:             string(a.Status),
		Diagnosis:          a.Diagnosis,
		Treatment:          a.Treatment,
		PractitionerNotes:  a.PractitionerNotes,
		SupervisorNotes:    a.SupervisorNotes,
		CancellationReason: a.CancellationReason,
		Rating:             a.Rating,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

func toAppointmentList(items []appointment.Appointment) AppointmentListResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toAppointmentResponse(&items[i]))
	}
	return AppointmentListResponse{Appointments: out, Count: len(out)}
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

type SlotListResponse struct {
	PractitionerID  uuid.UUID      `json:"practitioner_id"`
	Date            string         `json:"date"`
	DurationMinutes int            `json:"duration_minutes"`
	Slots           []SlotResponse `json:"slots"`
}

func toSlotList(practitionerID uuid.UUID, date string, slots []availability.Slot) SlotListResponse {
	resp := SlotListResponse{
		PractitionerID: practitionerID,
		Date:           date,
		Slots:          make([]SlotResponse, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, SlotResponse{Start: s.Start, End: s.End, Label: s.Label()})
	}
	if len(slots) > 0 {
		resp.DurationMinutes = int(slots[0].End.Sub(slots[0].Start).Minutes())
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
