package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrStaleAppointment    = errors.New("appointment was modified concurrently")

	// Booking conflicts. Retryable once the caller has re-listed slots.
	ErrSlotTaken           = errors.New("slot already taken")
	ErrLeadTime            = errors.New("slot starts within the minimum lead time")
	ErrOutsideWorkingHours = errors.New("slot is outside the practitioner's working hours")

	ErrInvalidTransition = errors.New("invalid appointment transition")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrForbidden         = errors.New("actor may not perform this action")
)

// Reason tells why a transition guard rejected an action.
type Reason string

const (
	ReasonState        Reason = "state"
	ReasonRole         Reason = "role"
	ReasonPrecondition Reason = "precondition"
)

// TransitionError is returned by every rejected lifecycle action. It matches
// ErrInvalidTransition under errors.Is.
type TransitionError struct {
	Action Action
	From   Status
	Reason Reason
	Detail string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s appointment in status %s: %s", e.Action, e.From, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
