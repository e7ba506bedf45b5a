package appointment

import (
	"slices"
	"strings"
	"time"
)

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionNoShow   Action = "no_show"
	ActionRate     Action = "rate"
)

// Input carries the data an action may write.
type Input struct {
	CancellationReason string
	Diagnosis          string
	Treatment          string
	PractitionerNotes  string
	SupervisorNotes    string
	Rating             int
}

type rule struct {
	from []Status
	to   Status
	// roles allowed to act; patients and practitioners must also be the
	// appointment's own.
	roles []Role
	// releases marks actions that free the calendar interval.
	releases bool
}

var rules = map[Action]rule{
	ActionConfirm: {
		from:  []Status{StatusPending},
		to:    StatusConfirmed,
		roles: []Role{RolePractitioner, RoleSupervisor, RoleAdmin},
	},
	ActionCancel: {
		from:     []Status{StatusPending, StatusConfirmed},
		to:       StatusCancelled,
		roles:    []Role{RolePatient, RolePractitioner, RoleAdmin},
		releases: true,
	},
	ActionComplete: {
		from:  []Status{StatusConfirmed},
		to:    StatusCompleted,
		roles: []Role{RolePractitioner, RoleSupervisor, RoleAdmin},
	},
	ActionNoShow: {
		from:     []Status{StatusConfirmed},
		to:       StatusNoShow,
		roles:    []Role{RolePractitioner, RoleSupervisor, RoleAdmin},
		releases: true,
	},
	ActionRate: {
		from:  []Status{StatusCompleted},
		to:    StatusCompleted,
		roles: []Role{RolePatient},
	},
}

// Releases reports whether a successful action frees the calendar interval.
func (a Action) Releases() bool {
	return rules[a].releases
}

// Lifecycle applies guarded transitions to appointment values. It holds no
// state of its own; persistence and calendar effects belong to the Service.
type Lifecycle struct {
	RequireDiagnosis bool
	Now              func() time.Time
}

func (l Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func isParticipant(a *Appointment, actor Actor) bool {
	switch actor.Role {
	case RolePatient:
		return actor.UserID == a.PatientID
	case RolePractitioner:
		return actor.UserID == a.PractitionerID
	}
	return true
}

// Apply returns the appointment as it looks after action, or a
// *TransitionError leaving a untouched.
func (l Lifecycle) Apply(a Appointment, actor Actor, action Action, in Input) (Appointment, error) {
	r, ok := rules[action]
	if !ok {
		return a, &TransitionError{Action: action, From: a.Status, Reason: ReasonState, Detail: "unknown action"}
	}

	if !slices.Contains(r.roles, actor.Role) {
		return a, &TransitionError{Action: action, From: a.Status, Reason: ReasonRole, Detail: "role " + string(actor.Role) + " not allowed"}
	}
	if !isParticipant(&a, actor) {
		return a, &TransitionError{Action: action, From: a.Status, Reason: ReasonRole, Detail: "actor is not a participant"}
	}
	if !slices.Contains(r.from, a.Status) {
		return a, &TransitionError{Action: action, From: a.Status, Reason: ReasonState}
	}

	next := a
	switch action {
	case ActionCancel:
		next.CancellationReason = strings.TrimSpace(in.CancellationReason)

	case ActionComplete:
		treatment := strings.TrimSpace(in.Treatment)
		diagnosis := strings.TrimSpace(in.Diagnosis)
		if treatment == "" {
			return a, &TransitionError{Action: action, From: a.Status, Reason: ReasonPrecondition, Detail: "treatment is required"}
		}
		if l.RequireDiagnosis && diagnosis == "" {
			return a, &TransitionError{Action: action, From: a.Status, Reason: ReasonPrecondition, Detail: "diagnosis is required"}
		}
		if in.SupervisorNotes != "" && actor.Role != RoleSupervisor && actor.Role != RoleAdmin {
			return a, &TransitionError{Action: action, From: a.Status, Reason: ReasonRole, Detail: "supervisor notes require supervisor or admin"}
		}
		next.Treatment = treatment
		next.Diagnosis = diagnosis
		next.PractitionerNotes = strings.TrimSpace(in.PractitionerNotes)
		next.SupervisorNotes = strings.TrimSpace(in.SupervisorNotes)

	case ActionRate:
		if a.Rating != nil {
			return a, &TransitionError{Action: action, From: a.Status, Reason: ReasonPrecondition, Detail: "appointment already rated"}
		}
		if in.Rating < 1 || in.Rating > 5 {
			return a, ErrInvalidRating
		}
		rating := in.Rating
		next.Rating = &rating
	}

	next.Status = r.to
	next.UpdatedAt = l.now()
	return next, nil
}
