package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAppointment(status Status) Appointment {
	return Appointment{
		ID:              uuid.New(),
		PractitionerID:  uuid.New(),
		PatientID:       uuid.New(),
		StartTime:       time.Date(2025, 11, 10, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Status:          status,
	}
}

func patientOf(a Appointment) Actor      { return Actor{UserID: a.PatientID, Role: RolePatient} }
func practitionerOf(a Appointment) Actor { return Actor{UserID: a.PractitionerID, Role: RolePractitioner} }

var (
	supervisor = Actor{UserID: uuid.New(), Role: RoleSupervisor}
	admin      = Actor{UserID: uuid.New(), Role: RoleAdmin}
)

func requireTransitionError(t *testing.T, err error, reason Reason) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, reason, te.Reason)
}

func TestTransitionTable(t *testing.T) {
	lc := Lifecycle{RequireDiagnosis: true}
	completeInput := Input{Diagnosis: "J06.9", Treatment: "rest and fluids"}

	cases := []struct {
		name   string
		from   Status
		action Action
		actor  func(Appointment) Actor
		in     Input
		to     Status
	}{
		{"practitioner confirms", StatusPending, ActionConfirm, practitionerOf, Input{}, StatusConfirmed},
		{"supervisor confirms", StatusPending, ActionConfirm, func(Appointment) Actor { return supervisor }, Input{}, StatusConfirmed},
		{"admin confirms", StatusPending, ActionConfirm, func(Appointment) Actor { return admin }, Input{}, StatusConfirmed},
		{"patient cancels pending", StatusPending, ActionCancel, patientOf, Input{CancellationReason: "travel"}, StatusCancelled},
		{"practitioner cancels confirmed", StatusConfirmed, ActionCancel, practitionerOf, Input{}, StatusCancelled},
		{"admin cancels confirmed", StatusConfirmed, ActionCancel, func(Appointment) Actor { return admin }, Input{}, StatusCancelled},
		{"practitioner completes", StatusConfirmed, ActionComplete, practitionerOf, completeInput, StatusCompleted},
		{"supervisor completes", StatusConfirmed, ActionComplete, func(Appointment) Actor { return supervisor }, completeInput, StatusCompleted},
		{"practitioner marks no-show", StatusConfirmed, ActionNoShow, practitionerOf, Input{}, StatusNoShow},
		{"patient rates", StatusCompleted, ActionRate, patientOf, Input{Rating: 5}, StatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := sampleAppointment(tc.from)
			next, err := lc.Apply(a, tc.actor(a), tc.action, tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.to, next.Status)
			assert.Equal(t, tc.from, a.Status, "input value is not mutated")
		})
	}
}

func TestWrongStateIsRejected(t *testing.T) {
	lc := Lifecycle{RequireDiagnosis: true}

	cases := []struct {
		from   Status
		action Action
	}{
		{StatusPending, ActionComplete},
		{StatusPending, ActionNoShow},
		{StatusConfirmed, ActionConfirm},
		{StatusCompleted, ActionCancel},
		{StatusCancelled, ActionConfirm},
		{StatusCancelled, ActionCancel},
		{StatusNoShow, ActionComplete},
		{StatusConfirmed, ActionRate},
	}

	for _, tc := range cases {
		a := sampleAppointment(tc.from)
		actor := Actor{UserID: uuid.New(), Role: RoleAdmin}
		if tc.action == ActionRate {
			actor = patientOf(a)
		}
		next, err := lc.Apply(a, actor, tc.action, Input{Diagnosis: "x", Treatment: "y", Rating: 3})
		requireTransitionError(t, err, ReasonState)
		assert.Equal(t, tc.from, next.Status)
	}
}

func TestPendingCannotJumpToCompleted(t *testing.T) {
	a := sampleAppointment(StatusPending)
	_, err := Lifecycle{}.Apply(a, practitionerOf(a), ActionComplete, Input{Diagnosis: "x", Treatment: "y"})
	requireTransitionError(t, err, ReasonState)
}

func TestWrongRoleIsRejected(t *testing.T) {
	lc := Lifecycle{}

	a := sampleAppointment(StatusPending)
	_, err := lc.Apply(a, patientOf(a), ActionConfirm, Input{})
	requireTransitionError(t, err, ReasonRole)

	_, err = lc.Apply(a, supervisor, ActionCancel, Input{})
	requireTransitionError(t, err, ReasonRole)

	c := sampleAppointment(StatusConfirmed)
	_, err = lc.Apply(c, patientOf(c), ActionNoShow, Input{})
	requireTransitionError(t, err, ReasonRole)

	done := sampleAppointment(StatusCompleted)
	_, err = lc.Apply(done, admin, ActionRate, Input{Rating: 4})
	requireTransitionError(t, err, ReasonRole)
}

func TestNonParticipantsAreRejected(t *testing.T) {
	lc := Lifecycle{}
	a := sampleAppointment(StatusPending)

	_, err := lc.Apply(a, Actor{UserID: uuid.New(), Role: RolePatient}, ActionCancel, Input{})
	requireTransitionError(t, err, ReasonRole)

	_, err = lc.Apply(a, Actor{UserID: uuid.New(), Role: RolePractitioner}, ActionConfirm, Input{})
	requireTransitionError(t, err, ReasonRole)

	done := sampleAppointment(StatusCompleted)
	_, err = lc.Apply(done, Actor{UserID: uuid.New(), Role: RolePatient}, ActionRate, Input{Rating: 2})
	requireTransitionError(t, err, ReasonRole)
}

func TestCompleteRequiresClinicalFields(t *testing.T) {
	a := sampleAppointment(StatusConfirmed)

	_, err := Lifecycle{RequireDiagnosis: true}.Apply(a, practitionerOf(a), ActionComplete, Input{Diagnosis: "J06.9", Treatment: "   "})
	requireTransitionError(t, err, ReasonPrecondition)

	_, err = Lifecycle{RequireDiagnosis: true}.Apply(a, practitionerOf(a), ActionComplete, Input{Treatment: "rest"})
	requireTransitionError(t, err, ReasonPrecondition)

	next, err := Lifecycle{RequireDiagnosis: false}.Apply(a, practitionerOf(a), ActionComplete, Input{Treatment: "rest"})
	require.NoError(t, err)
	assert.Equal(t, "rest", next.Treatment)
	assert.Equal(t, StatusCompleted, next.Status)
}

func TestSupervisorNotesNeedSupervisor(t *testing.T) {
	a := sampleAppointment(StatusConfirmed)
	in := Input{Diagnosis: "x", Treatment: "y", SupervisorNotes: "reviewed"}

	_, err := Lifecycle{}.Apply(a, practitionerOf(a), ActionComplete, in)
	requireTransitionError(t, err, ReasonRole)

	next, err := Lifecycle{}.Apply(a, supervisor, ActionComplete, in)
	require.NoError(t, err)
	assert.Equal(t, "reviewed", next.SupervisorNotes)
}

func TestRatingOnce(t *testing.T) {
	lc := Lifecycle{}
	a := sampleAppointment(StatusCompleted)

	_, err := lc.Apply(a, patientOf(a), ActionRate, Input{Rating: 0})
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = lc.Apply(a, patientOf(a), ActionRate, Input{Rating: 6})
	assert.ErrorIs(t, err, ErrInvalidRating)

	rated, err := lc.Apply(a, patientOf(a), ActionRate, Input{Rating: 4})
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)

	again, err := lc.Apply(rated, patientOf(rated), ActionRate, Input{Rating: 1})
	requireTransitionError(t, err, ReasonPrecondition)
	assert.Equal(t, 4, *again.Rating)
}

func TestReleasingActions(t *testing.T) {
	assert.True(t, ActionCancel.Releases())
	assert.True(t, ActionNoShow.Releases())
	assert.False(t, ActionConfirm.Releases())
	assert.False(t, ActionComplete.Releases())
	assert.False(t, ActionRate.Releases())
}

func TestParseRoleAliases(t *testing.T) {
	for in, want := range map[string]Role{
		"patient":     RolePatient,
		"practicante": RolePractitioner,
		"Maestro":     RoleSupervisor,
		"admin":       RoleAdmin,
	} {
		got, err := ParseRole(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseRole("janitor")
	assert.Error(t, err)
}
