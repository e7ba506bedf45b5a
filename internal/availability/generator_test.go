package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
)

var monday = time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	dir   *directory.Static
	index *calendar.Index
	gen   *Generator
	pid   uuid.UUID
	now   time.Time
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	f := &fixture{
		dir:   directory.NewStatic(directory.Defaults{Location: time.UTC, Open: 9 * 60, Close: 17 * 60}),
		index: calendar.NewIndex(calendar.NewMemoryStore(), calendar.NewLocalLocker(), nil, time.UTC, nil),
		pid:   uuid.New(),
		now:   monday.AddDate(0, 0, -7),
	}
	f.dir.AddPractitioner(directory.Practitioner{ID: f.pid, Name: "Dr. Ruiz"})
	f.gen = NewGenerator(f.dir, f.index, policy, func() time.Time { return f.now })
	return f
}

func minutes(n int) *int { return &n }

func labels(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Label())
	}
	return out
}

func (f *fixture) book(t *testing.T, h, m, dur int) calendar.Interval {
	t.Helper()
	start := monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	iv := calendar.Interval{AppointmentID: uuid.New(), PractitionerID: f.pid, Start: start, End: start.Add(time.Duration(dur) * time.Minute)}
	require.NoError(t, f.index.Reserve(context.Background(), iv))
	return iv
}

func TestSlotsExcludeBookedHour(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 60})
	f.book(t, 10, 0, 60)

	slots, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, DurationMinutes: minutes(60)})
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}, labels(slots))
}

func TestSlotsStayInsideWindowAndDoNotOverlap(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 60})
	f.book(t, 13, 15, 20)

	for _, d := range []int{15, 25, 45, 60, 90, 480} {
		slots, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, DurationMinutes: minutes(d)})
		require.NoError(t, err)

		booked, err := f.index.Snapshot(context.Background(), f.pid, monday)
		require.NoError(t, err)

		open := monday.Add(9 * time.Hour)
		closing := monday.Add(17 * time.Hour)
		for i, s := range slots {
			assert.False(t, s.Start.Before(open), "duration %d", d)
			assert.False(t, s.End.After(closing), "duration %d", d)
			assert.Equal(t, time.Duration(d)*time.Minute, s.End.Sub(s.Start))
			assert.True(t, calendar.Free(booked, s.Start, s.End))
			if i > 0 {
				assert.False(t, s.Start.Before(slots[i-1].End), "slots overlap for duration %d", d)
			}
		}
	}
}

func TestSlotsEmptyInsideLeadTime(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 60})

	f.now = monday.Add(-12 * time.Hour)
	slots, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, DurationMinutes: minutes(60)})
	require.NoError(t, err)
	assert.Empty(t, slots)

	f.now = monday.Add(9 * time.Hour).Add(-24 * time.Hour)
	slots, err = f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, DurationMinutes: minutes(60)})
	require.NoError(t, err)
	assert.Len(t, slots, 8, "window opening exactly at the lead time is bookable")
}

func TestSlotsEmptyOnDayOff(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 60})

	slots, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday.AddDate(0, 0, -1), DurationMinutes: minutes(60)})
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSlotsFixedGrid(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, Step: 30 * time.Minute, DefaultDuration: 60})
	f.book(t, 10, 0, 60)

	slots, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, DurationMinutes: minutes(60)})
	require.NoError(t, err)

	got := labels(slots)
	assert.Contains(t, got, "09:00")
	assert.NotContains(t, got, "09:30")
	assert.NotContains(t, got, "10:00")
	assert.NotContains(t, got, "10:30")
	assert.Contains(t, got, "11:00")
	assert.Equal(t, "16:00", got[len(got)-1])
}

func TestSlotsInvalidDuration(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 60})

	for _, d := range []int{0, -30, MaxDurationMinutes + 1, 200_000_000} {
		_, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, DurationMinutes: minutes(d)})
		assert.ErrorIs(t, err, ErrInvalidDuration, d)
	}
}

func TestSlotsRejectOversizedServiceDuration(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 60})
	svc := uuid.New()
	f.dir.AddService(directory.Service{ID: svc, Name: "Marathon", DurationMinutes: 100_000_000})

	_, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, ServiceID: &svc})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestSlotsUnknownPractitioner(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 60})

	_, err := f.gen.Slots(context.Background(), Query{PractitionerID: uuid.New(), Date: monday, DurationMinutes: minutes(60)})
	assert.ErrorIs(t, err, ErrUnknownPractitioner)
}

func TestResolveDurationFallbacks(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 45})
	ctx := context.Background()

	svc := directory.Service{ID: uuid.New(), Name: "Follow-up", DurationMinutes: 20}
	f.dir.AddService(svc)

	p, err := f.gen.Practitioner(ctx, f.pid)
	require.NoError(t, err)

	d, err := f.gen.ResolveDuration(ctx, p, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 45, d)

	d, err = f.gen.ResolveDuration(ctx, p, nil, &svc.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, d)

	p.DefaultServiceID = &svc.ID
	d, err = f.gen.ResolveDuration(ctx, p, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, d)

	d, err = f.gen.ResolveDuration(ctx, p, minutes(90), &svc.ID)
	require.NoError(t, err)
	assert.Equal(t, 90, d)
}

func TestSlotsDefaultDuration(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 120})

	slots, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "11:00", "13:00", "15:00"}, labels(slots))
}

func TestReleasedIntervalReappears(t *testing.T) {
	f := newFixture(t, Policy{LeadTime: 24 * time.Hour, DefaultDuration: 60})
	iv := f.book(t, 10, 0, 60)

	slots, err := f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, DurationMinutes: minutes(60)})
	require.NoError(t, err)
	assert.NotContains(t, labels(slots), "10:00")

	require.NoError(t, f.index.Release(context.Background(), iv))

	slots, err = f.gen.Slots(context.Background(), Query{PractitionerID: f.pid, Date: monday, DurationMinutes: minutes(60)})
	require.NoError(t, err)
	assert.Contains(t, labels(slots), "10:00")
}
