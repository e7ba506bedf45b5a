package directory

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowContains(t *testing.T) {
	h := WorkingHours{Weekday: time.Monday, Open: 9 * 60, Close: 17 * 60}
	w := h.Resolve(time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC), time.UTC)

	assert.Equal(t, time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC), w.Open)
	assert.Equal(t, time.Date(2025, 11, 10, 17, 0, 0, 0, time.UTC), w.Close)
	assert.True(t, w.Contains(w.Open, w.Open.Add(time.Hour)))
	assert.True(t, w.Contains(w.Close.Add(-time.Hour), w.Close))
	assert.False(t, w.Contains(w.Close.Add(-30*time.Minute), w.Close.Add(30*time.Minute)))
	assert.False(t, w.Contains(w.Open.Add(-time.Minute), w.Open.Add(time.Hour)))
}

func TestResolveKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	h := WorkingHours{Weekday: time.Sunday, Open: 9 * 60, Close: 17 * 60}

	for _, day := range []time.Time{
		time.Date(2025, 3, 9, 12, 0, 0, 0, loc),  // spring forward
		time.Date(2025, 11, 2, 12, 0, 0, 0, loc), // fall back
	} {
		w := h.Resolve(day, loc)
		assert.Equal(t, 9, w.Open.In(loc).Hour(), day.Format("2006-01-02"))
		assert.Equal(t, 17, w.Close.In(loc).Hour(), day.Format("2006-01-02"))
		assert.Equal(t, 8*time.Hour, w.Close.Sub(w.Open))
	}
}

func TestStaticDefaultsToClinicHours(t *testing.T) {
	d := NewStatic(Defaults{Location: time.UTC, Open: 8 * 60, Close: 12 * 60})
	pid := uuid.New()
	d.AddPractitioner(Practitioner{ID: pid, Name: "Dr. Vega"})

	monday := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	w, ok, err := d.Window(context.Background(), pid, monday)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 8, w.Open.Hour())
	assert.Equal(t, 12, w.Close.Hour())

	sunday := monday.AddDate(0, 0, -1)
	_, ok, err = d.Window(context.Background(), pid, sunday)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticOwnHoursOverrideDefaults(t *testing.T) {
	d := NewStatic(Defaults{Location: time.UTC, Open: 9 * 60, Close: 17 * 60})
	pid := uuid.New()
	d.AddPractitioner(Practitioner{ID: pid}, WorkingHours{Weekday: time.Saturday, Open: 10 * 60, Close: 14 * 60})

	saturday := time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)
	w, ok, err := d.Window(context.Background(), pid, saturday)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, w.Open.Hour())

	monday := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	_, ok, err = d.Window(context.Background(), pid, monday)
	require.NoError(t, err)
	assert.False(t, ok, "own hours replace the clinic default entirely")
}

func TestStaticUnknownPractitioner(t *testing.T) {
	d := NewStatic(Defaults{Location: time.UTC, Open: 9 * 60, Close: 17 * 60})
	_, _, err := d.Window(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrPractitionerNotFound)

	_, err = d.Service(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrServiceNotFound)
}
