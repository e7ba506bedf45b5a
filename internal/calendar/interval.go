package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const dayLayout = "2006-01-02"

var ErrConflict = errors.New("calendar interval conflict")

// Interval is the half-open range [Start, End) one appointment occupies.
type Interval struct {
	AppointmentID  uuid.UUID
	PractitionerID uuid.UUID
	Start          time.Time
	End            time.Time
}

// Overlaps reports whether [start, end) intersects the interval. Back-to-back
// ranges do not overlap.
func (iv Interval) Overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && iv.Start.Before(end)
}

func (iv Interval) String() string {
	return fmt.Sprintf("%s [%s, %s)", iv.AppointmentID, iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

// ConflictError means a reservation was attempted over an occupied range.
// Callers are expected to check and reserve under the same critical section,
// so seeing one of these points at a locking bug.
type ConflictError struct {
	Requested Interval
	Existing  Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("practitioner %s: interval %s overlaps %s", e.Requested.PractitionerID, e.Requested, e.Existing)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// DayKey is the clinic-local date an instant belongs to.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// DayBounds returns local midnight to midnight for the given day key.
func DayBounds(day string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dayLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// Free reports whether [start, end) is clear of every interval in ivs.
func Free(ivs []Interval, start, end time.Time) bool {
	_, busy := firstOverlap(ivs, start, end)
	return !busy
}

func firstOverlap(ivs []Interval, start, end time.Time) (Interval, bool) {
	for _, iv := range ivs {
		if iv.Overlaps(start, end) {
			return iv, true
		}
	}
	return Interval{}, false
}

func sortIntervals(ivs []Interval) {
	sort.Slice(ivs, func(i, j int) bool {
		return ivs[i].Start.Before(ivs[j].Start)
	})
}

// Store keeps active intervals per practitioner and clinic-local day.
type Store interface {
	// Warm reports whether the day has been hydrated from persistence.
	Warm(ctx context.Context, practitionerID uuid.UUID, day string) (bool, error)
	// Load replaces the day's intervals and marks it warm.
	Load(ctx context.Context, practitionerID uuid.UUID, day string, ivs []Interval) error
	Intervals(ctx context.Context, practitionerID uuid.UUID, day string) ([]Interval, error)
	Add(ctx context.Context, day string, iv Interval) error
	Remove(ctx context.Context, day string, iv Interval) error
}

// Locker serializes work per key across every process sharing the calendar.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// IntervalSource is the durable record the index is rebuilt from.
type IntervalSource interface {
	ActiveIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Interval, error)
}
