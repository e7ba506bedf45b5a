package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Index answers "is this range free" for a practitioner and keeps the set of
// active intervals in step with bookings, cancellations and no-shows.
//
// Days are hydrated lazily from the IntervalSource. The source is read and
// loaded under the practitioner lock, so a reservation or release made while
// the day was cold is either visible to the read or applied after the load.
// Callers persist a status change before releasing its interval.
type Index struct {
	store  Store
	locker Locker
	source IntervalSource
	loc    *time.Location
	log    *zap.Logger
}

func NewIndex(store Store, locker Locker, source IntervalSource, loc *time.Location, log *zap.Logger) *Index {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{
		store:  store,
		locker: locker,
		source: source,
		loc:    loc,
		log:    log,
	}
}

func (x *Index) Location() *time.Location { return x.loc }

func lockKey(practitionerID uuid.UUID) string {
	return "practitioner:" + practitionerID.String()
}

func (x *Index) warm(ctx context.Context, practitionerID uuid.UUID, day string) error {
	ok, err := x.store.Warm(ctx, practitionerID, day)
	if err != nil {
		return fmt.Errorf("check calendar warm: %w", err)
	}
	if ok {
		return nil
	}

	return x.locker.WithLock(ctx, lockKey(practitionerID), func(ctx context.Context) error {
		ok, err := x.store.Warm(ctx, practitionerID, day)
		if err != nil {
			return fmt.Errorf("check calendar warm: %w", err)
		}
		if ok {
			return nil
		}

		var loaded []Interval
		if x.source != nil {
			from, to, err := DayBounds(day, x.loc)
			if err != nil {
				return err
			}
			loaded, err = x.source.ActiveIntervals(ctx, practitionerID, from, to)
			if err != nil {
				return fmt.Errorf("load active intervals: %w", err)
			}
		}

		x.log.Debug("calendar day hydrated",
			zap.String("practitioner_id", practitionerID.String()),
			zap.String("day", day),
			zap.Int("intervals", len(loaded)),
		)
		return x.store.Load(ctx, practitionerID, day, loaded)
	})
}

// Snapshot returns the active intervals of one clinic-local day, ordered by
// start. It takes no lock and may be stale by the time the caller uses it.
func (x *Index) Snapshot(ctx context.Context, practitionerID uuid.UUID, day time.Time) ([]Interval, error) {
	key := DayKey(day, x.loc)
	if err := x.warm(ctx, practitionerID, key); err != nil {
		return nil, err
	}
	return x.store.Intervals(ctx, practitionerID, key)
}

// IsFree reports whether [start, end) overlaps no active interval.
func (x *Index) IsFree(ctx context.Context, practitionerID uuid.UUID, start, end time.Time) (bool, error) {
	ivs, err := x.Snapshot(ctx, practitionerID, start)
	if err != nil {
		return false, err
	}
	return Free(ivs, start, end), nil
}

// Txn is the view of one practitioner day handed to WithPractitioner.
type Txn struct {
	ctx   context.Context
	index *Index
	pid   uuid.UUID
	day   string
	ivs   []Interval
}

func (t *Txn) IsFree(start, end time.Time) bool {
	return Free(t.ivs, start, end)
}

// Reserve registers iv. Reserving over an occupied range returns a
// *ConflictError.
func (t *Txn) Reserve(iv Interval) error {
	if iv.PractitionerID != t.pid {
		return fmt.Errorf("reserve for practitioner %s inside lock of %s", iv.PractitionerID, t.pid)
	}
	if !iv.Start.Before(iv.End) {
		return fmt.Errorf("reserve empty interval %s", iv)
	}
	if day := DayKey(iv.Start, t.index.loc); day != t.day {
		return fmt.Errorf("reserve on %s inside lock of day %s", day, t.day)
	}
	if existing, busy := firstOverlap(t.ivs, iv.Start, iv.End); busy {
		err := &ConflictError{Requested: iv, Existing: existing}
		t.index.log.Error("calendar reserve over occupied interval",
			zap.String("practitioner_id", t.pid.String()),
			zap.Stringer("requested", iv),
			zap.Stringer("existing", existing),
		)
		return err
	}
	if err := t.index.store.Add(t.ctx, t.day, iv); err != nil {
		return fmt.Errorf("store interval: %w", err)
	}
	t.ivs = append(t.ivs, iv)
	return nil
}

// WithPractitioner runs fn inside the practitioner's critical section with a
// consistent view of the given day. The check made through Txn.IsFree and the
// following Txn.Reserve are atomic with respect to every other caller.
func (x *Index) WithPractitioner(ctx context.Context, practitionerID uuid.UUID, day time.Time, fn func(tx *Txn) error) error {
	key := DayKey(day, x.loc)
	if err := x.warm(ctx, practitionerID, key); err != nil {
		return err
	}

	return x.locker.WithLock(ctx, lockKey(practitionerID), func(lockCtx context.Context) error {
		ivs, err := x.store.Intervals(lockCtx, practitionerID, key)
		if err != nil {
			return fmt.Errorf("read calendar: %w", err)
		}
		return fn(&Txn{ctx: lockCtx, index: x, pid: practitionerID, day: key, ivs: ivs})
	})
}

// Reserve is the single-shot form of check-and-reserve.
func (x *Index) Reserve(ctx context.Context, iv Interval) error {
	return x.WithPractitioner(ctx, iv.PractitionerID, iv.Start, func(tx *Txn) error {
		return tx.Reserve(iv)
	})
}

// Release drops iv from the calendar. Releasing an interval that is not
// present is a no-op.
func (x *Index) Release(ctx context.Context, iv Interval) error {
	day := DayKey(iv.Start, x.loc)
	return x.locker.WithLock(ctx, lockKey(iv.PractitionerID), func(lockCtx context.Context) error {
		if err := x.store.Remove(lockCtx, day, iv); err != nil {
			return fmt.Errorf("release interval: %w", err)
		}
		return nil
	})
}

// Reconcile brings a day in line with persistence: active intervals missing
// from the store are added and released ones removed. Intervals unknown to
// persistence are kept, since they may belong to a booking being written.
func (x *Index) Reconcile(ctx context.Context, practitionerID uuid.UUID, day string, active, released []Interval) (added, removed int, err error) {
	err = x.locker.WithLock(ctx, lockKey(practitionerID), func(lockCtx context.Context) error {
		warm, err := x.store.Warm(lockCtx, practitionerID, day)
		if err != nil {
			return fmt.Errorf("check calendar warm: %w", err)
		}
		if !warm {
			added = len(active)
			return x.store.Load(lockCtx, practitionerID, day, active)
		}

		current, err := x.store.Intervals(lockCtx, practitionerID, day)
		if err != nil {
			return fmt.Errorf("read calendar: %w", err)
		}
		have := make(map[uuid.UUID]Interval, len(current))
		for _, iv := range current {
			have[iv.AppointmentID] = iv
		}

		for _, iv := range released {
			if _, ok := have[iv.AppointmentID]; !ok {
				continue
			}
			if err := x.store.Remove(lockCtx, day, have[iv.AppointmentID]); err != nil {
				return fmt.Errorf("remove released interval: %w", err)
			}
			delete(have, iv.AppointmentID)
			removed++
		}
		for _, iv := range active {
			if _, ok := have[iv.AppointmentID]; ok {
				continue
			}
			if err := x.store.Add(lockCtx, day, iv); err != nil {
				return fmt.Errorf("add active interval: %w", err)
			}
			added++
		}
		return nil
	})
	return added, removed, err
}
