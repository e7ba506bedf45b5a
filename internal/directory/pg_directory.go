package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool     *pgxpool.Pool
	defaults Defaults
}

func NewPgDirectory(pool *pgxpool.Pool, defaults Defaults) *PgDirectory {
	if defaults.Location == nil {
		defaults.Location = time.Local
	}
	return &PgDirectory{pool: pool, defaults: defaults}
}

func (d *PgDirectory) Practitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	var p Practitioner
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, specialty, default_service_id, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Specialty, &p.DefaultServiceID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, fmt.Errorf("select practitioner: %w", err)
	}
	return &p, nil
}

func (d *PgDirectory) Service(ctx context.Context, id uuid.UUID) (*Service, error) {
	var s Service
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("select service: %w", err)
	}
	return &s, nil
}

func (d *PgDirectory) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select patient: %w", err)
	}
	return exists, nil
}

func (d *PgDirectory) Window(ctx context.Context, practitionerID uuid.UUID, date time.Time) (Window, bool, error) {
	if _, err := d.Practitioner(ctx, practitionerID); err != nil {
		return Window{}, false, err
	}

	rows, err := d.pool.Query(ctx, `
		SELECT weekday, open_minute, close_minute
		FROM working_hours
		WHERE practitioner_id = $1
	`, practitionerID)
	if err != nil {
		return Window{}, false, fmt.Errorf("select working hours: %w", err)
	}
	defer rows.Close()

	var hours []WorkingHours
	for rows.Next() {
		var h WorkingHours
		var wd int
		if err := rows.Scan(&wd, &h.Open, &h.Close); err != nil {
			return Window{}, false, err
		}
		h.Weekday = time.Weekday(wd)
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return Window{}, false, err
	}

	if len(hours) == 0 {
		hours = d.defaults.hours()
	}
	w, ok := windowFor(hours, date, d.defaults.Location)
	return w, ok, nil
}
