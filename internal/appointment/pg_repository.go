package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
)

// exclusion_violation, raised by appointments_no_overlap
const pgExclusionViolation = "23P01"

const appointmentColumns = `
	id, practitioner_id, patient_id, service_id, start_time, duration_minutes, reason, status,
	diagnosis, treatment, practitioner_notes, supervisor_notes, cancellation_reason, rating,
	version, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var rating *int16

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PatientID,
		&a.ServiceID,
		&a.StartTime,
		&a.DurationMinutes,
		&a.Reason,
		&a.Status,
		&a.Diagnosis,
		&a.Treatment,
		&a.PractitionerNotes,
		&a.SupervisorNotes,
		&a.CancellationReason,
		&rating,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if rating != nil {
		r := int(*rating)
		a.Rating = &r
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectIntervals(rows pgx.Rows) ([]calendar.Interval, error) {
	defer rows.Close()

	var result []calendar.Interval
	for rows.Next() {
		var iv calendar.Interval
		if err := rows.Scan(&iv.AppointmentID, &iv.PractitionerID, &iv.Start, &iv.End); err != nil {
			return nil, err
		}
		result = append(result, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, practitioner_id, patient_id, service_id, start_time, end_time,
			duration_minutes, reason, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PractitionerID, a.PatientID, a.ServiceID, a.StartTime, a.EndTime(),
		a.DurationMinutes, a.Reason, a.Status)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	var rating *int16
	if a.Rating != nil {
		v := int16(*a.Rating)
		rating = &v
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    diagnosis = $4,
		    treatment = $5,
		    practitioner_notes = $6,
		    supervisor_notes = $7,
		    cancellation_reason = $8,
		    rating = $9,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+appointmentColumns,
		a.ID, a.Version, a.Status, a.Diagnosis, a.Treatment, a.PractitionerNotes,
		a.SupervisorNotes, a.CancellationReason, rating)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// either gone or the version moved on
		if _, getErr := r.GetAppointmentByID(ctx, a.ID); getErr == nil {
			return nil, ErrStaleAppointment
		}
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ActiveIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]calendar.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, start_time, end_time
		FROM appointments
		WHERE practitioner_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		  AND status NOT IN ('cancelled', 'no_show')
		ORDER BY start_time
	`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectIntervals(rows)
}

func (r *PgRepository) ReleasedIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]calendar.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, start_time, end_time
		FROM appointments
		WHERE practitioner_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		  AND status IN ('cancelled', 'no_show')
	`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectIntervals(rows)
}

func (r *PgRepository) PractitionersWithAppointments(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT practitioner_id
		FROM appointments
		WHERE start_time >= $1
		  AND start_time < $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
