package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
)

type serviceSeed struct {
	Name     string
	Duration int
}

var services = []serviceSeed{
	{"Initial consultation", 60},
	{"Follow-up", 30},
	{"Therapy session", 50},
	{"Vaccination", 15},
	{"Physiotherapy", 45},
}

var specialties = []string{
	"General Practice",
	"Psychology",
	"Physiotherapy",
	"Pediatrics",
	"Dermatology",
	"Nutrition",
	"Cardiology",
	"Dentistry",
}

func main() {
	zl, err := logger.New("dev", "info")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	dsn := config.String("POSTGRES_DSN", "")
	if dsn == "" {
		zl.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{AppName: "clinic-seed"})
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		zl.Fatal("migrate", zap.Error(err))
	}

	if err := gofakeit.Seed(time.Now().UnixNano()); err != nil {
		zl.Fatal("seed faker", zap.Error(err))
	}

	serviceIDs, err := seedServices(ctx, pool, zl)
	if err != nil {
		zl.Fatal("seed services", zap.Error(err))
	}
	if err := seedPractitioners(ctx, pool, zl, config.Int("SEED_PRACTITIONERS", 20), serviceIDs); err != nil {
		zl.Fatal("seed practitioners", zap.Error(err))
	}
	if err := seedPatients(ctx, pool, zl, config.Int("SEED_PATIENTS", 5000)); err != nil {
		zl.Fatal("seed patients", zap.Error(err))
	}

	zl.Info("seed complete")
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, zl *zap.Logger) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(services))
	for _, s := range services {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes)
			VALUES ($1, $2, $3)
		`, id, s.Name, s.Duration)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	zl.Info("services seeded", zap.Int("count", len(ids)))
	return ids, nil
}

// seedPractitioners gives each practitioner a default service and a weekly
// schedule. Some work mornings only and some skip Fridays so availability
// differs between calendars.
func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, zl *zap.Logger, count int, serviceIDs []uuid.UUID) error {
	zl.Info("seeding practitioners", zap.Int("count", count))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		serviceID := serviceIDs[gofakeit.Number(0, len(serviceIDs)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, default_service_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, serviceID)
		if err != nil {
			return err
		}

		if err := seedWorkingHours(ctx, tx, id); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	zl.Info("practitioners seeded")
	return nil
}

func seedWorkingHours(ctx context.Context, tx pgx.Tx, practitionerID uuid.UUID) error {
	open, closing := 9*60, 17*60
	if gofakeit.Bool() {
		open, closing = 8*60, 13*60
	}
	skipFriday := gofakeit.Number(0, 3) == 0

	for wd := time.Monday; wd <= time.Friday; wd++ {
		if wd == time.Friday && skipFriday {
			continue
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO working_hours (practitioner_id, weekday, open_minute, close_minute)
			VALUES ($1, $2, $3, $4)
		`, practitionerID, int(wd), open, closing)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, zl *zap.Logger, count int) error {
	zl.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO patients (id, name, email, phone, created_at)
				VALUES ($1, $2, $3, $4, now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		zl.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}
