package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	BookingRatio      float64
	TransitionRatio   float64
	ReadRatio         float64
	PatientLimit      int
	PractitionerLimit int
	DaysAhead         int
	JWTSecret         []byte
	PostgresDSN       string
	Location          *time.Location
	LeadTime          time.Duration
}

type DataPool struct {
	Patients      []uuid.UUID
	Practitioners []uuid.UUID
	Dates         []string

	mu           sync.RWMutex
	appointments []booked
}

type booked struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

// opStats counts outcomes of one kind of call. 409 and 422 are expected
// under contention and reported apart from real failures.
type opStats struct {
	ok, conflict, failed atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (o *opStats) Record(latency time.Duration, status int, err error) {
	switch {
	case err != nil || status == 0 || status >= 500:
		o.failed.Add(1)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		o.conflict.Add(1)
	case status < 300:
		o.ok.Add(1)
	default:
		o.failed.Add(1)
	}

	o.mu.Lock()
	o.latencies = append(o.latencies, latency)
	o.mu.Unlock()
}

func (o *opStats) Total() int64 {
	return o.ok.Load() + o.conflict.Load() + o.failed.Load()
}

// Percentile returns the q-th latency quantile, q in [0, 1].
func (o *opStats) Percentile(q float64) time.Duration {
	o.mu.Lock()
	sorted := slices.Clone(o.latencies)
	o.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)
	i := int(q * float64(len(sorted)-1))
	return sorted[i]
}

type Metrics struct {
	Slots      opStats
	Booking    opStats
	Transition opStats
	Read       opStats
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
}

func main() {
	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zl, err := logger.New("dev", "info")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	zl.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("transition", cfg.TransitionRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, AppName: "clinic-simulate"})
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		zl.Fatal("load data pool", zap.Error(err))
	}
	zl.Info("data loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("practitioners", len(dataPool.Practitioners)),
		zap.Strings("dates", dataPool.Dates),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    zl,
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		zl.Fatal("overlap check", zap.Error(err))
	}
	fmt.Printf("Overlapping active appointments: %d\n", overlaps)
	if overlaps > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:        config.String("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:          config.Duration("SIM_DURATION", 30*time.Second),
		Workers:           config.Int("SIM_WORKERS", 10),
		BookingRatio:      config.Float("SIM_BOOKING_RATIO", 0.5),
		TransitionRatio:   config.Float("SIM_TRANSITION_RATIO", 0.2),
		ReadRatio:         config.Float("SIM_READ_RATIO", 0.3),
		PatientLimit:      config.Int("SIM_PATIENT_LIMIT", 4000),
		PractitionerLimit: config.Int("SIM_PRACTITIONER_LIMIT", 5),
		DaysAhead:         config.Int("SIM_DAYS", 3),
		JWTSecret:         []byte(baseCfg.JWTSecret),
		PostgresDSN:       baseCfg.PostgresDSN,
		Location:          baseCfg.Scheduling.Location,
		LeadTime:          baseCfg.Scheduling.LeadTime,
	}

	total := cfg.BookingRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.TransitionRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if len(cfg.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET is required to mint simulator tokens")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	var err error
	if dataPool.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	// few practitioners so that workers actually contend for the same calendar
	if dataPool.Practitioners, err = loadIDs(ctx, pool, `SELECT id FROM practitioners ORDER BY created_at LIMIT $1`, cfg.PractitionerLimit); err != nil {
		return nil, fmt.Errorf("load practitioners: %w", err)
	}
	if len(dataPool.Patients) == 0 || len(dataPool.Practitioners) == 0 {
		return nil, fmt.Errorf("no seed data, run cmd/seed first")
	}

	first := time.Now().In(cfg.Location).Add(cfg.LeadTime).AddDate(0, 0, 1)
	for i := 0; len(dataPool.Dates) < cfg.DaysAhead && i < 14; i++ {
		day := first.AddDate(0, 0, i)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		dataPool.Dates = append(dataPool.Dates, day.Format("2006-01-02"))
	}

	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
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

func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.practitioner_id = b.practitioner_id
		 AND a.id < b.id
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
		WHERE a.status NOT IN ('cancelled', 'no_show')
		  AND b.status NOT IN ('cancelled', 'no_show')
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.TransitionRatio:
				s.doTransition(ctx, rng)
			default:
				s.doRead(ctx, rng)
			}
		}
	}
}

func (s *Simulator) token(actor appointment.Actor) string {
	tok, err := api.IssueToken(s.config.JWTSecret, actor, time.Hour)
	if err != nil {
		s.log.Fatal("sign token", zap.Error(err))
	}
	return tok
}

func (s *Simulator) call(ctx context.Context, actor appointment.Actor, method, path string, body any, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token(actor))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// doBooking lists a practitioner's free slots and books one of the first few,
// so concurrent workers regularly race for the same start time.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patient := appointment.Actor{UserID: s.pool.Patients[rng.Intn(len(s.pool.Patients))], Role: appointment.RolePatient}
	practitionerID := s.pool.Practitioners[rng.Intn(len(s.pool.Practitioners))]
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]

	var slots api.SlotListResponse
	start := time.Now()
	status, err := s.call(ctx, patient, http.MethodGet,
		fmt.Sprintf("/practitioners/%s/slots?date=%s&duration=30", practitionerID, date), nil, &slots)
	s.metrics.Slots.Record(time.Since(start), status, err)
	if err != nil || status != http.StatusOK || len(slots.Slots) == 0 {
		return
	}

	pick := slots.Slots[rng.Intn(min(3, len(slots.Slots)))]

	var created api.AppointmentResponse
	start = time.Now()
	status, err = s.call(ctx, patient, http.MethodPost, "/appointments", map[string]any{
		"practitioner_id":  practitionerID,
		"start_time":       pick.Start,
		"duration_minutes": 30,
		"reason":           "simulated visit",
	}, &created)
	s.metrics.Booking.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated {
		s.pool.AddAppointment(booked{ID: created.ID, PatientID: patient.UserID, PractitionerID: practitionerID})
	}
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	actor := appointment.Actor{UserID: b.PractitionerID, Role: appointment.RolePractitioner}
	action := "confirm"
	var body any
	if rng.Intn(4) == 0 {
		actor = appointment.Actor{UserID: b.PatientID, Role: appointment.RolePatient}
		action = "cancel"
		body = map[string]string{"reason": "simulated cancellation"}
	}

	start := time.Now()
	status, err := s.call(ctx, actor, http.MethodPost, fmt.Sprintf("/appointments/%s/%s", b.ID, action), body, nil)
	s.metrics.Transition.Record(time.Since(start), status, err)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	patient := appointment.Actor{UserID: b.PatientID, Role: appointment.RolePatient}
	path := "/appointments/" + b.ID.String()
	if rng.Intn(2) == 0 {
		path = "/appointments?limit=20"
	}

	start := time.Now()
	status, err := s.call(ctx, patient, http.MethodGet, path, nil, nil)
	s.metrics.Read.Record(time.Since(start), status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Printf("\nsimulation: %s with %d workers against %s\n\n", s.config.Duration, s.config.Workers, s.config.APIBaseURL)

	printOperationReport("List slots", &s.metrics.Slots)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm/Cancel", &s.metrics.Transition)
	printOperationReport("Reads", &s.metrics.Read)
}

func printOperationReport(name string, o *opStats) {
	total := o.Total()
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	fmt.Printf("%-16s total=%-7d ok=%d (%.1f%%) conflict=%d (%.1f%%) failed=%d (%.1f%%)\n",
		name, total,
		o.ok.Load(), pct(o.ok.Load()),
		o.conflict.Load(), pct(o.conflict.Load()),
		o.failed.Load(), pct(o.failed.Load()),
	)
	fmt.Printf("%-16s p50=%s p95=%s p99=%s max=%s\n", "",
		o.Percentile(0.50).Round(time.Millisecond),
		o.Percentile(0.95).Round(time.Millisecond),
		o.Percentile(0.99).Round(time.Millisecond),
		o.Percentile(1).Round(time.Millisecond),
	)
}
