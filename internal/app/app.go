// Package app wires the scheduling components shared by the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/availability"
	"github.com/hackgods/clinic-appointment-scheduling/internal/calendar"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

// calendarTTL bounds how long a warmed day survives in Redis without writes.
const calendarTTL = 72 * time.Hour

type App struct {
	Config     config.Config
	Log        *zap.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client // nil when running with the in-process calendar
	Service    *appointment.Service
	Dispatcher *notify.Dispatcher

	closers []func()
}

// Build connects to Postgres, Redis and RabbitMQ and assembles the service.
// In dev an unreachable Redis falls back to the in-process calendar; in any
// other environment it is fatal since bookings from several replicas would
// no longer be serialized. name identifies the binary to Postgres.
func Build(ctx context.Context, name string, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{AppName: name})
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	log.Info("connected to Postgres")

	if err := db.Migrate(ctx, pool); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	repo := appointment.NewPgRepository(pool)
	sched := cfg.Scheduling
	dir := directory.NewPgDirectory(pool, directory.Defaults{
		Location: sched.Location,
		Open:     sched.DefaultOpen,
		Close:    sched.DefaultClose,
		Weekdays: directory.Weekdays,
	})

	var (
		store  calendar.Store
		locker calendar.Locker
	)
	if cfg.RedisAddr != "" {
		redisCtx, cancelRedis := context.WithTimeout(ctx, 5*time.Second)
		rdb, err := redisclient.Connect(redisCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		cancelRedis()
		switch {
		case err == nil:
			a.Redis = rdb
			a.closers = append(a.closers, func() {
				if err := rdb.Close(); err != nil {
					log.Warn("closing redis", zap.Error(err))
				}
			})
			store = redisclient.NewCalendarStore(rdb, calendarTTL)
			locker = redisclient.NewLocker(rdb, cfg.LockTTL, cfg.LockWait, log)
			log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
		case cfg.Env == "dev":
			log.Warn("redis unavailable, using in-process calendar", zap.Error(err))
		default:
			a.Close()
			return nil, fmt.Errorf("redis connection: %w", err)
		}
	}
	if store == nil {
		store = calendar.NewMemoryStore()
		locker = calendar.NewLocalLocker()
	}

	index := calendar.NewIndex(store, locker, repo, sched.Location, log)
	slots := availability.NewGenerator(dir, index, availability.Policy{
		LeadTime:        sched.LeadTime,
		Step:            sched.SlotStep,
		DefaultDuration: sched.DefaultDuration,
	}, nil)

	publisher, err := a.publisher(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher = notify.NewDispatcher(publisher, log, 256)
	a.Dispatcher.Start()
	// stop the dispatcher before its broker connection
	a.closers = append(a.closers, a.Dispatcher.Stop)

	a.Service = appointment.NewService(repo, dir, index, slots, a.Dispatcher, log, appointment.Options{
		RequireDiagnosis: sched.RequireDiagnosis,
	})
	return a, nil
}

func (a *App) publisher(cfg config.Config, log *zap.Logger) (notify.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		log.Info("RABBITMQ_URL not set, notifications go to the log")
		return notify.LogPublisher{Log: log}, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection: %w", err)
	}
	pub, err := notify.NewAMQPPublisher(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := conn.Close(); err != nil {
			log.Warn("closing rabbitmq", zap.Error(err))
		}
	})
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			log.Warn("closing rabbitmq channel", zap.Error(err))
		}
	})
	log.Info("connected to RabbitMQ", zap.String("queue", notify.QueueName))
	return pub, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
