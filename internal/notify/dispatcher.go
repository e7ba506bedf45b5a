package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentConfirmed = "appointment.confirmed"
	EventAppointmentCancelled = "appointment.cancelled"
)

type Event struct {
	ID             uuid.UUID `json:"id"`
	Type           string    `json:"type"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Status         string    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher delivers one event to the outside world.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher hands events to a Publisher from a background goroutine.
// Notify never blocks: when the buffer is full the event is dropped and
// logged.
type Dispatcher struct {
	pub     Publisher
	log     *zap.Logger
	queue   chan Event
	timeout time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
}

func NewDispatcher(pub Publisher, log *zap.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		pub:     pub,
		log:     log,
		queue:   make(chan Event, buffer),
		timeout: 5 * time.Second,
	}
}

// Start launches the delivery loop. It drains the queue after Stop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range d.queue {
			d.deliver(ev)
		}
	}()
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.pub.Publish(ctx, ev); err != nil {
		d.log.Warn("notification delivery failed",
			zap.String("event_type", ev.Type),
			zap.String("appointment_id", ev.AppointmentID.String()),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) Notify(ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification after shutdown dropped", zap.String("event_type", ev.Type))
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.log.Warn("notification queue full, event dropped",
			zap.String("event_type", ev.Type),
			zap.String("appointment_id", ev.AppointmentID.String()),
		)
	}
}

// Stop closes the queue and waits for pending deliveries.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	Log *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Log.Info("appointment notification",
		zap.String("event_type", ev.Type),
		zap.String("appointment_id", ev.AppointmentID.String()),
		zap.String("patient_id", ev.PatientID.String()),
		zap.String("practitioner_id", ev.PractitionerID.String()),
		zap.Time("start_time", ev.StartTime),
	)
	return nil
}
