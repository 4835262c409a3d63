package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/points-ledger-api/pkg/jobs"
)

// Outcomes reported to the observer.
const (
	OutcomeSent       = "sent"
	OutcomeFailed     = "failed"
	OutcomeSuppressed = "suppressed"
	OutcomeDropped    = "dropped"
)

const jobType = "notification"

// DispatcherConfig configures the worker pool behind a Dispatcher.
type DispatcherConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
	// Observer receives one call per notification outcome, e.g. to update metrics.
	Observer func(kind Kind, outcome string)
}

// Dispatcher queues notifications for a Sender, applying the cooldown before enqueue.
type Dispatcher struct {
	queue    *jobs.Queue
	sender   Sender
	cooldown *Cooldown
	logger   *zap.Logger
	observe  func(kind Kind, outcome string)
}

// NewDispatcher builds a dispatcher. Call Start before Notify.
func NewDispatcher(sender Sender, cooldown *Cooldown, cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = func(Kind, string) {}
	}
	d := &Dispatcher{
		sender:   sender,
		cooldown: cooldown,
		logger:   cfg.Logger,
		observe:  cfg.Observer,
	}
	d.queue = jobs.NewQueue("notifications", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		AtMostOnce: true,
		Logger:     cfg.Logger,
	})
	return d
}

// Start launches the workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers. Queued but unsent notifications are dropped.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// Notify enqueues n without blocking. It never returns an error: suppression, a full buffer
// and a stopped queue are logged and counted.
func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	if !n.Bypass && d.cooldown != nil && !d.cooldown.Allow() {
		d.logger.Info("notification suppressed by cooldown",
			zap.String("kind", string(n.Kind)),
			zap.String("subject", n.Subject),
			zap.Duration("remaining", d.cooldown.Remaining()))
		d.observe(n.Kind, OutcomeSuppressed)
		return
	}

	err := d.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: jobType, Payload: n})
	if err == nil {
		return
	}
	fields := []zap.Field{zap.String("kind", string(n.Kind)), zap.String("subject", n.Subject), zap.Error(err)}
	if errors.Is(err, jobs.ErrQueueFull) {
		d.logger.Warn("notification dropped, queue full", fields...)
	} else {
		d.logger.Warn("notification dropped", fields...)
	}
	d.observe(n.Kind, OutcomeDropped)
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		return errors.New("unexpected notification payload")
	}
	if err := d.sender.Send(ctx, n); err != nil {
		d.observe(n.Kind, OutcomeFailed)
		return fmt.Errorf("%s sender, %s %q: %w", d.sender.Name(), n.Kind, n.Subject, err)
	}
	d.observe(n.Kind, OutcomeSent)
	return nil
}
