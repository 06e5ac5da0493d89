package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smsrelay/internal/constants"
	"smsrelay/internal/envelope"
	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/privacy"
	"smsrelay/internal/validation"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotRunning is returned by Submit before Start or after Stop
	ErrNotRunning = apperrors.New(apperrors.ErrCodeInternalError, "relay is not running")
	// ErrBusy is returned when the job queue is full
	ErrBusy = apperrors.WrapRetryable(fmt.Errorf("job queue full"), apperrors.ErrCodeInternalError, "relay is busy")
)

type job struct {
	event *models.IncomingEvent
}

// Relay is the single background worker. Events and retry ticks are handled
// one at a time, in arrival order.
type Relay struct {
	coordinator *Coordinator
	builder     *envelope.Builder
	resolver    *Resolver
	filter      *SenderFilter
	interval    time.Duration
	logger      *logrus.Logger
	metrics     *metrics.Registry

	jobs chan job

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Options configures a Relay
type Options struct {
	Builder       *envelope.Builder
	Resolver      *Resolver
	Filter        *SenderFilter
	RetryInterval time.Duration
	QueueCapacity int
	Metrics       *metrics.Registry
}

// New creates a relay around coordinator
func New(coordinator *Coordinator, opts Options, logger *logrus.Logger) *Relay {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Builder == nil {
		opts.Builder = envelope.NewBuilder(nil)
	}
	if opts.Resolver == nil {
		opts.Resolver = NewResolver(models.ReceiversConfig{})
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Duration(constants.DefaultRetryIntervalSec) * time.Second
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = constants.DefaultWorkerQueueCapacity
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.GetRegistry()
	}

	return &Relay{
		coordinator: coordinator,
		builder:     opts.Builder,
		resolver:    opts.Resolver,
		filter:      opts.Filter,
		interval:    opts.RetryInterval,
		logger:      logger,
		metrics:     opts.Metrics,
		jobs:        make(chan job, opts.QueueCapacity),
	}
}

// Start launches the worker. It runs one drain immediately so a backlog left
// by a previous run is retried without waiting for the first tick.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("relay is already running")
	}

	// Stop is the only shutdown path: accepted jobs must still be handled
	// after the caller's context is cancelled.
	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.stopCh = make(chan struct{})
	r.running = true

	r.wg.Add(1)
	go r.loop(ctx, r.stopCh)

	r.logger.WithField("retry_interval", r.interval).Info("Relay worker started")
	return nil
}

// Submit validates event and hands it to the worker
func (r *Relay) Submit(event models.IncomingEvent) error {
	if err := validation.ValidateEvent(event); err != nil {
		r.metrics.IncrementCounter(metrics.EventsRejected, map[string]string{"reason": "invalid"}, "Events rejected before delivery")
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return ErrNotRunning
	}

	select {
	case r.jobs <- job{event: &event}:
		return nil
	default:
		return ErrBusy
	}
}

// Stop stops accepting events, finishes queued jobs and waits for in-flight
// deliveries until ctx expires.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	r.logger.Info("Stopping relay worker...")
	r.wg.Wait()
	defer r.cancel()

	if err := r.coordinator.WaitContext(ctx); err != nil {
		r.logger.WithError(err).Warn("Cancelling in-flight deliveries at shutdown")
		return err
	}
	r.logger.Info("Relay worker stopped")
	return nil
}

// IsRunning returns whether the worker is active
func (r *Relay) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Relay) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			r.flush(ctx)
			return
		case <-stopCh:
			r.flush(ctx)
			return
		case <-ticker.C:
			r.drain(ctx)
		case j := <-r.jobs:
			r.handle(ctx, j)
		}
	}
}

// flush handles jobs accepted before Stop
func (r *Relay) flush(ctx context.Context) {
	for {
		select {
		case j := <-r.jobs:
			r.handle(ctx, j)
		default:
			return
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	if _, err := r.coordinator.DrainAndRetry(ctx); err != nil {
		apperrors.NewLogger(r.logger).LogError(err, "Failed to drain failure queue")
	}
}

// handle retries the backlog first, then processes the event
func (r *Relay) handle(ctx context.Context, j job) {
	r.drain(ctx)

	event := *j.event
	fields := logrus.Fields{"sender": privacy.MaskSender(event.Sender)}

	if !r.filter.Allows(event.Sender) {
		r.metrics.IncrementCounter(metrics.EventsRejected, map[string]string{"reason": "filtered"}, "Events rejected before delivery")
		r.logger.WithFields(fields).Debug("Sender does not pass filter")
		return
	}

	receiver, ok := r.resolver.Resolve(event)
	if !ok {
		r.metrics.IncrementCounter(metrics.EventsRejected, map[string]string{"reason": "no_receiver"}, "Events rejected before delivery")
		r.logger.WithFields(fields).Warn("Receiver number not configured, dropping event")
		return
	}

	record := r.builder.Build(event, receiver, event.ReceiverDeviceID)
	if err := r.coordinator.ProcessNew(ctx, record); err != nil {
		apperrors.NewLogger(r.logger).LogError(err, "Failed to process event", fields)
		return
	}
	fields["receiver"] = privacy.MaskPhoneNumber(receiver)
	r.logger.WithFields(fields).Debug("Event handed to delivery")
}
