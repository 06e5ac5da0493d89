// Package relay drives records through delivery and the durable failure
// queue. The Coordinator owns the retry state machine; the Relay worker
// serializes incoming events and periodic drains on one goroutine.
package relay

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"smsrelay/internal/delivery"
	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	errEmptyPayload = stderrors.New("payload is empty")
	errEmptyArray   = stderrors.New("payload is an empty array")
	errNotObject    = stderrors.New("payload element is not a JSON object")
)

// FailureQueue is the durable store of undelivered payloads
type FailureQueue interface {
	Append(ctx context.Context, payload string, createdAt int64) (int64, error)
	ListAll(ctx context.Context) ([]models.FailureQueueEntry, error)
	Remove(ctx context.Context, id int64) error
}

// Coordinator sends new records, persists failures and retries the backlog.
// Every queue read and write, from the worker or from delivery callbacks,
// happens under mu.
type Coordinator struct {
	queue             FailureQueue
	sender            delivery.Sender
	now               func() time.Time
	persistBeforeSend bool
	logger            *logrus.Logger
	errLog            *apperrors.Logger
	metrics           *metrics.Registry

	mu       sync.Mutex
	inFlight map[int64]struct{}

	pending sync.WaitGroup
}

// CoordinatorOption customizes a Coordinator
type CoordinatorOption func(*Coordinator)

// WithClock overrides the clock used for createdAt
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithPersistBeforeSend appends every new record before the first attempt
// and removes it on success, closing the window where a crash mid-send
// loses the record.
func WithPersistBeforeSend(enabled bool) CoordinatorOption {
	return func(c *Coordinator) { c.persistBeforeSend = enabled }
}

// WithMetrics records queue metrics into registry
func WithMetrics(registry *metrics.Registry) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = registry }
}

// NewCoordinator creates a coordinator over queue and sender
func NewCoordinator(queue FailureQueue, sender delivery.Sender, logger *logrus.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Coordinator{
		queue:    queue,
		sender:   sender,
		now:      time.Now,
		logger:   logger,
		errLog:   apperrors.NewLogger(logger),
		metrics:  metrics.GetRegistry(),
		inFlight: make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessNew delivers one record. A failed delivery appends the attempted
// payload to the failure queue from the result callback.
func (c *Coordinator) ProcessNew(ctx context.Context, record models.TransportRecord) error {
	batch, err := models.NewBatch(record)
	if err != nil {
		return apperrors.NewInvalidInputError("record", err.Error())
	}

	var persistedID int64
	if c.persistBeforeSend {
		persistedID = c.persistFirst(ctx, batch)
	}

	c.pending.Add(1)
	err = c.sender.SendAsync(ctx, batch, func(result delivery.Result) {
		defer c.pending.Done()
		c.onNewResult(ctx, result, persistedID)
	})
	if err != nil {
		c.pending.Done()
		c.release([]int64{persistedID})
		return err
	}
	return nil
}

// persistFirst appends the batch and marks it owned so a concurrent drain
// does not send it twice. It returns 0 when the append failed, in which case
// the record falls back to append-on-failure.
func (c *Coordinator) persistFirst(ctx context.Context, batch models.OutboundBatch) int64 {
	payload, err := json.Marshal(batch)
	if err != nil {
		c.errLog.LogError(err, "Failed to encode record before send")
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.queue.Append(ctx, string(payload), c.now().UnixMilli())
	if err != nil {
		c.errLog.LogError(err, "Failed to persist record before send")
		return 0
	}
	c.inFlight[id] = struct{}{}
	return id
}

func (c *Coordinator) onNewResult(ctx context.Context, result delivery.Result, persistedID int64) {
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if persistedID != 0 {
		delete(c.inFlight, persistedID)
		if result.Success {
			if err := c.queue.Remove(ctx, persistedID); err != nil {
				c.errLog.LogError(err, "Failed to remove delivered record", logrus.Fields{"entry_id": persistedID})
			}
			return
		}
		c.logFailure(result, "Delivery failed, record stays queued", logrus.Fields{"entry_id": persistedID})
		return
	}

	if result.Success {
		return
	}

	if result.Payload == "" {
		c.errLog.LogError(result.Err, "Delivery failed without a payload to queue", logrus.Fields{"request_id": result.RequestID})
		return
	}

	id, err := c.queue.Append(ctx, result.Payload, c.now().UnixMilli())
	if err != nil {
		c.errLog.LogError(err, "Failed to queue undelivered record", logrus.Fields{"request_id": result.RequestID})
		return
	}
	c.metrics.IncrementCounter(metrics.EntriesQueued, nil, "Payloads added to the failure queue")
	c.logFailure(result, "Delivery failed, record queued for retry", logrus.Fields{"entry_id": id})
}

// DrainAndRetry sends every queued entry not owned by an earlier drain as one
// batch, oldest first. Corrupt entries are removed on the way. It returns the
// number of entries included in the batch; zero means no request was made.
func (c *Coordinator) DrainAndRetry(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "relay.drain")
	defer span.End()

	c.mu.Lock()
	entries, err := c.queue.ListAll(ctx)
	if err != nil {
		c.mu.Unlock()
		tracing.RecordError(ctx, err)
		return 0, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt < entries[j].CreatedAt
	})

	var batch models.OutboundBatch
	included := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if _, owned := c.inFlight[entry.ID]; owned {
			continue
		}

		records, err := parsePayload(entry.Payload)
		if err != nil {
			c.quarantine(ctx, entry, err)
			continue
		}

		batch.Append(records...)
		included = append(included, entry.ID)
		c.inFlight[entry.ID] = struct{}{}
	}
	c.mu.Unlock()

	span.SetAttributes(
		attribute.Int("drain.entries", len(included)),
		attribute.Int("drain.records", batch.Len()),
	)
	if batch.Len() == 0 {
		return 0, nil
	}

	c.logger.WithFields(logrus.Fields{
		"entries": len(included),
		"records": batch.Len(),
	}).Info("Retrying queued records")

	c.pending.Add(1)
	err = c.sender.SendAsync(ctx, batch, func(result delivery.Result) {
		defer c.pending.Done()
		c.onDrainResult(ctx, result, included)
	})
	if err != nil {
		c.pending.Done()
		c.release(included)
		return 0, err
	}
	return len(included), nil
}

// quarantine drops a corrupt entry. Callers hold c.mu.
func (c *Coordinator) quarantine(ctx context.Context, entry models.FailureQueueEntry, cause error) {
	c.errLog.LogError(apperrors.NewCorruptPayloadError(entry.ID, cause), "Dropping corrupt queued payload",
		logrus.Fields{"created_at": entry.CreatedAt})

	if err := c.queue.Remove(ctx, entry.ID); err != nil {
		c.errLog.LogError(err, "Failed to remove corrupt payload", logrus.Fields{"entry_id": entry.ID})
		return
	}
	c.metrics.IncrementCounter(metrics.EntriesQuarantined, nil, "Corrupt payloads dropped from the failure queue")
}

func (c *Coordinator) onDrainResult(ctx context.Context, result delivery.Result, included []int64) {
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range included {
		delete(c.inFlight, id)
	}

	if !result.Success {
		c.logFailure(result, "Retry failed, entries stay queued", logrus.Fields{"entries": len(included)})
		return
	}

	cleared := 0
	for _, id := range included {
		if err := c.queue.Remove(ctx, id); err != nil {
			c.errLog.LogError(err, "Failed to remove delivered entry", logrus.Fields{"entry_id": id})
			continue
		}
		cleared++
	}
	c.metrics.AddToCounter(metrics.EntriesCleared, float64(cleared), nil, "Queued payloads cleared after delivery")
	c.logger.WithField("entries", cleared).Info("Cleared delivered entries from queue")
}

// logFailure separates errors a retry can fix from ones it cannot, such as a
// payload too large for the configured encryption.
func (c *Coordinator) logFailure(result delivery.Result, message string, fields logrus.Fields) {
	fields["request_id"] = result.RequestID
	fields["status"] = result.StatusCode
	if result.Err != nil && !apperrors.IsRetryable(result.Err) {
		c.errLog.LogError(result.Err, message+"; retry will not succeed without a configuration change", fields)
		return
	}
	c.errLog.LogWarn(result.Err, message, fields)
}

func (c *Coordinator) release(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.inFlight, id)
	}
}

// Wait blocks until every delivery callback has finished
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

// WaitContext is Wait bounded by ctx
func (c *Coordinator) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parsePayload turns a queued payload back into records. A payload is either
// one JSON object or a non-empty array of JSON objects.
func parsePayload(payload string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, errEmptyPayload
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, errEmptyArray
		}
		for _, item := range items {
			if !isObject(item) {
				return nil, errNotObject
			}
		}
		return items, nil
	}

	raw := json.RawMessage(trimmed)
	if !json.Valid(raw) {
		var probe interface{}
		return nil, json.Unmarshal(raw, &probe)
	}
	if !isObject(raw) {
		return nil, errNotObject
	}
	return []json.RawMessage{raw}, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return len(trimmed) > 0 && trimmed[0] == '{'
}
