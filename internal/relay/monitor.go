package relay

import (
	"context"
	"time"

	"smsrelay/internal/metrics"

	"github.com/sirupsen/logrus"
)

// QueueInspector reports on the failure queue without mutating it
type QueueInspector interface {
	Count(ctx context.Context) (int, error)
	OldestCreatedAt(ctx context.Context) (int64, bool, error)
}

// QueueMonitor publishes the queue depth and warns when entries have been
// waiting longer than staleThreshold.
type QueueMonitor struct {
	queue          QueueInspector
	checkInterval  time.Duration
	staleThreshold time.Duration
	now            func() time.Time
	metrics        *metrics.Registry
	logger         *logrus.Logger
	stopCh         chan struct{}
}

func NewQueueMonitor(queue QueueInspector, checkInterval, staleThreshold time.Duration, logger *logrus.Logger) *QueueMonitor {
	return &QueueMonitor{
		queue:          queue,
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
		now:            time.Now,
		metrics:        metrics.GetRegistry(),
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
}

func (m *QueueMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"check_interval":  m.checkInterval,
		"stale_threshold": m.staleThreshold,
	}).Info("Starting queue monitor")

	m.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *QueueMonitor) Stop() {
	close(m.stopCh)
}

func (m *QueueMonitor) check(ctx context.Context) {
	count, err := m.queue.Count(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to read failure queue depth")
		return
	}
	m.metrics.SetGauge(metrics.QueueDepth, float64(count), nil, "Entries waiting in the failure queue")

	oldest, ok, err := m.queue.OldestCreatedAt(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to read oldest queued entry")
		return
	}
	if !ok {
		m.metrics.SetGauge(metrics.QueueOldestEntryAge, 0, nil, "Age in seconds of the oldest queued entry")
		return
	}

	age := m.now().Sub(time.UnixMilli(oldest))
	m.metrics.SetGauge(metrics.QueueOldestEntryAge, age.Seconds(), nil, "Age in seconds of the oldest queued entry")
	if age > m.staleThreshold {
		m.logger.WithFields(logrus.Fields{
			"queued":     count,
			"oldest_age": age.Round(time.Second),
			"threshold":  m.staleThreshold,
		}).Warn("Failure queue has entries older than the stale threshold")
	}
}
