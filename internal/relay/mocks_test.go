package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"smsrelay/internal/delivery"
	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// fakeQueue is an in-memory FailureQueue. With reversed set it lists entries
// newest first to mimic a store whose physical order differs from createdAt.
type fakeQueue struct {
	mu        sync.Mutex
	entries   []models.FailureQueueEntry
	nextID    int64
	reversed  bool
	appendErr error
	listErr   error
	removed   []int64
	// listGate, when set, holds ListAll until closed; listing is signalled
	// on entry.
	listGate chan struct{}
	listing  chan struct{}
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{nextID: 1}
}

func (q *fakeQueue) Append(ctx context.Context, payload string, createdAt int64) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.appendErr != nil {
		return 0, q.appendErr
	}
	id := q.nextID
	q.nextID++
	q.entries = append(q.entries, models.FailureQueueEntry{ID: id, Payload: payload, CreatedAt: createdAt})
	return id, nil
}

func (q *fakeQueue) ListAll(ctx context.Context) ([]models.FailureQueueEntry, error) {
	if q.listing != nil {
		select {
		case q.listing <- struct{}{}:
		default:
		}
	}
	if q.listGate != nil {
		<-q.listGate
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.listErr != nil {
		return nil, q.listErr
	}
	out := make([]models.FailureQueueEntry, 0, len(q.entries))
	if q.reversed {
		for i := len(q.entries) - 1; i >= 0; i-- {
			out = append(out, q.entries[i])
		}
		return out, nil
	}
	return append(out, q.entries...), nil
}

func (q *fakeQueue) Remove(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, id)
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *fakeQueue) snapshot() []models.FailureQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.FailureQueueEntry(nil), q.entries...)
}

func (q *fakeQueue) ids() []int64 {
	var ids []int64
	for _, e := range q.snapshot() {
		ids = append(ids, e.ID)
	}
	return ids
}

// fakeSender records every batch and answers on a new goroutine, like the
// real client. With gate set, answers wait until the gate is closed.
type fakeSender struct {
	mu      sync.Mutex
	batches []models.OutboundBatch
	succeed bool
	err     error
	gate    chan struct{}
	during  func()
	sent    chan struct{}
}

func newFakeSender(succeed bool) *fakeSender {
	return &fakeSender{succeed: succeed, sent: make(chan struct{}, 100)}
}

func (s *fakeSender) SendAsync(ctx context.Context, batch models.OutboundBatch, onResult func(delivery.Result)) error {
	if batch.Len() == 0 {
		return delivery.ErrEmptyBatch
	}

	s.mu.Lock()
	s.batches = append(s.batches, batch)
	succeed, failure, gate, during := s.succeed, s.err, s.gate, s.during
	s.mu.Unlock()

	go func() {
		if gate != nil {
			<-gate
		}
		if during != nil {
			during()
		}

		payload, _ := json.Marshal(batch)
		result := delivery.Result{Success: succeed, Payload: string(payload), RequestID: "req-test"}
		if succeed {
			result.StatusCode = 200
		} else {
			result.Err = failure
			if result.Err == nil {
				result.StatusCode = 500
				result.Err = apperrors.NewNetworkError("http://collector.test", 500, nil)
			}
		}
		onResult(result)
		s.sent <- struct{}{}
	}()
	return nil
}

func (s *fakeSender) setSucceed(succeed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeed = succeed
}

func (s *fakeSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *fakeSender) batch(i int) models.OutboundBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[i]
}

// waitSent blocks until n results have been delivered or the timeout passes
func (s *fakeSender) waitSent(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-s.sent:
		case <-deadline:
			return false
		}
	}
	return true
}

// mockSender is a testify mock for synchronous SendAsync errors
type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendAsync(ctx context.Context, batch models.OutboundBatch, onResult func(delivery.Result)) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

// mockQueueInspector is a testify mock for the queue monitor
type mockQueueInspector struct {
	mock.Mock
}

func (m *mockQueueInspector) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockQueueInspector) OldestCreatedAt(ctx context.Context) (int64, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

// batchSenders decodes the sender field of every record in batch
func batchSenders(batch models.OutboundBatch) []string {
	senders := make([]string, 0, batch.Len())
	for _, raw := range batch.Records {
		var rec struct {
			Sender string `json:"sender"`
		}
		_ = json.Unmarshal(raw, &rec)
		senders = append(senders, rec.Sender)
	}
	return senders
}
