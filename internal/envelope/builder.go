package envelope

import (
	"time"

	"smsrelay/internal/models"
)

// Clock returns the current time
type Clock func() time.Time

// Builder turns incoming events into transport records
type Builder struct {
	now Clock
}

// NewBuilder creates a builder; a nil clock uses time.Now
func NewBuilder(now Clock) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// Build reads the clock once and stamps sent_at, received_at and inserted_at
// with the same millisecond value.
func (b *Builder) Build(event models.IncomingEvent, receiverNumber, receiverDeviceID string) models.TransportRecord {
	captured := b.now().UnixMilli()
	return models.TransportRecord{
		Sender:           event.Sender,
		Content:          event.Content,
		ReceiverNumber:   receiverNumber,
		ReceiverDeviceID: receiverDeviceID,
		SentAt:           captured,
		ReceivedAt:       captured,
		InsertedAt:       captured,
	}
}
