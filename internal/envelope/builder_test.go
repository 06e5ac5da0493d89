package envelope

import (
	"testing"
	"time"

	"smsrelay/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuilder_Build(t *testing.T) {
	calls := 0
	fixed := time.UnixMilli(1700000000123)
	builder := NewBuilder(func() time.Time {
		calls++
		return fixed
	})

	rec := builder.Build(models.IncomingEvent{
		Sender:    "BANK",
		Content:   "OTP 123456",
		Timestamp: 1000,
	}, "+15551234567", "8901260000000000001")

	assert.Equal(t, 1, calls, "clock must be read exactly once")
	assert.Equal(t, "BANK", rec.Sender)
	assert.Equal(t, "OTP 123456", rec.Content)
	assert.Equal(t, "+15551234567", rec.ReceiverNumber)
	assert.Equal(t, "8901260000000000001", rec.ReceiverDeviceID)
	assert.Equal(t, int64(1700000000123), rec.SentAt)
	assert.Equal(t, rec.SentAt, rec.ReceivedAt)
	assert.Equal(t, rec.SentAt, rec.InsertedAt)
}

func TestBuilder_EmptyDeviceID(t *testing.T) {
	builder := NewBuilder(nil)

	before := time.Now().UnixMilli()
	rec := builder.Build(models.IncomingEvent{Sender: "A", Content: ""}, "+1555", "")
	after := time.Now().UnixMilli()

	assert.Equal(t, "", rec.ReceiverDeviceID)
	assert.Equal(t, "", rec.Content)
	assert.GreaterOrEqual(t, rec.SentAt, before)
	assert.LessOrEqual(t, rec.SentAt, after)
}
