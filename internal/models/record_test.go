package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError_Error(t *testing.T) {
	err := ConfigError{Message: "test error"}
	assert.Equal(t, "test error", err.Error())
}

func TestTransportRecord_WireNames(t *testing.T) {
	rec := TransportRecord{
		Sender:         "BANK",
		Content:        "OTP 123456",
		ReceiverNumber: "+15551234567",
		SentAt:         1000,
		ReceivedAt:     1000,
		InsertedAt:     1000,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, "BANK", fields["sender"])
	assert.Equal(t, "OTP 123456", fields["content"])
	assert.Equal(t, "+15551234567", fields["receiver_number"])
	assert.Equal(t, "", fields["receiver_iccid"], "device id must serialize as empty string, never null")
	assert.Equal(t, float64(1000), fields["sent_at"])
	assert.Len(t, fields, 7)
}

func TestOutboundBatch_SingleRecordIsArray(t *testing.T) {
	batch, err := NewBatch(TransportRecord{Sender: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())

	data, err := json.Marshal(batch)
	require.NoError(t, err)
	assert.Equal(t, byte('['), data[0])

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "A", decoded[0]["sender"])
}

func TestOutboundBatch_AppendPreservesRawOrder(t *testing.T) {
	var batch OutboundBatch
	batch.Append(json.RawMessage(`{"sender":"A"}`), json.RawMessage(`{"sender":"B"}`))
	batch.Append(json.RawMessage(`{"sender":"C"}`))

	data, err := json.Marshal(batch)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"sender":"A"},{"sender":"B"},{"sender":"C"}]`, string(data))
}

func TestOutboundBatch_EmptyMarshalsAsEmptyArray(t *testing.T) {
	data, err := json.Marshal(OutboundBatch{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestIncomingEvent_Validate(t *testing.T) {
	var nilEvent *IncomingEvent
	assert.Error(t, nilEvent.Validate())
	assert.Error(t, (&IncomingEvent{Content: "x"}).Validate())
	assert.NoError(t, (&IncomingEvent{Sender: "BANK"}).Validate())
}
