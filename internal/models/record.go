package models

import (
	"encoding/json"
	"fmt"
)

// IncomingEvent is an SMS as handed over by the event source. Sender and
// Content are expected to be validated before the event reaches the relay.
type IncomingEvent struct {
	Sender           string `json:"sender"`
	Content          string `json:"content"`
	Timestamp        int64  `json:"timestamp"`
	ReceiverAddress  string `json:"receiver_address"`
	ReceiverDeviceID string `json:"receiver_device_id"`
}

// Validate rejects events that cannot be turned into a TransportRecord.
func (e *IncomingEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	if e.Sender == "" {
		return fmt.Errorf("event sender is empty")
	}
	return nil
}

// TransportRecord is the canonical field set of one SMS as the collection
// server receives it. The device id travels as receiver_iccid.
type TransportRecord struct {
	Sender           string `json:"sender"`
	Content          string `json:"content"`
	ReceiverNumber   string `json:"receiver_number"`
	ReceiverDeviceID string `json:"receiver_iccid"`
	SentAt           int64  `json:"sent_at"`
	ReceivedAt       int64  `json:"received_at"`
	InsertedAt       int64  `json:"inserted_at"`
}

// SealedPayload is base64 ciphertext produced by the crypto sealer.
type SealedPayload string

// OutboundBatch is an ordered list of JSON objects sent under "data".
// Records are kept raw so that payloads read back from the failure queue are
// relayed exactly as they were stored.
type OutboundBatch struct {
	Records []json.RawMessage
}

// NewBatch wraps one or more records into a batch.
func NewBatch(records ...TransportRecord) (OutboundBatch, error) {
	batch := OutboundBatch{Records: make([]json.RawMessage, 0, len(records))}
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return OutboundBatch{}, fmt.Errorf("failed to marshal record: %w", err)
		}
		batch.Records = append(batch.Records, raw)
	}
	return batch, nil
}

// Len returns the number of records in the batch.
func (b OutboundBatch) Len() int {
	return len(b.Records)
}

// Append adds raw record objects to the end of the batch.
func (b *OutboundBatch) Append(records ...json.RawMessage) {
	b.Records = append(b.Records, records...)
}

// MarshalJSON always encodes the batch as an array, even for one record.
func (b OutboundBatch) MarshalJSON() ([]byte, error) {
	if b.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.Records)
}
