package models

// FailureQueueEntry is one undelivered payload waiting for retry. Payload is
// the JSON object or array that failed to send; CreatedAt is in milliseconds.
type FailureQueueEntry struct {
	ID        int64  `json:"id"`
	Payload   string `json:"payload"`
	CreatedAt int64  `json:"createdAt"`
}
