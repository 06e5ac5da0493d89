package database

// Failure queue queries
const (
	InsertFailedEventQuery = `
		INSERT INTO failed_events (payload, created_at)
		VALUES (?, ?)
	`

	SelectFailedEventsQuery = `
		SELECT id, payload, created_at
		FROM failed_events
		ORDER BY created_at ASC, id ASC
	`

	DeleteFailedEventQuery = `DELETE FROM failed_events WHERE id = ?`

	CountFailedEventsQuery = `SELECT COUNT(*) FROM failed_events`

	SelectOldestFailedEventQuery = `SELECT MIN(created_at) FROM failed_events`

	PurgeFailedEventsQuery = `DELETE FROM failed_events`
)
