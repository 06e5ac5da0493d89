package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/migrations"
	"smsrelay/internal/models"
	"smsrelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the durable failure queue. Rows are payloads whose delivery
// failed and that wait for the next drain.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens (creating if needed) the queue database at dbPath. With
// encryptPayloads set, payloads are sealed at rest with a key derived from
// SMSRELAY_DB_ENCRYPTION_SECRET.
func New(dbPath string, encryptPayloads bool) (*Database, error) {
	if err := validatePath(dbPath); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, apperrors.NewDatabaseError("create file", err)
	}
	if err := file.Close(); err != nil {
		return nil, apperrors.NewDatabaseError("close file", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, apperrors.NewDatabaseError("open", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, closeWith(db, apperrors.NewDatabaseError("ping", err))
	}

	if _, err := migrations.Apply(context.Background(), db); err != nil {
		return nil, closeWith(db, apperrors.NewDatabaseError("migrate", err))
	}

	encryptor, err := NewEncryptor(encryptPayloads)
	if err != nil {
		return nil, closeWith(db, err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func validatePath(dbPath string) error {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return apperrors.NewInvalidInputError("database.path", err.Error())
	}
	return nil
}

func closeWith(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

// Close releases the underlying connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Append stores a failed payload and returns its row id
func (d *Database) Append(ctx context.Context, payload string, createdAt int64) (int64, error) {
	stored, err := d.encryptor.Encrypt(payload)
	if err != nil {
		return 0, err
	}

	var id int64
	err = retryableDBOperationNoReturn(ctx, func() error {
		res, err := d.db.ExecContext(ctx, InsertFailedEventQuery, stored, createdAt)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	}, "append failed event")
	if err != nil {
		return 0, apperrors.NewDatabaseError("append", err)
	}
	return id, nil
}

// ListAll returns every queued entry, oldest first
func (d *Database) ListAll(ctx context.Context) ([]models.FailureQueueEntry, error) {
	rows, err := d.db.QueryContext(ctx, SelectFailedEventsQuery)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list", err)
	}
	defer rows.Close()

	var entries []models.FailureQueueEntry
	for rows.Next() {
		var entry models.FailureQueueEntry
		var stored string
		if err := rows.Scan(&entry.ID, &stored, &entry.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan", err)
		}
		entry.Payload, err = d.encryptor.Decrypt(stored)
		if err != nil {
			return nil, apperrors.NewDatabaseError("decrypt", err).WithContext("entry_id", entry.ID)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list", err)
	}
	return entries, nil
}

// Remove deletes an entry. Removing an id that is not present succeeds.
func (d *Database) Remove(ctx context.Context, id int64) error {
	err := retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, DeleteFailedEventQuery, id)
		return err
	}, "remove failed event")
	if err != nil {
		return apperrors.NewDatabaseError("remove", err)
	}
	return nil
}

// Count returns the number of queued entries
func (d *Database) Count(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, CountFailedEventsQuery).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError("count", err)
	}
	return count, nil
}

// OldestCreatedAt returns the creation time of the oldest entry; ok is
// false when the queue is empty.
func (d *Database) OldestCreatedAt(ctx context.Context) (createdAt int64, ok bool, err error) {
	var oldest sql.NullInt64
	if err := d.db.QueryRowContext(ctx, SelectOldestFailedEventQuery).Scan(&oldest); err != nil {
		return 0, false, apperrors.NewDatabaseError("oldest", err)
	}
	return oldest.Int64, oldest.Valid, nil
}

// Purge deletes every queued entry and returns how many were removed
func (d *Database) Purge(ctx context.Context) (int64, error) {
	var removed int64
	err := retryableDBOperationNoReturn(ctx, func() error {
		res, err := d.db.ExecContext(ctx, PurgeFailedEventsQuery)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	}, "purge failed events")
	if err != nil {
		return 0, apperrors.NewDatabaseError("purge", err)
	}
	return removed, nil
}
