package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sensilo/sensilo/internal/ingest"
)

// Sqlite archives sample batches into a local sqlite file. Meant for
// development and offline capture sessions, not as durable spill for the
// best-effort pipeline: a dropped batch stays dropped.
type Sqlite struct {
	path string
	db   *sql.DB
}

// NewSqlite opens (and if needed initializes) the archive database.
func NewSqlite(path string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: opening sqlite %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS samples (
			batch_id          TEXT,
			device            TEXT,
			address           TEXT,
			location          TEXT,
			kind              TEXT,
			value             BIGINT,
			counter           INTEGER,
			rssi              INTEGER,
			received_at       TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS samples_device_time ON samples (device, received_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: initializing sqlite schema: %w", err)
	}
	return &Sqlite{path: path, db: db}, nil
}

func (s *Sqlite) Name() string {
	return "sqlite " + s.path
}

// Write inserts the batch in one transaction under a shared batch ID.
func (s *Sqlite) Write(ctx context.Context, samples []ingest.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: beginning sqlite transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (batch_id, device, address, location, kind, value, counter, rssi, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sink: preparing sqlite insert: %w", err)
	}
	defer stmt.Close()

	batchID := uuid.NewString()
	for _, sample := range samples {
		_, err := stmt.ExecContext(ctx,
			batchID, sample.Device, sample.Address.String(), sample.Location,
			sample.Kind.String(), sample.Value, sample.Counter, sample.RSSI,
			sample.ReceivedAt.UTC())
		if err != nil {
			return fmt.Errorf("sink: inserting sample: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: committing batch %s: %w", batchID, err)
	}
	return nil
}

// Close closes the database.
func (s *Sqlite) Close() error {
	return s.db.Close()
}
