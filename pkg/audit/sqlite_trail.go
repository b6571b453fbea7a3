package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteTrail persists the audit chain in SQLite. Appends are serialized
// in-process so the hash chain stays linear.
type SQLiteTrail struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteTrail creates the audit table if needed and returns a trail
// over the given database handle.
func NewSQLiteTrail(db *sql.DB) (*SQLiteTrail, error) {
	t := &SQLiteTrail{db: db}
	if err := t.migrate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SQLiteTrail) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_records (
		id TEXT PRIMARY KEY,
		sequence INTEGER UNIQUE NOT NULL,
		event_id TEXT NOT NULL,
		action TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		payload TEXT,
		timestamp DATETIME NOT NULL,
		previous_hash TEXT NOT NULL,
		entry_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_records(event_id);`
	_, err := t.db.ExecContext(context.Background(), query)
	return err
}

// Append implements Trail.
func (t *SQLiteTrail) Append(ctx context.Context, eventID string, action Action, errorKind string, payload any) (*Record, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sequence, head, err := t.chainHead(ctx)
	if err != nil {
		return nil, err
	}

	record := &Record{
		ID:           uuid.New().String(),
		Sequence:     sequence + 1,
		EventID:      eventID,
		Action:       action,
		ErrorKind:    errorKind,
		Payload:      payloadBytes,
		Timestamp:    time.Now().UTC(),
		PreviousHash: head,
	}
	hash, err := computeEntryHash(record)
	if err != nil {
		return nil, err
	}
	record.EntryHash = hash

	_, err = t.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, sequence, event_id, action, error_kind, payload, timestamp, previous_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Sequence, record.EventID, string(record.Action), record.ErrorKind,
		string(record.Payload), record.Timestamp, record.PreviousHash, record.EntryHash,
	)
	if err != nil {
		return nil, fmt.Errorf("append audit record: %w", err)
	}
	return record, nil
}

// Records returns the records for an event in sequence order.
func (t *SQLiteTrail) Records(ctx context.Context, eventID string) ([]*Record, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, sequence, event_id, action, error_kind, payload, timestamp, previous_hash, entry_hash
		FROM audit_records WHERE event_id = ? ORDER BY sequence`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		var action, payload string
		if err := rows.Scan(&r.ID, &r.Sequence, &r.EventID, &action, &r.ErrorKind,
			&payload, &r.Timestamp, &r.PreviousHash, &r.EntryHash); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Action = Action(action)
		r.Payload = json.RawMessage(payload)
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (t *SQLiteTrail) chainHead(ctx context.Context) (uint64, string, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT sequence, entry_hash FROM audit_records ORDER BY sequence DESC LIMIT 1`)

	var sequence uint64
	var head string
	err := row.Scan(&sequence, &head)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, genesisHash, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("read audit chain head: %w", err)
	}
	return sequence, head, nil
}
