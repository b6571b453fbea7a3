package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/treasuryops/hedgeledger/pkg/journal"
)

// PostgresPostingStore implements PostingStore on PostgreSQL. The unique
// constraint on event_id makes concurrent posting attempts race safely:
// exactly one insert wins, the rest see ErrAlreadyPosted.
type PostgresPostingStore struct {
	db *sql.DB
}

// NewPostgresPostingStore returns a store over the given database handle.
// Schema management is expected to run via migrations; Migrate is provided
// for embedded and test use.
func NewPostgresPostingStore(db *sql.DB) *PostgresPostingStore {
	return &PostgresPostingStore{db: db}
}

// Migrate creates the posting tables if they do not exist.
func (s *PostgresPostingStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS hedge_events (
		event_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS posted_journals (
		journal_id TEXT PRIMARY KEY,
		event_id TEXT UNIQUE NOT NULL,
		rule_id TEXT NOT NULL,
		posted_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS journal_lines (
		journal_id TEXT NOT NULL,
		line_number INTEGER NOT NULL,
		ledger TEXT NOT NULL,
		account TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		segments TEXT,
		narrative TEXT NOT NULL,
		posting_status TEXT NOT NULL,
		export_status TEXT NOT NULL,
		PRIMARY KEY (journal_id, line_number)
	);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// GetJournal implements PostingStore.
func (s *PostgresPostingStore) GetJournal(ctx context.Context, eventID string) (*PostedJournal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT journal_id, event_id, rule_id, posted_at FROM posted_journals WHERE event_id = $1`, eventID)

	var j PostedJournal
	if err := row.Scan(&j.JournalID, &j.EventID, &j.RuleID, &j.PostedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load journal for %s: %w", eventID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT line_number, ledger, account, debit, credit, segments, narrative, posting_status, export_status
		FROM journal_lines WHERE journal_id = $1 ORDER BY line_number`, j.JournalID)
	if err != nil {
		return nil, fmt.Errorf("load lines for %s: %w", j.JournalID, err)
	}
	defer rows.Close()

	for rows.Next() {
		line, err := scanLine(rows, j.JournalID)
		if err != nil {
			return nil, err
		}
		j.Lines = append(j.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &j, nil
}

// PostJournal implements PostingStore.
func (s *PostgresPostingStore) PostJournal(ctx context.Context, j *PostedJournal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin posting tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO posted_journals (journal_id, event_id, rule_id, posted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`,
		j.JournalID, j.EventID, j.RuleID, j.PostedAt)
	if err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check journal insert: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyPosted
	}

	for _, line := range j.Lines {
		segments, err := marshalSegments(line.Segments)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO journal_lines
				(journal_id, line_number, ledger, account, debit, credit, segments, narrative, posting_status, export_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			j.JournalID, line.LineNumber, line.Ledger, line.Account,
			line.Debit.String(), line.Credit.String(), segments, line.Narrative,
			string(journal.PostingStatusPosted), string(journal.ExportStatusPending))
		if err != nil {
			return fmt.Errorf("insert line %d: %w", line.LineNumber, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hedge_events (event_id, status, error_kind, updated_at)
		VALUES ($1, $2, '', $3)
		ON CONFLICT (event_id) DO UPDATE SET status = EXCLUDED.status, error_kind = '', updated_at = EXCLUDED.updated_at`,
		j.EventID, string(EventStatusPosted), j.PostedAt)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit posting tx: %w", err)
	}
	return nil
}

// SetEventStatus implements PostingStore.
func (s *PostgresPostingStore) SetEventStatus(ctx context.Context, eventID string, status EventStatus, errorKind string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hedge_events (event_id, status, error_kind, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (event_id) DO UPDATE SET status = EXCLUDED.status, error_kind = EXCLUDED.error_kind, updated_at = EXCLUDED.updated_at`,
		eventID, string(status), errorKind)
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	return nil
}

// MarkExported implements PostingStore.
func (s *PostgresPostingStore) MarkExported(ctx context.Context, journalID string, lineNumbers []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range lineNumbers {
		_, err := tx.ExecContext(ctx,
			`UPDATE journal_lines SET export_status = $1 WHERE journal_id = $2 AND line_number = $3`,
			string(journal.ExportStatusExported), journalID, n)
		if err != nil {
			return fmt.Errorf("mark line %d exported: %w", n, err)
		}
	}
	return tx.Commit()
}
