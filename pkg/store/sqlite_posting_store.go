package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/treasuryops/hedgeledger/pkg/journal"

	_ "modernc.org/sqlite"
)

// SQLitePostingStore implements PostingStore on SQLite.
type SQLitePostingStore struct {
	db *sql.DB
}

// NewSQLitePostingStore migrates the schema and returns a store over the
// given database handle.
func NewSQLitePostingStore(db *sql.DB) (*SQLitePostingStore, error) {
	s := &SQLitePostingStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLitePostingStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS hedge_events (
		event_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS posted_journals (
		journal_id TEXT PRIMARY KEY,
		event_id TEXT UNIQUE NOT NULL,
		rule_id TEXT NOT NULL,
		posted_at DATETIME NOT NULL
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
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// GetJournal implements PostingStore.
func (s *SQLitePostingStore) GetJournal(ctx context.Context, eventID string) (*PostedJournal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT journal_id, event_id, rule_id, posted_at FROM posted_journals WHERE event_id = ?`, eventID)

	var j PostedJournal
	if err := row.Scan(&j.JournalID, &j.EventID, &j.RuleID, &j.PostedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load journal for %s: %w", eventID, err)
	}

	lines, err := s.loadLines(ctx, j.JournalID)
	if err != nil {
		return nil, err
	}
	j.Lines = lines
	return &j, nil
}

// PostJournal implements PostingStore. All inserts run in one transaction
// so a failure leaves no partial lines visible.
func (s *SQLitePostingStore) PostJournal(ctx context.Context, j *PostedJournal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin posting tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT journal_id FROM posted_journals WHERE event_id = ?`, j.EventID).Scan(&existing)
	if err == nil {
		return ErrAlreadyPosted
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check existing journal: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO posted_journals (journal_id, event_id, rule_id, posted_at) VALUES (?, ?, ?, ?)`,
		j.JournalID, j.EventID, j.RuleID, j.PostedAt)
	if err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}

	for _, line := range j.Lines {
		segments, err := marshalSegments(line.Segments)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO journal_lines
				(journal_id, line_number, ledger, account, debit, credit, segments, narrative, posting_status, export_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.JournalID, line.LineNumber, line.Ledger, line.Account,
			line.Debit.String(), line.Credit.String(), segments, line.Narrative,
			string(journal.PostingStatusPosted), string(journal.ExportStatusPending))
		if err != nil {
			return fmt.Errorf("insert line %d: %w", line.LineNumber, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hedge_events (event_id, status, error_kind, updated_at)
		VALUES (?, ?, '', ?)
		ON CONFLICT(event_id) DO UPDATE SET status = excluded.status, error_kind = '', updated_at = excluded.updated_at`,
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
func (s *SQLitePostingStore) SetEventStatus(ctx context.Context, eventID string, status EventStatus, errorKind string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hedge_events (event_id, status, error_kind, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(event_id) DO UPDATE SET status = excluded.status, error_kind = excluded.error_kind, updated_at = excluded.updated_at`,
		eventID, string(status), errorKind)
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	return nil
}

// EventStatus returns the persisted status for an event.
func (s *SQLitePostingStore) EventStatus(ctx context.Context, eventID string) (EventStatus, string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT status, error_kind FROM hedge_events WHERE event_id = ?`, eventID)
	var status, errorKind string
	if err := row.Scan(&status, &errorKind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("load event status: %w", err)
	}
	return EventStatus(status), errorKind, nil
}

// MarkExported implements PostingStore.
func (s *SQLitePostingStore) MarkExported(ctx context.Context, journalID string, lineNumbers []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range lineNumbers {
		_, err := tx.ExecContext(ctx,
			`UPDATE journal_lines SET export_status = ? WHERE journal_id = ? AND line_number = ?`,
			string(journal.ExportStatusExported), journalID, n)
		if err != nil {
			return fmt.Errorf("mark line %d exported: %w", n, err)
		}
	}
	return tx.Commit()
}

func (s *SQLitePostingStore) loadLines(ctx context.Context, journalID string) ([]journal.Line, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_number, ledger, account, debit, credit, segments, narrative, posting_status, export_status
		FROM journal_lines WHERE journal_id = ? ORDER BY line_number`, journalID)
	if err != nil {
		return nil, fmt.Errorf("load lines for %s: %w", journalID, err)
	}
	defer rows.Close()

	var lines []journal.Line
	for rows.Next() {
		line, err := scanLine(rows, journalID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(row rowScanner, journalID string) (journal.Line, error) {
	var line journal.Line
	var debit, credit, postingStatus, exportStatus string
	var segments sql.NullString

	err := row.Scan(&line.LineNumber, &line.Ledger, &line.Account, &debit, &credit,
		&segments, &line.Narrative, &postingStatus, &exportStatus)
	if err != nil {
		return journal.Line{}, fmt.Errorf("scan line: %w", err)
	}

	line.JournalID = journalID
	line.PostingStatus = journal.PostingStatus(postingStatus)
	line.ExportStatus = journal.ExportStatus(exportStatus)

	if line.Debit, err = decimal.NewFromString(debit); err != nil {
		return journal.Line{}, fmt.Errorf("parse debit %q: %w", debit, err)
	}
	if line.Credit, err = decimal.NewFromString(credit); err != nil {
		return journal.Line{}, fmt.Errorf("parse credit %q: %w", credit, err)
	}
	if segments.Valid && segments.String != "" {
		if err := json.Unmarshal([]byte(segments.String), &line.Segments); err != nil {
			return journal.Line{}, fmt.Errorf("parse segments: %w", err)
		}
	}
	return line, nil
}

func marshalSegments(segments map[string]string) (sql.NullString, error) {
	if len(segments) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(segments)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal segments: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
