package store_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treasuryops/hedgeledger/pkg/store"
)

func TestPostgresPostingStore_PostJournal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.NewPostgresPostingStore(db)
	j := sampleJournal()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO posted_journals")).
		WithArgs(j.JournalID, j.EventID, j.RuleID, j.PostedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO journal_lines")).
		WithArgs(j.JournalID, 1, "PRIMARY", "401100", "150000", "0", sqlmock.AnyArg(),
			j.Lines[0].Narrative, "POSTED", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO journal_lines")).
		WithArgs(j.JournalID, 2, "PRIMARY", "201200", "0", "150000", sqlmock.AnyArg(),
			j.Lines[1].Narrative, "POSTED", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hedge_events")).
		WithArgs(j.EventID, "POSTED", j.PostedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.PostJournal(context.Background(), j))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostingStore_ConflictShortCircuits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.NewPostgresPostingStore(db)
	j := sampleJournal()

	// ON CONFLICT DO NOTHING reports zero rows affected when the event is
	// already posted; no line inserts may follow.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO posted_journals")).
		WithArgs(j.JournalID, j.EventID, j.RuleID, j.PostedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = s.PostJournal(context.Background(), j)
	assert.ErrorIs(t, err, store.ErrAlreadyPosted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostingStore_GetJournal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.NewPostgresPostingStore(db)
	postedAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT journal_id, event_id, rule_id, posted_at FROM posted_journals WHERE event_id = $1")).
		WithArgs("EVT-1001").
		WillReturnRows(sqlmock.NewRows([]string{"journal_id", "event_id", "rule_id", "posted_at"}).
			AddRow("EVT-1001", "EVT-1001", "R-A-COI-INIT", postedAt))
	mock.ExpectQuery(regexp.QuoteMeta("FROM journal_lines WHERE journal_id = $1")).
		WithArgs("EVT-1001").
		WillReturnRows(sqlmock.NewRows([]string{"line_number", "ledger", "account", "debit", "credit",
			"segments", "narrative", "posting_status", "export_status"}).
			AddRow(1, "PRIMARY", "401100", "150000", "0", `{"cost_centre":"TREASURY"}`, "n1", "POSTED", "PENDING").
			AddRow(2, "PRIMARY", "201200", "0", "150000", nil, "n2", "POSTED", "PENDING"))

	got, err := s.GetJournal(context.Background(), "EVT-1001")
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[0].Debit.Equal(dec("150000")))
	assert.Equal(t, "TREASURY", got.Lines[0].Segments["cost_centre"])
	assert.Nil(t, got.Lines[1].Segments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPostingStore_GetJournal_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.NewPostgresPostingStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT journal_id, event_id, rule_id, posted_at FROM posted_journals WHERE event_id = $1")).
		WithArgs("EVT-MISSING").
		WillReturnRows(sqlmock.NewRows([]string{"journal_id", "event_id", "rule_id", "posted_at"}))

	_, err = s.GetJournal(context.Background(), "EVT-MISSING")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
