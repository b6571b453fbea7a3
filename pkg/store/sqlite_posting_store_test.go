package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/treasuryops/hedgeledger/pkg/journal"
	"github.com/treasuryops/hedgeledger/pkg/store"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// The pool must stay on one connection or each new connection gets a
	// fresh empty in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleJournal() *store.PostedJournal {
	return &store.PostedJournal{
		JournalID: "EVT-1001",
		EventID:   "EVT-1001",
		RuleID:    "R-A-COI-INIT",
		PostedAt:  time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
		Lines: []journal.Line{
			{JournalID: "EVT-1001", LineNumber: 1, Ledger: "PRIMARY", Account: "401100",
				Debit: dec("150000"), Credit: decimal.Zero,
				Segments:  map[string]string{"cost_centre": "TREASURY"},
				Narrative: "Rate differential USD 150000"},
			{JournalID: "EVT-1001", LineNumber: 2, Ledger: "PRIMARY", Account: "201200",
				Debit: decimal.Zero, Credit: dec("150000"),
				Narrative: "Rate differential USD 150000"},
		},
	}
}

func TestSQLitePostingStore_PostAndGet(t *testing.T) {
	s, err := store.NewSQLitePostingStore(openSQLite(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.GetJournal(ctx, "EVT-1001")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PostJournal(ctx, sampleJournal()))

	got, err := s.GetJournal(ctx, "EVT-1001")
	require.NoError(t, err)
	assert.Equal(t, "R-A-COI-INIT", got.RuleID)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[0].Debit.Equal(dec("150000")))
	assert.True(t, got.Lines[0].Credit.IsZero())
	assert.Equal(t, map[string]string{"cost_centre": "TREASURY"}, got.Lines[0].Segments)
	assert.Equal(t, journal.PostingStatusPosted, got.Lines[0].PostingStatus)
	assert.Equal(t, journal.ExportStatusPending, got.Lines[0].ExportStatus)

	status, errorKind, err := s.EventStatus(ctx, "EVT-1001")
	require.NoError(t, err)
	assert.Equal(t, store.EventStatusPosted, status)
	assert.Empty(t, errorKind)
}

func TestSQLitePostingStore_SecondPostIsRejected(t *testing.T) {
	s, err := store.NewSQLitePostingStore(openSQLite(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PostJournal(ctx, sampleJournal()))
	err = s.PostJournal(ctx, sampleJournal())
	assert.ErrorIs(t, err, store.ErrAlreadyPosted)

	// The first posting is untouched.
	got, err := s.GetJournal(ctx, "EVT-1001")
	require.NoError(t, err)
	assert.Len(t, got.Lines, 2)
}

func TestSQLitePostingStore_SetEventStatus(t *testing.T) {
	s, err := store.NewSQLitePostingStore(openSQLite(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SetEventStatus(ctx, "EVT-9", store.EventStatusFailed, "PERIOD_CLOSED"))

	status, errorKind, err := s.EventStatus(ctx, "EVT-9")
	require.NoError(t, err)
	assert.Equal(t, store.EventStatusFailed, status)
	assert.Equal(t, "PERIOD_CLOSED", errorKind)

	// A later attempt overwrites the terminal failure.
	require.NoError(t, s.SetEventStatus(ctx, "EVT-9", store.EventStatusPosted, ""))
	status, errorKind, err = s.EventStatus(ctx, "EVT-9")
	require.NoError(t, err)
	assert.Equal(t, store.EventStatusPosted, status)
	assert.Empty(t, errorKind)
}

func TestSQLitePostingStore_MarkExported(t *testing.T) {
	s, err := store.NewSQLitePostingStore(openSQLite(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PostJournal(ctx, sampleJournal()))
	require.NoError(t, s.MarkExported(ctx, "EVT-1001", []int{1}))

	got, err := s.GetJournal(ctx, "EVT-1001")
	require.NoError(t, err)
	assert.Equal(t, journal.ExportStatusExported, got.Lines[0].ExportStatus)
	assert.Equal(t, journal.ExportStatusPending, got.Lines[1].ExportStatus)
}

func TestMemoryPostingStore_Idempotency(t *testing.T) {
	s := store.NewMemoryPostingStore()
	ctx := context.Background()

	require.NoError(t, s.PostJournal(ctx, sampleJournal()))
	assert.ErrorIs(t, s.PostJournal(ctx, sampleJournal()), store.ErrAlreadyPosted)

	got, err := s.GetJournal(ctx, "EVT-1001")
	require.NoError(t, err)
	assert.Equal(t, journal.PostingStatusPosted, got.Lines[0].PostingStatus)

	status, ok := s.EventStatus("EVT-1001")
	require.True(t, ok)
	assert.Equal(t, store.EventStatusPosted, status)
}
