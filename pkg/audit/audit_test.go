package audit_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/treasuryops/hedgeledger/pkg/audit"
)

func TestMemoryTrail_ChainsRecords(t *testing.T) {
	trail := audit.NewMemoryTrail()
	ctx := context.Background()

	first, err := trail.Append(ctx, "EVT-1", audit.ActionRuleSelected, "", map[string]string{"rule_id": "R-A"})
	require.NoError(t, err)
	second, err := trail.Append(ctx, "EVT-1", audit.ActionValidationPassed, "", nil)
	require.NoError(t, err)
	third, err := trail.Append(ctx, "EVT-2", audit.ActionFailed, "PERIOD_CLOSED", map[string]string{"period": "2026-M02"})
	require.NoError(t, err)

	assert.Equal(t, "genesis", first.PreviousHash)
	assert.Equal(t, first.EntryHash, second.PreviousHash)
	assert.Equal(t, second.EntryHash, third.PreviousHash)

	require.NoError(t, trail.Verify())

	forEvent, err := trail.Records(ctx, "EVT-1")
	require.NoError(t, err)
	assert.Len(t, forEvent, 2)
	all, err := trail.Records(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryTrail_VerifyDetectsTampering(t *testing.T) {
	trail := audit.NewMemoryTrail()
	ctx := context.Background()

	_, err := trail.Append(ctx, "EVT-1", audit.ActionRuleSelected, "", nil)
	require.NoError(t, err)
	_, err = trail.Append(ctx, "EVT-1", audit.ActionLinesPosted, "", nil)
	require.NoError(t, err)

	records, err := trail.Records(ctx, "")
	require.NoError(t, err)
	records[0].EventID = "EVT-FORGED"

	assert.Error(t, trail.Verify())
}

func TestSQLiteTrail(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	// In-memory sqlite gives every pooled connection its own database.
	db.SetMaxOpenConns(1)

	trail, err := audit.NewSQLiteTrail(db)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := trail.Append(ctx, "EVT-1", audit.ActionRuleSelected, "", map[string]string{"rule_id": "R-A"})
	require.NoError(t, err)
	second, err := trail.Append(ctx, "EVT-1", audit.ActionFailed, "JOURNAL_IMBALANCE", nil)
	require.NoError(t, err)

	assert.Equal(t, "genesis", first.PreviousHash)
	assert.Equal(t, first.EntryHash, second.PreviousHash)

	records, err := trail.Records(ctx, "EVT-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, audit.ActionRuleSelected, records[0].Action)
	assert.Equal(t, "JOURNAL_IMBALANCE", records[1].ErrorKind)
	assert.Equal(t, uint64(2), records[1].Sequence)
}
