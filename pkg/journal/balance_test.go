package journal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treasuryops/hedgeledger/pkg/journal"
)

func balancedLines() []journal.Line {
	return []journal.Line{
		{JournalID: "EVT-1", LineNumber: 1, Ledger: "PRIMARY", Account: "401100", Debit: dec("150000")},
		{JournalID: "EVT-1", LineNumber: 2, Ledger: "PRIMARY", Account: "201200", Credit: dec("150000")},
		{JournalID: "EVT-1", LineNumber: 3, Ledger: "LOCAL", Account: "401100", Debit: dec("145000")},
		{JournalID: "EVT-1", LineNumber: 4, Ledger: "LOCAL", Account: "201200", Credit: dec("145000")},
	}
}

func TestVerifyBalance_Balanced(t *testing.T) {
	assert.NoError(t, journal.VerifyBalance(balancedLines()))
}

func TestVerifyBalance_ReportsPerLedgerDeltas(t *testing.T) {
	lines := balancedLines()
	lines[3].Credit = dec("144999.99")

	err := journal.VerifyBalance(lines)
	var ierr *journal.ImbalanceError
	require.ErrorAs(t, err, &ierr)

	require.Len(t, ierr.Deltas, 1, "the balanced ledger is not reported")
	assert.True(t, ierr.Deltas["LOCAL"].Equal(dec("0.01")))
	assert.Contains(t, ierr.Error(), "LOCAL delta 0.01")
}

func TestVerifyBalance_ExactDecimalEquality(t *testing.T) {
	// 0.001 off must fail; there is no epsilon tolerance.
	lines := []journal.Line{
		{Ledger: "PRIMARY", Debit: dec("100.000")},
		{Ledger: "PRIMARY", Credit: dec("99.999")},
	}
	assert.Error(t, journal.VerifyBalance(lines))

	// Trailing zeros are a representation detail, not a value difference.
	lines[1].Credit = dec("100.00")
	assert.NoError(t, journal.VerifyBalance(lines))
}

func TestTotals(t *testing.T) {
	totals := journal.Totals(balancedLines())
	require.Len(t, totals, 2)
	assert.Equal(t, "PRIMARY", totals[0].Ledger)
	assert.Equal(t, 2, totals[0].Lines)
	assert.True(t, totals[0].Debit.Equal(dec("150000")))
	assert.True(t, totals[0].Credit.Equal(dec("150000")))
	assert.Equal(t, "LOCAL", totals[1].Ledger)
	assert.True(t, totals[1].Debit.Equal(dec("145000")))
}
