package engine

import (
	"github.com/treasuryops/hedgeledger/pkg/journal"
	"github.com/treasuryops/hedgeledger/pkg/store"
)

// Result is the success payload of a posting attempt.
type Result struct {
	// JournalID equals the event identifier.
	JournalID string `json:"journal_id"`
	// RuleID is the rule that produced the journal.
	RuleID string `json:"rule_id"`
	// Status is the event's final stage status.
	Status store.EventStatus `json:"status"`
	// Ledgers summarizes line count and debit/credit totals per ledger.
	Ledgers []journal.LedgerTotal `json:"ledgers"`
	// Duplicate is set when the attempt short-circuited to an already
	// posted journal instead of posting again.
	Duplicate bool `json:"duplicate"`
	// ReviewFlagged is set when precedence resolution fell through to the
	// final rule-ID tie-break, marking the rulebook for lint review.
	ReviewFlagged bool `json:"review_flagged,omitempty"`
}

// resultFromJournal summarizes a posted journal, for both fresh postings
// and duplicate short-circuits.
func resultFromJournal(j *store.PostedJournal, duplicate, reviewFlagged bool) *Result {
	return &Result{
		JournalID:     j.JournalID,
		RuleID:        j.RuleID,
		Status:        store.EventStatusPosted,
		Ledgers:       journal.Totals(j.Lines),
		Duplicate:     duplicate,
		ReviewFlagged: reviewFlagged,
	}
}
