// Package journal turns a selected rule and its resolved amounts into
// balanced, ledger-scoped journal lines.
package journal

import (
	"github.com/shopspring/decimal"
)

// PostingStatus is the lifecycle state of a journal line.
type PostingStatus string

const (
	PostingStatusGenerated PostingStatus = "GENERATED"
	PostingStatusPosted    PostingStatus = "POSTED"
)

// ExportStatus tracks downstream export of a posted line.
type ExportStatus string

const (
	ExportStatusPending  ExportStatus = "PENDING"
	ExportStatusExported ExportStatus = "EXPORTED"
)

// Line is one generated debit or credit. Exactly one of Debit and Credit
// is non-zero. The journal identifier equals the originating event
// identifier for traceability; line numbers preserve rule-line sequence
// order.
type Line struct {
	JournalID     string            `json:"journal_id"`
	LineNumber    int               `json:"line_number"`
	Ledger        string            `json:"ledger"`
	Account       string            `json:"account"`
	Debit         decimal.Decimal   `json:"debit"`
	Credit        decimal.Decimal   `json:"credit"`
	Segments      map[string]string `json:"segments,omitempty"`
	Narrative     string            `json:"narrative"`
	PostingStatus PostingStatus     `json:"posting_status"`
	ExportStatus  ExportStatus      `json:"export_status"`
}

// Ledgers returns the distinct ledgers touched by the lines, in
// first-appearance order.
func Ledgers(lines []Line) []string {
	seen := make(map[string]struct{})
	var ledgers []string
	for _, l := range lines {
		if _, ok := seen[l.Ledger]; ok {
			continue
		}
		seen[l.Ledger] = struct{}{}
		ledgers = append(ledgers, l.Ledger)
	}
	return ledgers
}

// mergeSegments shallow-merges line overrides over rule defaults, line
// values winning on collision.
func mergeSegments(defaults, overrides map[string]string) map[string]string {
	if len(defaults) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
