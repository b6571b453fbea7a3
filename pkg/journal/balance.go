package journal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// LedgerTotal is the per-ledger debit/credit summary of a journal.
type LedgerTotal struct {
	Ledger string          `json:"ledger"`
	Lines  int             `json:"lines"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// ImbalanceError reports the ledgers whose debit and credit sums differ,
// with the delta per ledger. No ledger may be posted while another is out
// of balance.
type ImbalanceError struct {
	Deltas map[string]decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	ledgers := make([]string, 0, len(e.Deltas))
	for l := range e.Deltas {
		ledgers = append(ledgers, l)
	}
	sort.Strings(ledgers)
	parts := make([]string, len(ledgers))
	for i, l := range ledgers {
		parts[i] = fmt.Sprintf("%s delta %s", l, e.Deltas[l])
	}
	return "journal imbalance: " + strings.Join(parts, "; ")
}

// Totals sums debits and credits per ledger, in ledger first-appearance
// order.
func Totals(lines []Line) []LedgerTotal {
	index := make(map[string]int)
	var totals []LedgerTotal
	for _, line := range lines {
		i, ok := index[line.Ledger]
		if !ok {
			i = len(totals)
			index[line.Ledger] = i
			totals = append(totals, LedgerTotal{Ledger: line.Ledger})
		}
		totals[i].Lines++
		totals[i].Debit = totals[i].Debit.Add(line.Debit)
		totals[i].Credit = totals[i].Credit.Add(line.Credit)
	}
	return totals
}

// VerifyBalance enforces sum(debit) == sum(credit) for every ledger
// touched by the journal. Equality is exact decimal equality; the inputs
// are already rounded monetary values, so no epsilon applies.
func VerifyBalance(lines []Line) error {
	deltas := make(map[string]decimal.Decimal)
	for _, total := range Totals(lines) {
		if !total.Debit.Equal(total.Credit) {
			deltas[total.Ledger] = total.Debit.Sub(total.Credit)
		}
	}
	if len(deltas) > 0 {
		return &ImbalanceError{Deltas: deltas}
	}
	return nil
}
