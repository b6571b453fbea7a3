//go:build property
// +build property

// Property-based tests for per-ledger balance verification.
package journal_test

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/treasuryops/hedgeledger/pkg/journal"
)

var ledgerGen = gen.OneConstOf("GL", "HEDGE_SUB", "TAX_SUB", "MGMT")

// pairGen produces a matched debit/credit pair on one ledger: the
// smallest unit of a balanced journal.
func pairGen() gopter.Gen {
	return gopter.CombineGens(ledgerGen, gen.Int64Range(1, 1_000_000_00), gen.IntRange(-4, 4)).
		Map(func(vs []interface{}) []journal.Line {
			ledger := vs[0].(string)
			amount := decimal.New(vs[1].(int64), int32(vs[2].(int)))
			return []journal.Line{
				{Ledger: ledger, Account: "110200", Debit: amount},
				{Ledger: ledger, Account: "220100", Credit: amount},
			}
		})
}

func journalGen() gopter.Gen {
	return gen.SliceOf(pairGen()).Map(func(pairs [][]journal.Line) []journal.Line {
		var lines []journal.Line
		for _, p := range pairs {
			lines = append(lines, p...)
		}
		return lines
	})
}

// Any concatenation of matched pairs balances on every ledger.
func TestBalancedPairsAlwaysVerify(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("matched debit/credit pairs balance", prop.ForAll(
		func(lines []journal.Line) bool {
			return journal.VerifyBalance(lines) == nil
		},
		journalGen(),
	))

	properties.TestingRun(t)
}

// Perturbing any single line of a balanced journal by a nonzero delta
// breaks exactly that line's ledger.
func TestPerturbationBreaksOnlyItsLedger(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("single-line perturbation fails verification on that ledger", prop.ForAll(
		func(lines []journal.Line, pick int, delta int64) bool {
			if len(lines) == 0 {
				return true
			}
			i := pick % len(lines)
			perturbed := make([]journal.Line, len(lines))
			copy(perturbed, lines)
			bump := decimal.New(delta, -2)
			perturbed[i].Debit = perturbed[i].Debit.Add(bump)

			err := journal.VerifyBalance(perturbed)
			var ierr *journal.ImbalanceError
			if !errors.As(err, &ierr) {
				return false
			}
			if len(ierr.Deltas) != 1 {
				return false
			}
			got, ok := ierr.Deltas[perturbed[i].Ledger]
			return ok && got.Equal(bump)
		},
		journalGen().SuchThat(func(lines []journal.Line) bool { return len(lines) > 0 }),
		gen.IntRange(0, 1<<20),
		gen.Int64Range(1, 1_000_000),
	))

	properties.TestingRun(t)
}
