package journal

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/treasuryops/hedgeledger/pkg/amounts"
	"github.com/treasuryops/hedgeledger/pkg/refdata"
	"github.com/treasuryops/hedgeledger/pkg/rulebook"
)

// Generator expands a rule's line templates into journal lines.
type Generator struct {
	templates refdata.TemplateSource
}

// NewGenerator builds a Generator over the given narrative templates.
func NewGenerator(templates refdata.TemplateSource) *Generator {
	return &Generator{templates: templates}
}

// Generate produces one journal line per rule line, in sequence order:
// segments are shallow-merged (line overrides over rule defaults), the
// narrative template is resolved against the fixed variable namespace plus
// the amount package entries, and the amount is assigned to the debit or
// credit side per the line's indicator. Amounts for every referenced key
// must already be resolved; a missing entry here is a programming error,
// not a validation failure.
func (g *Generator) Generate(
	ctx context.Context,
	ec rulebook.EventContext,
	rule rulebook.Rule,
	pkg *amounts.Package,
	resolved map[string]decimal.Decimal,
) ([]Line, error) {
	ordered := make([]rulebook.RuleLine, len(rule.Lines))
	copy(ordered, rule.Lines)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	baseVars := narrativeVars(ec, pkg)

	lines := make([]Line, 0, len(ordered))
	for i, rl := range ordered {
		amount, ok := resolved[rl.AmountKey]
		if !ok {
			return nil, fmt.Errorf("amount key %q not resolved for rule %s line %d", rl.AmountKey, rule.ID, rl.Sequence)
		}

		template, found, err := g.templates.Template(ctx, rl.NarrativeTemplate)
		if err != nil {
			return nil, fmt.Errorf("template lookup %q: %w", rl.NarrativeTemplate, err)
		}
		if !found {
			return nil, &NarrativeError{TemplateID: rl.NarrativeTemplate, Missing: true}
		}

		vars := make(map[string]string, len(baseVars)+1)
		for k, v := range baseVars {
			vars[k] = v
		}
		vars["amount"] = amount.String()

		narrative, err := resolveNarrative(rl.NarrativeTemplate, template, vars)
		if err != nil {
			return nil, err
		}

		line := Line{
			JournalID:     ec.EventID,
			LineNumber:    i + 1,
			Ledger:        rl.Ledger,
			Account:       rl.Account,
			Segments:      mergeSegments(rule.Segments, rl.Segments),
			Narrative:     narrative,
			PostingStatus: PostingStatusGenerated,
			ExportStatus:  ExportStatusPending,
		}
		switch rl.Side {
		case rulebook.SideDebit:
			line.Debit = amount
		case rulebook.SideCredit:
			line.Credit = amount
		default:
			return nil, fmt.Errorf("rule %s line %d: invalid side %q", rule.ID, rl.Sequence, rl.Side)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// narrativeVars builds the fixed variable namespace: event attributes,
// currency and rate metadata, and every amount package entry by key name.
func narrativeVars(ec rulebook.EventContext, pkg *amounts.Package) map[string]string {
	vars := map[string]string{
		"event_id":        ec.EventID,
		"event_type":      ec.EventType,
		"posting_model":   ec.PostingModel,
		"currency":        pkg.Currency(),
		"rate":            pkg.Rate().String(),
		"accounting_date": ec.AccountingDate.Format("2006-01-02"),
	}
	for _, key := range pkg.Keys() {
		if v, ok := pkg.Value(key); ok {
			vars[key] = v.String()
		}
	}
	return vars
}
