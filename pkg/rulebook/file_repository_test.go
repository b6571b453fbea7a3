package rulebook_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treasuryops/hedgeledger/pkg/rulebook"
)

const sampleRulebook = `
rules:
  - id: R-A-COI-INIT
    enabled: true
    effective_from: 2026-01-01
    priority: 5
    version_tag: "1.2.0"
    scope:
      event_type: HEDGE_INITIATION
      posting_model: COI
    segments:
      cost_centre: TREASURY
    lines:
      - sequence: 1
        amount_key: diff_base
        side: DR
        ledger: PRIMARY
        account: "401100"
        narrative_template: rate-diff
      - sequence: 2
        amount_key: diff_base
        side: CR
        ledger: PRIMARY
        account: "201200"
        narrative_template: rate-diff
  - id: R-B-RETIRED
    enabled: true
    effective_from: 2025-01-01
    effective_to: 2025-12-31
    priority: 5
    version_tag: "1.0.0"
    scope:
      event_type: HEDGE_INITIATION
    lines:
      - sequence: 1
        amount_key: diff_base
        side: DR
        ledger: PRIMARY
        account: "401100"
        narrative_template: rate-diff
lints:
  - id: L-DUP-1
    rule_ids: [R-A-COI-INIT, R-B-RETIRED]
    severity: DUPLICATE
    detail: overlapping initiation scopes
`

func writeRulebook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rulebook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	repo, err := rulebook.LoadFile(writeRulebook(t, sampleRulebook))
	require.NoError(t, err)

	active, err := repo.ActiveRules(context.Background(), date("2026-03-15"))
	require.NoError(t, err)
	require.Len(t, active, 1, "retired rule is outside its effective window")
	assert.Equal(t, "R-A-COI-INIT", active[0].ID)
	assert.Equal(t, 2, active[0].Scope.Specificity())
	assert.Equal(t, "TREASURY", active[0].Segments["cost_centre"])
	require.Len(t, active[0].Lines, 2)
	assert.Equal(t, rulebook.SideDebit, active[0].Lines[0].Side)
	assert.Equal(t, "rate-diff", active[0].Lines[0].NarrativeTemplate)

	lints, err := repo.Lints(context.Background())
	require.NoError(t, err)
	require.Len(t, lints, 1)
	assert.Equal(t, rulebook.LintSeverityDuplicate, lints[0].Severity)
	assert.True(t, lints[0].References("R-B-RETIRED"))
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := rulebook.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFile_RejectsInvalidRules(t *testing.T) {
	cases := map[string]string{
		"duplicate id": `
rules:
  - id: R-1
    enabled: true
    effective_from: 2026-01-01
    lines:
      - {sequence: 1, amount_key: k, side: DR, ledger: PRIMARY, account: "1", narrative_template: n}
  - id: R-1
    enabled: true
    effective_from: 2026-01-01
    lines:
      - {sequence: 1, amount_key: k, side: CR, ledger: PRIMARY, account: "2", narrative_template: n}
`,
		"invalid side": `
rules:
  - id: R-1
    enabled: true
    effective_from: 2026-01-01
    lines:
      - {sequence: 1, amount_key: k, side: DEBIT, ledger: PRIMARY, account: "1", narrative_template: n}
`,
		"no lines": `
rules:
  - id: R-1
    enabled: true
    effective_from: 2026-01-01
    lines: []
`,
		"window inverted": `
rules:
  - id: R-1
    enabled: true
    effective_from: 2026-06-01
    effective_to: 2026-01-01
    lines:
      - {sequence: 1, amount_key: k, side: DR, ledger: PRIMARY, account: "1", narrative_template: n}
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := rulebook.LoadFile(writeRulebook(t, doc))
			assert.Error(t, err)
		})
	}
}
