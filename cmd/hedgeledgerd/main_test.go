package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"hedgeledgerd", "help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "server") {
		t.Errorf("usage should mention server command: %s", stdout.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"hedgeledgerd", "frobnicate"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command") {
		t.Errorf("expected unknown-command message, got %s", stderr.String())
	}
}

func TestRunCheck(t *testing.T) {
	dir := t.TempDir()

	rulebookPath := filepath.Join(dir, "rulebook.yaml")
	if err := os.WriteFile(rulebookPath, []byte(`
rules:
  - id: R-SETTLE-STD
    enabled: true
    effective_from: 2026-01-01T00:00:00Z
    scope:
      event_type: HEDGE_SETTLEMENT
    priority: 100
    version_tag: "1.0.0"
    lines:
      - sequence: 1
        amount_key: settle_base
        side: DR
        ledger: GL
        account: "110200"
        narrative_template: T-SETTLE
      - sequence: 2
        amount_key: settle_base
        side: CR
        ledger: GL
        account: "220100"
        narrative_template: T-SETTLE
`), 0o644); err != nil {
		t.Fatal(err)
	}

	refdataPath := filepath.Join(dir, "refdata.yaml")
	if err := os.WriteFile(refdataPath, []byte(`
periods:
  - id: 2026-M03
    start: 2026-03-01T00:00:00Z
    end: 2026-03-31T00:00:00Z
    open: true
accounts:
  - code: "110200"
    active: true
narrative_templates:
  T-SETTLE: "Hedge {event_type} {amount} {currency}"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RULEBOOK_PATH", rulebookPath)
	t.Setenv("REFDATA_PATH", refdataPath)
	t.Setenv("PROFILES_DIR", dir)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"hedgeledgerd", "check"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("check failed: %s%s", stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "rulebook: OK") {
		t.Errorf("expected rulebook OK, got %s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "refdata: OK") {
		t.Errorf("expected refdata OK, got %s", stdout.String())
	}
}

func TestRunCheck_BadRulebook(t *testing.T) {
	dir := t.TempDir()
	rulebookPath := filepath.Join(dir, "rulebook.yaml")
	if err := os.WriteFile(rulebookPath, []byte("rules:\n  - id: R-1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RULEBOOK_PATH", rulebookPath)
	t.Setenv("REFDATA_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("PROFILES_DIR", "")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"hedgeledgerd", "check"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "FAIL") {
		t.Errorf("expected FAIL output, got %s", stderr.String())
	}
}
