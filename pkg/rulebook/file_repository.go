package rulebook

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// rulebookFile is the on-disk shape of a rulebook document.
type rulebookFile struct {
	Rules []Rule         `yaml:"rules"`
	Lints []ConflictLint `yaml:"lints"`
}

// FileRepository loads a YAML rulebook from disk once and serves it from
// memory. Reference data is maintained by an external configuration
// process; the engine only reads it.
type FileRepository struct {
	mu    sync.RWMutex
	path  string
	rules []Rule
	lints []ConflictLint
}

// LoadFile reads and validates a rulebook YAML document.
func LoadFile(path string) (*FileRepository, error) {
	r := &FileRepository{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the rulebook from disk, replacing the served snapshot
// atomically. A parse or validation failure leaves the previous snapshot
// in place.
func (r *FileRepository) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read rulebook %q: %w", r.path, err)
	}

	var doc rulebookFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse rulebook %q: %w", r.path, err)
	}
	if err := validateRules(doc.Rules); err != nil {
		return fmt.Errorf("rulebook %q: %w", r.path, err)
	}

	r.mu.Lock()
	r.rules = doc.Rules
	r.lints = doc.Lints
	r.mu.Unlock()
	return nil
}

// ActiveRules implements Repository.
func (r *FileRepository) ActiveRules(_ context.Context, date time.Time) ([]Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.ActiveOn(date) {
			active = append(active, rule)
		}
	}
	return active, nil
}

// Lints implements LintSource.
func (r *FileRepository) Lints(_ context.Context) ([]ConflictLint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConflictLint, len(r.lints))
	copy(out, r.lints)
	return out, nil
}

func validateRules(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: missing id", i)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("rule %q: duplicate id", rule.ID)
		}
		seen[rule.ID] = struct{}{}

		if rule.EffectiveFrom.IsZero() {
			return fmt.Errorf("rule %q: missing effective_from", rule.ID)
		}
		if rule.EffectiveTo != nil && rule.EffectiveTo.Before(rule.EffectiveFrom) {
			return fmt.Errorf("rule %q: effective_to precedes effective_from", rule.ID)
		}
		if len(rule.Lines) == 0 {
			return fmt.Errorf("rule %q: no lines", rule.ID)
		}
		for _, line := range rule.Lines {
			if line.Side != SideDebit && line.Side != SideCredit {
				return fmt.Errorf("rule %q line %d: invalid side %q", rule.ID, line.Sequence, line.Side)
			}
			if line.AmountKey == "" {
				return fmt.Errorf("rule %q line %d: missing amount_key", rule.ID, line.Sequence)
			}
			if line.Ledger == "" {
				return fmt.Errorf("rule %q line %d: missing ledger", rule.ID, line.Sequence)
			}
			if line.Account == "" {
				return fmt.Errorf("rule %q line %d: missing account", rule.ID, line.Sequence)
			}
		}
	}
	return nil
}
