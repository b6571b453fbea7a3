package rulebook

import (
	"context"
	"time"
)

// Repository loads the rules active on a posting date. Implementations
// read from external configuration storage and must be safe for
// concurrent use; the engine never mutates rules.
type Repository interface {
	ActiveRules(ctx context.Context, date time.Time) ([]Rule, error)
}

// LintSource loads the precomputed conflict lints for the rulebook.
type LintSource interface {
	Lints(ctx context.Context) ([]ConflictLint, error)
}

// MemoryRepository is an in-memory Repository and LintSource, primarily
// for tests and for callers that assemble the rulebook themselves.
type MemoryRepository struct {
	rules []Rule
	lints []ConflictLint
}

// NewMemoryRepository copies the given rules and lints into a repository.
func NewMemoryRepository(rules []Rule, lints []ConflictLint) *MemoryRepository {
	r := &MemoryRepository{
		rules: make([]Rule, len(rules)),
		lints: make([]ConflictLint, len(lints)),
	}
	copy(r.rules, rules)
	copy(r.lints, lints)
	return r
}

// ActiveRules returns the enabled rules whose effective window covers date.
func (r *MemoryRepository) ActiveRules(_ context.Context, date time.Time) ([]Rule, error) {
	active := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.ActiveOn(date) {
			active = append(active, rule)
		}
	}
	return active, nil
}

// Lints returns all conflict lints.
func (r *MemoryRepository) Lints(_ context.Context) ([]ConflictLint, error) {
	out := make([]ConflictLint, len(r.lints))
	copy(out, r.lints)
	return out, nil
}
