// Package rulebook defines the versioned posting rulebook: rules with
// scoped applicability, debit/credit line templates, precedence resolution,
// and precomputed conflict lints.
package rulebook

import (
	"time"
)

// Side is the debit/credit indicator of a rule line.
type Side string

const (
	SideDebit  Side = "DR"
	SideCredit Side = "CR"
)

// LintSeverity grades a conflict lint finding.
type LintSeverity string

const (
	LintSeverityDuplicate LintSeverity = "DUPLICATE"
	LintSeverityHigh      LintSeverity = "HIGH"
	LintSeverityMedium    LintSeverity = "MEDIUM"
	LintSeverityLow       LintSeverity = "LOW"
)

// Blocking reports whether a lint of this severity blocks rule selection.
func (s LintSeverity) Blocking() bool {
	return s == LintSeverityDuplicate || s == LintSeverityHigh
}

// Scope declares the context attributes a rule requires to match.
// An empty field is a wildcard: the rule places no constraint on that
// attribute. There is deliberately no open-ended key/value bag here so the
// wildcard-on-absence semantics are fixed by the type, not by runtime
// introspection.
type Scope struct {
	EventType    string `yaml:"event_type" json:"event_type,omitempty"`
	PostingModel string `yaml:"posting_model" json:"posting_model,omitempty"`
	NavType      string `yaml:"nav_type" json:"nav_type,omitempty"`
	CurrencyType string `yaml:"currency_type" json:"currency_type,omitempty"`
	EntityType   string `yaml:"entity_type" json:"entity_type,omitempty"`
}

// Specificity is the count of non-wildcard attributes in the scope.
// More specific rules win precedence.
func (s Scope) Specificity() int {
	n := 0
	for _, v := range [...]string{s.EventType, s.PostingModel, s.NavType, s.CurrencyType, s.EntityType} {
		if v != "" {
			n++
		}
	}
	return n
}

// EventContext carries the attributes of a single posting attempt.
// It is built once by the upstream collaborator and immutable thereafter.
type EventContext struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	PostingModel   string    `json:"posting_model"`
	NavType        string    `json:"nav_type"`
	CurrencyType   string    `json:"currency_type"`
	EntityType     string    `json:"entity_type"`
	AccountingDate time.Time `json:"accounting_date"`
}

// RuleLine is one debit or credit template within a rule.
type RuleLine struct {
	Sequence          int               `yaml:"sequence" json:"sequence"`
	AmountKey         string            `yaml:"amount_key" json:"amount_key"`
	Side              Side              `yaml:"side" json:"side"`
	Ledger            string            `yaml:"ledger" json:"ledger"`
	Account           string            `yaml:"account" json:"account"`
	Segments          map[string]string `yaml:"segments" json:"segments,omitempty"`
	NarrativeTemplate string            `yaml:"narrative_template" json:"narrative_template"`
}

// Rule maps a business scope to an ordered set of journal line templates.
type Rule struct {
	ID            string            `yaml:"id" json:"id"`
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	EffectiveFrom time.Time         `yaml:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time        `yaml:"effective_to" json:"effective_to,omitempty"`
	Scope         Scope             `yaml:"scope" json:"scope"`
	Priority      int               `yaml:"priority" json:"priority"`
	VersionTag    string            `yaml:"version_tag" json:"version_tag"`
	Segments      map[string]string `yaml:"segments" json:"segments,omitempty"`
	Lines         []RuleLine        `yaml:"lines" json:"lines"`
}

// ActiveOn reports whether the rule may be applied on the given date.
// The effective window is inclusive at both ends; a nil EffectiveTo is
// open-ended.
func (r Rule) ActiveOn(date time.Time) bool {
	if !r.Enabled {
		return false
	}
	if date.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && date.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// AmountKeys returns the distinct amount keys referenced by the rule's
// lines, in first-appearance order.
func (r Rule) AmountKeys() []string {
	seen := make(map[string]struct{}, len(r.Lines))
	keys := make([]string, 0, len(r.Lines))
	for _, line := range r.Lines {
		if _, ok := seen[line.AmountKey]; ok {
			continue
		}
		seen[line.AmountKey] = struct{}{}
		keys = append(keys, line.AmountKey)
	}
	return keys
}

// AccountCodes returns the distinct account codes referenced by the rule's
// lines, in first-appearance order.
func (r Rule) AccountCodes() []string {
	seen := make(map[string]struct{}, len(r.Lines))
	codes := make([]string, 0, len(r.Lines))
	for _, line := range r.Lines {
		if _, ok := seen[line.Account]; ok {
			continue
		}
		seen[line.Account] = struct{}{}
		codes = append(codes, line.Account)
	}
	return codes
}

// ConflictLint is a precomputed static-analysis finding over the rulebook,
// flagging rules whose scopes overlap ambiguously. Lints are produced
// offline and treated as ground truth at posting time.
type ConflictLint struct {
	ID            string       `yaml:"id" json:"id"`
	RuleIDs       []string     `yaml:"rule_ids" json:"rule_ids"`
	Severity      LintSeverity `yaml:"severity" json:"severity"`
	Detail        string       `yaml:"detail" json:"detail"`
	EffectiveFrom *time.Time   `yaml:"effective_from" json:"effective_from,omitempty"`
	EffectiveTo   *time.Time   `yaml:"effective_to" json:"effective_to,omitempty"`
}

// ActiveOn reports whether the lint applies on the given date. A lint with
// no window applies always.
func (l ConflictLint) ActiveOn(date time.Time) bool {
	if l.EffectiveFrom != nil && date.Before(*l.EffectiveFrom) {
		return false
	}
	if l.EffectiveTo != nil && date.After(*l.EffectiveTo) {
		return false
	}
	return true
}

// References reports whether the lint names the given rule.
func (l ConflictLint) References(ruleID string) bool {
	for _, id := range l.RuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}
