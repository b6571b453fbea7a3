package rulebook

import (
	"sort"
	"time"
)

// Conflicts returns the blocking lints that reference the given rule and
// are active on the date. A DUPLICATE or HIGH severity lint blocks the
// rule from selection; lower severities are advisory only.
func Conflicts(lints []ConflictLint, ruleID string, date time.Time) []ConflictLint {
	var blocking []ConflictLint
	for _, l := range lints {
		if !l.Severity.Blocking() {
			continue
		}
		if !l.ActiveOn(date) {
			continue
		}
		if l.References(ruleID) {
			blocking = append(blocking, l)
		}
	}
	return blocking
}

// ConflictingRuleIDs flattens the rule IDs named by the given lints into a
// sorted, de-duplicated list for diagnostics.
func ConflictingRuleIDs(lints []ConflictLint) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, l := range lints {
		for _, id := range l.RuleIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
