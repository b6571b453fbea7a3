package rulebook

// MatchScope reports whether the rule's scope matches the context.
// Every non-wildcard scope attribute must equal the corresponding context
// attribute exactly; an empty scope attribute matches anything, including
// an attribute the context never populated. The reverse is not true: a
// scope that requires a value the context does not carry is a non-match.
func MatchScope(scope Scope, ctx EventContext) bool {
	if scope.EventType != "" && scope.EventType != ctx.EventType {
		return false
	}
	if scope.PostingModel != "" && scope.PostingModel != ctx.PostingModel {
		return false
	}
	if scope.NavType != "" && scope.NavType != ctx.NavType {
		return false
	}
	if scope.CurrencyType != "" && scope.CurrencyType != ctx.CurrencyType {
		return false
	}
	if scope.EntityType != "" && scope.EntityType != ctx.EntityType {
		return false
	}
	return true
}

// Match filters the given rules down to those that are active on the
// context's accounting date and whose scope matches the context.
func Match(rules []Rule, ctx EventContext) []Rule {
	matched := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !r.ActiveOn(ctx.AccountingDate) {
			continue
		}
		if MatchScope(r.Scope, ctx) {
			matched = append(matched, r)
		}
	}
	return matched
}
