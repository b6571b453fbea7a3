package engine

import (
	"errors"
	"fmt"
)

// Kind classifies a posting failure per the engine's error taxonomy.
type Kind string

const (
	KindNoRuleMatch         Kind = "NO_RULE_MATCH"
	KindRuleConflict        Kind = "RULE_CONFLICT"
	KindMissingAmountKey    Kind = "MISSING_AMOUNT_KEY"
	KindPeriodNotFound      Kind = "PERIOD_NOT_FOUND"
	KindPeriodClosed        Kind = "PERIOD_CLOSED"
	KindAccountNotFound     Kind = "ACCOUNT_NOT_FOUND"
	KindNarrativeUnresolved Kind = "NARRATIVE_UNRESOLVED"
	KindJournalImbalance    Kind = "JOURNAL_IMBALANCE"
	KindDuplicateAttempt    Kind = "DUPLICATE_POSTING_ATTEMPT"
	KindConfigUnavailable   Kind = "CONFIGURATION_UNAVAILABLE"
)

// Recoverable reports whether a retry after upstream correction can
// succeed without a rulebook or engine change.
func (k Kind) Recoverable() bool {
	switch k {
	case KindMissingAmountKey, KindPeriodNotFound, KindPeriodClosed, KindAccountNotFound:
		return true
	default:
		return false
	}
}

// PostingError is the typed failure a pipeline stage terminates with.
// Validation stages batch their diagnostics completely before failing, so
// Diagnostics carries every offending key, account code or ledger delta,
// not just the first.
type PostingError struct {
	Kind        Kind
	Detail      string
	Diagnostics map[string]any
	cause       error
}

func (e *PostingError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the underlying cause, if any.
func (e *PostingError) Unwrap() error { return e.cause }

// newError builds a PostingError without diagnostics.
func newError(kind Kind, detail string) *PostingError {
	return &PostingError{Kind: kind, Detail: detail}
}

// AsPostingError extracts a PostingError from an error chain.
func AsPostingError(err error) (*PostingError, bool) {
	var perr *PostingError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsDuplicateAttempt reports whether the error is the idempotency
// short-circuit, which callers treat as success-equivalent.
func IsDuplicateAttempt(err error) bool {
	perr, ok := AsPostingError(err)
	return ok && perr.Kind == KindDuplicateAttempt
}
