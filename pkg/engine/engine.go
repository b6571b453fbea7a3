// Package engine runs the hedge-to-ledger posting pipeline: rule
// selection, amount and reference-data validation, journal line
// generation, balance verification and idempotent posting. Each stage
// gates the next; any stage may terminate the attempt with a typed
// failure.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/treasuryops/hedgeledger/pkg/amounts"
	"github.com/treasuryops/hedgeledger/pkg/audit"
	"github.com/treasuryops/hedgeledger/pkg/journal"
	"github.com/treasuryops/hedgeledger/pkg/lock"
	"github.com/treasuryops/hedgeledger/pkg/observability"
	"github.com/treasuryops/hedgeledger/pkg/refdata"
	"github.com/treasuryops/hedgeledger/pkg/retry"
	"github.com/treasuryops/hedgeledger/pkg/rulebook"
	"github.com/treasuryops/hedgeledger/pkg/store"
)

// ErrInvalidEvent is returned when the event context cannot identify the
// posting attempt. It is caller misuse, not a pipeline failure, so it is
// not a PostingError.
var ErrInvalidEvent = errors.New("engine: event identifier is required")

// Config wires the engine's collaborators. Rules, lints, periods,
// accounts and templates are read-only reference data; only the posting
// store is written.
type Config struct {
	Rules     rulebook.Repository
	Lints     rulebook.LintSource
	Periods   refdata.PeriodSource
	Accounts  refdata.AccountSource
	Templates refdata.TemplateSource
	Store     store.PostingStore
	Locker    lock.Locker
	Trail     audit.Trail
	Logger    *slog.Logger
	Metrics   *observability.Provider
	Retry     retry.Policy
	Clock     func() time.Time

	// Ledgers restricts posting to the entity profile's ledger set.
	// Empty means unrestricted.
	Ledgers []string

	// OpTimeout bounds each external read or write in the pipeline.
	// Zero means 5s.
	OpTimeout time.Duration
}

// Engine executes posting attempts. Safe for concurrent use; attempts
// for distinct events share no mutable state.
type Engine struct {
	rules     rulebook.Repository
	lints     rulebook.LintSource
	periods   refdata.PeriodSource
	accounts  refdata.AccountSource
	generator *journal.Generator
	store     store.PostingStore
	locker    lock.Locker
	trail     audit.Trail
	log       *slog.Logger
	metrics   *observability.Provider
	tracer    trace.Tracer
	retry     retry.Policy
	clock     func() time.Time
	ledgers   map[string]struct{}
	opTimeout time.Duration
}

// New builds an Engine. Locker, Trail, Logger, Retry and Clock default to
// an in-process mutex, an in-memory trail, the default slog logger, the
// default retry policy and the wall clock.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Rules == nil:
		return nil, errors.New("engine: rule repository is required")
	case cfg.Periods == nil:
		return nil, errors.New("engine: period source is required")
	case cfg.Accounts == nil:
		return nil, errors.New("engine: account source is required")
	case cfg.Templates == nil:
		return nil, errors.New("engine: template source is required")
	case cfg.Store == nil:
		return nil, errors.New("engine: posting store is required")
	}

	e := &Engine{
		rules:     cfg.Rules,
		lints:     cfg.Lints,
		periods:   cfg.Periods,
		accounts:  cfg.Accounts,
		generator: journal.NewGenerator(cfg.Templates),
		store:     cfg.Store,
		locker:    cfg.Locker,
		trail:     cfg.Trail,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    otel.Tracer("hedgeledger/engine"),
		retry:     cfg.Retry,
		clock:     cfg.Clock,
		opTimeout: cfg.OpTimeout,
	}
	if len(cfg.Ledgers) > 0 {
		e.ledgers = make(map[string]struct{}, len(cfg.Ledgers))
		for _, l := range cfg.Ledgers {
			e.ledgers[l] = struct{}{}
		}
	}
	if e.locker == nil {
		e.locker = lock.NewKeyedMutex()
	}
	if e.trail == nil {
		e.trail = audit.NewMemoryTrail()
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.retry.MaxAttempts == 0 {
		e.retry = retry.DefaultPolicy()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.opTimeout <= 0 {
		e.opTimeout = 5 * time.Second
	}
	return e, nil
}

// Post runs the full pipeline for one event. It is at-most-once per event
// identifier: a repeat attempt returns the original result with Duplicate
// set, and a concurrent attempt either waits for the winner or fails fast
// with DUPLICATE_POSTING_ATTEMPT, which callers treat as already-handled.
func (e *Engine) Post(ctx context.Context, ec rulebook.EventContext, pkg *amounts.Package) (*Result, error) {
	if ec.EventID == "" {
		return nil, ErrInvalidEvent
	}
	if pkg == nil {
		return nil, newError(KindMissingAmountKey, "amount package is required")
	}

	var finish func(errorKind string, err error)
	if e.metrics != nil {
		ctx, finish = e.metrics.TrackPosting(ctx, ec.EventID,
			observability.AttrEventType.String(ec.EventType))
	}

	ctx, span := e.tracer.Start(ctx, "engine.Post",
		trace.WithAttributes(
			attribute.String("event.id", ec.EventID),
			attribute.String("event.type", ec.EventType),
			attribute.String("event.posting_model", ec.PostingModel),
		))
	defer span.End()

	result, err := e.post(ctx, ec, pkg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if finish != nil {
			kind := ""
			if perr, ok := AsPostingError(err); ok {
				kind = string(perr.Kind)
			}
			finish(kind, err)
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("posting.duplicate", result.Duplicate),
		observability.AttrRuleID.String(result.RuleID),
	)
	if finish != nil {
		finish("", nil)
	}
	return result, nil
}

// bounded applies the per-operation deadline to one external read or
// write, so a hung backend cannot stall a posting attempt indefinitely.
func (e *Engine) bounded(ctx context.Context, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return fn(opCtx)
}

func (e *Engine) lookupJournal(ctx context.Context, eventID string) (*store.PostedJournal, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return e.store.GetJournal(opCtx, eventID)
}

func (e *Engine) post(ctx context.Context, ec rulebook.EventContext, pkg *amounts.Package) (*Result, error) {
	// Fast idempotency path, before taking the event lock.
	if existing, err := e.lookupJournal(ctx, ec.EventID); err == nil {
		return e.duplicate(ctx, ec, existing)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, e.fail(ctx, ec, wrapUnavailable("journal lookup", err))
	}

	release, err := e.locker.Acquire(ctx, ec.EventID)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, newError(KindDuplicateAttempt,
				fmt.Sprintf("posting for event %s is already in flight", ec.EventID))
		}
		return nil, e.fail(ctx, ec, wrapUnavailable("posting lock", err))
	}
	defer release()

	// Re-check under the lock: the attempt we waited on may have posted.
	if existing, err := e.lookupJournal(ctx, ec.EventID); err == nil {
		return e.duplicate(ctx, ec, existing)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, e.fail(ctx, ec, wrapUnavailable("journal lookup", err))
	}

	selection, perr := e.selectRule(ctx, ec)
	if perr != nil {
		return nil, e.fail(ctx, ec, perr)
	}
	e.transition(ctx, ec, store.EventStatusRuleSelected, audit.ActionRuleSelected, map[string]any{
		"rule_id":        selection.Rule.ID,
		"specificity":    selection.Specificity,
		"review_flagged": selection.ReviewFlagged,
		"residual_ties":  selection.ResidualTies,
	})

	resolved, perr := e.validate(ctx, ec, selection.Rule, pkg)
	if perr != nil {
		return nil, e.fail(ctx, ec, perr)
	}
	e.transition(ctx, ec, store.EventStatusValidated, audit.ActionValidationPassed, map[string]any{
		"rule_id":     selection.Rule.ID,
		"amount_keys": selection.Rule.AmountKeys(),
	})

	lines, perr := e.generate(ctx, ec, selection.Rule, pkg, resolved)
	if perr != nil {
		return nil, e.fail(ctx, ec, perr)
	}

	posted, perr := e.persist(ctx, ec, selection.Rule, lines)
	if perr != nil {
		return nil, e.fail(ctx, ec, perr)
	}
	if posted.duplicate {
		return e.duplicate(ctx, ec, posted.journal)
	}

	totals := journal.Totals(posted.journal.Lines)
	e.transition(ctx, ec, store.EventStatusPosted, audit.ActionLinesPosted, map[string]any{
		"rule_id": selection.Rule.ID,
		"lines":   len(posted.journal.Lines),
		"ledgers": totalsPayload(totals),
	})
	e.log.InfoContext(ctx, "journal posted",
		"event_id", ec.EventID,
		"rule_id", selection.Rule.ID,
		"lines", len(posted.journal.Lines),
		"ledgers", len(totals))

	return resultFromJournal(posted.journal, false, selection.ReviewFlagged), nil
}

// selectRule covers matching, precedence resolution and conflict
// detection (stages one through three of the pipeline).
func (e *Engine) selectRule(ctx context.Context, ec rulebook.EventContext) (rulebook.Selection, *PostingError) {
	ctx, span := e.tracer.Start(ctx, "engine.selectRule")
	defer span.End()

	var active []rulebook.Rule
	err := retry.Do(ctx, e.retry, "rules:"+ec.EventID, func(ctx context.Context) error {
		return e.bounded(ctx, func(ctx context.Context) error {
			var err error
			active, err = e.rules.ActiveRules(ctx, ec.AccountingDate)
			return err
		})
	})
	if err != nil {
		return rulebook.Selection{}, wrapUnavailable("rule repository", err)
	}

	candidates := rulebook.Match(active, ec)
	matched := len(candidates)
	if e.ledgers != nil {
		candidates = e.allowedCandidates(candidates)
	}
	if len(candidates) == 0 {
		if matched > 0 {
			return rulebook.Selection{}, &PostingError{
				Kind: KindNoRuleMatch,
				Detail: fmt.Sprintf("%d matching rules post to ledgers outside this entity's profile for event %s",
					matched, ec.EventID),
				Diagnostics: map[string]any{"allowed_ledgers": e.allowedLedgers()},
			}
		}
		return rulebook.Selection{}, &PostingError{
			Kind: KindNoRuleMatch,
			Detail: fmt.Sprintf("no active rule matches event_type=%s posting_model=%s nav_type=%s currency_type=%s entity_type=%s on %s",
				ec.EventType, ec.PostingModel, ec.NavType, ec.CurrencyType, ec.EntityType,
				ec.AccountingDate.Format("2006-01-02")),
		}
	}

	selection, err := rulebook.Resolve(candidates)
	if err != nil {
		return rulebook.Selection{}, newError(KindNoRuleMatch, err.Error())
	}
	if selection.ReviewFlagged {
		e.log.WarnContext(ctx, "precedence resolved by rule-id tie-break; rulebook needs lint review",
			"event_id", ec.EventID,
			"rule_id", selection.Rule.ID,
			"residual_ties", selection.ResidualTies)
	}

	if e.lints != nil {
		var lints []rulebook.ConflictLint
		err := retry.Do(ctx, e.retry, "lints:"+ec.EventID, func(ctx context.Context) error {
			return e.bounded(ctx, func(ctx context.Context) error {
				var err error
				lints, err = e.lints.Lints(ctx)
				return err
			})
		})
		if err != nil {
			return rulebook.Selection{}, wrapUnavailable("lint source", err)
		}
		if blocking := rulebook.Conflicts(lints, selection.Rule.ID, ec.AccountingDate); len(blocking) > 0 {
			conflicting := rulebook.ConflictingRuleIDs(blocking)
			return rulebook.Selection{}, &PostingError{
				Kind:   KindRuleConflict,
				Detail: fmt.Sprintf("rule %s is flagged by conflict lints against %s", selection.Rule.ID, strings.Join(conflicting, ", ")),
				Diagnostics: map[string]any{
					"rule_id":           selection.Rule.ID,
					"conflicting_rules": conflicting,
				},
			}
		}
	}

	span.SetAttributes(attribute.String("rule.id", selection.Rule.ID))
	return selection, nil
}

// validate covers amount key resolution and period/account checks (stages
// four and five). Violations are batched completely within each check.
func (e *Engine) validate(ctx context.Context, ec rulebook.EventContext, rule rulebook.Rule, pkg *amounts.Package) (map[string]decimal.Decimal, *PostingError) {
	ctx, span := e.tracer.Start(ctx, "engine.validate")
	defer span.End()

	resolved, missing := pkg.Resolve(rule.AmountKeys())
	if len(missing) > 0 {
		return nil, &PostingError{
			Kind:        KindMissingAmountKey,
			Detail:      fmt.Sprintf("amount package is missing keys: %s", strings.Join(missing, ", ")),
			Diagnostics: map[string]any{"missing_keys": missing},
		}
	}

	var period refdata.Period
	err := retry.Do(ctx, e.retry, "period:"+ec.EventID, func(ctx context.Context) error {
		return e.bounded(ctx, func(ctx context.Context) error {
			var err error
			period, err = refdata.ValidatePeriod(ctx, e.periods, ec.AccountingDate)
			var perr *refdata.PeriodError
			if errors.As(err, &perr) {
				// Period state failures are definitive, not transient.
				return retry.Permanent(err)
			}
			return err
		})
	})
	if err != nil {
		var perr *refdata.PeriodError
		if errors.As(err, &perr) {
			return nil, periodError(perr)
		}
		return nil, wrapUnavailable("period calendar", err)
	}

	var invalid []string
	err = retry.Do(ctx, e.retry, "accounts:"+ec.EventID, func(ctx context.Context) error {
		return e.bounded(ctx, func(ctx context.Context) error {
			var err error
			invalid, err = refdata.ValidateAccounts(ctx, e.accounts, rule.AccountCodes())
			return err
		})
	})
	if err != nil {
		return nil, wrapUnavailable("chart of accounts", err)
	}
	if len(invalid) > 0 {
		return nil, &PostingError{
			Kind:        KindAccountNotFound,
			Detail:      fmt.Sprintf("accounts missing or inactive: %s", strings.Join(invalid, ", ")),
			Diagnostics: map[string]any{"invalid_accounts": invalid},
		}
	}

	span.SetAttributes(attribute.String("period.id", period.ID))
	return resolved, nil
}

// generate covers line generation and balance verification (stages six
// and seven). These fail fast: an inconsistency here is a rulebook or
// amount bug that batching would not clarify.
func (e *Engine) generate(ctx context.Context, ec rulebook.EventContext, rule rulebook.Rule, pkg *amounts.Package, resolved map[string]decimal.Decimal) ([]journal.Line, *PostingError) {
	ctx, span := e.tracer.Start(ctx, "engine.generate")
	defer span.End()

	lines, err := e.generator.Generate(ctx, ec, rule, pkg, resolved)
	if err != nil {
		var nerr *journal.NarrativeError
		if errors.As(err, &nerr) {
			diag := map[string]any{"template_id": nerr.TemplateID}
			if len(nerr.Placeholders) > 0 {
				diag["unresolved_placeholders"] = nerr.Placeholders
			}
			return nil, &PostingError{Kind: KindNarrativeUnresolved, Detail: nerr.Error(), Diagnostics: diag}
		}
		return nil, &PostingError{Kind: KindConfigUnavailable, Detail: err.Error(), cause: err}
	}

	if err := journal.VerifyBalance(lines); err != nil {
		var ierr *journal.ImbalanceError
		diag := map[string]any{}
		if errors.As(err, &ierr) {
			deltas := make(map[string]string, len(ierr.Deltas))
			for ledger, delta := range ierr.Deltas {
				deltas[ledger] = delta.String()
			}
			diag["ledger_deltas"] = deltas
		}
		return nil, &PostingError{Kind: KindJournalImbalance, Detail: err.Error(), Diagnostics: diag}
	}

	span.SetAttributes(attribute.Int("journal.lines", len(lines)))
	return lines, nil
}

type persistOutcome struct {
	journal   *store.PostedJournal
	duplicate bool
}

// persist is the poster stage: atomic multi-line persistence with the
// event-unique constraint as the idempotency backstop.
func (e *Engine) persist(ctx context.Context, ec rulebook.EventContext, rule rulebook.Rule, lines []journal.Line) (persistOutcome, *PostingError) {
	ctx, span := e.tracer.Start(ctx, "engine.persist")
	defer span.End()

	j := &store.PostedJournal{
		JournalID: ec.EventID,
		EventID:   ec.EventID,
		RuleID:    rule.ID,
		PostedAt:  e.clock().UTC(),
		Lines:     lines,
	}
	for i := range j.Lines {
		j.Lines[i].PostingStatus = journal.PostingStatusPosted
		j.Lines[i].ExportStatus = journal.ExportStatusPending
	}

	err := e.bounded(ctx, func(ctx context.Context) error {
		return e.store.PostJournal(ctx, j)
	})
	if errors.Is(err, store.ErrAlreadyPosted) {
		existing, getErr := e.lookupJournal(ctx, ec.EventID)
		if getErr != nil {
			return persistOutcome{}, wrapUnavailable("journal lookup after posting race", getErr)
		}
		return persistOutcome{journal: existing, duplicate: true}, nil
	}
	if err != nil {
		return persistOutcome{}, wrapUnavailable("posting store", err)
	}
	return persistOutcome{journal: j}, nil
}

// duplicate reports an already-posted event as success-equivalent.
func (e *Engine) duplicate(ctx context.Context, ec rulebook.EventContext, existing *store.PostedJournal) (*Result, error) {
	e.audit(ctx, ec.EventID, audit.ActionDuplicateAttempt, "", map[string]any{
		"journal_id": existing.JournalID,
		"rule_id":    existing.RuleID,
	})
	e.log.InfoContext(ctx, "duplicate posting attempt short-circuited",
		"event_id", ec.EventID, "journal_id", existing.JournalID)
	return resultFromJournal(existing, true, false), nil
}

// fail records the terminal failure: one audit record with the full
// diagnostic payload, a FAILED event status, and a log line.
func (e *Engine) fail(ctx context.Context, ec rulebook.EventContext, perr *PostingError) *PostingError {
	err := e.bounded(ctx, func(ctx context.Context) error {
		return e.store.SetEventStatus(ctx, ec.EventID, store.EventStatusFailed, string(perr.Kind))
	})
	if err != nil {
		e.log.ErrorContext(ctx, "failed to record event failure status",
			"event_id", ec.EventID, "error", err)
	}
	payload := map[string]any{"detail": perr.Detail}
	for k, v := range perr.Diagnostics {
		payload[k] = v
	}
	e.audit(ctx, ec.EventID, audit.ActionFailed, string(perr.Kind), payload)
	e.log.WarnContext(ctx, "posting attempt failed",
		"event_id", ec.EventID,
		"error_kind", string(perr.Kind),
		"detail", perr.Detail)
	return perr
}

// transition records a non-terminal stage transition.
func (e *Engine) transition(ctx context.Context, ec rulebook.EventContext, status store.EventStatus, action audit.Action, payload map[string]any) {
	err := e.bounded(ctx, func(ctx context.Context) error {
		return e.store.SetEventStatus(ctx, ec.EventID, status, "")
	})
	if err != nil {
		e.log.ErrorContext(ctx, "failed to record event status",
			"event_id", ec.EventID, "status", string(status), "error", err)
	}
	e.audit(ctx, ec.EventID, action, "", payload)
}

func (e *Engine) audit(ctx context.Context, eventID string, action audit.Action, errorKind string, payload map[string]any) {
	if _, err := e.trail.Append(ctx, eventID, action, errorKind, payload); err != nil {
		e.log.ErrorContext(ctx, "failed to append audit record",
			"event_id", eventID, "action", string(action), "error", err)
	}
}

// allowedCandidates drops rules with lines targeting ledgers the entity
// profile does not post to.
func (e *Engine) allowedCandidates(candidates []rulebook.Rule) []rulebook.Rule {
	kept := make([]rulebook.Rule, 0, len(candidates))
scan:
	for _, rule := range candidates {
		for _, line := range rule.Lines {
			if _, ok := e.ledgers[line.Ledger]; !ok {
				continue scan
			}
		}
		kept = append(kept, rule)
	}
	return kept
}

func (e *Engine) allowedLedgers() []string {
	out := make([]string, 0, len(e.ledgers))
	for l := range e.ledgers {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func totalsPayload(totals []journal.LedgerTotal) map[string]any {
	out := make(map[string]any, len(totals))
	for _, t := range totals {
		out[t.Ledger] = map[string]any{
			"lines":  t.Lines,
			"debit":  t.Debit.String(),
			"credit": t.Credit.String(),
		}
	}
	return out
}

func wrapUnavailable(what string, err error) *PostingError {
	return &PostingError{
		Kind:   KindConfigUnavailable,
		Detail: fmt.Sprintf("%s unavailable: %v", what, err),
		cause:  err,
	}
}

func periodError(perr *refdata.PeriodError) *PostingError {
	kind := KindPeriodNotFound
	if perr.Reason == refdata.PeriodClosed {
		kind = KindPeriodClosed
	}
	diag := map[string]any{"accounting_date": perr.Date.Format("2006-01-02")}
	if perr.PeriodID != "" {
		diag["period_id"] = perr.PeriodID
	}
	if len(perr.OverlappingIDs) > 0 {
		diag["overlapping_periods"] = perr.OverlappingIDs
	}
	return &PostingError{Kind: kind, Detail: perr.Error(), Diagnostics: diag}
}
