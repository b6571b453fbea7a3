// Package audit records one immutable, hash-chained record per pipeline
// stage transition, for compliance traceability.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Action names the pipeline transition an audit record captures.
type Action string

const (
	ActionRuleSelected     Action = "rule_selected"
	ActionValidationPassed Action = "validation_passed"
	ActionLinesPosted      Action = "lines_posted"
	ActionDuplicateAttempt Action = "duplicate_attempt"
	ActionFailed           Action = "failed"
)

// Record is a single immutable audit entry. Records for an event chain
// through PreviousHash so tampering is detectable.
type Record struct {
	ID           string          `json:"id"`
	Sequence     uint64          `json:"sequence"`
	EventID      string          `json:"event_id"`
	Action       Action          `json:"action"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	PreviousHash string          `json:"previous_hash"`
	EntryHash    string          `json:"entry_hash"`
}

// Trail appends audit records. Implementations must be safe for
// concurrent use; records are never mutated once appended.
type Trail interface {
	Append(ctx context.Context, eventID string, action Action, errorKind string, payload any) (*Record, error)
}

// Reader lists a single event's records in append order. An empty event
// identifier lists the whole trail.
type Reader interface {
	Records(ctx context.Context, eventID string) ([]*Record, error)
}

const genesisHash = "genesis"

// computeEntryHash hashes the record's identifying content together with
// the previous hash, forming the chain link.
func computeEntryHash(r *Record) (string, error) {
	input := struct {
		Sequence     uint64          `json:"sequence"`
		EventID      string          `json:"event_id"`
		Action       Action          `json:"action"`
		ErrorKind    string          `json:"error_kind"`
		Payload      json.RawMessage `json:"payload"`
		PreviousHash string          `json:"previous_hash"`
	}{r.Sequence, r.EventID, r.Action, r.ErrorKind, r.Payload, r.PreviousHash}

	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal audit entry: %w", err)
	}
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
