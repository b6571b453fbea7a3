package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTrail is an in-memory, append-only, hash-chained Trail.
type MemoryTrail struct {
	mu       sync.RWMutex
	records  []*Record
	sequence uint64
	head     string
	clock    func() time.Time
}

// NewMemoryTrail creates an empty trail.
func NewMemoryTrail() *MemoryTrail {
	return &MemoryTrail{head: genesisHash, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (t *MemoryTrail) WithClock(clock func() time.Time) *MemoryTrail {
	t.clock = clock
	return t
}

// Append implements Trail.
func (t *MemoryTrail) Append(_ context.Context, eventID string, action Action, errorKind string, payload any) (*Record, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequence++
	record := &Record{
		ID:           uuid.New().String(),
		Sequence:     t.sequence,
		EventID:      eventID,
		Action:       action,
		ErrorKind:    errorKind,
		Payload:      payloadBytes,
		Timestamp:    t.clock().UTC(),
		PreviousHash: t.head,
	}

	hash, err := computeEntryHash(record)
	if err != nil {
		t.sequence--
		return nil, err
	}
	record.EntryHash = hash
	t.head = hash
	t.records = append(t.records, record)
	return record, nil
}

// Records returns a snapshot of all records, optionally filtered by event.
func (t *MemoryTrail) Records(_ context.Context, eventID string) ([]*Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Record
	for _, r := range t.records {
		if eventID == "" || r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Verify walks the whole chain and recomputes every hash.
func (t *MemoryTrail) Verify() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prev := genesisHash
	for i, r := range t.records {
		if r.PreviousHash != prev {
			return fmt.Errorf("audit chain broken at record %d: expected prev %s, got %s", i+1, prev, r.PreviousHash)
		}
		computed, err := computeEntryHash(r)
		if err != nil {
			return err
		}
		if computed != r.EntryHash {
			return fmt.Errorf("audit hash mismatch at record %d", i+1)
		}
		prev = r.EntryHash
	}
	return nil
}
