// Package store persists posted journals. Posting is atomic per event:
// all lines for the event become visible together or not at all, and a
// uniqueness constraint on the event identifier backs the engine's
// at-most-once guarantee.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/treasuryops/hedgeledger/pkg/journal"
)

var (
	// ErrNotFound is returned when no journal exists for the event.
	ErrNotFound = errors.New("journal not found")
	// ErrAlreadyPosted is returned when a journal for the event already
	// exists; the caller short-circuits to the existing result.
	ErrAlreadyPosted = errors.New("journal already posted for event")
)

// EventStatus is the stage status of a posting attempt as persisted.
type EventStatus string

const (
	EventStatusPending      EventStatus = "PENDING"
	EventStatusRuleSelected EventStatus = "RULE_SELECTED"
	EventStatusValidated    EventStatus = "VALIDATED"
	EventStatusPosted       EventStatus = "POSTED"
	EventStatusFailed       EventStatus = "FAILED"
)

// PostedJournal is the persisted outcome of a successful posting attempt.
type PostedJournal struct {
	JournalID string         `json:"journal_id"`
	EventID   string         `json:"event_id"`
	RuleID    string         `json:"rule_id"`
	PostedAt  time.Time      `json:"posted_at"`
	Lines     []journal.Line `json:"lines"`
}

// PostingStore persists journals and event stage status.
type PostingStore interface {
	// GetJournal returns the posted journal for the event, or ErrNotFound.
	GetJournal(ctx context.Context, eventID string) (*PostedJournal, error)
	// PostJournal atomically persists all lines and flips the event status
	// to POSTED. Returns ErrAlreadyPosted if a journal for the event
	// already exists.
	PostJournal(ctx context.Context, j *PostedJournal) error
	// SetEventStatus records a stage transition for the event.
	SetEventStatus(ctx context.Context, eventID string, status EventStatus, errorKind string) error
	// MarkExported flips the export status of the given lines to EXPORTED.
	MarkExported(ctx context.Context, journalID string, lineNumbers []int) error
}

// MemoryPostingStore is an in-memory PostingStore for tests and embedding.
type MemoryPostingStore struct {
	mu       sync.RWMutex
	journals map[string]*PostedJournal
	statuses map[string]EventStatus
}

// NewMemoryPostingStore creates an empty store.
func NewMemoryPostingStore() *MemoryPostingStore {
	return &MemoryPostingStore{
		journals: make(map[string]*PostedJournal),
		statuses: make(map[string]EventStatus),
	}
}

// GetJournal implements PostingStore.
func (s *MemoryPostingStore) GetJournal(_ context.Context, eventID string) (*PostedJournal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.journals[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *j
	out.Lines = make([]journal.Line, len(j.Lines))
	copy(out.Lines, j.Lines)
	return &out, nil
}

// PostJournal implements PostingStore.
func (s *MemoryPostingStore) PostJournal(_ context.Context, j *PostedJournal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.journals[j.EventID]; exists {
		return ErrAlreadyPosted
	}
	stored := *j
	stored.Lines = make([]journal.Line, len(j.Lines))
	copy(stored.Lines, j.Lines)
	for i := range stored.Lines {
		stored.Lines[i].PostingStatus = journal.PostingStatusPosted
		stored.Lines[i].ExportStatus = journal.ExportStatusPending
	}
	s.journals[j.EventID] = &stored
	s.statuses[j.EventID] = EventStatusPosted
	return nil
}

// SetEventStatus implements PostingStore.
func (s *MemoryPostingStore) SetEventStatus(_ context.Context, eventID string, status EventStatus, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[eventID] = status
	return nil
}

// EventStatus returns the recorded status for an event.
func (s *MemoryPostingStore) EventStatus(eventID string) (EventStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[eventID]
	return status, ok
}

// MarkExported implements PostingStore.
func (s *MemoryPostingStore) MarkExported(_ context.Context, journalID string, lineNumbers []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.journals[journalID]
	if !ok {
		return ErrNotFound
	}
	wanted := make(map[int]struct{}, len(lineNumbers))
	for _, n := range lineNumbers {
		wanted[n] = struct{}{}
	}
	for i := range j.Lines {
		if _, ok := wanted[j.Lines[i].LineNumber]; ok {
			j.Lines[i].ExportStatus = journal.ExportStatusExported
		}
	}
	return nil
}
