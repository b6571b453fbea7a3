package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/treasuryops/hedgeledger/pkg/amounts"
	"github.com/treasuryops/hedgeledger/pkg/audit"
	"github.com/treasuryops/hedgeledger/pkg/engine"
	"github.com/treasuryops/hedgeledger/pkg/journal"
	"github.com/treasuryops/hedgeledger/pkg/rulebook"
	"github.com/treasuryops/hedgeledger/pkg/store"
)

// ExportPolicy controls the export-marking endpoint. It mirrors the
// export section of the entity profile: a disabled policy rejects export
// requests, a positive batch size caps the lines marked per request.
type ExportPolicy struct {
	Enabled   bool
	BatchSize int
}

// PostingService exposes the posting engine over HTTP.
type PostingService struct {
	engine *engine.Engine
	store  store.PostingStore
	trail  audit.Reader
	logger *slog.Logger
	export ExportPolicy
}

// NewPostingService builds the HTTP service. The trail reader may be nil,
// in which case the audit endpoint reports 404 for every event. Export is
// enabled and unbounded until SetExportPolicy says otherwise.
func NewPostingService(eng *engine.Engine, posting store.PostingStore, trail audit.Reader, logger *slog.Logger) *PostingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostingService{
		engine: eng,
		store:  posting,
		trail:  trail,
		logger: logger,
		export: ExportPolicy{Enabled: true},
	}
}

// SetExportPolicy applies the entity profile's export settings.
func (s *PostingService) SetExportPolicy(p ExportPolicy) {
	s.export = p
}

// Routes registers the service's endpoints on a fresh mux.
func (s *PostingService) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/postings", s.HandlePost)
	mux.HandleFunc("GET /v1/postings/{event_id}", s.HandleGetJournal)
	mux.HandleFunc("POST /v1/postings/{event_id}/export", s.HandleExport)
	mux.HandleFunc("GET /v1/audit/{event_id}", s.HandleAudit)
	mux.HandleFunc("GET /healthz", s.HandleHealthz)
	return mux
}

// PostingRequest is the body of POST /v1/postings: one business event
// plus its precomputed amount package.
type PostingRequest struct {
	Event    EventPayload               `json:"event"`
	Amounts  map[string]decimal.Decimal `json:"amounts"`
	Currency string                     `json:"currency"`
	Rate     decimal.Decimal            `json:"rate"`
}

// EventPayload mirrors the event context of a posting attempt.
type EventPayload struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	PostingModel   string `json:"posting_model"`
	NavType        string `json:"nav_type,omitempty"`
	CurrencyType   string `json:"currency_type,omitempty"`
	EntityType     string `json:"entity_type,omitempty"`
	AccountingDate string `json:"accounting_date"` // YYYY-MM-DD
}

// HandlePost runs one posting attempt. A fresh posting answers 201; a
// repeat of an already posted event answers 200 with the original
// journal's summary and the duplicate flag set.
func (s *PostingService) HandlePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var req PostingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Event.EventID == "" || req.Event.EventType == "" || req.Event.AccountingDate == "" {
		WriteBadRequest(w, "Missing required fields: event.event_id, event.event_type, event.accounting_date")
		return
	}
	accountingDate, err := time.ParseInLocation("2006-01-02", req.Event.AccountingDate, time.UTC)
	if err != nil {
		WriteBadRequest(w, "event.accounting_date must be YYYY-MM-DD")
		return
	}

	ec := rulebook.EventContext{
		EventID:        req.Event.EventID,
		EventType:      req.Event.EventType,
		PostingModel:   req.Event.PostingModel,
		NavType:        req.Event.NavType,
		CurrencyType:   req.Event.CurrencyType,
		EntityType:     req.Event.EntityType,
		AccountingDate: accountingDate,
	}
	pkg := amounts.New(req.Amounts, req.Currency, req.Rate)

	result, err := s.engine.Post(r.Context(), ec, pkg)
	if err != nil {
		if perr, ok := engine.AsPostingError(err); ok {
			WritePostingError(w, r, perr)
			return
		}
		WriteInternal(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

// HandleGetJournal returns the posted journal for an event.
func (s *PostingService) HandleGetJournal(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")

	posted, err := s.store.GetJournal(r.Context(), eventID)
	if errors.Is(err, store.ErrNotFound) {
		WriteNotFound(w, "No posted journal for event "+eventID)
		return
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(posted)
}

// ExportResponse summarizes one export-marking request.
type ExportResponse struct {
	JournalID     string `json:"journal_id"`
	ExportedLines []int  `json:"exported_lines"`
	Remaining     int    `json:"remaining"`
}

// HandleExport marks the journal's pending lines as handed to the
// downstream export, up to the policy's batch size per request.
func (s *PostingService) HandleExport(w http.ResponseWriter, r *http.Request) {
	if !s.export.Enabled {
		WriteError(w, http.StatusForbidden, "Export Disabled",
			"This entity's profile does not export posted journal lines")
		return
	}
	eventID := r.PathValue("event_id")

	posted, err := s.store.GetJournal(r.Context(), eventID)
	if errors.Is(err, store.ErrNotFound) {
		WriteNotFound(w, "No posted journal for event "+eventID)
		return
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}

	var pending []int
	for _, line := range posted.Lines {
		if line.ExportStatus == journal.ExportStatusPending {
			pending = append(pending, line.LineNumber)
		}
	}
	batch := pending
	if s.export.BatchSize > 0 && len(batch) > s.export.BatchSize {
		batch = batch[:s.export.BatchSize]
	}
	if len(batch) > 0 {
		if err := s.store.MarkExported(r.Context(), posted.JournalID, batch); err != nil {
			WriteInternal(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ExportResponse{
		JournalID:     posted.JournalID,
		ExportedLines: batch,
		Remaining:     len(pending) - len(batch),
	})
}

// HandleAudit returns the audit trail for an event.
func (s *PostingService) HandleAudit(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")

	var records []*audit.Record
	if s.trail != nil {
		var err error
		records, err = s.trail.Records(r.Context(), eventID)
		if err != nil {
			WriteInternal(w, err)
			return
		}
	}
	if len(records) == 0 {
		WriteNotFound(w, "No audit records for event "+eventID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

// HandleHealthz is the liveness probe.
func (s *PostingService) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
