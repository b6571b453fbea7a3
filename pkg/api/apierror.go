// Package api — HTTP boundary for the posting engine, with RFC 7807
// Problem Detail error responses.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/treasuryops/hedgeledger/pkg/engine"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses must use this format.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// ErrorKind carries the engine's error taxonomy code, when the
	// failure came from a posting attempt.
	ErrorKind string `json:"error_kind,omitempty"`
	// Diagnostics carries the batched validation findings: missing
	// amount keys, invalid accounts, ledger deltas.
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://hedgeledger.treasuryops.io/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WritePostingError maps a typed posting failure to its HTTP status and
// writes it as a problem document carrying the error kind and the full
// batched diagnostics.
func WritePostingError(w http.ResponseWriter, r *http.Request, perr *engine.PostingError) {
	status := statusForKind(perr.Kind)
	problem := &ProblemDetail{
		Type:        fmt.Sprintf("https://hedgeledger.treasuryops.io/errors/%s", perr.Kind),
		Title:       string(perr.Kind),
		Status:      status,
		Detail:      perr.Detail,
		Instance:    r.URL.Path,
		ErrorKind:   string(perr.Kind),
		Diagnostics: perr.Diagnostics,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// statusForKind maps the error taxonomy onto HTTP statuses. Validation
// failures the caller can correct are 422, conflicts and concurrent
// duplicates are 409, rulebook defects surface as 500, and unreadable
// configuration as 503.
func statusForKind(kind engine.Kind) int {
	switch kind {
	case engine.KindNoRuleMatch, engine.KindMissingAmountKey,
		engine.KindPeriodNotFound, engine.KindPeriodClosed,
		engine.KindAccountNotFound:
		return http.StatusUnprocessableEntity
	case engine.KindRuleConflict, engine.KindDuplicateAttempt:
		return http.StatusConflict
	case engine.KindConfigUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but NEVER exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
