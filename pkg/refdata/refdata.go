// Package refdata exposes the read-only accounting reference data the
// engine validates against: the period calendar, the chart of accounts and
// the narrative template catalog. All of it is maintained by an external
// configuration process; the engine never writes it.
package refdata

import (
	"context"
	"time"
)

// Period is a non-overlapping accounting date range. Postings against a
// date inside the range are permitted only while the period is open.
type Period struct {
	ID    string    `yaml:"id" json:"id"`
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
	Open  bool      `yaml:"open" json:"open"`
}

// Covers reports whether the date falls inside the period. Both boundary
// dates are inclusive.
func (p Period) Covers(date time.Time) bool {
	return !date.Before(p.Start) && !date.After(p.End)
}

// Account is one entry of the chart of accounts.
type Account struct {
	Code        string            `yaml:"code" json:"code"`
	Description string            `yaml:"description" json:"description"`
	Active      bool              `yaml:"active" json:"active"`
	Segments    map[string]string `yaml:"segments" json:"segments,omitempty"`
}

// PeriodSource resolves the periods covering an accounting date.
type PeriodSource interface {
	PeriodsCovering(ctx context.Context, date time.Time) ([]Period, error)
}

// AccountSource resolves chart-of-accounts entries by code.
type AccountSource interface {
	Account(ctx context.Context, code string) (Account, bool, error)
}

// TemplateSource resolves narrative templates by identifier.
type TemplateSource interface {
	Template(ctx context.Context, id string) (string, bool, error)
}
