package refdata

import (
	"context"
	"time"
)

// Memory is an in-memory PeriodSource, AccountSource and TemplateSource,
// used by tests and by callers that load reference data themselves.
type Memory struct {
	periods   []Period
	accounts  map[string]Account
	templates map[string]string
}

// NewMemory builds a Memory source from the given reference data.
func NewMemory(periods []Period, accounts []Account, templates map[string]string) *Memory {
	m := &Memory{
		periods:   make([]Period, len(periods)),
		accounts:  make(map[string]Account, len(accounts)),
		templates: make(map[string]string, len(templates)),
	}
	copy(m.periods, periods)
	for _, a := range accounts {
		m.accounts[a.Code] = a
	}
	for id, tpl := range templates {
		m.templates[id] = tpl
	}
	return m
}

// SetPeriodOpen flips a period's open flag. Tests use this to model the
// external period-maintenance process.
func (m *Memory) SetPeriodOpen(id string, open bool) {
	for i := range m.periods {
		if m.periods[i].ID == id {
			m.periods[i].Open = open
		}
	}
}

// PeriodsCovering implements PeriodSource.
func (m *Memory) PeriodsCovering(_ context.Context, date time.Time) ([]Period, error) {
	var covering []Period
	for _, p := range m.periods {
		if p.Covers(date) {
			covering = append(covering, p)
		}
	}
	return covering, nil
}

// Account implements AccountSource.
func (m *Memory) Account(_ context.Context, code string) (Account, bool, error) {
	a, ok := m.accounts[code]
	return a, ok, nil
}

// Template implements TemplateSource.
func (m *Memory) Template(_ context.Context, id string) (string, bool, error) {
	tpl, ok := m.templates[id]
	return tpl, ok, nil
}
