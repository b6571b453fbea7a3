package refdata

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PeriodErrorReason distinguishes the ways a period lookup can fail.
type PeriodErrorReason string

const (
	PeriodNotFound PeriodErrorReason = "NOT_FOUND"
	PeriodClosed   PeriodErrorReason = "CLOSED"
	PeriodOverlap  PeriodErrorReason = "OVERLAP"
)

// PeriodError reports why an accounting date has no usable open period.
type PeriodError struct {
	Date           time.Time
	Reason         PeriodErrorReason
	PeriodID       string
	OverlappingIDs []string
}

func (e *PeriodError) Error() string {
	d := e.Date.Format("2006-01-02")
	switch e.Reason {
	case PeriodClosed:
		return fmt.Sprintf("period %s covering %s is closed", e.PeriodID, d)
	case PeriodOverlap:
		return fmt.Sprintf("date %s is covered by overlapping periods %s", d, strings.Join(e.OverlappingIDs, ", "))
	default:
		return fmt.Sprintf("no period covers %s", d)
	}
}

// ValidatePeriod resolves the single period covering the accounting date
// and requires it to be open. Exactly one period must cover any valid
// date; zero or several make the date invalid.
func ValidatePeriod(ctx context.Context, src PeriodSource, date time.Time) (Period, error) {
	covering, err := src.PeriodsCovering(ctx, date)
	if err != nil {
		return Period{}, fmt.Errorf("period lookup: %w", err)
	}

	switch len(covering) {
	case 0:
		return Period{}, &PeriodError{Date: date, Reason: PeriodNotFound}
	case 1:
		p := covering[0]
		if !p.Open {
			return Period{}, &PeriodError{Date: date, Reason: PeriodClosed, PeriodID: p.ID}
		}
		return p, nil
	default:
		ids := make([]string, len(covering))
		for i, p := range covering {
			ids[i] = p.ID
		}
		return Period{}, &PeriodError{Date: date, Reason: PeriodOverlap, OverlappingIDs: ids}
	}
}

// ValidateAccounts checks every referenced account code against the chart
// of accounts. Codes that are missing or inactive are collected in full so
// the chart can be corrected in one pass.
func ValidateAccounts(ctx context.Context, src AccountSource, codes []string) ([]string, error) {
	var invalid []string
	for _, code := range codes {
		account, found, err := src.Account(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("account lookup %q: %w", code, err)
		}
		if !found || !account.Active {
			invalid = append(invalid, code)
		}
	}
	return invalid, nil
}
