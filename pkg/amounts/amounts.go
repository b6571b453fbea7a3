// Package amounts models the write-once package of computed monetary
// values a posting attempt consumes. Values are decimals, never floats;
// the engine consumes them as-is and performs no recomputation.
package amounts

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Package is an immutable bag of named monetary values plus the currency
// and rate metadata used for narrative substitution. Construct it once per
// event with New; there is no mutation API.
type Package struct {
	values   map[string]decimal.Decimal
	currency string
	rate     decimal.Decimal
}

// New copies the given values into an immutable package. Currency and rate
// are carried only for narrative substitution.
func New(values map[string]decimal.Decimal, currency string, rate decimal.Decimal) *Package {
	copied := make(map[string]decimal.Decimal, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Package{values: copied, currency: currency, rate: rate}
}

// Value returns the amount stored under key.
func (p *Package) Value(key string) (decimal.Decimal, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Currency returns the package's currency code.
func (p *Package) Currency() string { return p.currency }

// Rate returns the FX rate metadata.
func (p *Package) Rate() decimal.Decimal { return p.rate }

// Keys returns the amount keys present in the package, sorted.
func (p *Package) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve checks every required key against the package and returns the
// resolved values. Missing keys are collected in full, never cut short at
// the first absence, so the upstream amount computation can be fixed in
// one pass.
func (p *Package) Resolve(required []string) (map[string]decimal.Decimal, []string) {
	resolved := make(map[string]decimal.Decimal, len(required))
	var missing []string
	for _, key := range required {
		v, ok := p.values[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		resolved[key] = v
	}
	return resolved, missing
}
