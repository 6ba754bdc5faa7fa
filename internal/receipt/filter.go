package receipt

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Filter selects receipts. Every set criterion must hold; nil bounds and an
// empty vendor impose no constraint.
type Filter struct {
	// Vendor is matched as a case-sensitive substring
	Vendor string
	// DateFrom and DateTo are inclusive
	DateFrom *Date
	DateTo   *Date
	// AmountMin and AmountMax are inclusive
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal
}

// Match reports whether r satisfies every criterion of f
func (f Filter) Match(r *Receipt) bool {
	if f.Vendor != "" && !strings.Contains(r.Vendor, f.Vendor) {
		return false
	}
	if f.DateFrom != nil && r.Date.Before(f.DateFrom.Time) {
		return false
	}
	if f.DateTo != nil && r.Date.After(f.DateTo.Time) {
		return false
	}
	if f.AmountMin != nil && r.Amount.LessThan(*f.AmountMin) {
		return false
	}
	if f.AmountMax != nil && r.Amount.GreaterThan(*f.AmountMax) {
		return false
	}
	return true
}

// Apply returns the receipts matching f, preserving input order
func (f Filter) Apply(receipts []*Receipt) []*Receipt {
	matched := make([]*Receipt, 0, len(receipts))
	for _, r := range receipts {
		if f.Match(r) {
			matched = append(matched, r)
		}
	}
	return matched
}

// FilterFromQuery builds a Filter from vendor, date_from, date_to,
// amount_min and amount_max query parameters.
func FilterFromQuery(q url.Values) (Filter, error) {
	f := Filter{Vendor: q.Get("vendor")}

	var err error
	if f.DateFrom, err = optionalDate(q, "date_from"); err != nil {
		return Filter{}, err
	}
	if f.DateTo, err = optionalDate(q, "date_to"); err != nil {
		return Filter{}, err
	}
	if f.AmountMin, err = optionalAmount(q, "amount_min"); err != nil {
		return Filter{}, err
	}
	if f.AmountMax, err = optionalAmount(q, "amount_max"); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func optionalDate(q url.Values, key string) (*Date, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	d, err := ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &d, nil
}

func optionalAmount(q url.Values, key string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	a, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &a, nil
}
