package receipt

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Stats is a spending summary over a set of receipts
type Stats struct {
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
	Average    decimal.Decimal `json:"average"`
	Median     decimal.Decimal `json:"median"`
	TopVendors []VendorTotal   `json:"top_vendors"`
	Monthly    []MonthTotal    `json:"monthly"`
}

// VendorTotal aggregates receipts of a single vendor
type VendorTotal struct {
	Vendor string          `json:"vendor"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// MonthTotal aggregates receipts of a calendar month (YYYY-MM)
type MonthTotal struct {
	Month string          `json:"month"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// maxFilledMonths is the widest month series that is gap-filled
const maxFilledMonths = 120

// MarshalJSON renders amounts as fixed two-place strings
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	return json.Marshal(struct {
		plain
		Total   string `json:"total"`
		Average string `json:"average"`
		Median  string `json:"median"`
	}{
		plain:   plain(s),
		Total:   s.Total.StringFixed(2),
		Average: s.Average.StringFixed(2),
		Median:  s.Median.StringFixed(2),
	})
}

func (v VendorTotal) MarshalJSON() ([]byte, error) {
	type plain VendorTotal
	return json.Marshal(struct {
		plain
		Total string `json:"total"`
	}{plain(v), v.Total.StringFixed(2)})
}

func (m MonthTotal) MarshalJSON() ([]byte, error) {
	type plain MonthTotal
	return json.Marshal(struct {
		plain
		Total string `json:"total"`
	}{plain(m), m.Total.StringFixed(2)})
}

// ComputeStats summarizes receipts. Vendors are ranked by receipt count, then
// by name, and at most topVendors are returned (all when topVendors <= 0).
// Months without receipts between the first and last month are included with
// a zero total so the series has no gaps, unless the series would span more
// than maxFilledMonths; then only months with receipts are listed.
func ComputeStats(receipts []*Receipt, topVendors int) *Stats {
	stats := &Stats{
		Count:      len(receipts),
		TopVendors: []VendorTotal{},
		Monthly:    []MonthTotal{},
	}
	if len(receipts) == 0 {
		return stats
	}

	amounts := make([]decimal.Decimal, 0, len(receipts))
	vendors := make(map[string]*VendorTotal)
	months := make(map[string]*MonthTotal)
	first, last := receipts[0].Date.Time, receipts[0].Date.Time

	for _, r := range receipts {
		amounts = append(amounts, r.Amount)
		stats.Total = stats.Total.Add(r.Amount)

		v, ok := vendors[r.Vendor]
		if !ok {
			v = &VendorTotal{Vendor: r.Vendor}
			vendors[r.Vendor] = v
		}
		v.Count++
		v.Total = v.Total.Add(r.Amount)

		key := r.Date.Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &MonthTotal{Month: key}
			months[key] = m
		}
		m.Count++
		m.Total = m.Total.Add(r.Amount)

		if r.Date.Before(first) {
			first = r.Date.Time
		}
		if r.Date.After(last) {
			last = r.Date.Time
		}
	}

	stats.Average = stats.Total.Div(decimal.NewFromInt(int64(len(receipts)))).Round(2)
	stats.Median = median(amounts)

	for _, v := range vendors {
		stats.TopVendors = append(stats.TopVendors, *v)
	}
	sort.Slice(stats.TopVendors, func(i, j int) bool {
		a, b := stats.TopVendors[i], stats.TopVendors[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Vendor < b.Vendor
	})
	if topVendors > 0 && len(stats.TopVendors) > topVendors {
		stats.TopVendors = stats.TopVendors[:topVendors]
	}

	span := (last.Year()-first.Year())*12 + int(last.Month()-first.Month()) + 1
	if span > maxFilledMonths {
		for _, m := range months {
			stats.Monthly = append(stats.Monthly, *m)
		}
		// YYYY-MM keys sort chronologically for four-digit years
		sort.Slice(stats.Monthly, func(i, j int) bool {
			return stats.Monthly[i].Month < stats.Monthly[j].Month
		})
		return stats
	}

	end := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
	for month := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC); !month.After(end); month = month.AddDate(0, 1, 0) {
		key := month.Format("2006-01")
		if m, ok := months[key]; ok {
			stats.Monthly = append(stats.Monthly, *m)
		} else {
			stats.Monthly = append(stats.Monthly, MonthTotal{Month: key, Total: decimal.Zero})
		}
	}

	return stats
}

// median sorts amounts in place
func median(amounts []decimal.Decimal) decimal.Decimal {
	sort.Slice(amounts, func(i, j int) bool {
		return amounts[i].LessThan(amounts[j])
	})
	mid := len(amounts) / 2
	if len(amounts)%2 == 1 {
		return amounts[mid]
	}
	return amounts[mid-1].Add(amounts[mid]).Div(decimal.NewFromInt(2)).Round(2)
}
