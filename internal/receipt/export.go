package receipt

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

var csvHeader = []string{"id", "vendor", "date", "amount", "category"}

// WriteCSV writes receipts as CSV ordered by date, then by ID
func WriteCSV(w io.Writer, receipts []*Receipt) error {
	sorted := make([]*Receipt, len(receipts))
	copy(sorted, receipts)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		return idLess(a.ID, b.ID)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range sorted {
		record := []string{r.ID, csvText(r.Vendor), r.Date.String(), r.Amount.StringFixed(2), csvText(r.Category)}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing receipt %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// csvText keeps spreadsheets from evaluating OCR text as a formula
func csvText(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// idLess orders numeric IDs numerically and anything else lexically
func idLess(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// ExportCSV writes every stored receipt to w
func (s *Service) ExportCSV(w io.Writer) error {
	receipts, err := s.ListReceipts()
	if err != nil {
		return err
	}
	return WriteCSV(w, receipts)
}
