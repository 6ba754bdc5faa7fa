package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the display and storage format of receipt dates
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when no receipt has the requested ID
	ErrNotFound = errors.New("receipt not found")

	// ErrInvalidReceipt is returned when a receipt would violate the model's invariants
	ErrInvalidReceipt = errors.New("invalid receipt")
)

// Receipt is a persisted extraction result. Receipts are never modified after creation.
type Receipt struct {
	ID       string          `json:"id"`
	Vendor   string          `json:"vendor"`
	Date     Date            `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
}

// MarshalJSON renders the amount as a string with exactly two decimal places
func (r Receipt) MarshalJSON() ([]byte, error) {
	type plain Receipt
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain(r), r.Amount.StringFixed(2)})
}

// Date is a calendar date without a time of day, always stored as UTC midnight
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON renders the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON reads a "YYYY-MM-DD" string
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshaling date: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var (
	hundred = decimal.NewFromInt(100)

	// maxCents is the largest amount, in cents, a store can index
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// validateReceipt enforces the invariants shared by all DB implementations
func validateReceipt(vendor string, amount decimal.Decimal) error {
	if strings.TrimSpace(vendor) == "" {
		return fmt.Errorf("%w: vendor is required", ErrInvalidReceipt)
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: amount %s is negative", ErrInvalidReceipt, amount)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: amount %s has more than two decimal places", ErrInvalidReceipt, amount)
	}
	if amount.Mul(hundred).GreaterThan(maxCents) {
		return fmt.Errorf("%w: amount %s is too large", ErrInvalidReceipt, amount)
	}
	return nil
}
