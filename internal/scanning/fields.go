package scanning

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownVendor is used when no line of the text qualifies as a vendor name
const UnknownVendor = "Unknown Vendor"

// minVendorLength is exclusive: a vendor line must be longer than this
const minVendorLength = 3

// amountKeywords mark lines that usually carry the receipt total
var amountKeywords = []string{"total", "amount", "paid", "balance"}

// moneyPattern matches digits, a decimal separator and exactly two fractional digits
var moneyPattern = regexp.MustCompile(`\d+[.,]\d{2}`)

// Fields contains the structured values extracted from receipt text
type Fields struct {
	Vendor string
	Date   time.Time
	Amount decimal.Decimal
}

// ExtractFields runs the vendor, amount and date heuristics over text.
// now is the processing time used when no date can be found. Only a missing
// amount is an error; vendor and date always resolve to something.
func ExtractFields(text string, now time.Time) (*Fields, error) {
	amount, ok := ParseAmount(text)
	if !ok {
		return nil, ErrAmountUnresolved
	}
	return &Fields{
		Vendor: ParseVendor(text),
		Date:   ParseDate(text, now),
		Amount: amount,
	}, nil
}

// ParseVendor returns the first line longer than three characters, title-cased.
func ParseVendor(text string) string {
	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if len([]rune(line)) > minVendorLength {
			return cases.Title(language.Und).String(line)
		}
	}
	return UnknownVendor
}

// amountStrategy is one step of the amount fallback chain
type amountStrategy struct {
	name string
	find func(text string) (string, bool)
}

// amountStrategies are tried in order; the first hit wins
var amountStrategies = []amountStrategy{
	{name: "keyword line", find: findKeywordAmount},
	{name: "last monetary value", find: findLastAmount},
}

// ParseAmount finds the receipt total. The second return value is false when
// the text holds no monetary value at all.
func ParseAmount(text string) (decimal.Decimal, bool) {
	for _, s := range amountStrategies {
		match, ok := s.find(text)
		if !ok {
			continue
		}
		if amount, err := parseMoney(match); err == nil {
			return amount, true
		}
	}
	return decimal.Decimal{}, false
}

// findKeywordAmount scans lines bottom-up and stops at the first keyword
// line that carries a monetary value.
func findKeywordAmount(text string) (string, bool) {
	lines := splitLines(text)
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.ToLower(lines[i])
		if !containsAny(line, amountKeywords) {
			continue
		}
		if match := moneyPattern.FindString(line); match != "" {
			return match, true
		}
	}
	return "", false
}

// findLastAmount returns the last monetary value anywhere in the text
func findLastAmount(text string) (string, bool) {
	matches := moneyPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1], true
}

// parseMoney reads a monetary match, treating ',' as the fractional separator
func parseMoney(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Replace(s, ",", ".", 1))
}

// dateRule pairs a search pattern with the layouts its match is parsed with
type dateRule struct {
	pattern *regexp.Regexp
	layouts []string
}

// dateLayouts are attempted in order for every candidate substring.
// Day-first is preferred; there is no locale inference.
var dateLayouts = []string{"02/01/2006", "2006-01-02"}

// dateRules are tried in order. Only the first match of each pattern is
// considered before moving on to the next rule.
var dateRules = []dateRule{
	{pattern: regexp.MustCompile(`\d{2}/\d{2}/\d{4}`), layouts: dateLayouts},
	{pattern: regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), layouts: dateLayouts},
}

// ParseDate returns the first date recognized by the rule table, or today's
// calendar date when nothing matches.
func ParseDate(text string, today time.Time) time.Time {
	for _, rule := range dateRules {
		match := rule.pattern.FindString(text)
		if match == "" {
			continue
		}
		for _, layout := range rule.layouts {
			if d, err := time.Parse(layout, match); err == nil {
				return d
			}
		}
	}
	y, m, d := today.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// splitLines splits on any newline convention
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
