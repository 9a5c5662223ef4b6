package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used on the wire.
const DateLayout = "2006-01-02"

// MoneyScale is the number of fractional digits kept for monetary amounts.
const MoneyScale = 2

// IsMoney reports whether d is representable with MoneyScale fractional digits.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// IsPositiveMoney reports whether d > 0 and has at most two fractional digits.
func IsPositiveMoney(d decimal.Decimal) bool {
	return d.IsPositive() && IsMoney(d)
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// TruncateToDay drops the clock part of t, keeping its location.
func TruncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PeriodEndingOn returns the inclusive [start, end] range of the given number of
// days that ends on the calendar day of end.
func PeriodEndingOn(end time.Time, days int) (time.Time, time.Time) {
	if days < 1 {
		days = 1
	}
	end = TruncateToDay(end)
	return end.AddDate(0, 0, -(days - 1)), end
}
