package axis

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	dateLayout     = "Jan 2"
	dateTimeLayout = "Jan 2, 2006, 03:04 PM"
)

var printer = message.NewPrinter(language.AmericanEnglish)

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// FormatCurrency renders v as US dollars with exactly two fraction digits,
// e.g. "$1,234.50" or "-$3.00". Non-finite values render as "$0.00".
func FormatCurrency(v float64) string {
	v = finite(v)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	// Rounding can turn a tiny negative into "-$0.00".
	if math.Round(v*100) == 0 {
		sign = ""
	}
	return sign + "$" + printer.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// FormatNumber renders v with grouping and at most maxFraction fraction digits.
func FormatNumber(v float64, maxFraction int) string {
	return printer.Sprint(number.Decimal(finite(v), number.MaxFractionDigits(maxFraction)))
}

// FormatFixed renders v with exactly digits fraction digits.
func FormatFixed(v float64, digits int) string {
	return printer.Sprint(number.Decimal(finite(v), number.MinFractionDigits(digits), number.MaxFractionDigits(digits)))
}

// FormatPercent renders a rounded percentage such as "25%".
func FormatPercent(v float64) string {
	return FormatNumber(v, 0) + "%"
}

// FormatDate renders t as "Sep 1" in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

// FormatDateTime renders t as "Sep 1, 2025, 02:00 PM" in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateTimeLayout)
}

// FormatDuration renders the distance from start to end rounded to the minute,
// omitting zero units: "2d", "1d 30m", "3h", "1h 5m", "0m". Negative spans
// render as "0m".
func FormatDuration(start, end time.Time) string {
	d := max(end.Sub(start), 0)
	total := int64(math.Round(d.Minutes()))
	days := total / (24 * 60)
	hours := (total % (24 * 60)) / 60
	minutes := total % 60

	switch {
	case days > 0 && hours == 0 && minutes == 0:
		return fmt.Sprintf("%dd", days)
	case days > 0 && hours == 0:
		return fmt.Sprintf("%dd %dm", days, minutes)
	case days > 0 && minutes == 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0 && minutes == 0:
		return fmt.Sprintf("%dh", hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
