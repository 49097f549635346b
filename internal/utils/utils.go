// Package utils provides small numeric and formatting helpers shared by the
// live state, analytics and notification code.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// Percentage returns a/b as a whole percent, rounded half away from zero.
// Returns 0 if b is 0.
func Percentage(a, b int) int {
	if b == 0 {
		return 0
	}
	return int(math.Round(float64(a) / float64(b) * 100))
}

// FloatRound rounds a float to the specified number of decimal places.
func FloatRound(number float64, ndigits int) float64 {
	pow := math.Pow(10, float64(ndigits))
	return math.Round(number*pow) / pow
}

// Millify converts a number to a short human-readable string.
// For example: 950 -> "950", 1500 -> "1.5K", 2000000 -> "2M".
func Millify(n int, precision int) string {
	if precision < 0 {
		precision = 1
	}

	abs := math.Abs(float64(n))
	sign := ""
	if n < 0 {
		sign = "-"
	}

	for _, s := range []struct {
		threshold float64
		suffix    string
	}{
		{1e9, "B"},
		{1e6, "M"},
		{1e3, "K"},
	} {
		if abs >= s.threshold {
			return sign + formatFloat(abs/s.threshold, precision) + s.suffix
		}
	}

	return fmt.Sprintf("%d", n)
}

func formatFloat(f float64, precision int) string {
	s := fmt.Sprintf("%.*f", precision, f)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// Plural returns "1 person" / "3 people" style counts.
func Plural(n int, singular, plural string) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
