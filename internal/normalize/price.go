// Package normalize merges resolver metadata with captured chat context
// into a single composable product view.
package normalize

import (
	"math"
	"strconv"
	"strings"
)

// ParsePrice extracts a numeric value from a Brazilian price string such
// as "R$ 1.234,56". Returns 0 and false when no positive value is found.
func ParsePrice(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.NewReplacer("R$", "", "r$", "").Replace(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}

	// Thousand dots out, decimal comma in.
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) || value <= 0 {
		return 0, false
	}
	return value, true
}

// FormatPrice renders a value in the Brazilian currency convention:
// two decimals, comma decimal separator, dot thousand separators.
// 1234.56 becomes "R$ 1.234,56".
func FormatPrice(value float64) string {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return ""
	}

	// Round half away from zero to two decimals first so the grouping
	// below sees the final digits.
	cents := int64(math.Round(math.Abs(value) * 100))
	whole := cents / 100
	frac := cents % 100

	digits := strconv.FormatInt(whole, 10)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(d)
	}

	sign := ""
	if value < 0 {
		sign = "-"
	}
	return "R$ " + sign + grouped.String() + "," + pad2(frac)
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

// Price is the normalized price block.
type Price struct {
	Current  float64
	Original float64
	Discount int // percent, 0 when absent
	HasPrice bool
}

// NormalizePrice merges price candidates in source priority order and
// derives the discount when the original beats the current price.
func NormalizePrice(apiCurrent, apiOriginal, contextFrom, contextTo string) Price {
	var p Price

	if v, ok := firstPrice(apiCurrent, contextTo); ok {
		p.Current = v
		p.HasPrice = true
	}
	if v, ok := firstPrice(apiOriginal, contextFrom); ok {
		p.Original = v
	}

	if p.HasPrice && p.Original > p.Current {
		p.Discount = int(math.Round((p.Original - p.Current) / p.Original * 100))
	}
	return p
}

func firstPrice(candidates ...string) (float64, bool) {
	for _, c := range candidates {
		if v, ok := ParsePrice(c); ok {
			return v, true
		}
	}
	return 0, false
}
