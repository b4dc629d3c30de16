package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/linkpipe/linkpipe/internal/domain"
)

// Promotional text in the source groups follows loose Brazilian retail
// conventions: "De R$ X Por R$ Y", "CUPOM: CODE", a bare percentage.
var (
	fromToPattern    = regexp.MustCompile(`(?i)DE\s*R?\$?\s*([\d.,]+).*?POR\s*R?\$?\s*([\d.,]+)`)
	couponPattern    = regexp.MustCompile(`(?i)CUPOM[:\s]*([A-Z0-9_-]+)`)
	discountPattern  = regexp.MustCompile(`(\d{1,2})\s*%`)
	barePricePattern = regexp.MustCompile(`R?\$?\s*([\d.,]+)`)
)

// MinedContext is what the free-text miner recovered from one captured
// chat message.
type MinedContext struct {
	PriceFrom string
	PriceTo   string
	Coupon    string
	Discount  string
	Image     string // data URI when a thumbnail was captured
}

// MineContext extracts structured hints from the captured chat context.
// Explicit fields on the context win over anything mined from free text.
func MineContext(ctx domain.CapturedContext) MinedContext {
	var m MinedContext

	text := strings.ToUpper(strings.ReplaceAll(ctx.Text, "\n", " "))

	if match := couponPattern.FindStringSubmatch(text); match != nil {
		m.Coupon = match[1]
	}
	if ctx.Coupon != "" {
		m.Coupon = strings.ToUpper(strings.TrimSpace(ctx.Coupon))
	}

	if match := fromToPattern.FindStringSubmatch(text); match != nil {
		m.PriceFrom = "R$ " + match[1]
		m.PriceTo = "R$ " + match[2]
	}
	if ctx.PriceFrom != "" {
		m.PriceFrom = ctx.PriceFrom
	}
	if ctx.PriceTo != "" {
		m.PriceTo = ctx.PriceTo
	}

	if match := discountPattern.FindStringSubmatch(text); match != nil {
		m.Discount = match[1]
	}

	// Fallback: any lone price counts as the current price.
	if m.PriceTo == "" {
		if match := barePricePattern.FindStringSubmatch(text); match != nil {
			if _, ok := ParsePrice(match[1]); ok {
				m.PriceTo = "R$ " + match[1]
			}
		}
	}

	if ctx.Thumbnail != "" {
		m.Image = "data:image/jpeg;base64," + ctx.Thumbnail
	}

	return m
}

// firstUsableLine returns the first line of text that looks like a
// product title: long enough and not a URL. Short promo tags and link
// lines are skipped, not disqualifying. Length is counted in runes so an
// emoji-heavy tag does not pass on byte count alone.
func firstUsableLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "http") {
			continue
		}
		if utf8.RuneCountInString(line) > 10 {
			return line
		}
	}
	return ""
}
