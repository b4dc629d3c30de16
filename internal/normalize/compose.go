package normalize

import (
	"fmt"
	"strings"
)

// Composer renders a normalized product into the outgoing message.
type Composer struct {
	includeDescription bool
}

// NewComposer creates a composer. Descriptions can be switched off to
// keep messages short on rate-limited destinations.
func NewComposer(includeDescription bool) *Composer {
	return &Composer{includeDescription: includeDescription}
}

// Payload is the transport-ready message: a captioned image when one is
// available, plain text otherwise.
type Payload struct {
	Text     string `json:"text,omitempty"`
	ImageRef string `json:"image,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Compose builds the full message text from a normalized product.
// A product without an affiliate URL composes to the empty string, which
// callers treat as structurally invalid.
func (c *Composer) Compose(p Product) string {
	if p.AffiliateURL == "" {
		return ""
	}

	sections := []string{"📦 " + p.Title}

	if c.includeDescription && p.Description != "" {
		sections = append(sections, p.Description)
	}
	if p.Price.HasPrice {
		sections = append(sections, c.priceSection(p.Price))
	}
	if p.Coupon != "" {
		sections = append(sections, "🎟️ Cupom: "+p.Coupon)
	}

	sections = append(sections,
		"🛒 Comprar agora:\n👉 "+p.AffiliateURL,
		"🛡️ Compra segura",
	)

	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

func (c *Composer) priceSection(price Price) string {
	if price.Discount > 0 && price.Original > 0 {
		return strings.Join([]string{
			"💰 De: " + FormatPrice(price.Original),
			"🔥 Por: " + FormatPrice(price.Current),
			fmt.Sprintf("🎯 %d%% OFF", price.Discount),
		}, "\n")
	}
	return "💰 Preço: " + FormatPrice(price.Current)
}

// ComposePayload builds the transport payload for one product.
func (c *Composer) ComposePayload(p Product) Payload {
	caption := c.Compose(p)
	if p.Image != "" {
		return Payload{ImageRef: p.Image, Caption: caption}
	}
	return Payload{Text: caption}
}
