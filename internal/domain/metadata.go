package domain

import "encoding/json"

// ResolvedMetadata holds the product fields returned by the resolution API
// for a completed job, plus the optional AI-enhanced description. All
// fields originate from the API side; raw-context fields live in
// CapturedContext so provenance stays explicit.
type ResolvedMetadata struct {
	Title         string `json:"product_title,omitempty"`
	PriceCurrent  string `json:"price_current,omitempty"`
	PriceOriginal string `json:"price_original,omitempty"`
	Discount      string `json:"discount_percent,omitempty"`
	Image         string `json:"product_image,omitempty"`
	Description   string `json:"description,omitempty"`
	Coupon        string `json:"coupon,omitempty"`
	AIDescription string `json:"ai_description,omitempty"`
}

// CapturedContext is the ingestion-time payload captured verbatim with a
// link: the surrounding message text and whatever structured hints the
// transport attached. It enriches fields the resolution API lacks.
type CapturedContext struct {
	Text        string `json:"text,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	// PriceFrom/PriceTo are labeled "De/Por" hints mined from the text.
	PriceFrom string `json:"price_from,omitempty"`
	PriceTo   string `json:"price_to,omitempty"`
	Coupon    string `json:"coupon,omitempty"`
	// Thumbnail is a base64 JPEG embedded in the source message.
	Thumbnail string `json:"jpeg_thumbnail,omitempty"`
}

// ParseResolvedMetadata decodes the stored metadata blob. A nil or empty
// blob yields an empty record, never an error: distribution must tolerate
// links persisted before enrichment existed.
func ParseResolvedMetadata(raw []byte) ResolvedMetadata {
	var m ResolvedMetadata
	if len(raw) == 0 {
		return m
	}
	_ = json.Unmarshal(raw, &m)
	return m
}

// ParseCapturedContext decodes the stored captured-context blob with the
// same tolerance as ParseResolvedMetadata.
func ParseCapturedContext(raw []byte) CapturedContext {
	var c CapturedContext
	if len(raw) == 0 {
		return c
	}
	_ = json.Unmarshal(raw, &c)
	return c
}

// Encode serializes the metadata for the jsonb column.
func (m ResolvedMetadata) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

// Encode serializes the context for the jsonb column.
func (c CapturedContext) Encode() []byte {
	b, _ := json.Marshal(c)
	return b
}
