package domain_test

import (
	"testing"

	"github.com/linkpipe/linkpipe/internal/domain"
)

func TestParseResolvedMetadata(t *testing.T) {
	raw := []byte(`{"product_title":"Fone Bluetooth","price_current":"R$ 99,90","coupon":"PROMO10"}`)

	m := domain.ParseResolvedMetadata(raw)
	if m.Title != "Fone Bluetooth" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.PriceCurrent != "R$ 99,90" {
		t.Errorf("PriceCurrent = %q", m.PriceCurrent)
	}
	if m.Coupon != "PROMO10" {
		t.Errorf("Coupon = %q", m.Coupon)
	}
}

func TestParseResolvedMetadata_Tolerant(t *testing.T) {
	// Old rows may hold nothing or garbage; parsing must never fail.
	for _, raw := range [][]byte{nil, {}, []byte("not json")} {
		m := domain.ParseResolvedMetadata(raw)
		if m.Title != "" {
			t.Errorf("ParseResolvedMetadata(%q).Title = %q, want empty", raw, m.Title)
		}
	}
}

func TestCapturedContext_RoundTrip(t *testing.T) {
	c := domain.CapturedContext{
		Text:      "De R$ 50 Por R$ 25",
		PriceFrom: "R$ 50",
		PriceTo:   "R$ 25",
		Coupon:    "cupom25",
	}

	got := domain.ParseCapturedContext(c.Encode())
	if got != c {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
	}
}
