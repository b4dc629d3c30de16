package resolver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/resolver"
)

func newHTTPClient(t *testing.T, handler http.Handler) *resolver.HTTPClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := resolver.NewHTTPClient(server.URL, 5*time.Second, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	return client
}

func TestHTTPClient_Submit(t *testing.T) {
	client := newHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["product_url"] != "https://shop.example.com/p/1" {
			t.Errorf("product_url = %q", body["product_url"])
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "job-42"})
	}))

	jobID, err := client.Submit(context.Background(), "https://shop.example.com/p/1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if jobID != "job-42" {
		t.Errorf("Submit() = %q, want job-42", jobID)
	}
}

func TestHTTPClient_Submit_NoJobID(t *testing.T) {
	client := newHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))

	if _, err := client.Submit(context.Background(), "https://shop.example.com/p/1"); err == nil {
		t.Error("Submit() error = nil, want error for missing job id")
	}
}

func TestHTTPClient_Poll_NestedData(t *testing.T) {
	client := newHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check/job-42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"data": map[string]any{
				"affiliate_link": "https://aff.example.com/x",
				"product_title":  "Fone",
				"price_current":  "R$ 89,90",
			},
		})
	}))

	result, err := client.Poll(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if result.Status != "completed" {
		t.Errorf("Status = %q", result.Status)
	}
	if result.AffiliateURL != "https://aff.example.com/x" {
		t.Errorf("AffiliateURL = %q", result.AffiliateURL)
	}
	if result.Title != "Fone" {
		t.Errorf("Title = %q", result.Title)
	}
}

func TestHTTPClient_Poll_FlatResponseAndLinkAliases(t *testing.T) {
	client := newHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"link":   "https://aff.example.com/alias",
		})
	}))

	result, err := client.Poll(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if result.AffiliateURL != "https://aff.example.com/alias" {
		t.Errorf("AffiliateURL = %q, want link alias honored", result.AffiliateURL)
	}
}

func TestHTTPClient_Poll_HTTPError(t *testing.T) {
	client := newHTTPClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	if _, err := client.Poll(context.Background(), "job-1"); err == nil {
		t.Error("Poll() error = nil, want error for 502")
	}
}
