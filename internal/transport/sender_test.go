package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/normalize"
	"github.com/linkpipe/linkpipe/internal/transport"
)

func newSender(t *testing.T, handler http.Handler) *transport.HTTPSender {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	// High rps keeps the limiter out of the way in unit tests.
	s, err := transport.NewHTTPSender(server.URL, "tok-1", 5*time.Second, 1000, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewHTTPSender() error = %v", err)
	}
	return s
}

func TestHTTPSender_SendText(t *testing.T) {
	var got map[string]string
	sender := newSender(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-1" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))

	err := sender.Send(context.Background(), "dest@g.us", normalize.Payload{Text: "📦 Oferta"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got["to"] != "dest@g.us" || got["text"] != "📦 Oferta" {
		t.Errorf("request = %v", got)
	}
	if _, hasImage := got["image"]; hasImage {
		t.Error("text payload carried an image field")
	}
}

func TestHTTPSender_SendImage(t *testing.T) {
	var got map[string]string
	sender := newSender(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))

	payload := normalize.Payload{ImageRef: "https://cdn.example.com/p.jpg", Caption: "📦 Oferta"}
	if err := sender.Send(context.Background(), "dest@g.us", payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got["image"] != payload.ImageRef || got["caption"] != payload.Caption {
		t.Errorf("request = %v", got)
	}
}

func TestHTTPSender_GatewayErrors(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "rejected send",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "not connected"})
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sender := newSender(t, tc.handler)
			if err := sender.Send(context.Background(), "dest@g.us", normalize.Payload{Text: "x"}); err == nil {
				t.Error("Send() error = nil, want gateway error")
			}
		})
	}
}

func TestHTTPSender_EmptyPayload(t *testing.T) {
	sender := newSender(t, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("gateway must not be called for an empty payload")
	}))

	if err := sender.Send(context.Background(), "dest@g.us", normalize.Payload{}); err == nil {
		t.Error("Send() error = nil, want empty payload error")
	}
}
