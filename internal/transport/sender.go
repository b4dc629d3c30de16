// Package transport delivers composed messages to destination groups
// through the external messaging gateway.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/linkpipe/linkpipe/internal/logger"
	"github.com/linkpipe/linkpipe/internal/normalize"
)

// Sender delivers one payload to one destination address.
type Sender interface {
	Send(ctx context.Context, destination string, payload normalize.Payload) error
}

// HTTPSender posts payloads to the messaging gateway, paced by a shared
// rate limiter so bursts never hit the gateway's flood protection.
type HTTPSender struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewHTTPSender creates a sender limited to rps requests per second.
func NewHTTPSender(baseURL, token string, timeout time.Duration, rps int, log logger.Logger) (*HTTPSender, error) {
	if baseURL == "" {
		return nil, errors.New("transport URL is required")
	}
	if rps <= 0 {
		rps = 1
	}

	return &HTTPSender{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  log,
	}, nil
}

type sendRequest struct {
	To      string `json:"to"`
	Text    string `json:"text,omitempty"`
	Image   string `json:"image,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Send posts one message. It blocks on the rate limiter, so concurrent
// callers are serialized to the configured pace.
func (s *HTTPSender) Send(ctx context.Context, destination string, payload normalize.Payload) error {
	if payload.Text == "" && payload.Caption == "" {
		return errors.New("empty payload")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(sendRequest{
		To:      destination,
		Text:    payload.Text,
		Image:   payload.ImageRef,
		Caption: payload.Caption,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read send response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed sendResponse
	if unmarshalErr := json.Unmarshal(respBody, &parsed); unmarshalErr == nil && !parsed.Success && parsed.Error != "" {
		return fmt.Errorf("send message rejected: %s", parsed.Error)
	}

	s.logger.Debug("Message delivered",
		logger.String("destination", destination),
		logger.Bool("with_image", payload.ImageRef != ""),
	)
	return nil
}
