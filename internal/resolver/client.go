// Package resolver drives the asynchronous affiliate-resolution job API.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linkpipe/linkpipe/internal/logger"
)

// Client is the resolution API surface the engine polls against.
type Client interface {
	// Submit starts a resolution job for a product URL.
	Submit(ctx context.Context, productURL string) (jobID string, err error)
	// Poll fetches the current state of a job.
	Poll(ctx context.Context, jobID string) (*PollResult, error)
}

// PollResult is one poll response, flattened from the API's envelope.
type PollResult struct {
	Status        string
	Message       string
	AffiliateURL  string
	Title         string
	PriceCurrent  string
	PriceOriginal string
	Discount      string
	Image         string
}

// HTTPClient talks to the resolution service over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// NewHTTPClient creates a client for the resolution service.
func NewHTTPClient(baseURL string, timeout time.Duration, log logger.Logger) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.New("resolver URL is required")
	}

	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}, nil
}

type submitRequest struct {
	ProductURL string `json:"product_url"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// Submit starts a resolution job and returns its identifier.
func (c *HTTPClient) Submit(ctx context.Context, productURL string) (string, error) {
	body, err := json.Marshal(submitRequest{ProductURL: productURL})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit resolution job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("submit resolution job: unexpected status %d", resp.StatusCode)
	}

	var parsed submitResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&parsed); decodeErr != nil {
		return "", fmt.Errorf("decode submit response: %w", decodeErr)
	}
	if parsed.ID == "" {
		return "", errors.New("submit response carried no job id")
	}
	return parsed.ID, nil
}

// pollEnvelope mirrors the API's loose response shape: result fields may
// sit under "data" or at the top level, and the affiliate link appears
// under several historical keys.
type pollEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`

	pollFields
}

type pollFields struct {
	AffiliateLink string `json:"affiliate_link"`
	Link          string `json:"link"`
	LinkLegacy    string `json:"Link"`
	ProductTitle  string `json:"product_title"`
	PriceCurrent  string `json:"price_current"`
	PriceOriginal string `json:"price_original"`
	DiscountPct   string `json:"discount_percent"`
	ProductImage  string `json:"product_image"`
}

// Poll fetches the current state of a job.
func (c *HTTPClient) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/check/"+jobID, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create poll request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll resolution job: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll resolution job: unexpected status %d", resp.StatusCode)
	}

	var envelope pollEnvelope
	if decodeErr := json.Unmarshal(raw, &envelope); decodeErr != nil {
		return nil, fmt.Errorf("decode poll response: %w", decodeErr)
	}

	fields := envelope.pollFields
	if len(envelope.Data) > 0 {
		// Nested payload wins over whatever sits at the top level.
		var nested pollFields
		if nestedErr := json.Unmarshal(envelope.Data, &nested); nestedErr == nil {
			fields = nested
		}
	}

	affiliate := fields.AffiliateLink
	if affiliate == "" {
		affiliate = fields.Link
	}
	if affiliate == "" {
		affiliate = fields.LinkLegacy
	}

	return &PollResult{
		Status:        envelope.Status,
		Message:       envelope.Message,
		AffiliateURL:  affiliate,
		Title:         fields.ProductTitle,
		PriceCurrent:  fields.PriceCurrent,
		PriceOriginal: fields.PriceOriginal,
		Discount:      fields.DiscountPct,
		Image:         fields.ProductImage,
	}, nil
}
