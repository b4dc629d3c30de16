// Package enhance generates optional marketing descriptions for resolved
// products via an OpenAI-compatible chat API.
package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/linkpipe/linkpipe/internal/domain"
	"github.com/linkpipe/linkpipe/internal/logger"
)

const (
	maxDescriptionInput = 800
	maxTokens           = 150
	temperature         = 0.7
)

const systemPrompt = `Você é um especialista em marketing digital e copywriting para e-commerce.
Crie descrições curtas e persuasivas para produtos.
- MÁXIMO 2-3 frases, linguagem informal e envolvente
- Destaque benefícios ou características principais
- Use no máximo 3-4 emojis relevantes
- Não repita o título do produto
- NUNCA mencione preços, cupons, promoções ou links
- NUNCA use "compre agora" ou "clique aqui"`

// Promotional fragments are stripped before prompting so the model never
// sees prices or coupon codes it could leak back into the description.
var promoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)de:\s*R?\$?\s*[\d.,]+[^\n]*\n?`),
	regexp.MustCompile(`(?i)por:\s*R?\$?\s*[\d.,]+[^\n]*\n?`),
	regexp.MustCompile(`(?i)cupom:[^\n]*\n?`),
	regexp.MustCompile(`(?i)código:[^\n]*\n?`),
	regexp.MustCompile(`[💸💰🔥][^\n]*\n?`),
	regexp.MustCompile(`https?://\S+`),
	regexp.MustCompile(`(?i)comprar:[^\n]*\n?`),
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// StripPromo removes pricing, coupon and link fragments from free text.
func StripPromo(text string) string {
	for _, p := range promoPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
}

// Describer calls an OpenAI-compatible chat completion endpoint.
type Describer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  logger.Logger
}

// NewDescriber creates a describer.
func NewDescriber(baseURL, apiKey, model string, timeout time.Duration, log logger.Logger) (*Describer, error) {
	if baseURL == "" {
		return nil, errors.New("enhancer URL is required")
	}
	if apiKey == "" {
		return nil, errors.New("enhancer API key is required")
	}

	return &Describer{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Describe generates a short description for a product. The context text
// is sanitized so the model works only from product characteristics.
func (d *Describer) Describe(ctx context.Context, title string, _ domain.ResolvedMetadata, contextText string) (string, error) {
	clean := StripPromo(contextText)
	if len(clean) > maxDescriptionInput {
		clean = clean[:maxDescriptionInput]
	}

	prompt := fmt.Sprintf("Título do produto: %q", title)
	if clean != "" {
		prompt += fmt.Sprintf("\n\nDescrição do produto (sem preços ou promoções):\n%q\n\n", clean)
		prompt += "Com base nesta descrição, crie uma versão resumida e persuasiva (2-3 frases) destacando os benefícios principais."
	} else {
		prompt += "\n\nCrie uma descrição persuasiva e atrativa (2-3 frases) para este produto."
	}

	body, err := json.Marshal(chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if unmarshalErr := json.Unmarshal(respBody, &parsed); unmarshalErr != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", unmarshalErr)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	description := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if description == "" {
		return "", errors.New("chat completion returned empty description")
	}
	return description, nil
}
