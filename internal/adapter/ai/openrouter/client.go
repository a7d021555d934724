// Package openrouter implements the secondary provider against an
// OpenAI-compatible chat completions API.
package openrouter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-calculator/internal/config"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// maxErrorBody bounds how much of a failed response is logged.
const maxErrorBody = 512

// maxResponseBody bounds how much of a response is read.
const maxResponseBody = 8 << 20

// Client implements domain.Provider for OpenRouter.
type Client struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	referer   string
	title     string
	hc        *http.Client
}

// New constructs a client from config. Returns nil when no API key is set.
func New(cfg config.Config) *Client {
	if strings.TrimSpace(cfg.OpenRouterAPIKey) == "" {
		return nil
	}
	maxTokens := cfg.OpenRouterMaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{
		apiKey:    cfg.OpenRouterAPIKey,
		baseURL:   strings.TrimRight(cfg.OpenRouterBaseURL, "/"),
		model:     cfg.OpenRouterModel,
		maxTokens: maxTokens,
		referer:   cfg.OpenRouterReferer,
		title:     cfg.OpenRouterTitle,
		hc: &http.Client{
			Timeout:   cfg.AIRequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Name implements domain.Provider.
func (c *Client) Name() domain.Backend { return domain.BackendOpenRouter }

// Model returns the configured model id.
func (c *Client) Model() string { return c.model }

type imageURL struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// buildMessages sends text-only prompts as a plain string and image prompts
// as a multimodal array with the image inlined as a data URL.
func buildMessages(prompt string, img *domain.Image) []message {
	if img == nil {
		return []message{{Role: "user", Content: prompt}}
	}
	mime := img.MIME
	if mime == "" {
		mime = "image/png"
	}
	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	return []message{{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: url}},
		},
	}}
}

// Generate implements domain.Provider. A single HTTP call is made; retries are
// the gateway's concern.
func (c *Client) Generate(ctx domain.Context, prompt string, img *domain.Image) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: buildMessages(prompt, img), MaxTokens: c.maxTokens})
	if err != nil {
		return "", fmt.Errorf("op=openrouter.Generate: encode: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=openrouter.Generate: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=openrouter.Generate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return "", fmt.Errorf("op=openrouter.Generate: read body: %w", err)
	}
	if len(raw) > maxResponseBody {
		return "", fmt.Errorf("op=openrouter.Generate: response body exceeds %d bytes", maxResponseBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		slog.Warn("ai provider non-2xx",
			slog.String("provider", string(domain.BackendOpenRouter)),
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.model),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", snippet))
		return "", fmt.Errorf("op=openrouter.Generate: chat status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("op=openrouter.Generate: decode: %w", err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", fmt.Errorf("op=openrouter.Generate: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=openrouter.Generate: empty choices for model %s", c.model)
	}
	slog.Debug("openrouter completion",
		slog.String("model", out.Model),
		slog.Duration("duration", time.Since(start)))
	return out.Choices[0].Message.Content, nil
}
