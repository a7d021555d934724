// Package gemini implements the keyed primary provider on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

var errEmptyResponse = errors.New("empty response")

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client implements domain.Provider.
type Client struct {
	client    *genai.Client
	model     generator
	modelName string
}

// New opens a Gemini API client for modelName.
func New(ctx context.Context, apiKey, modelName string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("op=gemini.New: api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("op=gemini.New: %w", err)
	}
	return &Client{client: client, model: client.GenerativeModel(modelName), modelName: modelName}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Name implements domain.Provider.
func (c *Client) Name() domain.Backend { return domain.BackendGemini }

// Model returns the configured model id.
func (c *Client) Model() string { return c.modelName }

// Generate implements domain.Provider.
func (c *Client) Generate(ctx domain.Context, prompt string, img *domain.Image) (string, error) {
	parts := []genai.Part{genai.Text(prompt)}
	if img != nil {
		parts = append(parts, genai.ImageData(imageFormat(img.MIME), img.Data))
	}
	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("op=gemini.Generate: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", fmt.Errorf("op=gemini.Generate: %w", err)
	}
	return text, nil
}

// imageFormat turns "image/jpeg" into the "jpeg" suffix genai.ImageData wants.
func imageFormat(mime string) string {
	f := strings.TrimPrefix(strings.ToLower(mime), "image/")
	if f == "" {
		return "png"
	}
	return f
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errEmptyResponse
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", errEmptyResponse
	}
	return b.String(), nil
}
