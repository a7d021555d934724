// Package vertex implements the hosted primary provider against the Vertex AI
// generateContent REST endpoint, authenticated with a service account file.
package vertex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Config locates the model.
type Config struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string
	Timeout         time.Duration
	// Endpoint overrides the regional host, e.g. for tests.
	Endpoint string
}

// Client implements domain.Provider.
type Client struct {
	url string
	hc  *http.Client
}

// New reads the credentials file and builds an authenticated client. No
// request is made; the gateway probes the backend separately.
func New(ctx context.Context, cfg Config) (*Client, error) {
	// #nosec G304 -- path comes from GOOGLE_APPLICATION_CREDENTIALS
	raw, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("op=vertex.New: read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("op=vertex.New: parse credentials: %w", err)
	}
	return newWithTokenSource(cfg, creds.TokenSource), nil
}

func newWithTokenSource(cfg Config, ts oauth2.TokenSource) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location)
	}
	url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		strings.TrimRight(endpoint, "/"), cfg.ProjectID, cfg.Location, cfg.Model)
	return &Client{
		url: url,
		hc: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: ts,
				Base:   otelhttp.NewTransport(http.DefaultTransport),
			},
		},
	}
}

// Name implements domain.Provider.
func (c *Client) Name() domain.Backend { return domain.BackendVertex }

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Generate implements domain.Provider.
func (c *Client) Generate(ctx domain.Context, prompt string, img *domain.Image) (string, error) {
	parts := []part{{Text: prompt}}
	if img != nil {
		mime := img.MIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, part{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(img.Data)}})
	}
	body, err := json.Marshal(generateRequest{Contents: []content{{Role: "user", Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("op=vertex.Generate: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=vertex.Generate: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=vertex.Generate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("op=vertex.Generate: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("op=vertex.Generate: status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("op=vertex.Generate: decode: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("op=vertex.Generate: prompt blocked: %s", out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("op=vertex.Generate: no candidates")
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("op=vertex.Generate: empty response (finish reason %q)", out.Candidates[0].FinishReason)
	}
	return b.String(), nil
}
