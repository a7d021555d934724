// Package tokencount estimates token usage of prompts and model answers.
//
// Counts come from tiktoken-go. The Gemini and Qwen families do not publish a
// tiktoken encoding, so cl100k_base serves as an approximation for them; the
// numbers feed usage metrics only and are never used to truncate input.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Usage is the estimated token count of one generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Backend          string
	Model            string
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

type encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// Counter caches encodings per normalized model family.
// It is safe for concurrent use.
type Counter struct {
	load func(encoding string) (encoder, error)

	mu        sync.Mutex
	encodings map[string]encoder
	failed    map[string]bool
}

// NewCounter creates a counter backed by tiktoken.
func NewCounter() *Counter {
	return &Counter{
		load: func(name string) (encoder, error) {
			return tiktoken.GetEncoding(name)
		},
		encodings: make(map[string]encoder),
		failed:    make(map[string]bool),
	}
}

// NewEstimateCounter returns a counter that never loads an encoding and
// always reports the chars/4 estimate.
func NewEstimateCounter() *Counter {
	return &Counter{encodings: make(map[string]encoder), failed: make(map[string]bool)}
}

// DefaultCounter is shared by the provider gateway.
var DefaultCounter = NewCounter()

// encodingFor maps a model id to a tiktoken encoding name.
func encodingFor(model string) string {
	m := normalizeModelName(model)
	if strings.HasPrefix(m, "gpt-4o") {
		return "o200k_base"
	}
	return "cl100k_base"
}

// normalizeModelName strips router prefixes and variant suffixes,
// e.g. "qwen/qwen-2.5-72b-instruct:free" becomes "qwen-2.5-72b-instruct".
func normalizeModelName(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.Index(model, ":"); i >= 0 {
		model = model[:i]
	}
	return model
}

func (c *Counter) encoder(model string) encoder {
	name := encodingFor(model)
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[name]; ok {
		return enc
	}
	if c.load == nil || c.failed[name] {
		return nil
	}
	enc, err := c.load(name)
	if err != nil {
		// Encodings are fetched on first use; stay on the estimate afterwards.
		slog.Warn("token encoding unavailable, using estimate",
			slog.String("encoding", name),
			slog.Any("error", err))
		c.failed[name] = true
		return nil
	}
	c.encodings[name] = enc
	return enc
}

// Count returns the token count of text, or a chars/4 estimate when no
// encoding can be loaded.
func (c *Counter) Count(text, model string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoder(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

// Usage estimates the usage of a single-turn generation. The per-message
// overhead follows the OpenAI chat format.
func (c *Counter) Usage(prompt, completion, backend, model string) Usage {
	const messageOverhead = 3 + 1 + 3
	return Usage{
		PromptTokens:     c.Count(prompt, model) + messageOverhead,
		CompletionTokens: c.Count(completion, model),
		Backend:          backend,
		Model:            model,
	}
}

func estimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
