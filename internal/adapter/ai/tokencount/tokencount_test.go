package tokencount

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type spaceEncoder struct{}

func (spaceEncoder) Encode(text string, _, _ []string) []int {
	return make([]int, len(strings.Fields(text)))
}

func newTestCounter(load func(string) (encoder, error)) *Counter {
	return &Counter{load: load, encodings: map[string]encoder{}, failed: map[string]bool{}}
}

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"qwen/qwen-2.5-72b-instruct":            "qwen-2.5-72b-instruct",
		"meta-llama/llama-3.1-8b-instruct:free": "llama-3.1-8b-instruct",
		" Gemini-1.5-Flash ":                    "gemini-1.5-flash",
		"openai/gpt-4o-mini":                    "gpt-4o-mini",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeModelName(in), in)
	}
}

func TestEncodingFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "o200k_base", encodingFor("openai/gpt-4o"))
	assert.Equal(t, "cl100k_base", encodingFor("gemini-1.5-flash"))
}

func TestCount_UsesEncoderAndCachesIt(t *testing.T) {
	t.Parallel()
	loads := 0
	c := newTestCounter(func(string) (encoder, error) {
		loads++
		return spaceEncoder{}, nil
	})
	assert.Equal(t, 3, c.Count("a b c", "gemini-1.5-flash"))
	assert.Equal(t, 2, c.Count("x y", "qwen/qwen-2.5"))
	assert.Equal(t, 1, loads)
	assert.Equal(t, 0, c.Count("", "gemini"))
}

func TestCount_FallsBackToEstimate(t *testing.T) {
	t.Parallel()
	loads := 0
	c := newTestCounter(func(string) (encoder, error) {
		loads++
		return nil, errors.New("offline")
	})
	assert.Equal(t, 4, c.Count(strings.Repeat("x", 16), "gemini"))
	assert.Equal(t, 1, c.Count("ab", "gemini"))
	assert.Equal(t, 1, loads, "a failed load is not retried")
}

func TestUsage(t *testing.T) {
	t.Parallel()
	c := newTestCounter(func(string) (encoder, error) { return spaceEncoder{}, nil })
	u := c.Usage("solve x", "x is 2", "gemini", "gemini-1.5-flash")
	assert.Equal(t, 2+7, u.PromptTokens)
	assert.Equal(t, 3, u.CompletionTokens)
	assert.Equal(t, 12, u.Total())
	assert.Equal(t, "gemini", u.Backend)
}

func TestNewEstimateCounter(t *testing.T) {
	t.Parallel()
	c := NewEstimateCounter()
	assert.Equal(t, 5, c.Count(strings.Repeat("y", 20), "gpt-4o"))
}
