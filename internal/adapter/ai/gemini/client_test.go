package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

type fakeModel struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
}

func (f *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestGenerate_SendsPromptAndImage(t *testing.T) {
	fm := &fakeModel{resp: textResponse(genai.Text("<p>x = "), genai.Text("3</p>"))}
	c := &Client{model: fm, modelName: "gemini-1.5-flash"}

	out, err := c.Generate(context.Background(), "solve", &domain.Image{Data: []byte{1}, MIME: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "<p>x = 3</p>", out)
	require.Len(t, fm.parts, 2)
	assert.Equal(t, genai.Text("solve"), fm.parts[0])
	blob, ok := fm.parts[1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", blob.MIMEType)
	assert.Equal(t, domain.BackendGemini, c.Name())
}

func TestGenerate_TextOnly(t *testing.T) {
	fm := &fakeModel{resp: textResponse(genai.Text("ok"))}
	c := &Client{model: fm}
	_, err := c.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Len(t, fm.parts, 1)
}

func TestGenerate_Errors(t *testing.T) {
	c := &Client{model: &fakeModel{err: errors.New("quota exceeded")}}
	_, err := c.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	c = &Client{model: &fakeModel{resp: &genai.GenerateContentResponse{}}}
	_, err = c.Generate(context.Background(), "q", nil)
	assert.ErrorIs(t, err, errEmptyResponse)

	c = &Client{model: &fakeModel{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	}}}
	_, err = c.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), "", "gemini-1.5-flash")
	require.Error(t, err)
}

func TestImageFormat(t *testing.T) {
	assert.Equal(t, "png", imageFormat(""))
	assert.Equal(t, "png", imageFormat("image/png"))
	assert.Equal(t, "webp", imageFormat("IMAGE/WEBP"))
}
