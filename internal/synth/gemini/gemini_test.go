package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/roach88/simloom/internal/synth"
)

type fakeModels struct {
	model  string
	config *genai.GenerateContentConfig
	prompt string
	reply  string
	err    error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.reply, genai.RoleModel)}},
	}, nil
}

func TestSynthesizeRequestsJSON(t *testing.T) {
	fake := &fakeModels{reply: `{"components":[],"systems":[]}`}
	c := &Client{models: fake}

	raw, err := c.Synthesize(context.Background(), synth.Request{Intent: "add gravity", Model: "gemini-test"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"components":[],"systems":[]}`, string(raw))
	assert.Equal(t, "gemini-test", fake.model)
	assert.Equal(t, "application/json", fake.config.ResponseMIMEType)
	require.NotNil(t, fake.config.ResponseSchema)
	assert.Contains(t, fake.config.ResponseSchema.Properties, "systems")
	assert.Contains(t, fake.prompt, "Intent: add gravity")
}

func TestSynthesizeDefaultModel(t *testing.T) {
	fake := &fakeModels{reply: `{}`}
	c := &Client{models: fake}

	_, err := c.Synthesize(context.Background(), synth.Request{Intent: "x"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, fake.model)
}

func TestSynthesizeErrors(t *testing.T) {
	c := &Client{models: &fakeModels{err: errors.New("quota")}}
	_, err := c.Synthesize(context.Background(), synth.Request{Intent: "x"})
	assert.ErrorContains(t, err, "quota")

	c = &Client{models: &fakeModels{reply: ""}}
	_, err = c.Synthesize(context.Background(), synth.Request{Intent: "x"})
	assert.ErrorContains(t, err, "no content")

	_, err = New(context.Background(), "")
	assert.Error(t, err)
}
