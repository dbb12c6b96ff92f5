// Package gemini implements synth.Synthesizer on Google's Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/roach88/simloom/internal/synth"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "gemini-2.5-flash"

// generator is the subset of genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client asks Gemini for definitions payloads.
type Client struct {
	models generator
}

// New creates a client authenticated with apiKey.
func New(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{models: client.Models}, nil
}

// Synthesize implements synth.Synthesizer.
func (c *Client) Synthesize(ctx context.Context, req synth.Request) (json.RawMessage, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	prompt, err := synth.Prompt(req)
	if err != nil {
		return nil, err
	}

	temperature := float32(0.2)
	resp, err := c.models.GenerateContent(ctx,
		model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(synth.Instructions, genai.RoleUser),
			Temperature:       &temperature,
			ResponseMIMEType:  "application/json",
			ResponseSchema:    ResponseSchema(),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("GenAI returned no content")
	}
	return json.RawMessage(text), nil
}

// ResponseSchema mirrors the payload contract for structured output.
// Property defaults are left out: the schema language has no scalar union,
// so synthesized properties start at their type's zero value.
func ResponseSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	property := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":        str,
			"type":        {Type: genai.TypeString, Enum: []string{"number", "string", "boolean", "entity"}},
			"description": str,
		},
		Required: []string{"name", "type"},
	}
	component := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":        str,
			"description": str,
			"properties":  {Type: genai.TypeArray, Items: property},
		},
		Required: []string{"name", "properties"},
	}
	system := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":               str,
			"description":        str,
			"requiredComponents": {Type: genai.TypeArray, Items: str},
			"logic":              str,
		},
		Required: []string{"name", "requiredComponents", "logic"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"components": {Type: genai.TypeArray, Items: component},
			"systems":    {Type: genai.TypeArray, Items: system},
		},
		Required: []string{"components", "systems"},
	}
}
