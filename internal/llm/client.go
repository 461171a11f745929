// Package llm implements the external template proposer: a one-shot
// language-model call that suggests a patch template and hole space when
// the repair bank misses. The controller treats any failure here as a
// signal to fall back to the domain default; nothing in this package is
// load-bearing for correctness.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Client is the minimal completion interface the proposer needs. Kept
// small so tests can stub the model.
type Client interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeminiClient implements Client against the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// CompleteWithSystem sends one prompt and returns the raw text response.
// JSON output is requested at the API level; callers still validate.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(userPrompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0.2),
		},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini call failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Gemini returned an empty response")
	}
	return text, nil
}
