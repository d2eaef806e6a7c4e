// Package gemini is a thin text-generation wrapper over the official genai SDK.
package gemini

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model produced no candidate text.
var ErrEmptyResponse = eris.New("gemini: empty response")

// Client generates text from a single prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// Request is one generation call.
type Request struct {
	Prompt          string
	System          string
	Temperature     *float32
	MaxOutputTokens int32
	JSON            bool
}

// Option configures the client.
type Option func(*genai.ClientConfig)

// WithBaseURL points the SDK at a different endpoint.
func WithBaseURL(url string) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = strings.TrimRight(url, "/") + "/"
	}
}

type sdkClient struct {
	cli   *genai.Client
	model string
}

// NewClient creates a Gemini API client for model.
func NewClient(ctx context.Context, apiKey, model string, opts ...Option) (Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cfg)
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{cli: cli, model: model}, nil
}

func (c *sdkClient) Model() string {
	return c.model
}

func (c *sdkClient) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := c.cli.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		return "", eris.Wrap(err, "gemini: generate content")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
