// Package remote adapts hosted model APIs to a single prompt-in, text-out
// interface shared by the single-shot strategy and the summarizer.
package remote

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/pkg/anthropic"
	"github.com/sells-group/oasis-extract/pkg/gemini"
	"github.com/sells-group/oasis-extract/pkg/huggingface"
)

// Sampling parameters shared by every provider.
const (
	Temperature = 0.1
	TopP        = 0.9
	MaxTokens   = 5000
)

// TextGenerator sends one user prompt and returns the reply text.
type TextGenerator interface {
	Provider() model.Mode
	Model() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// UsageFunc receives token counts reported by a provider for one call.
type UsageFunc func(provider model.Mode, modelName string, input, output int64)

func (f UsageFunc) report(provider model.Mode, modelName string, input, output int64) {
	if f != nil {
		f(provider, modelName, input, output)
	}
}

// HuggingFace adapts the inference router client.
type HuggingFace struct {
	Client  huggingface.Client
	OnUsage UsageFunc
}

// Provider implements TextGenerator.
func (h HuggingFace) Provider() model.Mode { return model.ModeHuggingFace }

// Model implements TextGenerator.
func (h HuggingFace) Model() string { return h.Client.Model() }

// Complete implements TextGenerator.
func (h HuggingFace) Complete(ctx context.Context, prompt string) (string, error) {
	temp, topP := Temperature, TopP
	resp, err := h.Client.ChatCompletion(ctx, huggingface.ChatCompletionRequest{
		Messages:    []huggingface.Message{{Role: "user", Content: prompt}},
		MaxTokens:   MaxTokens,
		Temperature: &temp,
		TopP:        &topP,
	})
	if err != nil {
		return "", eris.Wrap(err, "remote: huggingface completion")
	}
	h.OnUsage.report(model.ModeHuggingFace, h.Client.Model(), int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	return resp.Content(), nil
}

// Anthropic adapts the Messages API client.
type Anthropic struct {
	Client    anthropic.Client
	ModelName string
	OnUsage   UsageFunc
}

// Provider implements TextGenerator.
func (a Anthropic) Provider() model.Mode { return model.ModeAnthropic }

// Model implements TextGenerator.
func (a Anthropic) Model() string { return a.ModelName }

// Complete implements TextGenerator.
func (a Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	temp := Temperature
	resp, err := a.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.ModelName,
		MaxTokens:   MaxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "remote: anthropic completion")
	}
	resp.Usage.Log(a.ModelName, "completion")
	a.OnUsage.report(model.ModeAnthropic, a.ModelName, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp.Text(), nil
}

// Gemini adapts the genai client.
type Gemini struct {
	Client gemini.Client
}

// Provider implements TextGenerator.
func (g Gemini) Provider() model.Mode { return model.ModeGemini }

// Model implements TextGenerator.
func (g Gemini) Model() string { return g.Client.Model() }

// Complete implements TextGenerator.
func (g Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	temp := float32(Temperature)
	text, err := g.Client.Generate(ctx, gemini.Request{
		Prompt:          prompt,
		Temperature:     &temp,
		MaxOutputTokens: MaxTokens,
	})
	if err != nil {
		return "", eris.Wrap(err, "remote: gemini completion")
	}
	return text, nil
}
