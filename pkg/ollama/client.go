// Package ollama is a minimal client for an Ollama-compatible generation
// backend: the model catalog, /api/generate, /api/chat and /api/pull.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oasis-extract/internal/resilience"
)

const defaultBaseURL = "http://localhost:11434"

// FormatJSON asks the backend to constrain output to JSON.
const FormatJSON = "json"

// Client talks to an Ollama-compatible backend.
type Client interface {
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)
	Chat(ctx context.Context, req ChatRequest) (*Response, error)
	Ping(ctx context.Context) error
	Pull(ctx context.Context, name string) error
}

// Options are the sampling options sent with every request.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	Seed        int     `json:"seed,omitempty"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Format  string  `json:"format,omitempty"`
	Options Options `json:"options"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format,omitempty"`
	Options  Options   `json:"options"`
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice is an OpenAI-style completion choice, returned by some proxies.
type Choice struct {
	Message Message `json:"message"`
}

// Response covers every shape a compatible backend may return: a top-level
// response string, a chat message, or a list of choices. Use Normalize to
// read the text.
type Response struct {
	Model    string   `json:"model,omitempty"`
	Response string   `json:"response,omitempty"`
	Message  *Message `json:"message,omitempty"`
	Choices  []Choice `json:"choices,omitempty"`
	Done     bool     `json:"done,omitempty"`
}

// Normalize returns the generated text regardless of response shape.
func Normalize(r *Response) string {
	if r == nil {
		return ""
	}
	if r.Response != "" {
		return r.Response
	}
	if r.Message != nil && r.Message.Content != "" {
		return r.Message.Content
	}
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

type tagEntry struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type tagsResponse struct {
	Models []tagEntry `json:"models"`
	Data   []tagEntry `json:"data"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client. An empty baseURL uses the local default.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListModels returns the names in the backend catalog, reading either the
// models or the data list and either the name or the model field.
func (c *httpClient) ListModels(ctx context.Context) ([]string, error) {
	var tags tagsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, err
	}
	entries := tags.Models
	if len(entries) == 0 {
		entries = tags.Data
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.Model
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *httpClient) Generate(ctx context.Context, req GenerateRequest) (*Response, error) {
	req.Stream = false
	var out Response
	if err := c.do(ctx, http.MethodPost, "/api/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	req.Stream = false
	var out Response
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping succeeds when the catalog endpoint answers 200.
func (c *httpClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/tags", nil, nil)
}

// Pull asks the backend to download a model and waits for completion.
func (c *httpClient) Pull(ctx context.Context, name string) error {
	body := map[string]any{"name": name, "stream": false}
	return c.do(ctx, http.MethodPost, "/api/pull", body, nil)
}

func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "ollama: marshal request")
		}
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "ollama: create request")
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrapf(err, "ollama: send request %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "ollama: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("ollama: %s unexpected status %d: %s", path, resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "ollama: unmarshal response")
	}
	return nil
}

// HasModel reports whether catalog holds name, either exactly or as any tag
// of it ("llama3.1" matches "llama3.1:8b").
func HasModel(catalog []string, name string) bool {
	for _, m := range catalog {
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}

// ResolveModel picks the catalog entry for a configured name: an exact match,
// else the first tagged variant, else the name itself.
func ResolveModel(catalog []string, pref string) string {
	for _, m := range catalog {
		if m == pref {
			return m
		}
	}
	for _, m := range catalog {
		if strings.HasPrefix(m, pref+":") {
			return m
		}
	}
	return pref
}
