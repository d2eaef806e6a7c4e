package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oasis-extract/internal/resilience"
)

func TestListModels(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "models with name",
			body: `{"models":[{"name":"llama3.1:8b"},{"name":"qwen2.5:7b"}]}`,
			want: []string{"llama3.1:8b", "qwen2.5:7b"},
		},
		{
			name: "data with model field",
			body: `{"data":[{"model":"mistral:latest"},{"name":"phi3"}]}`,
			want: []string{"mistral:latest", "phi3"},
		},
		{
			name: "empty catalog",
			body: `{}`,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/tags", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := NewClient(srv.URL).ListModels(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerate_SendsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1:8b", req.Model)
		assert.Equal(t, "code this", req.Prompt)
		assert.False(t, req.Stream)
		assert.Equal(t, FormatJSON, req.Format)
		assert.Equal(t, 23, req.Options.Seed)
		assert.Equal(t, 8192, req.Options.NumCtx)
		assert.InDelta(t, 0.1, req.Options.Temperature, 1e-9)

		_, _ = w.Write([]byte(`{"model":"llama3.1:8b","response":"{\"a\":1}","done":true}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Generate(context.Background(), GenerateRequest{
		Model:   "llama3.1:8b",
		Prompt:  "code this",
		Stream:  true,
		Format:  FormatJSON,
		Options: Options{Temperature: 0.1, NumCtx: 8192, Seed: 23},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, Normalize(resp))
}

func TestChat_OmitsFormatWhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, hasFormat := raw["format"]
		assert.False(t, hasFormat)
		msgs := raw["messages"].([]any)
		assert.Len(t, msgs, 2)

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hello"}}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Chat(context.Background(), ChatRequest{
		Model: "m",
		Messages: []Message{
			{Role: "system", Content: "s"},
			{Role: "user", Content: "u"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", Normalize(resp))
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantTransient bool
	}{
		{"server error", http.StatusInternalServerError, `boom`, "unexpected status 500", true},
		{"rate limited", http.StatusTooManyRequests, `slow down`, "unexpected status 429", true},
		{"not found", http.StatusNotFound, `model not found`, "unexpected status 404", false},
		{"malformed", http.StatusOK, `{not json`, "unmarshal response", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewClient(srv.URL).Generate(context.Background(), GenerateRequest{Model: "m"})
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Contains(t, err.Error(), tt.wantErr)

			var te *resilience.TransientError
			assert.Equal(t, tt.wantTransient, errors.As(err, &te))
		})
	}
}

func TestPingAndPull(t *testing.T) {
	var pulled map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/pull":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&pulled))
			_, _ = w.Write([]byte(`{"status":"success"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Pull(context.Background(), "llama3.1"))
	assert.Equal(t, "llama3.1", pulled["name"])
	assert.Equal(t, false, pulled["stream"])
}

func TestPing_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{"nil", nil, ""},
		{"response field", &Response{Response: "a"}, "a"},
		{"message field", &Response{Message: &Message{Content: "b"}}, "b"},
		{"choices field", &Response{Choices: []Choice{{Message: Message{Content: "c"}}}}, "c"},
		{"response preferred", &Response{Response: "a", Message: &Message{Content: "b"}}, "a"},
		{"empty", &Response{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.resp))
		})
	}
}

func TestResolveModel(t *testing.T) {
	catalog := []string{"qwen2.5:7b", "llama3.1:8b", "llama3.1", "llama3.1:70b"}

	assert.Equal(t, "llama3.1", ResolveModel(catalog, "llama3.1"))
	assert.Equal(t, "qwen2.5:7b", ResolveModel(catalog, "qwen2.5"))
	assert.Equal(t, "mistral", ResolveModel(catalog, "mistral"))
	assert.Equal(t, "mistral", ResolveModel(nil, "mistral"))
}

func TestHasModel(t *testing.T) {
	catalog := []string{"llama3.1:8b", "phi3"}

	assert.True(t, HasModel(catalog, "llama3.1"))
	assert.True(t, HasModel(catalog, "phi3"))
	assert.False(t, HasModel(catalog, "llama3"))
	assert.False(t, HasModel(nil, "phi3"))
}
