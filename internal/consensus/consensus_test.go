package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/resilience"
	"github.com/sells-group/oasis-extract/pkg/ollama"
)

// call records one backend request as seen by the fake.
type call struct {
	shape string
	model string
	seed  int
}

// fakeClient answers each request through respond, keyed by shape and seed.
type fakeClient struct {
	mu        sync.Mutex
	calls     []call
	catalog   []string
	catalogFn func() ([]string, error)
	listCalls atomic.Int32
	respond   func(shape string, seed int) (string, error)
}

func (f *fakeClient) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeClient) ListModels(context.Context) ([]string, error) {
	f.listCalls.Add(1)
	if f.catalogFn != nil {
		return f.catalogFn()
	}
	return f.catalog, nil
}

func (f *fakeClient) Generate(_ context.Context, req ollama.GenerateRequest) (*ollama.Response, error) {
	shape := ShapeGenerate
	if req.Format == ollama.FormatJSON {
		shape = ShapeGenerateJSON
	}
	f.record(call{shape: shape, model: req.Model, seed: req.Options.Seed})
	text, err := f.respond(shape, req.Options.Seed)
	if err != nil {
		return nil, err
	}
	return &ollama.Response{Response: text}, nil
}

func (f *fakeClient) Chat(_ context.Context, req ollama.ChatRequest) (*ollama.Response, error) {
	shape := ShapeChat
	if req.Format == ollama.FormatJSON {
		shape = ShapeChatJSON
	}
	f.record(call{shape: shape, model: req.Model, seed: req.Options.Seed})
	text, err := f.respond(shape, req.Options.Seed)
	if err != nil {
		return nil, err
	}
	return &ollama.Response{Message: &ollama.Message{Role: "assistant", Content: text}}, nil
}

func (f *fakeClient) Ping(context.Context) error         { return nil }
func (f *fakeClient) Pull(context.Context, string) error { return nil }

// body renders a valid response with the given M1860 value.
func body(m1860, evidence string, confidence float64) string {
	return fmt.Sprintf(`{
		"M1800":{"value":"1","evidence":"after setup"},
		"M1810":{"value":"unknown","evidence":""},
		"M1820":{"value":"unknown"},
		"M1830":{"value":"unknown"},
		"M1840":{"value":"2","evidence":"bedside commode"},
		"M1850":{"value":"unknown"},
		"M1860":{"value":%q,"evidence":%q},
		"confidence":%v}`, m1860, evidence, confidence)
}

func TestExtract_AllTrialsSurvive(t *testing.T) {
	fc := &fakeClient{
		catalog: []string{"llama3.1:8b"},
		respond: func(_ string, seed int) (string, error) {
			return body("2", "rolling walker", float64(seed)/100), nil
		},
	}
	m := metrics.New()
	e := New(fc, Config{Model: "llama3.1", Temperature: 0.1}, WithMetrics(m))

	res := e.Extract(context.Background(), "uses a rolling walker")

	require.NotNil(t, res.Codes)
	assert.True(t, res.Attempted)
	assert.Equal(t, 3, res.TrialsAttempted)
	assert.Equal(t, 3, res.Votes)
	assert.Equal(t, "llama3.1", res.Model)
	assert.Equal(t, "llama3.1:8b", res.ResolvedModel)
	require.Len(t, res.Runs, 3)
	for i, seed := range DefaultSeeds {
		assert.Equal(t, seed, res.Runs[i].Seed)
		assert.Equal(t, ShapeGenerateJSON, res.Runs[i].Shape)
	}

	assert.Equal(t, model.Item{Value: "2", Evidence: "rolling walker"}, res.Codes.M1860)
	assert.Equal(t, model.Item{Value: "2", Evidence: "bedside commode"}, res.Codes.M1840)
	require.NotNil(t, res.Codes.Confidence)
	assert.InDelta(t, 0.37, *res.Codes.Confidence, 1e-9)

	for _, c := range fc.calls {
		assert.Equal(t, "llama3.1:8b", c.model)
	}
	assert.InDelta(t, 3, testutil.ToFloat64(m.ConsensusTrials.WithLabelValues(metrics.TrialSurvived)), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(m.ShapeAttempts.WithLabelValues(ShapeGenerateJSON, metrics.OutcomeOK)), 1e-9)
}

func TestExtract_ShapeFallback(t *testing.T) {
	fc := &fakeClient{
		respond: func(shape string, _ int) (string, error) {
			switch shape {
			case ShapeGenerateJSON:
				return "", errors.New("connection refused")
			case ShapeGenerate:
				return "I am unable to help with that.", nil
			case ShapeChatJSON:
				return "```json\n" + body("1", "cane", 0.9) + "\n```", nil
			}
			t.Fatalf("unexpected shape %s", shape)
			return "", nil
		},
	}
	e := New(fc, Config{Model: "m"})

	res := e.Extract(context.Background(), "walks with a cane")

	require.NotNil(t, res.Codes)
	require.Len(t, res.Runs, 3)
	for _, r := range res.Runs {
		assert.Equal(t, ShapeChatJSON, r.Shape)
	}
	assert.Equal(t, model.Code("1"), res.Codes.M1860.Value)

	// Three shapes per trial, the fourth never reached.
	assert.Len(t, fc.calls, 9)
}

func TestExtract_ChatSystemMessageAndOptions(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []ollama.ChatRequest
	)
	fc := &recordingChatClient{
		onChat: func(req ollama.ChatRequest) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, req)
		},
	}
	e := New(fc, Config{Model: "m", Temperature: 0.1, Seeds: []int{5}})

	res := e.Extract(context.Background(), "transcript text")

	require.Nil(t, res.Codes)
	require.Len(t, seen, 2)
	assert.Equal(t, ollama.FormatJSON, seen[0].Format)
	assert.Empty(t, seen[1].Format)
	for _, req := range seen {
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, SystemMessage, req.Messages[0].Content)
		assert.True(t, strings.HasSuffix(req.Messages[1].Content, `"""transcript text"""`))
		assert.Equal(t, 5, req.Options.Seed)
		assert.Equal(t, 8192, req.Options.NumCtx)
		assert.InDelta(t, 0.1, req.Options.Temperature, 1e-9)
	}
}

// recordingChatClient fails every generate call and returns prose from chat.
type recordingChatClient struct {
	onChat func(ollama.ChatRequest)
}

func (r *recordingChatClient) ListModels(context.Context) ([]string, error) { return nil, nil }
func (r *recordingChatClient) Generate(context.Context, ollama.GenerateRequest) (*ollama.Response, error) {
	return nil, errors.New("generate unavailable")
}
func (r *recordingChatClient) Chat(_ context.Context, req ollama.ChatRequest) (*ollama.Response, error) {
	r.onChat(req)
	return &ollama.Response{Message: &ollama.Message{Content: "no json here"}}, nil
}
func (r *recordingChatClient) Ping(context.Context) error         { return nil }
func (r *recordingChatClient) Pull(context.Context, string) error { return nil }

func TestExtract_TotalFailure(t *testing.T) {
	fc := &fakeClient{
		respond: func(string, int) (string, error) {
			return "", errors.New("backend down")
		},
	}
	e := New(fc, Config{Model: "m"})

	res := e.Extract(context.Background(), "anything")

	assert.Nil(t, res.Codes)
	assert.True(t, res.Attempted)
	assert.Empty(t, res.Runs)
	assert.Equal(t, 0, res.Votes)
	assert.Equal(t, 3, res.TrialsAttempted)
	assert.Len(t, fc.calls, 12)
}

func TestExtract_InvalidBodyDropsTrial(t *testing.T) {
	fc := &fakeClient{
		respond: func(_ string, seed int) (string, error) {
			if seed == 23 {
				// M1800 only allows 0-3.
				return strings.Replace(body("2", "walker", 0.5), `"M1800":{"value":"1"`, `"M1800":{"value":"5"`, 1), nil
			}
			return body("2", "walker", 0.5), nil
		},
	}
	e := New(fc, Config{Model: "m"})

	res := e.Extract(context.Background(), "walker")

	require.NotNil(t, res.Codes)
	assert.Equal(t, 2, res.Votes)
	assert.Equal(t, 3, res.TrialsAttempted)
	assert.Equal(t, 11, res.Runs[0].Seed)
	assert.Equal(t, 37, res.Runs[1].Seed)
	// Invalid body is not retried on later shapes.
	assert.Len(t, fc.calls, 3)
}

func TestExtract_TrailingCommaBodySurvives(t *testing.T) {
	fc := &fakeClient{
		respond: func(string, int) (string, error) {
			b := body("3", "depends entirely", 1)
			return "Here you go:\n```json\n" + strings.TrimSuffix(b, "}") + ",}\n```", nil
		},
	}
	e := New(fc, Config{Model: "m"})

	res := e.Extract(context.Background(), "depends entirely on staff")

	require.NotNil(t, res.Codes)
	assert.Equal(t, 3, res.Votes)
	assert.Equal(t, model.Item{Value: "3", Evidence: "depends entirely"}, res.Codes.M1860)
	assert.Equal(t, model.Code("1"), res.Codes.M1800.Value)
}

func TestExtract_ExtraKeyRejected(t *testing.T) {
	fc := &fakeClient{
		respond: func(string, int) (string, error) {
			return strings.Replace(body("2", "walker", 0.5), `"confidence"`, `"notes":"x","confidence"`, 1), nil
		},
	}
	res := New(fc, Config{Model: "m"}).Extract(context.Background(), "walker")
	assert.Nil(t, res.Codes)
	assert.Empty(t, res.Runs)
}

func TestExtract_CatalogCachedAndFallsBack(t *testing.T) {
	fc := &fakeClient{
		catalog: []string{"qwen2.5:7b"},
		respond: func(string, int) (string, error) { return body("0", "", 0.5), nil },
	}
	e := New(fc, Config{Model: "qwen2.5", CacheTTL: time.Minute})

	first := e.Extract(context.Background(), "x")
	second := e.Extract(context.Background(), "x")
	assert.Equal(t, "qwen2.5:7b", first.ResolvedModel)
	assert.Equal(t, "qwen2.5:7b", second.ResolvedModel)
	assert.Equal(t, int32(1), fc.listCalls.Load())

	failing := &fakeClient{
		catalogFn: func() ([]string, error) { return nil, errors.New("tags unavailable") },
		respond:   func(string, int) (string, error) { return body("0", "", 0.5), nil },
	}
	e = New(failing, Config{Model: "qwen2.5"})
	res := e.Extract(context.Background(), "x")
	assert.Equal(t, "qwen2.5", res.ResolvedModel)
	e.Extract(context.Background(), "x")
	assert.Equal(t, int32(2), failing.listCalls.Load(), "catalog failures are not cached")
}

func TestExtract_OpenBreakerFailsFast(t *testing.T) {
	fc := &fakeClient{
		respond: func(string, int) (string, error) {
			return "", resilience.NewTransientError(errors.New("503"), 503)
		},
	}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	e := New(fc, Config{Model: "m"}, WithBreaker(cb))

	res := e.Extract(context.Background(), "x")

	assert.Nil(t, res.Codes)
	assert.Equal(t, 3, res.TrialsAttempted)
	assert.Len(t, fc.calls, 2)
	assert.Equal(t, resilience.CircuitOpen, cb.State())
}
