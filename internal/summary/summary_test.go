package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/pkg/ollama"
)

type fakeGen struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeGen) Provider() model.Mode { return model.ModeHuggingFace }
func (f *fakeGen) Model() string        { return "hf" }
func (f *fakeGen) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

type fakeLocal struct {
	reply string
	err   error
	req   ollama.ChatRequest
}

func (f *fakeLocal) ListModels(context.Context) ([]string, error) { return nil, nil }
func (f *fakeLocal) Generate(context.Context, ollama.GenerateRequest) (*ollama.Response, error) {
	return nil, errors.New("not used")
}
func (f *fakeLocal) Chat(_ context.Context, req ollama.ChatRequest) (*ollama.Response, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &ollama.Response{Message: &ollama.Message{Content: f.reply}}, nil
}
func (f *fakeLocal) Ping(context.Context) error         { return nil }
func (f *fakeLocal) Pull(context.Context, string) error { return nil }

const walkerTranscript = "Patient grooms independently. Uses a rolling walker. Walked 50 feet with fatigue."

func TestSummarize_RemoteTier(t *testing.T) {
	gen := &fakeGen{reply: "```markdown\n- Patient walks with walker\n\n* Needs help bathing\n```"}
	m := metrics.New()
	s := New(Config{Model: "llama3.1"}, WithRemote(gen), WithLocal(&fakeLocal{reply: "unused"}), WithMetrics(m))

	got := s.Summarize(context.Background(), walkerTranscript)

	assert.Equal(t, "Patient walks with walker\nNeeds help bathing", got)
	assert.True(t, strings.HasPrefix(gen.prompt, "Summarize the encounter in 1 line, not more than 25 words."))
	assert.True(t, strings.HasSuffix(gen.prompt, `"""`+walkerTranscript+`"""`))
	assert.InDelta(t, 1, testutil.ToFloat64(m.SummaryTier.WithLabelValues(TierRemote)), 1e-9)
}

func TestSummarize_RemoteTranscriptCapped(t *testing.T) {
	gen := &fakeGen{reply: "ok"}
	long := strings.Repeat("b", RemoteTranscriptRunes+10)

	New(Config{}, WithRemote(gen)).Summarize(context.Background(), long)

	assert.Contains(t, gen.prompt, `"""`+strings.Repeat("b", RemoteTranscriptRunes)+`"""`)
}

func TestSummarize_LocalTier(t *testing.T) {
	local := &fakeLocal{reply: "- Ambulates with walker\n- Needs setup for grooming"}
	m := metrics.New()
	s := New(Config{Model: "llama3.1", Temperature: 0.2},
		WithRemote(&fakeGen{err: errors.New("503")}), WithLocal(local), WithMetrics(m))

	got := s.Summarize(context.Background(), "transcript")

	assert.Equal(t, "Ambulates with walker\nNeeds setup for grooming", got)
	require.Len(t, local.req.Messages, 2)
	assert.Equal(t, SystemMessage, local.req.Messages[0].Content)
	assert.True(t, strings.HasSuffix(local.req.Messages[1].Content, `"""transcript"""`))
	assert.Equal(t, "llama3.1", local.req.Model)
	assert.Equal(t, 8192, local.req.Options.NumCtx)
	assert.InDelta(t, 0.2, local.req.Options.Temperature, 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SummaryTier.WithLabelValues(TierLocal)), 1e-9)
}

func TestSummarize_HeuristicFallback(t *testing.T) {
	m := metrics.New()
	s := New(Config{Model: "llama3.1"},
		WithRemote(&fakeGen{reply: "  \n "}),
		WithLocal(&fakeLocal{err: errors.New("connection refused")}),
		WithMetrics(m))

	got := s.Summarize(context.Background(), walkerTranscript)

	assert.Equal(t, Heuristic(walkerTranscript), got)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SummaryTier.WithLabelValues(TierHeuristic)), 1e-9)
}

func TestSummarize_NoTiersConfigured(t *testing.T) {
	got := New(Config{}).Summarize(context.Background(), "Patient is bedfast.")
	assert.Equal(t, "Locomotion: bedfast.\nPatient is bedfast.", got)
}

func TestHeuristic(t *testing.T) {
	got := Heuristic(walkerTranscript)
	assert.Equal(t, strings.Join([]string{
		"Grooming: independent.",
		"Ambulation: uses walker.",
		"Distance/Context: mentions 50.",
		"Risk/Plan: safety cues, fall risk or fatigue noted.",
		"Patient grooms independently.",
		"Uses a rolling walker.",
		"Walked 50 feet with fatigue.",
	}, "\n"), got)
}

func TestHeuristic_Phrases(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       string
	}{
		{"sink with help", "She bathes at the sink seated on a chair and needs help with her back.", "Bathing: at sink seated, needs assistance for back/lower legs."},
		{"sink alone", "She bathes at the sink seated on a chair.", "Bathing: independent at sink while seated on a chair."},
		{"walker with cues", "Uses a walker and needs cues on stairs.", "Ambulation: walker; requires supervision/cues for stairs/uneven surfaces."},
		{"cane", "Walks with a cane.", "Ambulation: independent with one-handed device (cane/hemi-walker)."},
		{"commode", "Uses a bedside commode at night.", "Toilet transfers: uses bedside commode."},
		{"shower devices", "Bathes independently in the shower with grab bars.", "Bathing: independent in shower with devices (grab bars/non-slip/shower chair)."},
		{"socks", "Needs help with socks and shoes.", "Lower-body dressing: needs help for socks/shoes."},
		{"metric distance", "Walked 5 m.", "Distance/Context: mentions 5 m."},
		{"unsteady", "Gait is unsteady.", "Risk/Plan: safety cues, fall risk or fatigue noted."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, strings.Split(Heuristic(tt.transcript), "\n"), tt.want)
		})
	}
}

func TestHeuristic_CapsAndEmpty(t *testing.T) {
	assert.Empty(t, Heuristic(""))

	many := strings.Repeat("Another distinct sentence number one. ", 1) +
		"Second line here. Third line here. Fourth line here. Fifth line here. " +
		"Sixth line here. Seventh line here. Eighth line here. Ninth line here."
	lines := strings.Split(Heuristic(many), "\n")
	assert.Len(t, lines, maxBullets)
	assert.Equal(t, "Another distinct sentence number one.", lines[0])
}

func TestHeuristic_MarkerOnlyTranscript(t *testing.T) {
	for _, in := range []string{"-", "  *  ", "- \n-"} {
		assert.NotEmpty(t, Heuristic(in), "%q", in)
	}
}

func TestToBullets(t *testing.T) {
	assert.Equal(t, "a\nb", toBullets([]string{"- a", " ", "* b"}))
	assert.Equal(t, "1\n2\n3\n4\n5\n6\n7", toBullets(strings.Split("1 2 3 4 5 6 7 8 9", " ")))
}

func TestSplitSentences(t *testing.T) {
	assert.Equal(t,
		[]string{"One.", "Two?", "Three!", "Four"},
		splitSentences("One.\n  Two?   Three! Four"),
	)
	assert.Equal(t, []string{"No break.here"}, splitSentences("No break.here"))
	assert.Empty(t, splitSentences("   "))
}
