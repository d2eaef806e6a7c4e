// Package summary produces short bullet summaries of an encounter transcript.
//
// Three tiers are tried in order: a hosted model, the local generation
// backend, and a keyword heuristic that never fails.
package summary

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/oasis-extract/internal/metrics"
	"github.com/sells-group/oasis-extract/internal/remote"
	"github.com/sells-group/oasis-extract/pkg/ollama"
)

// Tier labels reported to metrics.
const (
	TierRemote    = "remote"
	TierLocal     = "local"
	TierHeuristic = "heuristic"
)

// RemoteTranscriptRunes caps the transcript sent to the hosted model.
const RemoteTranscriptRunes = 3000

// SystemMessage is sent with every local summary request.
const SystemMessage = "You write concise clinical bullet summaries."

const remotePrompt = `Summarize the encounter in 1 line, not more than 25 words.
Return PLAIN TEXT bullets (each line begins with "• "), no JSON, no headings.

"""`

const localPrompt = `Summarize the encounter in 2-3 bullet points covering: grooming, dressing (upper/lower), bathing, toilet transfers, bed/chair transfers, ambulation/locomotion; include assistive devices, assistance levels, distances, and risks. 
Return PLAIN TEXT bullets , no JSON, no headings.

"""`

// Config controls the local tier.
type Config struct {
	Model       string
	Temperature float64
	NumCtx      int
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithRemote enables the hosted model tier.
func WithRemote(gen remote.TextGenerator) Option {
	return func(s *Summarizer) {
		s.remote = gen
	}
}

// WithLocal enables the local backend tier.
func WithLocal(client ollama.Client) Option {
	return func(s *Summarizer) {
		s.local = client
	}
}

// WithMetrics records which tier produced each summary.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Summarizer) {
		s.metrics = m
	}
}

// Summarizer turns transcripts into bullet text.
type Summarizer struct {
	cfg     Config
	remote  remote.TextGenerator
	local   ollama.Client
	metrics *metrics.Metrics
}

// New creates a Summarizer. Without options only the heuristic tier runs.
func New(cfg Config, opts ...Option) *Summarizer {
	if cfg.NumCtx <= 0 {
		cfg.NumCtx = 8192
	}
	s := &Summarizer{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Summarize returns bullet text for transcript. Model failures fall through
// to the next tier; the result is non-empty whenever transcript has text.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) string {
	if out := s.fromRemote(ctx, transcript); out != "" {
		s.metrics.RecordSummaryTier(TierRemote)
		return out
	}
	if out := s.fromLocal(ctx, transcript); out != "" {
		s.metrics.RecordSummaryTier(TierLocal)
		return out
	}
	s.metrics.RecordSummaryTier(TierHeuristic)
	return Heuristic(transcript)
}

func (s *Summarizer) fromRemote(ctx context.Context, transcript string) string {
	if s.remote == nil {
		return ""
	}
	reply, err := s.remote.Complete(ctx, remotePrompt+firstRunes(transcript, RemoteTranscriptRunes)+`"""`)
	if err != nil {
		zap.L().Warn("summary: remote tier failed",
			zap.String("provider", string(s.remote.Provider())), zap.Error(err))
		return ""
	}
	return toBullets(cleanLines(reply))
}

func (s *Summarizer) fromLocal(ctx context.Context, transcript string) string {
	if s.local == nil || s.cfg.Model == "" {
		return ""
	}
	resp, err := s.local.Chat(ctx, ollama.ChatRequest{
		Model: s.cfg.Model,
		Messages: []ollama.Message{
			{Role: "system", Content: SystemMessage},
			{Role: "user", Content: localPrompt + transcript + `"""`},
		},
		Options: ollama.Options{Temperature: s.cfg.Temperature, NumCtx: s.cfg.NumCtx},
	})
	if err != nil {
		zap.L().Warn("summary: local tier failed", zap.String("model", s.cfg.Model), zap.Error(err))
		return ""
	}
	return toBullets(cleanLines(ollama.Normalize(resp)))
}

var (
	openFence  = regexp.MustCompile("(?i)^```(?:markdown|md)?\\s*")
	closeFence = regexp.MustCompile("```$")
)

// cleanLines strips a markdown fence and returns the non-empty trimmed lines.
func cleanLines(text string) []string {
	text = openFence.ReplaceAllString(text, "")
	text = strings.TrimSpace(closeFence.ReplaceAllString(text, ""))
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// maxBullets bounds every summary.
const maxBullets = 7

// toBullets drops empty lines and list markers and keeps at most maxBullets.
func toBullets(lines []string) string {
	cleaned := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, "- ") || strings.HasPrefix(l, "* ") {
			l = strings.TrimSpace(l[2:])
		}
		cleaned = append(cleaned, l)
	}
	if len(cleaned) > maxBullets {
		cleaned = cleaned[:maxBullets]
	}
	return strings.Join(cleaned, "\n")
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
