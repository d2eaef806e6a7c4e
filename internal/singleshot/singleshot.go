// Package singleshot codes a transcript with one call to a hosted model.
package singleshot

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oasis-extract/internal/jsonrepair"
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/remote"
)

// MaxTranscriptRunes caps the transcript embedded in the prompt.
const MaxTranscriptRunes = 1500

// ErrAllUnknown is returned when the reply codes nothing.
var ErrAllUnknown = eris.New("singleshot: every item unknown")

const promptHead = `Analyze this clinical transcript and extract OASIS Section G codes.
Return ONLY valid JSON with the exact structure below. For each item, provide:
- "value": Use specific codes (0,1,2,3,4,5,6) NOT "unknown"
- "evidence": Exact quotes from text supporting the code choice

TRANSCRIPT:
`

const promptTail = `

Return ONLY this JSON structure:
{
  "M1800": {"value": "0|1|2|3", "evidence": "specific text quote"},
  "M1810": {"value": "0|1|2|3", "evidence": "specific text quote"},
  "M1820": {"value": "0|1|2|3", "evidence": "specific text quote"},
  "M1830": {"value": "0|1|2|3|4|5|6", "evidence": "specific text quote"},
  "M1840": {"value": "0|1|2|3|4", "evidence": "specific text quote"},
  "M1850": {"value": "0|1|2|3|4|5", "evidence": "specific text quote"},
  "M1860": {"value": "0|1|2|3|4|5|6", "evidence": "specific text quote"}
}

Coding guidelines:
- M1800 Grooming: 0=Independent, 1=Setup help, 2=Assistance, 3=Dependent
- M1810 Upper dressing: 0=Independent, 1=Setup help, 2=Assistance, 3=Dependent
- M1820 Lower dressing: 0=Independent, 1=Setup help, 2=Assistance, 3=Dependent
- M1830 Bathing: 0=Independent shower, 1=Devices, 2=Intermittent assist, 3=Constant assist, 4=Independent sink, 5=Assist sink, 6=Total assist
- M1840 Toilet transferring: 0=Independent, 1=Supervision, 2=Commode, 3=Bedpan, 4=Dependent
- M1850 Bed/chair transfers: 0=Independent, 1=Minimal assist, 2=Weight bear+pivot, 3=No transfer, 4=Bedfast turns, 5=Bedfast no turn
- M1860 Ambulation: 0=Independent no device, 1=One-handed device, 2=Two-handed device, 3=Constant supervision, 4=Wheelchair independent, 5=Wheelchair dependent, 6=Bedfast

IMPORTANT: Use specific codes, NOT "unknown". Find evidence in the text.`

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// BuildPrompt returns the compact coding prompt for transcript.
func BuildPrompt(transcript string) string {
	return promptHead + Truncate(transcript, MaxTranscriptRunes) + promptTail
}

// Strategy is the single remote call strategy.
type Strategy struct {
	gen remote.TextGenerator
}

// New creates a Strategy over gen.
func New(gen remote.TextGenerator) *Strategy {
	return &Strategy{gen: gen}
}

// Provider returns the mode reported for results of this strategy.
func (s *Strategy) Provider() model.Mode {
	return s.gen.Provider()
}

// Model returns the remote model name.
func (s *Strategy) Model() string {
	return s.gen.Model()
}

// Extract asks the remote model for codes. Every item is forced into its
// allowed set; a reply that codes nothing is an error.
func (s *Strategy) Extract(ctx context.Context, transcript string) (model.Codes, error) {
	reply, err := s.gen.Complete(ctx, BuildPrompt(transcript))
	if err != nil {
		return model.Codes{}, eris.Wrap(err, "singleshot: complete")
	}

	body, err := jsonrepair.Parse(reply)
	if err != nil {
		zap.L().Debug("singleshot: unparsable reply",
			zap.String("provider", string(s.gen.Provider())),
			zap.Int("reply_len", len(reply)),
		)
		return model.Codes{}, eris.Wrap(err, "singleshot: parse reply")
	}

	codes := Sanitize(body)
	if codes.FilledCount() == 0 {
		return model.Codes{}, ErrAllUnknown
	}
	return codes, nil
}

// Sanitize converts a loosely shaped body into valid codes. Values outside
// an item's allowed set become Unknown. Confidence is kept only when it is a
// number in [0,1].
func Sanitize(body map[string]any) model.Codes {
	out := model.UnknownCodes()
	for _, k := range model.ItemKeys {
		entry, ok := body[string(k)].(map[string]any)
		if !ok {
			continue
		}
		value := model.Code(strings.TrimSpace(stringOf(entry["value"])))
		if !k.Allows(value) || value == model.Unknown {
			continue
		}
		out.Set(k, model.Item{Value: value, Evidence: strings.TrimSpace(stringOf(entry["evidence"]))})
	}

	if c, ok := body["confidence"].(float64); ok && c >= 0 && c <= 1 {
		out = out.WithConfidence(c)
	}
	return out
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int(t)) && t >= 0 && t <= 9 {
			return string(rune('0' + int(t)))
		}
	}
	return ""
}
