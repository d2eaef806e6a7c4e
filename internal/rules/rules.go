// Package rules provides the deterministic, pattern-based Section G classifier.
// It needs no network or model and is the floor every extraction falls back to.
package rules

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/oasis-extract/internal/model"
)

// Classify codes every item of transcript from the rule table. It never fails:
// items with no matching rule are Unknown. Confidence is the fraction of
// items coded, rounded to two decimals.
func Classify(transcript string) model.Codes {
	t := Normalize(transcript)

	out := model.UnknownCodes()
	for _, k := range model.ItemKeys {
		out.Set(k, classifyItem(table[k], t))
	}
	return out.WithConfidence(model.Round2(float64(out.FilledCount()) / float64(len(model.ItemKeys))))
}

// Normalize folds compatibility characters and lower-cases text so rules can
// be written against a single canonical form.
func Normalize(text string) string {
	return cases.Lower(language.English).String(norm.NFKC.String(text))
}

func classifyItem(rs []rule, t string) model.Item {
	for _, r := range rs {
		if r.guard != nil && !r.guard.MatchString(t) {
			continue
		}
		for _, p := range r.patterns {
			if m := p.FindString(t); m != "" {
				return model.Item{Value: r.code, Evidence: m}
			}
		}
	}
	return model.Item{Value: model.Unknown}
}
