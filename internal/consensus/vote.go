package consensus

import (
	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/schema"
)

// Vote merges runs item by item. The most frequent value wins. On a tie a
// concrete value beats Unknown, and between concrete values the one seen
// first in run order wins. Evidence comes from the first run holding the
// winning value with non-empty evidence. Confidence is the maximum reported.
// runs must be non-empty.
func Vote(runs []model.Run) model.Codes {
	out := model.UnknownCodes()
	for _, k := range model.ItemKeys {
		winner := winningValue(runs, k)
		out.Set(k, model.Item{Value: winner, Evidence: evidenceFor(runs, k, winner)})
	}

	conf := 0.0
	for _, r := range runs {
		if c := r.Codes.ConfidenceOr(schema.DefaultConfidence); c > conf {
			conf = c
		}
	}
	return out.WithConfidence(conf)
}

func winningValue(runs []model.Run, k model.ItemKey) model.Code {
	counts := make(map[model.Code]int, len(runs))
	var order []model.Code
	for _, r := range runs {
		v := r.Codes.Get(k).Value
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	best := model.Unknown
	bestCount := 0
	for _, v := range order {
		n := counts[v]
		switch {
		case n > bestCount:
			best, bestCount = v, n
		case n == bestCount && best == model.Unknown && v != model.Unknown:
			best = v
		}
	}
	return best
}

func evidenceFor(runs []model.Run, k model.ItemKey, v model.Code) string {
	for _, r := range runs {
		if it := r.Codes.Get(k); it.Value == v && it.Evidence != "" {
			return it.Evidence
		}
	}
	return ""
}
