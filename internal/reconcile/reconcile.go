// Package reconcile merges model output with the rule engine into one result
// carrying per-item provenance.
package reconcile

import (
	"regexp"
	"strings"

	"github.com/sells-group/oasis-extract/internal/model"
	"github.com/sells-group/oasis-extract/internal/rules"
)

// Result is the merged codes and the stage that decided each item.
type Result struct {
	Merged     model.Codes
	Provenance model.ProvenanceMap
}

// Adjustment is a deterministic correction applied after model values are
// adopted and before rules fill the gaps. It must return whether it changed
// anything so provenance can be updated.
type Adjustment interface {
	Name() string
	Apply(codes *model.Codes, prov model.ProvenanceMap, transcript string) bool
}

// Adjustments is the fixed ordered list applied by Reconcile.
var Adjustments = []Adjustment{WalkerAdjustment{}}

// Reconcile merges llm (which may be nil) with the rule engine's view of
// transcript. Model values win where concrete, adjustments run next, and
// rules fill whatever is still unknown. Confidence is the larger of the two.
func Reconcile(llm *model.Codes, transcript string) Result {
	merged := model.UnknownCodes()
	prov := model.NewProvenanceMap()

	conf := 0.0
	if llm != nil {
		conf = llm.ConfidenceOr(0)
		for _, k := range model.ItemKeys {
			if it := llm.Get(k); it.Known() {
				merged.Set(k, it)
				prov[k] = model.SourceLLM
			}
		}
	}

	for _, adj := range Adjustments {
		adj.Apply(&merged, prov, transcript)
	}

	ruled := rules.Classify(transcript)
	for _, k := range model.ItemKeys {
		if merged.Get(k).Known() {
			continue
		}
		if it := ruled.Get(k); it.Known() {
			merged.Set(k, it)
			prov[k] = model.SourceRules
		}
	}

	if rc := ruled.ConfidenceOr(0); rc > conf {
		conf = rc
	}
	return Result{Merged: merged.WithConfidence(conf), Provenance: prov}
}

var walkerMention = regexp.MustCompile(`\bwalker|rolling walker\b`)

// WalkerAdjustment raises ambulation to the two-handed-device code when the
// transcript mentions a walker but the item was coded as no device or a
// one-handed device.
type WalkerAdjustment struct{}

// Name implements Adjustment.
func (WalkerAdjustment) Name() string { return "walker" }

// Apply implements Adjustment.
func (WalkerAdjustment) Apply(codes *model.Codes, prov model.ProvenanceMap, transcript string) bool {
	if !walkerMention.MatchString(strings.ToLower(transcript)) {
		return false
	}
	cur := codes.M1860
	if cur.Value != "0" && cur.Value != "1" {
		return false
	}
	evidence := cur.Evidence
	if evidence == "" {
		evidence = "mentions walker"
	}
	codes.M1860 = model.Item{Value: "2", Evidence: evidence}
	prov[model.M1860] = model.SourceAdjusted
	return true
}
