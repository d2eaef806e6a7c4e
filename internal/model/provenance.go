package model

// Source records which stage produced a final merged item value.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceRules    Source = "rules"
	SourceAdjusted Source = "adjusted"
)

// ProvenanceMap holds exactly one Source per item key.
type ProvenanceMap map[ItemKey]Source

// NewProvenanceMap returns a map with every item tagged SourceRules.
func NewProvenanceMap() ProvenanceMap {
	p := make(ProvenanceMap, len(ItemKeys))
	for _, k := range ItemKeys {
		p[k] = SourceRules
	}
	return p
}

// Clone returns an independent copy of p.
func (p ProvenanceMap) Clone() ProvenanceMap {
	out := make(ProvenanceMap, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Sources returns the distinct tags in item order.
func (p ProvenanceMap) Sources() []string {
	seen := make(map[Source]bool, 3)
	var out []string
	for _, k := range ItemKeys {
		s, ok := p[k]
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, string(s))
	}
	return out
}

// Count returns how many items carry tag s.
func (p ProvenanceMap) Count(s Source) int {
	n := 0
	for _, v := range p {
		if v == s {
			n++
		}
	}
	return n
}
