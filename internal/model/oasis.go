package model

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
)

// ItemKey identifies one OASIS Section G item.
type ItemKey string

const (
	M1800 ItemKey = "M1800" // Grooming
	M1810 ItemKey = "M1810" // Upper body dressing
	M1820 ItemKey = "M1820" // Lower body dressing
	M1830 ItemKey = "M1830" // Bathing
	M1840 ItemKey = "M1840" // Toilet transferring
	M1850 ItemKey = "M1850" // Transferring (bed/chair)
	M1860 ItemKey = "M1860" // Ambulation/locomotion
)

// ItemKeys is the fixed, ordered list of items produced for every transcript.
var ItemKeys = []ItemKey{M1800, M1810, M1820, M1830, M1840, M1850, M1860}

// Code is an ordinal item value or the Unknown sentinel.
type Code string

// Unknown marks an item without explicit supporting evidence.
const Unknown Code = "unknown"

var itemLabels = map[ItemKey]string{
	M1800: "Grooming",
	M1810: "Upper body dressing",
	M1820: "Lower body dressing",
	M1830: "Bathing",
	M1840: "Toilet transferring",
	M1850: "Transferring",
	M1860: "Ambulation/locomotion",
}

// maxCode is the highest ordinal allowed per item.
var maxCode = map[ItemKey]int{
	M1800: 3,
	M1810: 3,
	M1820: 3,
	M1830: 6,
	M1840: 4,
	M1850: 5,
	M1860: 6,
}

// Label returns the human readable item name.
func (k ItemKey) Label() string {
	return itemLabels[k]
}

// Valid reports whether k is one of the seven known items.
func (k ItemKey) Valid() bool {
	_, ok := maxCode[k]
	return ok
}

// AllowedCodes returns the values accepted for k, ordinals first then Unknown.
func AllowedCodes(k ItemKey) []Code {
	hi, ok := maxCode[k]
	if !ok {
		return nil
	}
	out := make([]Code, 0, hi+2)
	for i := 0; i <= hi; i++ {
		out = append(out, Code(string(rune('0'+i))))
	}
	return append(out, Unknown)
}

// Allows reports whether c is in the allowed set for k.
func (k ItemKey) Allows(c Code) bool {
	return slices.Contains(AllowedCodes(k), c)
}

// Item is one coded value with its supporting transcript snippet.
type Item struct {
	Value    Code   `json:"value"`
	Evidence string `json:"evidence,omitempty"`
}

// Known reports whether the item carries a concrete ordinal value.
func (i Item) Known() bool {
	return i.Value != "" && i.Value != Unknown
}

// Codes is the full Section G result: every item plus an optional confidence.
type Codes struct {
	M1800      Item     `json:"M1800"`
	M1810      Item     `json:"M1810"`
	M1820      Item     `json:"M1820"`
	M1830      Item     `json:"M1830"`
	M1840      Item     `json:"M1840"`
	M1850      Item     `json:"M1850"`
	M1860      Item     `json:"M1860"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// UnknownCodes returns a result with every item Unknown and no confidence.
func UnknownCodes() Codes {
	var c Codes
	for _, k := range ItemKeys {
		c.Set(k, Item{Value: Unknown})
	}
	return c
}

func (c *Codes) slot(k ItemKey) *Item {
	switch k {
	case M1800:
		return &c.M1800
	case M1810:
		return &c.M1810
	case M1820:
		return &c.M1820
	case M1830:
		return &c.M1830
	case M1840:
		return &c.M1840
	case M1850:
		return &c.M1850
	case M1860:
		return &c.M1860
	}
	return nil
}

// Get returns the item stored under k. Unrecognized keys yield an Unknown item.
func (c Codes) Get(k ItemKey) Item {
	if s := c.slot(k); s != nil {
		return *s
	}
	return Item{Value: Unknown}
}

// Set stores it under k. Unrecognized keys are ignored.
func (c *Codes) Set(k ItemKey, it Item) {
	if s := c.slot(k); s != nil {
		*s = it
	}
}

// ConfidenceOr returns the confidence, or def when none was reported.
func (c Codes) ConfidenceOr(def float64) float64 {
	if c.Confidence == nil {
		return def
	}
	return *c.Confidence
}

// WithConfidence returns a copy of c carrying v as its confidence.
func (c Codes) WithConfidence(v float64) Codes {
	c.Confidence = &v
	return c
}

// FilledCount returns how many items hold a concrete value.
func (c Codes) FilledCount() int {
	n := 0
	for _, k := range ItemKeys {
		if c.Get(k).Known() {
			n++
		}
	}
	return n
}

// Validate checks every item against its allowed set and the confidence range.
func (c Codes) Validate() error {
	for _, k := range ItemKeys {
		if v := c.Get(k).Value; !k.Allows(v) {
			return eris.Errorf("model: %s value %q not allowed", k, v)
		}
	}
	if c.Confidence != nil {
		if v := *c.Confidence; math.IsNaN(v) || v < 0 || v > 1 {
			return eris.Errorf("model: confidence %v out of range", v)
		}
	}
	return nil
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
