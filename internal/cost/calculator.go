// Package cost prices hosted model usage.
package cost

import "strings"

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model names to their pricing.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. An empty rate
// table falls back to DefaultRates. Model names match case-insensitively
// since config keys arrive lower-cased.
func NewCalculator(rates Rates) *Calculator {
	if len(rates.Models) == 0 {
		rates = DefaultRates()
	}
	norm := Rates{Models: make(map[string]ModelRate, len(rates.Models))}
	for name, r := range rates.Models {
		norm.Models[strings.ToLower(name)] = r
	}
	return &Calculator{rates: norm}
}

// Tokens returns the cost of one call. ok is false for models without a rate.
func (c *Calculator) Tokens(model string, input, output int64) (usd float64, ok bool) {
	rate, ok := c.rates.Models[strings.ToLower(model)]
	if !ok {
		return 0, false
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output, true
}

// DefaultRates returns list pricing for the default remote models.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":        {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929":       {Input: 3.00, Output: 15.00},
			"gemini-2.5-flash":                 {Input: 0.30, Output: 2.50},
			"meta-llama/Llama-3.1-8B-Instruct": {Input: 0.02, Output: 0.05},
		},
	}
}
