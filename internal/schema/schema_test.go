package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oasis-extract/internal/model"
)

func validBody() map[string]any {
	return map[string]any{
		"M1800":      map[string]any{"value": "1", "evidence": "after setup"},
		"M1810":      map[string]any{"value": "unknown", "evidence": ""},
		"M1820":      map[string]any{"value": "2"},
		"M1830":      map[string]any{"value": "5", "evidence": "needs help with her back"},
		"M1840":      map[string]any{"value": "2", "evidence": "bedside commode"},
		"M1850":      map[string]any{"value": "unknown"},
		"M1860":      map[string]any{"value": "2", "evidence": "rolling walker"},
		"confidence": 0.8,
	}
}

func TestDecode_Valid(t *testing.T) {
	t.Parallel()

	got, err := Decode(validBody())
	require.NoError(t, err)

	assert.Equal(t, model.Item{Value: "1", Evidence: "after setup"}, got.M1800)
	assert.Equal(t, model.Item{Value: "2", Evidence: ""}, got.M1820)
	assert.Equal(t, model.Unknown, got.M1850.Value)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.8, *got.Confidence, 1e-9)
	assert.NoError(t, got.Validate())
}

func TestDecode_DefaultConfidence(t *testing.T) {
	t.Parallel()

	body := validBody()
	delete(body, "confidence")

	got, err := Decode(body)
	require.NoError(t, err)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, DefaultConfidence, *got.Confidence, 1e-9)
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing key", func(b map[string]any) { delete(b, "M1860") }},
		{"extra key", func(b map[string]any) { b["M1870"] = map[string]any{"value": "0"} }},
		{"value out of range for item", func(b map[string]any) { b["M1800"] = map[string]any{"value": "4"} }},
		{"value not a code", func(b map[string]any) { b["M1840"] = map[string]any{"value": "two"} }},
		{"numeric value", func(b map[string]any) { b["M1850"] = map[string]any{"value": float64(1)} }},
		{"missing value", func(b map[string]any) { b["M1810"] = map[string]any{"evidence": "x"} }},
		{"item not an object", func(b map[string]any) { b["M1820"] = "2" }},
		{"evidence not a string", func(b map[string]any) { b["M1830"] = map[string]any{"value": "1", "evidence": float64(3)} }},
		{"confidence above one", func(b map[string]any) { b["confidence"] = 1.5 }},
		{"confidence negative", func(b map[string]any) { b["confidence"] = -0.1 }},
		{"confidence string", func(b map[string]any) { b["confidence"] = "high" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validBody()
			tt.mutate(body)
			_, err := Decode(body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestDocument_AllowedCodes(t *testing.T) {
	t.Parallel()

	doc := Document()
	props := doc["properties"].(map[string]any)
	assert.Len(t, props, len(model.ItemKeys)+1)

	m1840 := props["M1840"].(map[string]any)["properties"].(map[string]any)["value"].(map[string]any)
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "unknown"}, m1840["enum"])
	assert.Equal(t, false, doc["additionalProperties"])
}
