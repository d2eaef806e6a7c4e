// Package schema holds the strict JSON Schema for a coded Section G body and
// converts validated bodies into model.Codes.
package schema

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/oasis-extract/internal/model"
)

const schemaURL = "https://oasis-extract.local/schemas/section-g.schema.json"

// DefaultConfidence is applied when a valid body omits confidence.
const DefaultConfidence = 0.5

// ErrInvalid wraps every validation failure.
var ErrInvalid = eris.New("schema: body rejected")

var compiled = sync.OnceValues(compile)

// Document returns the JSON Schema (Draft 2020-12) for a coded body: exactly
// the seven item keys plus an optional confidence in [0,1].
func Document() map[string]any {
	props := make(map[string]any, len(model.ItemKeys)+1)
	required := make([]string, 0, len(model.ItemKeys))
	for _, k := range model.ItemKeys {
		codes := model.AllowedCodes(k)
		enum := make([]string, len(codes))
		for i, c := range codes {
			enum[i] = string(c)
		}
		props[string(k)] = map[string]any{
			"type":     "object",
			"required": []string{"value"},
			"properties": map[string]any{
				"value":    map[string]any{"type": "string", "enum": enum},
				"evidence": map[string]any{"type": "string"},
			},
		}
		required = append(required, string(k))
	}
	props["confidence"] = map[string]any{"type": "number", "minimum": 0, "maximum": 1}

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"$id":                  schemaURL,
		"type":                 "object",
		"required":             required,
		"properties":           props,
		"additionalProperties": false,
	}
}

func compile() (*jsonschema.Schema, error) {
	raw, err := json.Marshal(Document())
	if err != nil {
		return nil, eris.Wrap(err, "schema: marshal document")
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, eris.Wrap(err, "schema: add resource")
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, eris.Wrap(err, "schema: compile")
	}
	return s, nil
}

// Validate checks body against the compiled schema.
func Validate(body map[string]any) error {
	s, err := compiled()
	if err != nil {
		return err
	}
	if err := s.Validate(body); err != nil {
		return eris.Wrapf(ErrInvalid, "%v", err)
	}
	return nil
}

// Decode validates body and converts it. Missing evidence becomes "" and a
// missing confidence becomes DefaultConfidence. Invalid bodies are rejected,
// never repaired.
func Decode(body map[string]any) (model.Codes, error) {
	if err := Validate(body); err != nil {
		return model.Codes{}, err
	}

	out := model.UnknownCodes()
	for _, k := range model.ItemKeys {
		entry, _ := body[string(k)].(map[string]any)
		value, _ := entry["value"].(string)
		evidence, _ := entry["evidence"].(string)
		out.Set(k, model.Item{Value: model.Code(value), Evidence: evidence})
	}

	conf := DefaultConfidence
	if v, ok := body["confidence"].(float64); ok {
		conf = v
	}
	return out.WithConfidence(conf), nil
}
