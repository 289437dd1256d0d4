package profile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "profile.json"

func schemaDocument() map[string]any {
	stringOrList := map[string]any{
		"anyOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "array"},
			map[string]any{"type": "object"},
		},
	}

	return map[string]any{
		"$schema":  "https://json-schema.org/draft/2020-12/schema",
		"type":     "object",
		"required": []any{"full_name", "email"},
		"properties": map[string]any{
			"full_name":           map[string]any{"type": "string", "minLength": 1},
			"email":               map[string]any{"type": "string", "format": "email"},
			"phone":               map[string]any{"type": []any{"string", "number", "null"}},
			"linkedin_url":        map[string]any{"type": []any{"string", "null"}},
			"github_url":          map[string]any{"type": []any{"string", "null"}},
			"years_of_experience": map[string]any{"type": []any{"string", "number", "null"}},
			"skills":              stringOrList,
			"work_experience":     stringOrList,
			"education":           stringOrList,
		},
	}
}

// Validate checks the fields against the profile JSON schema. The agent cannot
// fill a form without a name and an email address.
func Validate(fields Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("fields do not match profile schema: %w", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaDocument())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(schemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
