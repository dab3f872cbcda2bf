// Package schema derives JSON schemas from Go structs and validates agent
// output documents against them. Derivation happens once at topology
// construction; validation runs at merge time on every agent final output.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// Derive reflects a JSON schema from a struct value. The schema is inlined
// (no $ref indirection) so it can be handed to model providers and the
// validator unchanged.
func Derive(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	s := reflector.Reflect(v)
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal derived schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode derived schema: %w", err)
	}
	// The provider-facing side expects a bare object schema.
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}

// ValidationError aggregates the individual field failures of one document.
type ValidationError struct {
	Failures []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("output validation failed: %s", strings.Join(e.Failures, "; "))
}

// Validate checks a document against a derived schema. A nil schema accepts
// anything.
func Validate(schemaDoc map[string]any, doc map[string]any) error {
	if schemaDoc == nil {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schemaDoc),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("run schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{}
	for _, desc := range result.Errors() {
		ve.Failures = append(ve.Failures, desc.String())
	}
	return ve
}
