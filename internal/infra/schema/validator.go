// Package schema validates serialized provenance manifests against the
// embedded JSON Schema before they are persisted or inspected.
package schema

import (
	_ "embed"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"proofsy/internal/domain"
)

//go:embed manifest.schema.json
var manifestSchema []byte

type Validator struct {
	schema *jsonschema.Schema
}

func NewManifestValidator() (*Validator, error) {
	return NewValidator(manifestSchema)
}

func NewValidator(schemaJSON []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	compiled, err := compiler.Compile(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate returns an error wrapping domain.ErrInvalidManifest when doc does
// not conform.
func (v *Validator) Validate(doc []byte) error {
	result := v.schema.ValidateJSON(doc)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("%w: schema validation failed: %v", domain.ErrInvalidManifest, result.Errors)
}
