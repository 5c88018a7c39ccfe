package catalog

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/product.schema.json
var productSchema []byte

const productSchemaURL = "https://obis.org/schemas/catalog/product.schema.json"

// Schema validates decoded product records.
type Schema struct {
	compiled *jsonschema.Schema
}

// NewSchema compiles the embedded product schema.
func NewSchema() (*Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(productSchemaURL, bytes.NewReader(productSchema)); err != nil {
		return nil, fmt.Errorf("product schema load failed: %w", err)
	}
	compiled, err := c.Compile(productSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("product schema compile failed: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks a record decoded with json.Number numbers.
func (s *Schema) Validate(record map[string]any) error {
	if err := s.compiled.Validate(record); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}
