package wizard

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed default_schema.yaml
var defaultSchemaYAML []byte

//go:embed schema.json
var schemaDocument []byte

// FieldKind is the input control a field renders as.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindDate     FieldKind = "date"
	KindTel      FieldKind = "tel"
	KindNumber   FieldKind = "number"
	KindTextarea FieldKind = "textarea"
)

// Field is one form input.
type Field struct {
	Name        string    `yaml:"name" json:"name"`
	Label       string    `yaml:"label" json:"label"`
	Kind        FieldKind `yaml:"kind" json:"kind"`
	Required    bool      `yaml:"required,omitempty" json:"required,omitempty"`
	Placeholder string    `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
}

// Step is a titled page of fields.
type Step struct {
	Title  string  `yaml:"title" json:"title"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// Schema is the ordered list of wizard steps. It is static configuration.
type Schema struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// Len returns the number of steps.
func (s Schema) Len() int {
	return len(s.Steps)
}

// FieldNames lists every field in order.
func (s Schema) FieldNames() []string {
	var names []string
	for _, step := range s.Steps {
		for _, field := range step.Fields {
			names = append(names, field.Name)
		}
	}
	return names
}

// DefaultSchema returns the built-in four step form.
func DefaultSchema() Schema {
	schema, err := ParseSchema(defaultSchemaYAML)
	if err != nil {
		panic(fmt.Sprintf("wizard: built-in schema is invalid: %v", err))
	}
	return schema
}

// LoadSchema reads path, or returns the built-in schema when path is empty.
func LoadSchema(path string) (Schema, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("wizard: read schema %s: %w", path, err)
	}
	schema, err := ParseSchema(data)
	if err != nil {
		return Schema{}, fmt.Errorf("wizard: schema %s: %w", path, err)
	}
	return schema, nil
}

// ParseSchema decodes a YAML step schema and validates its shape.
func ParseSchema(data []byte) (Schema, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Schema{}, fmt.Errorf("wizard: parse schema: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return Schema{}, err
	}
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return Schema{}, fmt.Errorf("wizard: decode schema: %w", err)
	}
	seen := map[string]bool{}
	for _, name := range schema.FieldNames() {
		if seen[name] {
			return Schema{}, fmt.Errorf("wizard: duplicate field %q", name)
		}
		seen[name] = true
	}
	return schema, nil
}

func validateDocument(doc any) error {
	var schemaMap map[string]interface{}
	if err := json.Unmarshal(schemaDocument, &schemaMap); err != nil {
		return fmt.Errorf("wizard: load json schema: %w", err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schemaMap), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("wizard: validate schema: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("wizard: invalid schema: %s", strings.Join(errs, "; "))
	}
	return nil
}
