package component

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/logstreams/errors"
)

// jsonSchemaDoc is the draft-07 document shape rendered from a ConfigSchema.
type jsonSchemaDoc struct {
	Schema               string                    `json:"$schema"`
	Type                 string                    `json:"type"`
	Properties           map[string]map[string]any `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// ToJSONSchema renders the schema as a JSON Schema draft-07 document suitable
// for gojsonschema. Unknown fields in validated configs are allowed
// (additionalProperties: true) so schemas can evolve without breaking older
// deployments.
func (s ConfigSchema) ToJSONSchema() ([]byte, error) {
	doc := jsonSchemaDoc{
		Schema:               "http://json-schema.org/draft-07/schema#",
		Type:                 "object",
		Properties:           make(map[string]map[string]any, len(s.Properties)),
		Required:             s.Required,
		AdditionalProperties: true,
	}

	for name, prop := range s.Properties {
		rendered, err := renderProperty(prop)
		if err != nil {
			return nil, errors.WrapInvalid(err, "ConfigSchema", "ToJSONSchema",
				fmt.Sprintf("property %q", name))
		}
		doc.Properties[name] = rendered
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "ConfigSchema", "ToJSONSchema", "document marshaling")
	}
	return data, nil
}

// renderProperty maps one PropertySchema to its JSON Schema form
func renderProperty(prop PropertySchema) (map[string]any, error) {
	rendered := make(map[string]any)

	switch prop.Type {
	case "string":
		rendered["type"] = "string"
	case "enum":
		rendered["type"] = "string"
		if len(prop.Enum) > 0 {
			rendered["enum"] = prop.Enum
		}
	case "int":
		rendered["type"] = "integer"
	case "float":
		rendered["type"] = "number"
	case "bool":
		rendered["type"] = "boolean"
	case "array":
		rendered["type"] = "array"
	case "object":
		rendered["type"] = "object"
	default:
		return nil, fmt.Errorf("unsupported property type %q", prop.Type)
	}

	if prop.Description != "" {
		rendered["description"] = prop.Description
	}
	if prop.Default != nil {
		rendered["default"] = prop.Default
	}
	if prop.Minimum != nil {
		rendered["minimum"] = *prop.Minimum
	}
	if prop.Maximum != nil {
		rendered["maximum"] = *prop.Maximum
	}

	return rendered, nil
}

// Validate checks raw component config against the schema using gojsonschema.
// An empty schema accepts anything so components without schemas keep working;
// empty config is validated as an empty object, which fails only when the
// schema declares required fields.
func (s ConfigSchema) Validate(rawConfig json.RawMessage) error {
	if len(s.Properties) == 0 && len(s.Required) == 0 {
		return nil
	}

	schemaBytes, err := s.ToJSONSchema()
	if err != nil {
		return errors.Wrap(err, "ConfigSchema", "Validate", "schema rendering")
	}

	doc := rawConfig
	if len(doc) == 0 {
		doc = json.RawMessage("{}")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return errors.WrapInvalid(err, "ConfigSchema", "Validate", "schema validation")
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.WrapInvalid(
			fmt.Errorf("config does not match schema: %s", strings.Join(details, "; ")),
			"ConfigSchema", "Validate", "schema validation")
	}

	return nil
}
