package llm

import (
	"encoding/json"
	"fmt"

	"github.com/swaggest/jsonschema-go"
)

// NormalizeToolSchema guarantees a well-formed object schema for a tool
// descriptor. A missing or unparseable schema, or a schema that is not
// an object schema, is replaced by the empty object schema rather than
// rejected, so a badly-authored tool never breaks the request that
// carries it. A schema with properties but no declared type is repaired
// by adding the object type.
func NormalizeToolSchema(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return emptyObjectSchema()
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return emptyObjectSchema()
	}

	if schema.HasType(jsonschema.Object) {
		return raw
	}

	// No declared type: repair schemas that are object-shaped, replace
	// the rest.
	if schema.Type == nil && len(schema.Properties) > 0 {
		schema.AddType(jsonschema.Object)
		repaired, err := json.Marshal(schema)
		if err != nil {
			return emptyObjectSchema()
		}
		return repaired
	}

	return emptyObjectSchema()
}

func emptyObjectSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

// SchemaFromStruct generates a JSON Schema from a Go struct using the
// swaggest/jsonschema-go reflector.
//
// Example:
//
//	type ListDirArgs struct {
//	    Path string `json:"path" required:"true"`
//	}
//	schema, err := SchemaFromStruct(ListDirArgs{})
func SchemaFromStruct(structType interface{}) (interface{}, error) {
	reflector := jsonschema.Reflector{}

	schema, err := reflector.Reflect(structType)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect struct to JSON schema: %w", err)
	}

	return schema, nil
}

// SchemaFromStructAsMap generates a JSON Schema as map[string]interface{}
// from a Go struct, useful for generic API compatibility.
func SchemaFromStructAsMap(structType interface{}) (map[string]interface{}, error) {
	schema, err := SchemaFromStruct(structType)
	if err != nil {
		return nil, err
	}

	jsonBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema to JSON: %w", err)
	}

	var schemaMap map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema JSON to map: %w", err)
	}

	return schemaMap, nil
}

// NewToolDescriptorFor builds a normalized ToolDescriptor whose input
// schema is reflected from a Go struct type.
func NewToolDescriptorFor(name, description string, inputType interface{}) (ToolDescriptor, error) {
	schema, err := SchemaFromStruct(inputType)
	if err != nil {
		return ToolDescriptor{}, err
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return ToolDescriptor{}, fmt.Errorf("failed to marshal schema to JSON: %w", err)
	}

	descriptor := ToolDescriptor{
		Name:        name,
		Description: description,
		InputSchema: raw,
	}
	return descriptor.Normalized(), nil
}
