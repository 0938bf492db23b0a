package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// SchemaType is the tag of a Schema
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
)

// Schema describes the shape of tool input. Only the fields relevant to Type are used:
// Properties and Required for objects, Items for arrays.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  []Property
	Required    []string
	Items       *Schema
}

// Property is one named member of an object schema; order is kept when rendering
type Property struct {
	Name   string
	Schema *Schema
}

// Object returns an object schema with the given properties
func Object(props ...Property) *Schema {
	return &Schema{Type: TypeObject, Properties: props}
}

// String returns a string schema
func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// Integer returns an integer schema
func Integer(description string) *Schema {
	return &Schema{Type: TypeInteger, Description: description}
}

// Number returns a number schema
func Number(description string) *Schema {
	return &Schema{Type: TypeNumber, Description: description}
}

// Boolean returns a boolean schema
func Boolean(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description}
}

// Array returns an array schema whose elements match items
func Array(items *Schema, description string) *Schema {
	return &Schema{Type: TypeArray, Items: items, Description: description}
}

// Prop names a property schema
func Prop(name string, schema *Schema) Property {
	return Property{Name: name, Schema: schema}
}

// Require marks properties as required and returns s
func (s *Schema) Require(names ...string) *Schema {
	s.Required = append(s.Required, names...)
	return s
}

// Map renders the schema as a JSON Schema document
func (s *Schema) Map() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": string(TypeObject)}
	}
	out := map[string]interface{}{"type": string(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	switch s.Type {
	case TypeObject:
		props := make(map[string]interface{}, len(s.Properties))
		for _, p := range s.Properties {
			props[p.Name] = p.Schema.Map()
		}
		out["properties"] = props
		if len(s.Required) > 0 {
			out["required"] = append([]string(nil), s.Required...)
		}
	case TypeArray:
		if s.Items != nil {
			out["items"] = s.Items.Map()
		}
	}
	return out
}

// MarshalJSON renders the schema as JSON Schema
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// InputSchema converts an object schema into the descriptor form advertised over MCP
func (s *Schema) InputSchema() mcp.ToolInputSchema {
	if s == nil {
		return mcp.ToolInputSchema{Type: string(TypeObject), Properties: map[string]interface{}{}}
	}
	rendered := s.Map()
	props, _ := rendered["properties"].(map[string]interface{})
	if props == nil {
		props = map[string]interface{}{}
	}
	return mcp.ToolInputSchema{
		Type:       string(s.Type),
		Properties: props,
		Required:   append([]string(nil), s.Required...),
	}
}
