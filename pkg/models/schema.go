package models

// Schema is a loose JSON-schema fragment. Output schemas are declared by the
// builder UI and derived by the schema calculator; they are never enforced at
// runtime, so a typed schema representation would buy nothing here.
type Schema map[string]any

// EmptyObjectSchema returns `{type: object, properties: {}}`.
func EmptyObjectSchema() Schema {
	return Schema{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// ObjectSchema returns an object schema with the given properties.
func ObjectSchema(properties map[string]any) Schema {
	return Schema{
		"type":       "object",
		"properties": properties,
	}
}
