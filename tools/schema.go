package tools

// Schema helpers for building JSON Schema definitions that collaborator output
// is validated against.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// NullableStringProperty creates a property that accepts a string or null.
// Generators often emit null for "not mentioned".
func NullableStringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        []string{"string", "null"},
		"description": description,
	}
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// NumberProperty creates a number property with optional description.
func NumberProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
	}
}

// RangeProperty creates a number property bounded to [min, max].
func RangeProperty(description string, min, max float64) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
		"minimum":     min,
		"maximum":     max,
	}
}

// BooleanProperty creates a boolean property with optional description.
func BooleanProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": description,
	}
}

// MapProperty creates an object property whose arbitrary keys all share
// valueSchema.
func MapProperty(description string, valueSchema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"description":          description,
		"additionalProperties": valueSchema,
	}
}

// Closed forbids properties not declared in schema. It returns a copy.
func Closed(schema map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(schema)+1)
	for k, v := range schema {
		result[k] = v
	}
	result["additionalProperties"] = false
	return result
}
