package util

import "fmt"

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateParameters validates arguments against a minimal JSON-Schema
// shaped map (type/properties/required). Extra fields are allowed.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	required := requiredFields(schema)
	for _, fieldName := range required {
		value, exists := params[fieldName]
		if !exists {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
		if value == nil {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is null",
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for fieldName, value := range params {
		propSchema, exists := properties[fieldName]
		if !exists {
			continue // Allow extra fields
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		expectedType, _ := propMap["type"].(string)
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}
	}

	return nil
}

// requiredFields tolerates both []string (hand written schemas) and []any
// (schemas round-tripped through JSON).
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		fields := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	default:
		return nil
	}
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch value.(type) {
		case int, int32, int64, float64: // JSON numbers decode as float64
			return true
		default:
			return false
		}
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		switch value.(type) {
		case []any, []string:
			return true
		default:
			return false
		}
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
