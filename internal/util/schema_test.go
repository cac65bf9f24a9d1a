package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weatherSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city":  map[string]any{"type": "string"},
			"days":  map[string]any{"type": "integer"},
			"units": map[string]any{"type": "string"},
		},
		"required": []string{"city"},
	}
}

func TestValidateParameters(t *testing.T) {
	schema := weatherSchema()

	assert.NoError(t, ValidateParameters(map[string]any{"city": "Berlin"}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"city": "Berlin", "days": float64(3)}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"city": "Berlin", "extra": true}, schema))
}

func TestValidateParametersMissingRequired(t *testing.T) {
	err := ValidateParameters(map[string]any{"days": float64(3)}, weatherSchema())
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)
}

func TestValidateParametersTypeMismatch(t *testing.T) {
	err := ValidateParameters(map[string]any{"city": 42}, weatherSchema())
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)
	assert.Equal(t, 42, vErr.Value)
}

func TestValidateParametersRequiredFromJSON(t *testing.T) {
	// Schemas loaded from JSON carry []any required lists.
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"q": map[string]any{"type": "string"},
		},
		"required": []any{"q"},
	}

	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"q": "x"}, schema))
}

func TestValidateParametersNullRequiredRejected(t *testing.T) {
	// JSON null decodes to nil; a required field carrying it must not pass.
	err := ValidateParameters(map[string]any{"city": nil}, weatherSchema())
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)
}

func TestValidateParametersNullOptionalAccepted(t *testing.T) {
	schema := weatherSchema()
	assert.NoError(t, ValidateParameters(map[string]any{"city": "Berlin", "units": nil}, schema))
}
