package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() JSONSchema {
	return JSONSchema{
		Type:     "object",
		Required: []string{"rows", "emailColumn"},
		Properties: map[string]Property{
			"rows": {
				Type:     "array",
				MinItems: IntPtr(1),
				Items:    &Property{Type: "object"},
			},
			"emailColumn": {Type: "string", MinLength: IntPtr(1)},
			"batchSize":   {Type: "integer", Minimum: FloatPtr(1), Maximum: FloatPtr(50)},
			"userDetails": {
				Type:                 "object",
				AdditionalProperties: &Property{Type: "string"},
			},
		},
		AdditionalProperties: true,
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name      string
		document  string
		valid     bool
		errFields []string
	}{
		{
			name:     "valid document",
			document: `{"rows":[{"Email":"a@b.c"}],"emailColumn":"Email","batchSize":2,"userDetails":{"Your Name":"Sam"}}`,
			valid:    true,
		},
		{
			name:      "missing required fields",
			document:  `{"batchSize":2}`,
			valid:     false,
			errFields: []string{"(root)"},
		},
		{
			name:      "batch size above limit",
			document:  `{"rows":[{}],"emailColumn":"Email","batchSize":51}`,
			valid:     false,
			errFields: []string{"batchSize"},
		},
		{
			name:      "empty rows",
			document:  `{"rows":[],"emailColumn":"Email"}`,
			valid:     false,
			errFields: []string{"rows"},
		},
		{
			name:      "non-string user detail",
			document:  `{"rows":[{}],"emailColumn":"Email","userDetails":{"Your Name":7}}`,
			valid:     false,
			errFields: []string{"userDetails.Your Name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateJSON(tt.document, testSchema())
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)

			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
				assert.NotEmpty(t, e.Code)
			}
			for _, f := range tt.errFields {
				assert.Contains(t, fields, f)
			}
			if !tt.valid {
				assert.NotEmpty(t, result.Summary())
			}
		})
	}
}

func TestValidateInput_GoValue(t *testing.T) {
	result, err := ValidateInput(map[string]interface{}{
		"rows":        []interface{}{map[string]interface{}{"Email": "a@b.c"}},
		"emailColumn": "Email",
	}, testSchema())
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateJSON_MalformedDocument(t *testing.T) {
	_, err := ValidateJSON(`{"rows":`, testSchema())
	assert.Error(t, err)
}
