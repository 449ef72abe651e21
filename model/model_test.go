package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const createUserJSON = `{
  "name": "create_user",
  "description": "Creates a new user account",
  "method": "POST",
  "path": "/users",
  "input_params": {
    "username": {
      "type": "string",
      "description": "Unique login name",
      "constraints": {"min_length": 3, "max_length": 50}
    },
    "age": {
      "type": "integer",
      "required": false,
      "constraints": {"minimum": 0, "maximum": 150}
    }
  },
  "output_params": {
    "user_id": {"type": "string"},
    "status": {"type": "string"}
  }
}`

// ---------------------------------------------------------------------------
// Load / Parse
// ---------------------------------------------------------------------------

func TestLoad_JSONRoundTrip(t *testing.T) {
	path := writeTempFile(t, "create_user.json", createUserJSON)

	def, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "create_user", def.Name)
	assert.Equal(t, "POST", def.Method)
	assert.Equal(t, "/users", def.Path)

	username, ok := def.InputParams["username"]
	require.True(t, ok)
	assert.True(t, username.IsRequired(), "required defaults to true when omitted")
	require.NotNil(t, username.Constraints)
	assert.Equal(t, 3, *username.Constraints.MinLength)
	assert.Equal(t, 50, *username.Constraints.MaxLength)

	age, ok := def.InputParams["age"]
	require.True(t, ok)
	assert.False(t, age.IsRequired())
	assert.Equal(t, float64(0), *age.Constraints.Minimum)
	assert.Equal(t, float64(150), *age.Constraints.Maximum)

	assert.Len(t, def.OutputParams, 2)
}

func TestLoad_YAML(t *testing.T) {
	content := `
name: get_order
description: Fetches an order by id
method: GET
path: /orders/{id}
input_params:
  order_id:
    type: string
output_params:
  status:
    type: string
`
	path := writeTempFile(t, "get_order.yaml", content)

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "get_order", def.Name)
	assert.Contains(t, def.InputParams, "order_id")
}

func TestParse_MinimalDefinition(t *testing.T) {
	// description, path-less outputs and output_params itself are all
	// optional; only name and input_params are mandatory.
	content := `{
  "name": "create_user",
  "method": "POST",
  "path": "/api/v1/users",
  "input_params": {
    "username": {
      "type": "string",
      "constraints": {"min_length": 3, "max_length": 50}
    }
  }
}`
	def, err := Parse([]byte(content), ".json")
	require.NoError(t, err)
	assert.Empty(t, def.Description)
	assert.Nil(t, def.OutputParams)
	assert.Contains(t, def.InputParams, "username")
}

func TestParse_DefaultAndExampleCasesRoundTrip(t *testing.T) {
	content := `{
  "name": "create_user",
  "description": "Creates a new user account",
  "method": "POST",
  "input_params": {
    "role": {
      "type": "string",
      "required": false,
      "default": "viewer",
      "constraints": {"enum": ["viewer", "editor", "admin"]}
    }
  },
  "output_params": {"status": {"type": "string"}},
  "example_cases": {
    "happy_path": {"input": {"role": "admin"}, "expected": {"status": "success"}}
  }
}`
	def, err := Parse([]byte(content), ".json")
	require.NoError(t, err)

	role := def.InputParams["role"]
	assert.Equal(t, "viewer", role.Default)

	require.Contains(t, def.ExampleCases, "happy_path")

	// Re-encoding must not lose either field.
	data, err := sonic.Marshal(def)
	require.NoError(t, err)
	reparsed, err := Parse(data, ".json")
	require.NoError(t, err)
	assert.Equal(t, "viewer", reparsed.InputParams["role"].Default)
	assert.Contains(t, reparsed.ExampleCases, "happy_path")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/api.json")
	assert.Error(t, err)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"), ".json")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_MissingInputParams(t *testing.T) {
	content := `{
  "name": "create_user",
  "description": "Creates a new user account",
  "output_params": {"status": {"type": "string"}}
}`
	_, err := Parse([]byte(content), ".json")
	require.Error(t, err)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "input_params", schemaErr.Field)
}

func TestValidate_MissingName(t *testing.T) {
	def := &APIDefinition{
		Description:  "something",
		InputParams:  map[string]Parameter{},
		OutputParams: map[string]Parameter{},
	}
	err := def.Validate()
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "name", schemaErr.Field)
}

func TestValidate_InconsistentLengthBounds(t *testing.T) {
	def := &APIDefinition{
		Name:        "x",
		Description: "y",
		InputParams: map[string]Parameter{
			"username": {
				Type:        "string",
				Constraints: &Constraints{MinLength: intPtr(10), MaxLength: intPtr(3)},
			},
		},
		OutputParams: map[string]Parameter{},
	}
	err := def.Validate()
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Contains(t, schemaErr.Error(), "min_length 10 exceeds max_length 3")
}

func TestValidate_InconsistentNumericBounds(t *testing.T) {
	def := &APIDefinition{
		Name:        "x",
		Description: "y",
		InputParams: map[string]Parameter{
			"age": {
				Type:        "integer",
				Constraints: &Constraints{Minimum: floatPtr(100), Maximum: floatPtr(1)},
			},
		},
		OutputParams: map[string]Parameter{},
	}
	assert.Error(t, def.Validate())
}

func TestValidate_UnknownMethod(t *testing.T) {
	def := &APIDefinition{
		Name:         "x",
		Description:  "y",
		Method:       "YEET",
		InputParams:  map[string]Parameter{},
		OutputParams: map[string]Parameter{},
	}
	err := def.Validate()
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "method", schemaErr.Field)
}

func TestValidate_ParamMissingType(t *testing.T) {
	def := &APIDefinition{
		Name:         "x",
		Description:  "y",
		InputParams:  map[string]Parameter{"foo": {}},
		OutputParams: map[string]Parameter{},
	}
	err := def.Validate()
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "input_params.foo.type", schemaErr.Field)
}

// ---------------------------------------------------------------------------
// ParseTestType
// ---------------------------------------------------------------------------

func TestParseTestType(t *testing.T) {
	tt, err := ParseTestType(" Boundary ")
	require.NoError(t, err)
	assert.Equal(t, TestTypeBoundary, tt)

	_, err = ParseTestType("fuzz")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// ValidateTestCase
// ---------------------------------------------------------------------------

func validDef(t *testing.T) *APIDefinition {
	t.Helper()
	def, err := Parse([]byte(createUserJSON), ".json")
	require.NoError(t, err)
	return def
}

func TestValidateTestCase_Valid(t *testing.T) {
	def := validDef(t)
	tc := &TestCase{
		ID:             "tc-1",
		Name:           "Create user happy path",
		Description:    "Creates a user with valid data",
		Type:           TestTypeFunctional,
		InputData:      map[string]any{"username": "alice"},
		ExpectedOutput: map[string]any{"status": "success"},
	}
	assert.Empty(t, ValidateTestCase(tc, def))
}

func TestValidateTestCase_CollectsAllProblems(t *testing.T) {
	def := validDef(t)
	tc := &TestCase{
		Type:      TestType("bogus"),
		InputData: map[string]any{"unknown_param": 1},
	}
	errs := ValidateTestCase(tc, def)
	assert.GreaterOrEqual(t, len(errs), 4, "name, description, type, expected_output and unknown param should all be reported")
}

func TestValidateTestCase_FunctionalRequiresRequiredParams(t *testing.T) {
	def := validDef(t)
	tc := &TestCase{
		Name:           "no username",
		Description:    "omits a required parameter",
		Type:           TestTypeFunctional,
		InputData:      map[string]any{},
		ExpectedOutput: map[string]any{"status": "error"},
	}
	errs := ValidateTestCase(tc, def)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `"username"`)

	// Exception tests may omit required parameters on purpose.
	tc.Type = TestTypeException
	assert.Empty(t, ValidateTestCase(tc, def))
}

func TestValidateTestCase_PerformanceNeedsMetrics(t *testing.T) {
	def := validDef(t)
	tc := &TestCase{
		Name:           "load test",
		Description:    "sustained load",
		Type:           TestTypePerformance,
		InputData:      map[string]any{"username": "alice"},
		ExpectedOutput: map[string]any{"status": "success"},
	}
	errs := ValidateTestCase(tc, def)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "metrics")

	tc.Metrics = &Metrics{MaxLatencyMs: 200}
	assert.Empty(t, ValidateTestCase(tc, def))
}

func TestParameter_RequiredOverride(t *testing.T) {
	p := Parameter{Type: "string", Required: boolPtr(false)}
	assert.False(t, p.IsRequired())
}
