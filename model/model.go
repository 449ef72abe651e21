// Package model defines the API definition and test case data structures
// shared by the generation pipeline.
package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// TestType classifies a generated test case.
type TestType string

const (
	TestTypeFunctional  TestType = "functional"
	TestTypePerformance TestType = "performance"
	TestTypeBoundary    TestType = "boundary"
	TestTypeException   TestType = "exception"
)

// AllTestTypes lists every supported test type in generation order.
var AllTestTypes = []TestType{
	TestTypeFunctional,
	TestTypePerformance,
	TestTypeBoundary,
	TestTypeException,
}

// ParseTestType normalizes a user supplied type string.
func ParseTestType(s string) (TestType, error) {
	t := TestType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TestTypeFunctional, TestTypePerformance, TestTypeBoundary, TestTypeException:
		return t, nil
	}
	return "", fmt.Errorf("unknown test type %q (expected one of functional, performance, boundary, exception)", s)
}

// Constraints restricts the values a parameter may take. All bounds are
// optional; nil means unconstrained on that axis.
type Constraints struct {
	MinLength *int     `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Pattern   string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Format    string   `json:"format,omitempty" yaml:"format,omitempty"`
	Enum      []string `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// Parameter describes a single input or output field of an API.
type Parameter struct {
	Type        string       `json:"type" yaml:"type"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Required    *bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any          `json:"default,omitempty" yaml:"default,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// IsRequired reports whether the parameter must be present. Parameters
// are required unless the definition says otherwise.
func (p Parameter) IsRequired() bool {
	return p.Required == nil || *p.Required
}

// APIDefinition is the contract test cases are generated against. Treat
// loaded definitions as immutable.
type APIDefinition struct {
	Name         string               `json:"name" yaml:"name"`
	Description  string               `json:"description,omitempty" yaml:"description,omitempty"`
	Method       string               `json:"method,omitempty" yaml:"method,omitempty"`
	Path         string               `json:"path,omitempty" yaml:"path,omitempty"`
	InputParams  map[string]Parameter `json:"input_params" yaml:"input_params"`
	OutputParams map[string]Parameter `json:"output_params,omitempty" yaml:"output_params,omitempty"`
	ExampleCases map[string]any       `json:"example_cases,omitempty" yaml:"example_cases,omitempty"`
}

// Load reads an API definition from a JSON or YAML file.
func Load(path string) (*APIDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read API definition: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes an API definition from raw bytes. The ext hint selects
// the YAML decoder for .yaml/.yml, everything else is treated as JSON.
func Parse(data []byte, ext string) (*APIDefinition, error) {
	var def APIDefinition
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse API definition: %w", err)
		}
	default:
		if err := sonic.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse API definition: %w", err)
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// Validate checks structural completeness and constraint consistency.
// It returns a *SchemaError describing the first problem found.
func (d *APIDefinition) Validate() error {
	if d.Name == "" {
		return &SchemaError{Field: "name", Reason: "is required"}
	}
	if d.Method != "" && !knownMethods[strings.ToUpper(d.Method)] {
		return &SchemaError{Field: "method", Reason: fmt.Sprintf("%q is not a known HTTP method", d.Method)}
	}
	if d.InputParams == nil {
		return &SchemaError{Field: "input_params", Reason: "is required"}
	}
	// description, path, output_params and example_cases are optional;
	// a nil output_params means the API declares no outputs.
	for name, p := range d.InputParams {
		if err := validateParam("input_params."+name, p); err != nil {
			return err
		}
	}
	for name, p := range d.OutputParams {
		if err := validateParam("output_params."+name, p); err != nil {
			return err
		}
	}
	return nil
}

func validateParam(field string, p Parameter) error {
	if p.Type == "" {
		return &SchemaError{Field: field + ".type", Reason: "is required"}
	}
	c := p.Constraints
	if c == nil {
		return nil
	}
	if c.MinLength != nil && *c.MinLength < 0 {
		return &SchemaError{Field: field + ".constraints.min_length", Reason: "must not be negative"}
	}
	if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
		return &SchemaError{
			Field:  field + ".constraints",
			Reason: fmt.Sprintf("min_length %d exceeds max_length %d", *c.MinLength, *c.MaxLength),
		}
	}
	if c.Minimum != nil && c.Maximum != nil && *c.Minimum > *c.Maximum {
		return &SchemaError{
			Field:  field + ".constraints",
			Reason: fmt.Sprintf("minimum %v exceeds maximum %v", *c.Minimum, *c.Maximum),
		}
	}
	return nil
}

// Metrics carries performance expectations on a test case. Only present
// on performance tests.
type Metrics struct {
	MaxLatencyMs     float64 `json:"max_latency_ms,omitempty"`
	MinThroughputRPS float64 `json:"min_throughput_rps,omitempty"`
	ConcurrentUsers  int     `json:"concurrent_users,omitempty"`
	DurationSeconds  int     `json:"duration_seconds,omitempty"`
	ErrorRatePercent float64 `json:"error_rate_percent,omitempty"`
}

// TestCase is a single generated test for an API.
type TestCase struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Type           TestType       `json:"type"`
	InputData      map[string]any `json:"input_data"`
	ExpectedOutput map[string]any `json:"expected_output"`
	Preconditions  []string       `json:"preconditions"`
	Postconditions []string       `json:"postconditions"`
	Tags           []string       `json:"tags"`
	Metrics        *Metrics       `json:"metrics,omitempty"`
}

// ValidateTestCase checks a parsed test case against the schema and the
// API definition. It returns one message per problem so the generator
// can feed all of them back to the model on retry.
func ValidateTestCase(tc *TestCase, def *APIDefinition) []string {
	var errs []string
	if tc.Name == "" {
		errs = append(errs, "field 'name' is missing or empty")
	}
	if tc.Description == "" {
		errs = append(errs, "field 'description' is missing or empty")
	}
	if _, err := ParseTestType(string(tc.Type)); err != nil {
		errs = append(errs, fmt.Sprintf("field 'type' has invalid value %q", tc.Type))
	}
	if tc.InputData == nil {
		errs = append(errs, "field 'input_data' is missing")
	}
	if tc.ExpectedOutput == nil {
		errs = append(errs, "field 'expected_output' is missing")
	}
	if def != nil && tc.InputData != nil {
		for name := range tc.InputData {
			if _, ok := def.InputParams[name]; !ok {
				errs = append(errs, fmt.Sprintf("input_data contains unknown parameter %q", name))
			}
		}
		// Functional tests exercise the happy path, so every required
		// parameter must be supplied. Boundary and exception tests may
		// omit them on purpose.
		if tc.Type == TestTypeFunctional {
			for name, p := range def.InputParams {
				if p.IsRequired() {
					if _, ok := tc.InputData[name]; !ok {
						errs = append(errs, fmt.Sprintf("input_data is missing required parameter %q", name))
					}
				}
			}
		}
	}
	if tc.Type == TestTypePerformance && tc.Metrics == nil {
		errs = append(errs, "performance test cases must include 'metrics'")
	}
	return errs
}
