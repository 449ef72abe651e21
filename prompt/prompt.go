// Package prompt assembles the messages sent to the model. Assembly is
// a pure function of its inputs so the same definition, examples and
// scenario always produce the same prompt.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"github.com/bytedance/sonic"
	"github.com/invopop/jsonschema"
	"github.com/tmc/langchaingo/llms"

	"github.com/mykhaliev/testcase-gen/model"
)

// SystemMessage pins the model into JSON-only mode for every request.
const SystemMessage = "You are a test automation expert that ALWAYS responds with valid JSON. " +
	"Never wrap the JSON in markdown fences and never add commentary around it."

// Guidelines steer the model per test type. The text is part of the
// prompt contract, change it deliberately.
var guidelines = map[model.TestType]string{
	model.TestTypeFunctional: `- Verify the core functionality of the API across different business scenarios
- Cover main success scenarios with various valid input combinations
- Validate response format and content for different data types
- Check business logic implementation with different user roles/permissions
- Ensure data persistence and retrieval work correctly
- Test different workflow states and transitions
- Validate integration with dependent services
- Cover different authentication and authorization scenarios`,

	model.TestTypePerformance: `- Test response times under different load conditions (light, medium, heavy)
- Verify throughput capabilities with concurrent users
- Check resource utilization under stress conditions
- Test performance with large datasets and complex queries
- Measure performance degradation patterns
- Test memory usage and garbage collection impact
- Validate performance with different network conditions
- Include relevant performance metrics and acceptable thresholds`,

	model.TestTypeBoundary: `- Test edge cases for all input parameters (min/max values)
- Include minimum and maximum string lengths
- Test numerical boundaries (zero, negative, overflow)
- Verify handling of empty, null, and undefined values
- Check array/list size limits (empty, single item, maximum)
- Test special characters and encoding edge cases
- Validate date/time boundary conditions
- Test resource limits and capacity constraints`,

	model.TestTypeException: `- Test comprehensive error handling scenarios
- Include invalid input format and type mismatches
- Verify authentication and authorization failures
- Test network timeout and connection errors
- Check resource not found and access denied scenarios
- Validate input validation errors with detailed messages
- Test system unavailability and service degradation
- Include security validation failures and injection attempts
- Verify proper error response format and HTTP status codes`,
}

// Triple-stache keeps raymond from HTML-escaping the JSON blocks.
const baseTemplate = `You are a test automation expert. Generate a {{testType}} test case for this API:

API Definition:
{{{apiDefinition}}}

Similar Test Cases for Reference:
{{{similarCases}}}

Test Guidelines:
{{{guidelines}}}
{{#if scenario}}
Test Scenario (the test case MUST cover exactly this scenario):
{{{scenario}}}
{{/if}}
Required fields:
- name: Clear and descriptive name
- description: Detailed test description
- type: "{{testType}}"
- input_data: Dictionary of input parameters
- expected_output: Dictionary of expected response
- preconditions: List of preconditions
- postconditions: List of postconditions
- tags: List of relevant tags

Additional fields for specific types:
- For performance tests: Include a "metrics" dictionary with acceptable thresholds

The response MUST conform to this JSON schema:
{{{responseSchema}}}

IMPORTANT: Return ONLY a JSON object with these fields. No markdown, no explanations.`

var baseTmpl = raymond.MustParse(baseTemplate)

var (
	schemaOnce sync.Once
	schemaJSON string
)

// responseSchema renders the TestCase JSON schema once and caches it.
func responseSchema() string {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{DoNotReference: true}
		s := r.Reflect(&model.TestCase{})
		out, err := sonic.MarshalIndent(s, "", "  ")
		if err != nil {
			// Reflection over our own struct cannot fail at runtime.
			panic(fmt.Sprintf("failed to marshal response schema: %v", err))
		}
		schemaJSON = string(out)
	})
	return schemaJSON
}

// Assemble renders the user prompt for one generation request. The
// scenario, when present, is embedded verbatim.
func Assemble(def *model.APIDefinition, testType model.TestType, examples []model.TestCase, scenario string) (string, error) {
	g, ok := guidelines[testType]
	if !ok {
		return "", fmt.Errorf("no guidelines for test type %q", testType)
	}
	return baseTmpl.Exec(map[string]interface{}{
		"testType":       string(testType),
		"apiDefinition":  FormatDefinition(def),
		"similarCases":   FormatExamples(examples),
		"guidelines":     g,
		"scenario":       scenario,
		"responseSchema": responseSchema(),
	})
}

// Messages wraps the system and user prompts for the chat API.
func Messages(userPrompt string) []llms.MessageContent {
	return []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: SystemMessage}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: userPrompt}},
		},
	}
}

// FormatDefinition renders an API definition as prompt text. Parameters
// are emitted in sorted name order to keep prompts deterministic.
func FormatDefinition(def *model.APIDefinition) string {
	desc := def.Description
	if desc == "" {
		desc = "N/A"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", def.Name)
	fmt.Fprintf(&b, "Description: %s\n", desc)
	if def.Method != "" {
		fmt.Fprintf(&b, "Method: %s\n", def.Method)
	}
	if def.Path != "" {
		fmt.Fprintf(&b, "Path: %s\n", def.Path)
	}
	b.WriteString("\nInput Parameters:\n")
	b.WriteString(formatParameters(def.InputParams))
	b.WriteString("\nOutput Parameters:\n")
	b.WriteString(formatParameters(def.OutputParams))
	if len(def.ExampleCases) > 0 {
		fmt.Fprintf(&b, "\nExample Cases:\n%s\n", formatJSONMap(def.ExampleCases))
	}
	return b.String()
}

// FormatExamples renders retrieved test cases as few-shot context.
func FormatExamples(examples []model.TestCase) string {
	if len(examples) == 0 {
		return "No similar test cases available."
	}
	parts := make([]string, 0, len(examples))
	for _, tc := range examples {
		var b strings.Builder
		fmt.Fprintf(&b, "Test Case: %s\n", tc.Name)
		fmt.Fprintf(&b, "Type: %s\n", tc.Type)
		fmt.Fprintf(&b, "Description: %s\n", tc.Description)
		fmt.Fprintf(&b, "Input: %s\n", formatJSONMap(tc.InputData))
		fmt.Fprintf(&b, "Expected Output: %s\n", formatJSONMap(tc.ExpectedOutput))
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}

func formatParameters(params map[string]model.Parameter) string {
	if len(params) == 0 {
		return "None\n"
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		p := params[name]
		desc := p.Description
		if desc == "" {
			desc = "N/A"
		}
		fmt.Fprintf(&b, "- %s:\n", name)
		fmt.Fprintf(&b, "  Type: %s\n", p.Type)
		fmt.Fprintf(&b, "  Required: %t\n", p.IsRequired())
		if p.Default != nil {
			if v, err := sonic.MarshalString(p.Default); err == nil {
				fmt.Fprintf(&b, "  Default: %s\n", v)
			}
		}
		fmt.Fprintf(&b, "  Description: %s\n", desc)
		fmt.Fprintf(&b, "  Constraints: %s\n", formatConstraints(p.Constraints))
	}
	return b.String()
}

func formatConstraints(c *model.Constraints) string {
	if c == nil {
		return "None"
	}
	var parts []string
	if c.MinLength != nil {
		parts = append(parts, fmt.Sprintf("min_length=%d", *c.MinLength))
	}
	if c.MaxLength != nil {
		parts = append(parts, fmt.Sprintf("max_length=%d", *c.MaxLength))
	}
	if c.Minimum != nil {
		parts = append(parts, fmt.Sprintf("minimum=%v", *c.Minimum))
	}
	if c.Maximum != nil {
		parts = append(parts, fmt.Sprintf("maximum=%v", *c.Maximum))
	}
	if c.Pattern != "" {
		parts = append(parts, fmt.Sprintf("pattern=%s", c.Pattern))
	}
	if c.Format != "" {
		parts = append(parts, fmt.Sprintf("format=%s", c.Format))
	}
	if len(c.Enum) > 0 {
		parts = append(parts, fmt.Sprintf("enum=[%s]", strings.Join(c.Enum, ", ")))
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ", ")
}

// formatJSONMap renders a map with sorted keys so example text is stable
// across runs.
func formatJSONMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := sonic.MarshalString(m[k])
		if err != nil {
			v = fmt.Sprintf("%v", m[k])
		}
		parts = append(parts, fmt.Sprintf("%q: %s", k, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
