package generator

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"github.com/mykhaliev/testcase-gen/model"
)

// extractTestCase pulls a test case out of raw model output. Models
// wrap JSON in markdown fences, envelope objects or single-element
// arrays often enough that all three are handled here.
func extractTestCase(raw string) (*model.TestCase, error) {
	text := stripFences(raw)
	if text == "" {
		return nil, fmt.Errorf("response is empty")
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	result := gjson.Parse(text)

	// Some models return an array of cases, take the first.
	if result.IsArray() {
		arr := result.Array()
		if len(arr) == 0 {
			return nil, fmt.Errorf("response is an empty JSON array")
		}
		result = arr[0]
	}

	// Unwrap envelope objects like {"test_case": {...}}.
	for _, key := range []string{"test_case", "testCase"} {
		if inner := result.Get(key); inner.Exists() && inner.IsObject() {
			result = inner
			break
		}
	}

	if !result.IsObject() {
		return nil, fmt.Errorf("response JSON is not an object")
	}

	var tc model.TestCase
	if err := sonic.Unmarshal([]byte(result.Raw), &tc); err != nil {
		return nil, fmt.Errorf("response JSON does not match the test case schema: %w", err)
	}
	return &tc, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	// Drop the opening fence line (``` or ```json) and a closing fence.
	lines = lines[1:]
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			lines = lines[:i]
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
