package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainCase = `{
  "name": "fenced case",
  "description": "desc",
  "type": "functional",
  "input_data": {"username": "abc"},
  "expected_output": {"status": "success"}
}`

func TestExtractTestCase_Plain(t *testing.T) {
	tc, err := extractTestCase(plainCase)
	require.NoError(t, err)
	assert.Equal(t, "fenced case", tc.Name)
	assert.Equal(t, "abc", tc.InputData["username"])
}

func TestExtractTestCase_MarkdownFence(t *testing.T) {
	tc, err := extractTestCase("```json\n" + plainCase + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "fenced case", tc.Name)
}

func TestExtractTestCase_BareFence(t *testing.T) {
	tc, err := extractTestCase("```\n" + plainCase + "\n```\n")
	require.NoError(t, err)
	assert.Equal(t, "fenced case", tc.Name)
}

func TestExtractTestCase_ArrayTakesFirst(t *testing.T) {
	tc, err := extractTestCase("[" + plainCase + "]")
	require.NoError(t, err)
	assert.Equal(t, "fenced case", tc.Name)
}

func TestExtractTestCase_Envelope(t *testing.T) {
	tc, err := extractTestCase(`{"test_case": ` + plainCase + `}`)
	require.NoError(t, err)
	assert.Equal(t, "fenced case", tc.Name)
}

func TestExtractTestCase_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not json",
		"[]",
		`"just a string"`,
		"```\n\n```",
	}
	for _, raw := range cases {
		_, err := extractTestCase(raw)
		assert.Error(t, err, "input: %q", raw)
	}
}
