// Package writer persists generated test cases.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/mykhaliev/testcase-gen/logger"
	"github.com/mykhaliev/testcase-gen/model"
)

const FilePermission = 0644

// WriteJSON writes the cases as a JSON array to path, creating parent
// directories as needed. An empty slice still produces a valid file
// containing [].
func WriteJSON(path string, cases []model.TestCase) error {
	if cases == nil {
		cases = []model.TestCase{}
	}
	data, err := sonic.MarshalIndent(cases, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal test cases: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, FilePermission); err != nil {
		return fmt.Errorf("failed to write test cases: %w", err)
	}

	logger.Logger.Info("Test cases written", "path", path, "count", len(cases))
	return nil
}

// WriteSummary writes a markdown summary of the cases grouped by type.
func WriteSummary(path string, apiName string, cases []model.TestCase) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Test Cases: %s\n\n", apiName)
	fmt.Fprintf(&b, "Total: %d\n", len(cases))

	for _, t := range model.AllTestTypes {
		group := filterByType(cases, t)
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", t, len(group))
		for _, tc := range group {
			fmt.Fprintf(&b, "- **%s**: %s\n", tc.Name, tc.Description)
			if tc.Metrics != nil && tc.Metrics.MaxLatencyMs > 0 {
				fmt.Fprintf(&b, "  - max latency: %.0f ms\n", tc.Metrics.MaxLatencyMs)
			}
			if len(tc.Tags) > 0 {
				fmt.Fprintf(&b, "  - tags: %s\n", strings.Join(tc.Tags, ", "))
			}
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), FilePermission); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	logger.Logger.Info("Summary written", "path", path)
	return nil
}

func filterByType(cases []model.TestCase, t model.TestType) []model.TestCase {
	var out []model.TestCase
	for _, tc := range cases {
		if tc.Type == t {
			out = append(out, tc)
		}
	}
	return out
}
