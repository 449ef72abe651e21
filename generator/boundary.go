package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/yalp/jsonpath"

	"github.com/mykhaliev/testcase-gen/logger"
	"github.com/mykhaliev/testcase-gen/model"
)

// ensureBoundaryCoverage checks that the boundary cases generated so
// far actually sit on the declared length and numeric bounds, and
// synthesizes a case for every bound the model missed.
func (g *Generator) ensureBoundaryCoverage(def *model.APIDefinition, cases []model.TestCase) []model.TestCase {
	faker := gofakeit.New(0)

	var extra []model.TestCase
	for _, name := range sortedParamNames(def.InputParams) {
		p := def.InputParams[name]
		c := p.Constraints
		if c == nil {
			continue
		}

		if c.MinLength != nil && !hasStringOfLength(cases, name, *c.MinLength) {
			extra = append(extra, g.synthesizeBoundaryCase(def, name, faker.LetterN(uint(*c.MinLength)),
				fmt.Sprintf("%s at minimum length %d", name, *c.MinLength), faker))
		}
		if c.MaxLength != nil && !hasStringOfLength(cases, name, *c.MaxLength) {
			extra = append(extra, g.synthesizeBoundaryCase(def, name, faker.LetterN(uint(*c.MaxLength)),
				fmt.Sprintf("%s at maximum length %d", name, *c.MaxLength), faker))
		}
		if c.Minimum != nil && !hasNumericValue(cases, name, *c.Minimum) {
			extra = append(extra, g.synthesizeBoundaryCase(def, name, *c.Minimum,
				fmt.Sprintf("%s at minimum value %v", name, *c.Minimum), faker))
		}
		if c.Maximum != nil && !hasNumericValue(cases, name, *c.Maximum) {
			extra = append(extra, g.synthesizeBoundaryCase(def, name, *c.Maximum,
				fmt.Sprintf("%s at maximum value %v", name, *c.Maximum), faker))
		}
	}

	if len(extra) > 0 {
		logger.Logger.Info("Synthesized boundary cases for uncovered bounds", "api", def.Name, "count", len(extra))
	}
	return extra
}

func (g *Generator) synthesizeBoundaryCase(def *model.APIDefinition, target string, value any, label string, faker *gofakeit.Faker) model.TestCase {
	input := make(map[string]any, len(def.InputParams))
	for _, name := range sortedParamNames(def.InputParams) {
		p := def.InputParams[name]
		if !p.IsRequired() && name != target {
			continue
		}
		input[name] = representativeValue(p, faker)
	}
	input[target] = value

	return model.TestCase{
		ID:             uuid.NewString(),
		Name:           fmt.Sprintf("Boundary: %s", label),
		Description:    fmt.Sprintf("Exercises %s on %s with every other required parameter set to a valid value.", label, def.Name),
		Type:           model.TestTypeBoundary,
		InputData:      input,
		ExpectedOutput: map[string]any{"status": "success"},
		Preconditions:  []string{"API is reachable"},
		Postconditions: []string{"No residual state beyond the created resource"},
		Tags:           []string{"boundary", target},
	}
}

// representativeValue returns a valid in-range value for a parameter.
func representativeValue(p model.Parameter, faker *gofakeit.Faker) any {
	c := p.Constraints
	switch strings.ToLower(p.Type) {
	case "string":
		if c != nil && len(c.Enum) > 0 {
			return c.Enum[0]
		}
		n := 8
		if c != nil && c.MinLength != nil && *c.MinLength > n {
			n = *c.MinLength
		}
		if c != nil && c.MaxLength != nil && *c.MaxLength < n {
			n = *c.MaxLength
		}
		return faker.LetterN(uint(n))
	case "integer", "int", "number", "float":
		v := 1.0
		if c != nil && c.Minimum != nil && *c.Minimum > v {
			v = *c.Minimum
		}
		if c != nil && c.Maximum != nil && *c.Maximum < v {
			v = *c.Maximum
		}
		if strings.ToLower(p.Type) == "integer" || strings.ToLower(p.Type) == "int" {
			return int(v)
		}
		return v
	case "boolean", "bool":
		return true
	case "array", "list":
		return []any{}
	case "object", "dict", "map":
		return map[string]any{}
	default:
		return faker.LetterN(8)
	}
}

// hasStringOfLength reports whether any boundary case already carries a
// string of exactly length n for the parameter.
func hasStringOfLength(cases []model.TestCase, param string, n int) bool {
	for _, tc := range cases {
		if tc.Type != model.TestTypeBoundary {
			continue
		}
		v, err := jsonpath.Read(map[string]interface{}(tc.InputData), "$."+param)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok && len(s) == n {
			return true
		}
	}
	return false
}

func hasNumericValue(cases []model.TestCase, param string, want float64) bool {
	for _, tc := range cases {
		if tc.Type != model.TestTypeBoundary {
			continue
		}
		v, err := jsonpath.Read(map[string]interface{}(tc.InputData), "$."+param)
		if err != nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n == want {
				return true
			}
		case int:
			if float64(n) == want {
				return true
			}
		}
	}
	return false
}

func sortedParamNames(params map[string]model.Parameter) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
