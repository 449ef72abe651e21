// Package generator drives the retrieve, prompt, generate, validate
// loop that turns an API definition into test cases.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/mykhaliev/testcase-gen/config"
	"github.com/mykhaliev/testcase-gen/logger"
	"github.com/mykhaliev/testcase-gen/model"
	"github.com/mykhaliev/testcase-gen/prompt"
	"github.com/mykhaliev/testcase-gen/rag"
)

// Retriever is the slice of the vector store the generator needs.
// A nil Retriever disables retrieval and indexing.
type Retriever interface {
	Query(ctx context.Context, apiName string, testType model.TestType, text string, k int) ([]rag.RetrievedExample, error)
	Index(ctx context.Context, apiName string, cases ...model.TestCase) error
}

// Generator produces validated test cases for an API definition.
type Generator struct {
	llm   llms.Model
	store Retriever
	cfg   *config.Config
}

func New(llmModel llms.Model, store Retriever, cfg *config.Config) *Generator {
	return &Generator{llm: llmModel, store: store, cfg: cfg}
}

// Generate produces count validated test cases per requested type. The
// definition is validated before any model or embedding call. Cases
// that validate are returned even when a later type exhausts its retry
// budget; the GenerationError is returned alongside them.
func (g *Generator) Generate(ctx context.Context, def *model.APIDefinition, types []model.TestType, count int) ([]model.TestCase, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", count)
	}

	var cases []model.TestCase
	for _, t := range types {
		logger.Logger.Info("Generating test cases", "api", def.Name, "type", t, "count", count)

		examples := g.retrieve(ctx, def, t)
		for i := 0; i < count; i++ {
			tc, err := g.generateOne(ctx, def, t, examples, "")
			if err != nil {
				return cases, err
			}
			cases = append(cases, *tc)
			// Later cases in the batch see the earlier ones, which
			// nudges the model away from duplicates.
			examples = append(examples, *tc)
		}

		if t == model.TestTypeBoundary {
			extra := g.ensureBoundaryCoverage(def, cases)
			cases = append(cases, extra...)
		}
	}

	g.indexBack(ctx, def.Name, cases)
	return cases, nil
}

// GenerateScenario produces a single test case covering the given
// scenario text verbatim.
func (g *Generator) GenerateScenario(ctx context.Context, def *model.APIDefinition, scenario string, t model.TestType) (*model.TestCase, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(scenario) == "" {
		return nil, fmt.Errorf("scenario must not be empty")
	}

	logger.Logger.Info("Generating scenario test case", "api", def.Name, "type", t)
	examples := g.retrieve(ctx, def, t)
	tc, err := g.generateOne(ctx, def, t, examples, scenario)
	if err != nil {
		return nil, err
	}
	g.indexBack(ctx, def.Name, []model.TestCase{*tc})
	return tc, nil
}

// retrieve queries the store for few-shot context. Retrieval failures
// only degrade the prompt, so they are logged and swallowed.
func (g *Generator) retrieve(ctx context.Context, def *model.APIDefinition, t model.TestType) []model.TestCase {
	if g.store == nil || g.cfg.RetrievalK <= 0 {
		return nil
	}
	queryText := fmt.Sprintf("%s\n%s\n%s", def.Name, def.Description, t)
	hits, err := g.store.Query(ctx, def.Name, t, queryText, g.cfg.RetrievalK)
	if err != nil {
		logger.Logger.Warn("Failed to retrieve similar test cases", "api", def.Name, "type", t, "error", err)
		return nil
	}
	logger.Logger.Debug("Retrieved similar test cases", "api", def.Name, "type", t, "hits", len(hits))
	examples := make([]model.TestCase, 0, len(hits))
	for _, h := range hits {
		examples = append(examples, h.TestCase)
	}
	return examples
}

// generateOne runs the prompt/call/validate loop for a single case,
// feeding validation failures back to the model on each retry.
func (g *Generator) generateOne(ctx context.Context, def *model.APIDefinition, t model.TestType, examples []model.TestCase, scenario string) (*model.TestCase, error) {
	base, err := prompt.Assemble(def, t, examples, scenario)
	if err != nil {
		return nil, err
	}
	temperature := g.cfg.Temperature(t)

	var prevErrors []string
	var lastResponse string
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		userPrompt := base
		if len(prevErrors) > 0 {
			userPrompt = withFeedback(base, prevErrors)
		}

		resp, err := g.llm.GenerateContent(ctx, prompt.Messages(userPrompt),
			llms.WithTemperature(temperature),
			llms.WithJSONMode(),
		)
		if err != nil {
			return nil, &model.ProviderError{Op: "generation", Err: err}
		}
		if len(resp.Choices) == 0 {
			prevErrors = []string{"model returned an empty response"}
			lastResponse = ""
			continue
		}
		lastResponse = resp.Choices[0].Content

		tc, parseErr := extractTestCase(lastResponse)
		if parseErr != nil {
			logger.Logger.Warn("Failed to parse model response",
				"type", t, "attempt", attempt, "error", parseErr)
			prevErrors = []string{fmt.Sprintf("response was not a valid JSON test case: %v", parseErr)}
			continue
		}

		// The model does not get to pick identifiers or reclassify the
		// case, both are pinned here.
		tc.ID = uuid.NewString()
		tc.Type = t
		normalize(tc)

		if errs := model.ValidateTestCase(tc, def); len(errs) > 0 {
			logger.Logger.Warn("Generated test case failed validation",
				"type", t, "attempt", attempt, "problems", len(errs))
			prevErrors = errs
			continue
		}

		logger.Logger.Debug("Generated valid test case", "type", t, "attempt", attempt, "name", tc.Name)
		return tc, nil
	}

	return nil, &model.GenerationError{
		TestType:     t,
		Attempts:     g.cfg.MaxRetries,
		Errs:         prevErrors,
		LastResponse: lastResponse,
	}
}

// normalize replaces nil slices with empty ones so the output JSON
// always carries arrays, never null.
func normalize(tc *model.TestCase) {
	if tc.Preconditions == nil {
		tc.Preconditions = []string{}
	}
	if tc.Postconditions == nil {
		tc.Postconditions = []string{}
	}
	if tc.Tags == nil {
		tc.Tags = []string{}
	}
}

func withFeedback(base string, problems []string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nYour previous attempt was rejected for these reasons:\n")
	for _, p := range problems {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	b.WriteString("Fix every problem above and return the corrected JSON object.")
	return b.String()
}

// indexBack stores freshly generated cases for future retrieval.
// Indexing failures never fail the run.
func (g *Generator) indexBack(ctx context.Context, apiName string, cases []model.TestCase) {
	if g.store == nil || len(cases) == 0 {
		return
	}
	if err := g.store.Index(ctx, apiName, cases...); err != nil {
		logger.Logger.Warn("Failed to index generated test cases", "api", apiName, "error", err)
		return
	}
	logger.Logger.Debug("Indexed generated test cases", "api", apiName, "count", len(cases))
}
