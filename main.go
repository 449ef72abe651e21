package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mykhaliev/testcase-gen/config"
	"github.com/mykhaliev/testcase-gen/generator"
	"github.com/mykhaliev/testcase-gen/llm"
	"github.com/mykhaliev/testcase-gen/logger"
	"github.com/mykhaliev/testcase-gen/model"
	"github.com/mykhaliev/testcase-gen/rag"
	"github.com/mykhaliev/testcase-gen/version"
	"github.com/mykhaliev/testcase-gen/writer"
)

const (
	AppName = "testcase-gen"
)

func main() {
	apiPath := flag.String("f", "", "Path to the API definition file (JSON/YAML)")
	outputPath := flag.String("o", "test_cases.json", "Path to the output JSON file")
	typesFlag := flag.String("t", "functional,performance,boundary,exception", "Comma-separated test types to generate")
	count := flag.Int("n", 5, "Number of test cases per type")
	scenario := flag.String("scenario", "", "Generate a single test case for this scenario text")
	scenarioType := flag.String("scenario-type", "", "Test type for the scenario case (required with -scenario)")
	summaryPath := flag.String("summary", "", "Also write a markdown summary to this path")
	noIndex := flag.Bool("no-index", false, "Disable the retrieval store")
	logPath := flag.String("l", "", "Path to the log file (if not set, logs to stdout)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	showVersion := flag.Bool("v", false, "Show version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Initialize Logger
	logWriter, logFile, err := logger.SetupLogWriter(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetupLogger(logWriter, *verbose)

	// The definition file may be given as -f or as the first positional
	// argument.
	if *apiPath == "" && flag.NArg() > 0 {
		*apiPath = flag.Arg(0)
	}
	if *apiPath == "" {
		fmt.Fprintf(os.Stderr, "Error: an API definition file is required (-f or positional argument)\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// A .env file is optional.
	if err := godotenv.Load(); err == nil {
		logger.Logger.Debug("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	types, err := parseTypes(*typesFlag)
	if err != nil {
		logger.Logger.Error("Invalid test types", "error", err)
		os.Exit(1)
	}

	logger.Logger.Info("Starting application",
		"app", AppName,
		"version", version.Version,
		"api", *apiPath,
		"output", *outputPath,
		"provider", cfg.Provider,
		"model", cfg.ModelName)

	def, err := model.Load(*apiPath)
	if err != nil {
		logger.Logger.Error("Failed to load API definition", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	llmModel, err := llm.NewModel(ctx, cfg)
	if err != nil {
		logger.Logger.Error("Failed to initialize provider", "error", err)
		os.Exit(1)
	}

	var store generator.Retriever
	if !*noIndex {
		embedder, err := llm.NewEmbedder(cfg)
		if err != nil {
			logger.Logger.Error("Failed to initialize embedder", "error", err)
			os.Exit(1)
		}
		s, err := rag.Open(cfg.VectorStorePath, embedder, cfg.SimilarityFloor)
		if err != nil {
			logger.Logger.Error("Failed to open vector store", "error", err)
			os.Exit(1)
		}
		logger.Logger.Info("Vector store opened", "path", cfg.VectorStorePath, "documents", s.Len())
		store = s
	}

	gen := generator.New(llmModel, store, cfg)

	var cases []model.TestCase
	if *scenario != "" {
		st, err := scenarioTestType(*scenarioType)
		if err != nil {
			logger.Logger.Error("Invalid scenario type", "error", err)
			os.Exit(1)
		}
		tc, err := gen.GenerateScenario(ctx, def, *scenario, st)
		if err != nil {
			logger.Logger.Error("Scenario generation failed", "error", err)
			os.Exit(1)
		}
		cases = []model.TestCase{*tc}
	} else {
		cases, err = gen.Generate(ctx, def, types, *count)
		if err != nil {
			// Partial results are still worth writing before exiting.
			logger.Logger.Error("Generation failed", "error", err, "completed_cases", len(cases))
			if len(cases) > 0 {
				if werr := writer.WriteJSON(*outputPath, cases); werr != nil {
					logger.Logger.Error("Failed to write partial results", "error", werr)
				}
			}
			os.Exit(1)
		}
	}

	if err := writer.WriteJSON(*outputPath, cases); err != nil {
		logger.Logger.Error("Failed to write test cases", "error", err)
		os.Exit(1)
	}
	if *summaryPath != "" {
		if err := writer.WriteSummary(*summaryPath, def.Name, cases); err != nil {
			logger.Logger.Error("Failed to write summary", "error", err)
			os.Exit(1)
		}
	}

	logger.Logger.Info("Done", "cases", len(cases), "output", *outputPath)
}

// scenarioTestType resolves the -scenario-type flag, which must be set
// whenever -scenario is used.
func scenarioTestType(raw string) (model.TestType, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("-scenario-type is required when using -scenario")
	}
	return model.ParseTestType(raw)
}

func parseTypes(s string) ([]model.TestType, error) {
	parts := strings.Split(s, ",")
	types := make([]model.TestType, 0, len(parts))
	seen := make(map[model.TestType]bool)
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		t, err := model.ParseTestType(p)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("no test types specified")
	}
	return types, nil
}
