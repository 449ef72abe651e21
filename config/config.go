// Package config resolves runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mykhaliev/testcase-gen/model"
)

const (
	DefaultModelName       = "gpt-4-turbo-preview"
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultVectorStorePath = "./data/vector_store.json"
	DefaultRetrievalK      = 3
	DefaultSimilarityFloor = 0.25
	DefaultTemperature     = 0.7
	DefaultMaxRetries      = 3
)

// Config holds everything the pipeline needs: provider credentials,
// model selection, retrieval tuning and rate limits.
type Config struct {
	Provider        string
	Token           string
	Secret          string
	BaseURL         string
	APIVersion      string
	AuthType        string
	Location        string
	ProjectID       string
	CredentialsPath string

	ModelName      string
	EmbeddingModel string

	VectorStorePath string
	RetrievalK      int
	SimilarityFloor float64

	Temperatures map[model.TestType]float64
	MaxRetries   int

	RateLimitRPM int
	RateLimitTPM int
	RetryOn429   bool
}

// Load reads the configuration from environment variables, applying
// defaults for anything unset. Callers are expected to have loaded a
// .env file beforehand if they want one.
func Load() (*Config, error) {
	cfg := &Config{
		Provider:        strings.ToUpper(envOr("LLM_PROVIDER", "OPENAI")),
		Token:           os.Getenv("LLM_TOKEN"),
		Secret:          os.Getenv("LLM_SECRET"),
		BaseURL:         os.Getenv("LLM_BASE_URL"),
		APIVersion:      os.Getenv("LLM_API_VERSION"),
		AuthType:        os.Getenv("LLM_AUTH_TYPE"),
		Location:        os.Getenv("LLM_LOCATION"),
		ProjectID:       os.Getenv("LLM_PROJECT_ID"),
		CredentialsPath: os.Getenv("LLM_CREDENTIALS_PATH"),
		ModelName:       envOr("MODEL_NAME", DefaultModelName),
		EmbeddingModel:  envOr("EMBEDDING_MODEL", DefaultEmbeddingModel),
		VectorStorePath: envOr("VECTOR_STORE_PATH", DefaultVectorStorePath),
	}

	// The per-vendor key names are the conventional ones, keep
	// honoring them when LLM_TOKEN is unset.
	if cfg.Token == "" {
		for _, key := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GROQ_API_KEY"} {
			if v := os.Getenv(key); v != "" {
				cfg.Token = v
				break
			}
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_API_BASE")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = os.Getenv("OPENAI_API_VERSION")
	}

	var err error
	if cfg.RetrievalK, err = envInt("RETRIEVAL_K", DefaultRetrievalK); err != nil {
		return nil, err
	}
	if cfg.SimilarityFloor, err = envFloat("SIMILARITY_FLOOR", DefaultSimilarityFloor); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = envInt("GENERATION_MAX_RETRIES", DefaultMaxRetries); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM, err = envInt("RATE_LIMIT_RPM", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitTPM, err = envInt("RATE_LIMIT_TPM", 0); err != nil {
		return nil, err
	}
	cfg.RetryOn429 = strings.EqualFold(os.Getenv("RETRY_ON_429"), "true")

	cfg.Temperatures = make(map[model.TestType]float64, len(model.AllTestTypes))
	for _, t := range model.AllTestTypes {
		key := "TEMPERATURE_" + strings.ToUpper(string(t))
		temp, err := envFloat(key, DefaultTemperature)
		if err != nil {
			return nil, err
		}
		cfg.Temperatures[t] = temp
	}

	if cfg.RetrievalK < 0 {
		return nil, fmt.Errorf("RETRIEVAL_K must not be negative, got %d", cfg.RetrievalK)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("GENERATION_MAX_RETRIES must be at least 1, got %d", cfg.MaxRetries)
	}

	return cfg, nil
}

// Temperature returns the sampling temperature configured for a test type.
func (c *Config) Temperature(t model.TestType) float64 {
	if temp, ok := c.Temperatures[t]; ok {
		return temp
	}
	return DefaultTemperature
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
