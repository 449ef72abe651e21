// Package llm builds the chat model and embeddings client from the
// runtime configuration.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/googleai/vertex"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mykhaliev/testcase-gen/config"
	"github.com/mykhaliev/testcase-gen/logger"
	"github.com/mykhaliev/testcase-gen/model"
)

const (
	ProviderOpenAI          = "OPENAI"
	ProviderAzure           = "AZURE"
	ProviderGroq            = "GROQ"
	ProviderAnthropic       = "ANTHROPIC"
	ProviderGoogle          = "GOOGLE"
	ProviderVertex          = "VERTEX"
	ProviderAmazonAnthropic = "AMAZON-ANTHROPIC"
)

// NewModel creates the chat model for the configured provider, wrapped
// with rate limiting when limits are set.
func NewModel(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	isEntraID := cfg.Provider == ProviderAzure && strings.EqualFold(cfg.AuthType, "entra_id")
	if cfg.Provider != ProviderVertex && !isEntraID && cfg.Token == "" {
		return nil, fmt.Errorf("provider token is empty (set LLM_TOKEN or OPENAI_API_KEY)")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is empty")
	}

	var llmModel llms.Model
	var err error

	switch cfg.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.Token),
			openai.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
			logger.Logger.Debug("Using custom base URL", "url", cfg.BaseURL)
		}
		llmModel, err = openai.New(opts...)

	case ProviderGroq:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		llmModel, err = openai.New(
			openai.WithToken(cfg.Token),
			openai.WithModel(cfg.ModelName),
			openai.WithBaseURL(baseURL),
		)

	case ProviderAzure:
		if cfg.APIVersion == "" {
			return nil, fmt.Errorf("Azure provider requires LLM_API_VERSION")
		}
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("Azure provider requires LLM_BASE_URL")
		}
		opts := []openai.Option{
			openai.WithModel(cfg.ModelName),
			openai.WithAPIVersion(cfg.APIVersion),
			openai.WithBaseURL(cfg.BaseURL),
		}
		if isEntraID {
			logger.Logger.Debug("Using Entra ID authentication for Azure provider")
			cred, credErr := azidentity.NewDefaultAzureCredential(nil)
			if credErr != nil {
				return nil, fmt.Errorf("failed to create Azure credential: %w", credErr)
			}
			token, tokErr := cred.GetToken(ctx, policy.TokenRequestOptions{
				Scopes: []string{"https://cognitiveservices.azure.com/.default"},
			})
			if tokErr != nil {
				return nil, fmt.Errorf("failed to get Azure token: %w", tokErr)
			}
			opts = append(opts, openai.WithAPIType(openai.APITypeAzureAD))
			opts = append(opts, openai.WithToken(token.Token))
		} else {
			opts = append(opts, openai.WithAPIType(openai.APITypeAzure))
			opts = append(opts, openai.WithToken(cfg.Token))
		}
		llmModel, err = openai.New(opts...)

	case ProviderAnthropic:
		llmModel, err = anthropic.New(
			anthropic.WithModel(cfg.ModelName),
			anthropic.WithToken(cfg.Token),
		)

	case ProviderGoogle:
		llmModel, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.Token),
			googleai.WithDefaultModel(cfg.ModelName),
		)

	case ProviderVertex:
		llmModel, err = vertex.New(ctx,
			googleai.WithDefaultModel(cfg.ModelName),
			googleai.WithCloudProject(cfg.ProjectID),
			googleai.WithCloudLocation(cfg.Location),
			googleai.WithCredentialsFile(cfg.CredentialsPath),
		)

	case ProviderAmazonAnthropic:
		awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Location),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.Token,
				cfg.Secret,
				"",
			)),
		)
		if cfgErr != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", cfgErr)
		}
		brc := bedrockruntime.NewFromConfig(awsCfg)
		llmModel, err = bedrock.New(
			bedrock.WithClient(brc),
			bedrock.WithModel(cfg.ModelName),
		)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}

	if err != nil {
		return nil, &model.ProviderError{Op: "initialization", Err: err}
	}
	if llmModel == nil {
		return nil, fmt.Errorf("provider created but model is nil")
	}

	if cfg.RateLimitRPM > 0 || cfg.RateLimitTPM > 0 || cfg.RetryOn429 {
		logger.Logger.Info("Wrapping provider with rate limiter",
			"rpm", cfg.RateLimitRPM,
			"tpm", cfg.RateLimitTPM,
			"retry_on_429", cfg.RetryOn429)
		llmModel = NewRateLimitedLLM(llmModel, cfg.RateLimitRPM, cfg.RateLimitTPM, cfg.RetryOn429, cfg.ModelName)
	}

	return llmModel, nil
}

// NewEmbedder creates the embeddings client used by the retrieval store.
// Embeddings go through the OpenAI-compatible API regardless of the chat
// provider, matching how the store was originally populated.
func NewEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	token := cfg.Token
	if token == "" {
		return nil, fmt.Errorf("embeddings require a token (set LLM_TOKEN or OPENAI_API_KEY)")
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.Provider == ProviderAzure {
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(cfg.APIVersion),
			openai.WithBaseURL(cfg.BaseURL),
		)
	} else if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, &model.ProviderError{Op: "embedder initialization", Err: err}
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, &model.ProviderError{Op: "embedder initialization", Err: err}
	}
	return embedder, nil
}
