package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/phrazzld/docreview-api/internal/config"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/phrazzld/docreview-api/internal/platform/bedrock"
	"github.com/phrazzld/docreview-api/internal/platform/gemini"
	"github.com/phrazzld/docreview-api/internal/platform/openai"
)

// loadAWSConfig resolves AWS credentials from the default chain. Credentials
// are only fetched when a request is signed, so this succeeds without them.
func loadAWSConfig(ctx context.Context, llm config.LLMConfig) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(llm.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return cfg, nil
}

// newGeneratorRegistry registers every provider that can be built from the
// configuration. Bedrock is always available; Gemini and OpenAI need an API
// key. A provider that fails to build is logged and left out, so the modes
// that use it are rejected at submission.
func newGeneratorRegistry(ctx context.Context, llm config.LLMConfig, awsCfg aws.Config, log *slog.Logger) *generation.Registry {
	registry := generation.NewRegistry()
	retry := generation.NewRetryPolicy(llm.MaxRetries, llm.RetryDelaySeconds)

	if g, err := bedrock.NewGenerator(log, awsCfg, retry); err != nil {
		log.Error("failed to create bedrock generator", "error", err)
	} else {
		registry.Register(g)
	}

	if llm.GeminiAPIKey != "" {
		if g, err := gemini.NewGenerator(ctx, log, llm); err != nil {
			log.Error("failed to create gemini generator", "error", err)
		} else {
			registry.Register(g)
		}
	}

	switch g, err := openai.NewGenerator(log, llm); {
	case errors.Is(err, openai.ErrAPIKeyNotSet):
		log.Debug("openai api key not set, openai modes disabled")
	case err != nil:
		log.Error("failed to create openai generator", "error", err)
	default:
		registry.Register(g)
	}

	return registry
}
