// Package openai implements generation.Generator on OpenAI-compatible chat
// completion endpoints. Only text documents are accepted; they are inlined
// into the user message.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/phrazzld/docreview-api/internal/config"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/generation"
)

var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("openai API key not set")

	// ErrNilCompletions is returned when the generator is built without a client.
	ErrNilCompletions = errors.New("openai completions client cannot be nil")
)

// ChunkStream is the reading side of a streaming chat completion.
type ChunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// CompletionsAPI is the subset of the chat completions service used by the generator.
type CompletionsAPI interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams) ChunkStream
}

type sdkCompletions struct {
	service *openai.ChatCompletionService
}

func (s sdkCompletions) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return s.service.New(ctx, params)
}

func (s sdkCompletions) NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams) ChunkStream {
	return s.service.NewStreaming(ctx, params)
}

// Generator reviews text documents with OpenAI chat models.
type Generator struct {
	logger      *slog.Logger
	completions CompletionsAPI
	retry       generation.RetryPolicy
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator with a real OpenAI client. Retries are
// handled by the generator, so the client's own retries are disabled.
func NewGenerator(logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithMaxRetries(0),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	client := openai.NewClient(opts...)

	return NewGeneratorWithCompletions(logger,
		sdkCompletions{service: &client.Chat.Completions},
		generation.NewRetryPolicy(cfg.MaxRetries, cfg.RetryDelaySeconds))
}

// NewGeneratorWithCompletions creates a Generator around an existing client.
func NewGeneratorWithCompletions(logger *slog.Logger, completions CompletionsAPI, retry generation.RetryPolicy) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if completions == nil {
		return nil, ErrNilCompletions
	}
	return &Generator{
		logger:      logger.With("component", "openai_generator"),
		completions: completions,
		retry:       retry,
	}, nil
}

// Name returns the provider key.
func (g *Generator) Name() string {
	return generation.ProviderOpenAI
}

// Supports reports whether the format can be inlined as text.
func (g *Generator) Supports(format domain.DocumentFormat) bool {
	return format.IsText()
}

func (g *Generator) buildParams(req *generation.Request) (openai.ChatCompletionNewParams, error) {
	if err := req.Validate(); err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	text, err := req.DocumentText()
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	var user strings.Builder
	if req.Instruction != "" {
		user.WriteString(req.Instruction)
		user.WriteString("\n\n")
	}
	fmt.Fprintf(&user, "<document name=%q>\n%s\n</document>", req.DocumentName, text)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(user.String()))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.ModelID),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params, nil
}

// Generate sends one chat completion request, retrying transient failures.
func (g *Generator) Generate(ctx context.Context, req *generation.Request) (*generation.Response, error) {
	params, err := g.buildParams(req)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "calling openai", "model", req.ModelID, "mode", "one-shot")

	var completion *openai.ChatCompletion
	err = g.retry.Do(ctx, g.logger, func(ctx context.Context) error {
		c, callErr := g.completions.New(ctx, params)
		if callErr != nil {
			return classifyError(callErr)
		}
		completion = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completion == nil || len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no completion choices returned", generation.ErrInvalidResponse)
	}
	choice := completion.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("%w: finish reason content_filter", generation.ErrContentBlocked)
	}
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	return &generation.Response{
		Text:    choice.Message.Content,
		ModelID: req.ModelID,
		Usage:   usageFrom(completion.Usage),
	}, nil
}

// Stream sends a streaming chat completion request and emits every content
// delta. Usage arrives in the final chunk.
func (g *Generator) Stream(ctx context.Context, req *generation.Request, emit generation.EmitFunc) (*generation.Response, error) {
	params, err := g.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	g.logger.InfoContext(ctx, "calling openai", "model", req.ModelID, "mode", "stream")

	stream := g.completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		text  strings.Builder
		usage domain.Usage
	)
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = usageFrom(chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason == "content_filter" {
			return nil, fmt.Errorf("%w: finish reason content_filter", generation.ErrContentBlocked)
		}
		if choice.Delta.Content == "" {
			continue
		}
		text.WriteString(choice.Delta.Content)
		if err := emit(choice.Delta.Content); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, classifyError(err)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: stream produced no content", generation.ErrInvalidResponse)
	}

	return &generation.Response{Text: text.String(), ModelID: req.ModelID, Usage: usage}, nil
}

func usageFrom(u openai.CompletionUsage) domain.Usage {
	return domain.Usage{
		InputTokens:  int(u.PromptTokens),
		OutputTokens: int(u.CompletionTokens),
		TotalTokens:  int(u.TotalTokens),
	}
}

// classifyError maps OpenAI client errors onto the generation sentinel errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: openai status %d", generation.ErrTransientFailure, apiErr.StatusCode)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: openai status %d", generation.ErrInvalidConfig, apiErr.StatusCode)
		default:
			return fmt.Errorf("%w: openai status %d: %s", generation.ErrGenerationFailed, apiErr.StatusCode, apiErr.Message)
		}
	}

	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
