package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/phrazzld/docreview-api/internal/config"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/generation"
	"google.golang.org/genai"
)

// ModelsAPI is the subset of genai.Models used by the generator.
type ModelsAPI interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
	GenerateContentStream(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Generator implements the generation.Generator interface using
// Google's Gemini API.
type Generator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// models sends requests to the Gemini API
	models ModelsAPI

	// retry controls retries of one-shot calls
	retry generation.RetryPolicy
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator backed by a real Gemini client.
//
// Parameters:
//   - ctx: Context for client initialization
//   - logger: A structured logger for operation logging
//   - cfg: LLM configuration containing the API key and retry settings
//
// Returns:
//   - A properly initialized Generator or an error if initialization fails
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return NewGeneratorWithModels(logger, client.Models, generation.NewRetryPolicy(cfg.MaxRetries, cfg.RetryDelaySeconds))
}

// NewGeneratorWithModels creates a Generator around an existing models client.
func NewGeneratorWithModels(logger *slog.Logger, models ModelsAPI, retry generation.RetryPolicy) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if models == nil {
		return nil, ErrNilModels
	}

	return &Generator{
		logger: logger.With("component", "gemini_generator"),
		models: models,
		retry:  retry,
	}, nil
}

// Name returns the provider key.
func (g *Generator) Name() string {
	return generation.ProviderGemini
}

// Supports reports whether Gemini accepts the format. Word documents are not
// accepted as inline data.
func (g *Generator) Supports(format domain.DocumentFormat) bool {
	switch format {
	case domain.FormatPDF, domain.FormatText, domain.FormatMarkdown:
		return true
	default:
		return false
	}
}

// buildRequest converts a generation request into Gemini contents and config.
func (g *Generator) buildRequest(req *generation.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if !g.Supports(req.Format) {
		return nil, nil, fmt.Errorf("%w: gemini does not accept %s", generation.ErrUnsupportedDocument, req.Format)
	}

	var docPart *genai.Part
	if req.Format.IsText() {
		text, err := req.DocumentText()
		if err != nil {
			return nil, nil, err
		}
		docPart = genai.NewPartFromText(text)
	} else {
		docPart = &genai.Part{InlineData: &genai.Blob{
			DisplayName: req.DocumentName,
			Data:        req.Document,
			MIMEType:    req.Format.ContentType(),
		}}
	}

	parts := []*genai.Part{docPart}
	if req.Instruction != "" {
		parts = append(parts, genai.NewPartFromText(req.Instruction))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	return contents, cfg, nil
}

// Generate calls the model once, retrying transient failures.
func (g *Generator) Generate(ctx context.Context, req *generation.Request) (*generation.Response, error) {
	contents, cfg, err := g.buildRequest(req)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "calling gemini", "model", req.ModelID, "mode", "one-shot")

	var resp *genai.GenerateContentResponse
	err = g.retry.Do(ctx, g.logger, func(ctx context.Context) error {
		r, callErr := g.models.GenerateContent(ctx, req.ModelID, contents, cfg)
		if callErr != nil {
			return classifyError(callErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	return &generation.Response{
		Text:    text,
		ModelID: req.ModelID,
		Usage:   usageFrom(resp.UsageMetadata),
	}, nil
}

// Stream calls the model in streaming mode, emitting each text chunk. A
// stream is never retried because chunks may already have been delivered.
func (g *Generator) Stream(ctx context.Context, req *generation.Request, emit generation.EmitFunc) (*generation.Response, error) {
	contents, cfg, err := g.buildRequest(req)
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "calling gemini", "model", req.ModelID, "mode", "stream")

	var (
		text   strings.Builder
		usage  domain.Usage
		chunks int
	)
	for resp, streamErr := range g.models.GenerateContentStream(ctx, req.ModelID, contents, cfg) {
		if streamErr != nil {
			return nil, classifyError(streamErr)
		}
		if resp == nil {
			continue
		}
		if err := checkResponse(resp); err != nil {
			return nil, err
		}
		if resp.UsageMetadata != nil {
			usage = usageFrom(resp.UsageMetadata)
		}

		chunk := responseText(resp)
		if chunk == "" {
			continue
		}
		text.WriteString(chunk)
		chunks++
		if err := emit(chunk); err != nil {
			return nil, err
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: stream produced no content", generation.ErrInvalidResponse)
	}

	g.logger.DebugContext(ctx, "gemini stream finished", "chunks", chunks, "length", text.Len())

	return &generation.Response{Text: text.String(), ModelID: req.ModelID, Usage: usage}, nil
}

// checkResponse rejects empty and safety-blocked responses.
func checkResponse(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	return nil
}

// responseText concatenates the text parts of the first candidate, skipping
// thought parts.
func responseText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func usageFrom(m *genai.GenerateContentResponseUsageMetadata) domain.Usage {
	if m == nil {
		return domain.Usage{}
	}
	return domain.Usage{
		InputTokens:  int(m.PromptTokenCount),
		OutputTokens: int(m.CandidatesTokenCount),
		TotalTokens:  int(m.TotalTokenCount),
	}
}
