// Package bedrock implements generation.Generator on the Amazon Bedrock
// Converse API. Documents are attached as document content blocks, so Word,
// PDF, text and Markdown files are all accepted.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/generation"
)

// EventStream is the reading side of a ConverseStream response.
type EventStream interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// Runtime is the subset of the Bedrock runtime used by the generator.
type Runtime interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (EventStream, error)
}

// sdkRuntime adapts *bedrockruntime.Client to Runtime.
type sdkRuntime struct {
	client *bedrockruntime.Client
}

func (r sdkRuntime) Converse(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	return r.client.Converse(ctx, in)
}

func (r sdkRuntime) ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (EventStream, error) {
	out, err := r.client.ConverseStream(ctx, in)
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

// Generator reviews documents with models hosted on Amazon Bedrock.
type Generator struct {
	logger  *slog.Logger
	runtime Runtime
	retry   generation.RetryPolicy
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator from an AWS configuration.
func NewGenerator(logger *slog.Logger, cfg aws.Config, retry generation.RetryPolicy) (*Generator, error) {
	return NewGeneratorWithRuntime(logger, sdkRuntime{client: bedrockruntime.NewFromConfig(cfg)}, retry)
}

// NewGeneratorWithRuntime creates a Generator around an existing runtime.
func NewGeneratorWithRuntime(logger *slog.Logger, runtime Runtime, retry generation.RetryPolicy) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if runtime == nil {
		return nil, ErrNilRuntime
	}
	return &Generator{
		logger:  logger.With("component", "bedrock_generator"),
		runtime: runtime,
		retry:   retry,
	}, nil
}

// Name returns the provider key.
func (g *Generator) Name() string {
	return generation.ProviderBedrock
}

var documentFormats = map[domain.DocumentFormat]types.DocumentFormat{
	domain.FormatDOCX:     types.DocumentFormatDocx,
	domain.FormatPDF:      types.DocumentFormatPdf,
	domain.FormatText:     types.DocumentFormatTxt,
	domain.FormatMarkdown: types.DocumentFormatMd,
}

// Supports reports whether Bedrock accepts the format as a document block.
func (g *Generator) Supports(format domain.DocumentFormat) bool {
	_, ok := documentFormats[format]
	return ok
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9\-()\[\] ]+`)
var repeatedSpaces = regexp.MustCompile(`\s{2,}`)

// documentName converts a file name into a name Bedrock accepts: letters,
// digits, single spaces, hyphens, parentheses and square brackets.
func documentName(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	name := invalidNameChars.ReplaceAllString(base, "-")
	name = strings.TrimSpace(repeatedSpaces.ReplaceAllString(name, " "))
	if name == "" || strings.Trim(name, "-") == "" {
		return "document"
	}
	return name
}

// buildParts converts a request into the Converse message, system prompt and
// inference configuration.
func (g *Generator) buildParts(req *generation.Request) ([]types.Message, []types.SystemContentBlock, *types.InferenceConfiguration, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, nil, err
	}
	format, ok := documentFormats[req.Format]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: bedrock does not accept %q", generation.ErrUnsupportedDocument, req.Format)
	}

	content := []types.ContentBlock{
		&types.ContentBlockMemberDocument{Value: types.DocumentBlock{
			Format: format,
			Name:   aws.String(documentName(req.DocumentName)),
			Source: &types.DocumentSourceMemberBytes{Value: req.Document},
		}},
	}
	if req.Instruction != "" {
		content = append(content, &types.ContentBlockMemberText{Value: req.Instruction})
	}
	messages := []types.Message{{Role: types.ConversationRoleUser, Content: content}}

	var system []types.SystemContentBlock
	if req.SystemPrompt != "" {
		system = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}

	inference := &types.InferenceConfiguration{Temperature: aws.Float32(float32(req.Temperature))}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}

	return messages, system, inference, nil
}

// Generate calls Converse once, retrying transient failures.
func (g *Generator) Generate(ctx context.Context, req *generation.Request) (*generation.Response, error) {
	messages, system, inference, err := g.buildParts(req)
	if err != nil {
		return nil, err
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.ModelID),
		Messages:        messages,
		System:          system,
		InferenceConfig: inference,
	}

	g.logger.InfoContext(ctx, "calling bedrock converse", "model", req.ModelID, "size", len(req.Document))

	var out *bedrockruntime.ConverseOutput
	err = g.retry.Do(ctx, g.logger, func(ctx context.Context) error {
		o, callErr := g.runtime.Converse(ctx, in)
		if callErr != nil {
			return classifyError(callErr)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := checkStopReason(out.StopReason); err != nil {
		return nil, err
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("%w: converse returned no message", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	return &generation.Response{
		Text:    text.String(),
		ModelID: req.ModelID,
		Usage:   usageFrom(out.Usage),
	}, nil
}

// Stream calls ConverseStream and emits every text delta. Opening the stream
// is retried; once events flow, failures are returned as they are.
func (g *Generator) Stream(ctx context.Context, req *generation.Request, emit generation.EmitFunc) (*generation.Response, error) {
	messages, system, inference, err := g.buildParts(req)
	if err != nil {
		return nil, err
	}

	in := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(req.ModelID),
		Messages:        messages,
		System:          system,
		InferenceConfig: inference,
	}

	g.logger.InfoContext(ctx, "calling bedrock converse stream", "model", req.ModelID, "size", len(req.Document))

	var stream EventStream
	err = g.retry.Do(ctx, g.logger, func(ctx context.Context) error {
		s, callErr := g.runtime.ConverseStream(ctx, in)
		if callErr != nil {
			return classifyError(callErr)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var (
		text  strings.Builder
		usage domain.Usage
	)
	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-events:
			if !ok {
				if err := stream.Err(); err != nil {
					return nil, classifyError(err)
				}
				if text.Len() == 0 {
					return nil, fmt.Errorf("%w: stream produced no content", generation.ErrInvalidResponse)
				}
				return &generation.Response{Text: text.String(), ModelID: req.ModelID, Usage: usage}, nil
			}

			switch e := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				delta, isText := e.Value.Delta.(*types.ContentBlockDeltaMemberText)
				if !isText || delta.Value == "" {
					continue
				}
				text.WriteString(delta.Value)
				if err := emit(delta.Value); err != nil {
					return nil, err
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				if err := checkStopReason(e.Value.StopReason); err != nil {
					return nil, err
				}
			case *types.ConverseStreamOutputMemberMetadata:
				usage = usageFrom(e.Value.Usage)
			}
		}
	}
}

func checkStopReason(reason types.StopReason) error {
	switch reason {
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return fmt.Errorf("%w: stop reason %s", generation.ErrContentBlocked, reason)
	}
	return nil
}

func usageFrom(u *types.TokenUsage) domain.Usage {
	if u == nil {
		return domain.Usage{}
	}
	return domain.Usage{
		InputTokens:  int(aws.ToInt32(u.InputTokens)),
		OutputTokens: int(aws.ToInt32(u.OutputTokens)),
		TotalTokens:  int(aws.ToInt32(u.TotalTokens)),
	}
}
