package bedrock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	ConverseFn       func(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
	ConverseStreamFn func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (EventStream, error)

	calls int
}

func (f *fakeRuntime) Converse(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	f.calls++
	return f.ConverseFn(ctx, in)
}

func (f *fakeRuntime) ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (EventStream, error) {
	f.calls++
	return f.ConverseStreamFn(ctx, in)
}

// fakeStream replays a fixed list of events and then closes.
type fakeStream struct {
	events chan types.ConverseStreamOutput
	err    error
	closed bool
}

func newFakeStream(err error, events ...types.ConverseStreamOutput) *fakeStream {
	ch := make(chan types.ConverseStreamOutput, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return &fakeStream{events: ch, err: err}
}

func (s *fakeStream) Events() <-chan types.ConverseStreamOutput { return s.events }
func (s *fakeStream) Close() error                              { s.closed = true; return nil }
func (s *fakeStream) Err() error                                { return s.err }

func textDelta(text string) types.ConverseStreamOutput {
	return &types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
		Delta: &types.ContentBlockDeltaMemberText{Value: text},
	}}
}

func messageStop(reason types.StopReason) types.ConverseStreamOutput {
	return &types.ConverseStreamOutputMemberMessageStop{Value: types.MessageStopEvent{StopReason: reason}}
}

func metadata(in, out int32) types.ConverseStreamOutput {
	return &types.ConverseStreamOutputMemberMetadata{Value: types.ConverseStreamMetadataEvent{
		Usage: &types.TokenUsage{InputTokens: aws.Int32(in), OutputTokens: aws.Int32(out), TotalTokens: aws.Int32(in + out)},
	}}
}

func newTestGenerator(t *testing.T, runtime Runtime) *Generator {
	t.Helper()
	g, err := NewGeneratorWithRuntime(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		runtime,
		generation.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond},
	)
	require.NoError(t, err)
	return g
}

func docxRequest() *generation.Request {
	return &generation.Request{
		Document:     []byte("PK\x03\x04 fake docx"),
		DocumentName: "Payment PRD v2.docx",
		Format:       domain.FormatDOCX,
		SystemPrompt: "You are a security reviewer.",
		Instruction:  "Analyze this requirements document from a security perspective.",
		ModelID:      "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
		MaxTokens:    8000,
		Temperature:  0.6,
	}
}

func TestDocumentName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Payment PRD v2.docx":    "Payment PRD v2",
		"report_final (1).pdf":   "report-final (1)",
		"notes.md":               "notes",
		"  spaced    out  .txt":  "spaced out",
		"???.docx":               "document",
		"/tmp/uploads/a.b.c.pdf": "a-b-c",
	}
	for in, want := range tests {
		assert.Equal(t, want, documentName(in), in)
	}
}

func TestSupports(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t, &fakeRuntime{})
	for _, f := range []domain.DocumentFormat{domain.FormatDOCX, domain.FormatPDF, domain.FormatText, domain.FormatMarkdown} {
		assert.True(t, g.Supports(f), f)
	}
	assert.False(t, g.Supports("xlsx"))
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	runtime := &fakeRuntime{
		ConverseFn: func(_ context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
			assert.Equal(t, "global.anthropic.claude-sonnet-4-5-20250929-v1:0", aws.ToString(in.ModelId))
			require.Len(t, in.Messages, 1)
			assert.Equal(t, types.ConversationRoleUser, in.Messages[0].Role)
			require.Len(t, in.Messages[0].Content, 2)

			doc, ok := in.Messages[0].Content[0].(*types.ContentBlockMemberDocument)
			require.True(t, ok)
			assert.Equal(t, types.DocumentFormatDocx, doc.Value.Format)
			assert.Equal(t, "Payment PRD v2", aws.ToString(doc.Value.Name))

			require.Len(t, in.System, 1)
			assert.Equal(t, int32(8000), aws.ToInt32(in.InferenceConfig.MaxTokens))
			assert.InDelta(t, 0.6, aws.ToFloat32(in.InferenceConfig.Temperature), 0.0001)

			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{Value: types.Message{
					Role:    types.ConversationRoleAssistant,
					Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "Finding: missing rate limiting."}},
				}},
				StopReason: types.StopReasonEndTurn,
				Usage:      &types.TokenUsage{InputTokens: aws.Int32(900), OutputTokens: aws.Int32(7), TotalTokens: aws.Int32(907)},
			}, nil
		},
	}

	resp, err := newTestGenerator(t, runtime).Generate(context.Background(), docxRequest())

	require.NoError(t, err)
	assert.Equal(t, "Finding: missing rate limiting.", resp.Text)
	assert.Equal(t, domain.Usage{InputTokens: 900, OutputTokens: 7, TotalTokens: 907}, resp.Usage)
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		out     *bedrockruntime.ConverseOutput
		err     error
		wantErr error
		calls   int
	}{
		{
			name:    "throttled until retries run out",
			err:     &types.ThrottlingException{Message: aws.String("slow down")},
			wantErr: generation.ErrTransientFailure,
			calls:   3,
		},
		{
			name:    "validation",
			err:     &types.ValidationException{Message: aws.String("bad input")},
			wantErr: generation.ErrGenerationFailed,
			calls:   1,
		},
		{
			name:    "access denied",
			err:     &types.AccessDeniedException{Message: aws.String("no")},
			wantErr: generation.ErrInvalidConfig,
			calls:   1,
		},
		{
			name:    "content filtered",
			out:     &bedrockruntime.ConverseOutput{StopReason: types.StopReasonContentFiltered},
			wantErr: generation.ErrContentBlocked,
			calls:   1,
		},
		{
			name:    "no message",
			out:     &bedrockruntime.ConverseOutput{StopReason: types.StopReasonEndTurn},
			wantErr: generation.ErrInvalidResponse,
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runtime := &fakeRuntime{
				ConverseFn: func(context.Context, *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
					return tt.out, tt.err
				},
			}

			_, err := newTestGenerator(t, runtime).Generate(context.Background(), docxRequest())

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.calls, runtime.calls)
		})
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	stream := newFakeStream(nil,
		&types.ConverseStreamOutputMemberMessageStart{Value: types.MessageStartEvent{Role: types.ConversationRoleAssistant}},
		textDelta("## Summary\n"),
		textDelta(""),
		textDelta("No secrets found."),
		messageStop(types.StopReasonEndTurn),
		metadata(50, 6),
	)
	runtime := &fakeRuntime{
		ConverseStreamFn: func(_ context.Context, in *bedrockruntime.ConverseStreamInput) (EventStream, error) {
			assert.Len(t, in.Messages[0].Content, 2)
			return stream, nil
		},
	}

	var chunks []string
	resp, err := newTestGenerator(t, runtime).Stream(context.Background(), docxRequest(), func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"## Summary\n", "No secrets found."}, chunks)
	assert.Equal(t, "## Summary\nNo secrets found.", resp.Text)
	assert.Equal(t, 56, resp.Usage.TotalTokens)
	assert.True(t, stream.closed)
}

func TestStreamRetriesOpen(t *testing.T) {
	t.Parallel()

	attempts := 0
	runtime := &fakeRuntime{
		ConverseStreamFn: func(context.Context, *bedrockruntime.ConverseStreamInput) (EventStream, error) {
			attempts++
			if attempts == 1 {
				return nil, &types.ServiceUnavailableException{Message: aws.String("busy")}
			}
			return newFakeStream(nil, textDelta("ok")), nil
		},
	}

	resp, err := newTestGenerator(t, runtime).Stream(context.Background(), docxRequest(), func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestStreamErrorAfterChunks(t *testing.T) {
	t.Parallel()

	runtime := &fakeRuntime{
		ConverseStreamFn: func(context.Context, *bedrockruntime.ConverseStreamInput) (EventStream, error) {
			return newFakeStream(&types.ModelStreamErrorException{Message: aws.String("broken")},
				textDelta("a"), textDelta("b"), textDelta("c")), nil
		},
	}

	var chunks []string
	_, err := newTestGenerator(t, runtime).Stream(context.Background(), docxRequest(), func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})

	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Equal(t, []string{"a", "b", "c"}, chunks)
}

func TestStreamGuardrail(t *testing.T) {
	t.Parallel()

	runtime := &fakeRuntime{
		ConverseStreamFn: func(context.Context, *bedrockruntime.ConverseStreamInput) (EventStream, error) {
			return newFakeStream(nil, textDelta("partial"), messageStop(types.StopReasonGuardrailIntervened)), nil
		},
	}

	_, err := newTestGenerator(t, runtime).Stream(context.Background(), docxRequest(), func(string) error { return nil })

	assert.ErrorIs(t, err, generation.ErrContentBlocked)
}

func TestStreamEmitError(t *testing.T) {
	t.Parallel()

	stop := errors.New("store rejected update")
	runtime := &fakeRuntime{
		ConverseStreamFn: func(context.Context, *bedrockruntime.ConverseStreamInput) (EventStream, error) {
			return newFakeStream(nil, textDelta("a"), textDelta("b")), nil
		},
	}

	_, err := newTestGenerator(t, runtime).Stream(context.Background(), docxRequest(), func(string) error { return stop })

	assert.ErrorIs(t, err, stop)
}

func TestStreamCancelled(t *testing.T) {
	t.Parallel()

	blocked := &fakeStream{events: make(chan types.ConverseStreamOutput)}
	runtime := &fakeRuntime{
		ConverseStreamFn: func(context.Context, *bedrockruntime.ConverseStreamInput) (EventStream, error) {
			return blocked, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestGenerator(t, runtime).Stream(ctx, docxRequest(), func(string) error { return nil })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, blocked.closed)
}

func TestGenerateRejectsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	runtime := &fakeRuntime{}
	req := docxRequest()
	req.Format = "xlsx"

	_, err := newTestGenerator(t, runtime).Generate(context.Background(), req)

	assert.ErrorIs(t, err, generation.ErrUnsupportedDocument)
	assert.Zero(t, runtime.calls)
}
