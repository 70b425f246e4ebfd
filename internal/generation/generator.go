package generation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/phrazzld/docreview-api/internal/domain"
)

// Request describes one review call.
type Request struct {
	// Document is the raw source artifact.
	Document []byte

	// DocumentName is the file name shown to the model.
	DocumentName string

	// Format is the detected document format.
	Format domain.DocumentFormat

	// SystemPrompt instructs the model how to review.
	SystemPrompt string

	// Instruction is the user turn sent along with the document.
	Instruction string

	// ModelID is the provider-specific model identifier.
	ModelID string

	MaxTokens   int
	Temperature float64
}

// Validate checks that the request can be sent to a provider.
func (r *Request) Validate() error {
	if len(r.Document) == 0 {
		return ErrEmptyDocument
	}
	if r.ModelID == "" {
		return fmt.Errorf("%w: model ID is required", ErrInvalidConfig)
	}
	return nil
}

// DocumentText returns the document as text for providers that only accept
// text input.
func (r *Request) DocumentText() (string, error) {
	if !r.Format.IsText() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, r.Format)
	}
	if !utf8.Valid(r.Document) {
		return "", fmt.Errorf("%w: document is not valid UTF-8", ErrUnsupportedDocument)
	}
	return string(r.Document), nil
}

// Response is the assembled outcome of a call.
type Response struct {
	Text    string
	ModelID string
	Usage   domain.Usage
}

// EmitFunc receives each chunk of a streaming call in order. Returning an
// error aborts the stream.
type EmitFunc func(chunk string) error

// Generator runs a review against an external model. It serves as the
// boundary between the orchestrator and AI/LLM services.
type Generator interface {
	// Name returns the provider key used by the mode catalog.
	Name() string

	// Supports reports whether the provider accepts the document format.
	Supports(format domain.DocumentFormat) bool

	// Generate invokes the model once and returns the full response.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Stream invokes the model in streaming mode, calling emit for every
	// text chunk, and returns the assembled response when the stream ends.
	Stream(ctx context.Context, req *Request, emit EmitFunc) (*Response, error)
}

// Registry maps provider names to generators.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
}

// NewRegistry creates a registry holding the given generators.
func NewRegistry(generators ...Generator) *Registry {
	r := &Registry{generators: make(map[string]Generator)}
	for _, g := range generators {
		r.Register(g)
	}
	return r
}

// Register adds or replaces a generator under its name.
func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[g.Name()] = g
}

// Get returns the generator registered under name.
func (r *Registry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return g, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
