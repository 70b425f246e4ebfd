package generation

import (
	"fmt"
	"unicode/utf8"

	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(text string) int

// Count calls f(text).
func (f TokenCounterFunc) Count(text string) int {
	return f(text)
}

// TikTokenCounter counts tokens with a tiktoken encoding.
type TikTokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTikTokenCounter loads the named encoding ("cl100k_base" when empty).
// Loading may download the encoding file on first use.
func NewTikTokenCounter(encoding string) (*TikTokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load token encoding %s: %w", encoding, err)
	}
	return &TikTokenCounter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *TikTokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateTokens approximates a token count at four characters per token.
var EstimateTokens TokenCounterFunc = func(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// FillUsage completes usage figures a provider did not report. Counts that
// are already set are kept.
func FillUsage(usage domain.Usage, counter TokenCounter, prompt, output string) domain.Usage {
	if counter == nil {
		counter = EstimateTokens
	}
	if usage.InputTokens == 0 && prompt != "" {
		usage.InputTokens = counter.Count(prompt)
	}
	if usage.OutputTokens == 0 && output != "" {
		usage.OutputTokens = counter.Count(output)
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return usage
}
