package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/docreview-api/internal/generation"
	"google.golang.org/genai"
)

// ErrNilModels is returned when the generator is built without a models client.
var ErrNilModels = errors.New("gemini models client cannot be nil")

// classifyError maps an error from the genai client onto the generation
// sentinel errors. Rate limits, server errors and transport failures are
// transient; other API errors are permanent.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: gemini status %d: %v", generation.ErrTransientFailure, apiErr.Code, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: gemini status %d: %v", generation.ErrInvalidConfig, apiErr.Code, err)
		default:
			return fmt.Errorf("%w: gemini status %d: %v", generation.ErrGenerationFailed, apiErr.Code, err)
		}
	}

	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
