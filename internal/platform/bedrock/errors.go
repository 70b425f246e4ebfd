package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/phrazzld/docreview-api/internal/generation"
)

// ErrNilRuntime is returned when the generator is built without a runtime client.
var ErrNilRuntime = errors.New("bedrock runtime client cannot be nil")

// classifyError maps Bedrock runtime errors onto the generation sentinel errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		throttling  *types.ThrottlingException
		unavailable *types.ServiceUnavailableException
		timeout     *types.ModelTimeoutException
		internal    *types.InternalServerException
		notReady    *types.ModelNotReadyException
		streamErr   *types.ModelStreamErrorException
		denied      *types.AccessDeniedException
		notFound    *types.ResourceNotFoundException
		validation  *types.ValidationException
	)
	switch {
	case errors.As(err, &throttling), errors.As(err, &unavailable), errors.As(err, &timeout),
		errors.As(err, &internal), errors.As(err, &notReady), errors.As(err, &streamErr):
		return fmt.Errorf("%w: bedrock: %v", generation.ErrTransientFailure, err)
	case errors.As(err, &denied), errors.As(err, &notFound):
		return fmt.Errorf("%w: bedrock: %v", generation.ErrInvalidConfig, err)
	case errors.As(err, &validation):
		return fmt.Errorf("%w: bedrock rejected the request: %v", generation.ErrGenerationFailed, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorFault() == smithy.FaultServer {
			return fmt.Errorf("%w: bedrock %s: %v", generation.ErrTransientFailure, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("%w: bedrock %s: %v", generation.ErrGenerationFailed, apiErr.ErrorCode(), err)
	}

	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
