package shared

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

// TraceIDKey is the request context key of the trace ID.
const TraceIDKey contextKey = "traceID"

var traceIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{8,64}$`)

// SetTraceID stores a fresh trace ID (32 hex characters) in the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, newTraceID())
}

// WithTraceID stores id in the context when it is a usable trace ID and
// falls back to a fresh one otherwise. It lets a caller-supplied ID carry
// across requests, e.g. a client reconnecting to a progress stream.
func WithTraceID(ctx context.Context, id string) context.Context {
	if !ValidTraceID(id) {
		return SetTraceID(ctx)
	}
	return context.WithValue(ctx, TraceIDKey, id)
}

// ValidTraceID reports whether id may be echoed back as a trace ID.
func ValidTraceID(id string) bool {
	return traceIDPattern.MatchString(id)
}

// GetTraceID returns the trace ID of the context, or "".
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

func newTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
