package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/api/shared"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/platform/logger"
	"github.com/phrazzld/docreview-api/internal/stream"
)

// LastEventIDHeader carries the offset a reconnecting client resumes from.
const LastEventIDHeader = "Last-Event-ID"

// JobSubscriber opens progress subscriptions.
type JobSubscriber interface {
	Subscribe(ctx context.Context, id uuid.UUID, opts ...stream.Option) (*stream.Subscription, error)
}

// StreamQuery holds the resume position of a stream request.
type StreamQuery struct {
	From int `validate:"min=0"`
}

// sseMessage is the JSON payload of one server-sent event.
type sseMessage struct {
	Type stream.EventType `json:"type"`
	Data any              `json:"data"`
}

// StreamHandler serves job progress as server-sent events.
type StreamHandler struct {
	subscriber JobSubscriber
	logger     *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(subscriber JobSubscriber, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for StreamHandler")
	}
	return &StreamHandler{
		subscriber: subscriber,
		logger:     logger.With(slog.String("component", "stream_handler")),
	}
}

// StreamJob handles GET /api/jobs/{id}/stream requests.
//
// Each content event carries `id: <offset>` so a reconnecting client can send
// it back as Last-Event-ID (or ?from=) and receive only what it missed.
// Unknown jobs are rejected with a JSON 404 before the stream starts.
func (h *StreamHandler) StreamJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := pathJobID(w, r)
	if !ok {
		return
	}

	var opts []stream.Option
	query, resume, err := parseResume(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "Invalid resume offset")
		return
	}
	if resume {
		opts = append(opts, stream.FromOffset(query.From))
	}

	sub, err := h.subscriber.Subscribe(r.Context(), id, opts...)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to open stream")
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug("failed to clear write deadline", slog.String("error", err.Error()))
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Warn("streaming not supported by response writer", slog.String("error", err.Error()))
		return
	}

	log.Debug("stream opened", slog.String("job_id", id.String()), slog.Int("offset", sub.Offset()))

	err = sub.Run(r.Context(), func(event stream.Event) error {
		if err := writeEvent(w, event); err != nil {
			return err
		}
		return rc.Flush()
	})
	switch {
	case err == nil:
		log.Debug("stream finished", slog.String("job_id", id.String()))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Debug("client disconnected", slog.String("job_id", id.String()))
	default:
		log.Warn("stream ended with error",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
	}
}

// writeEvent frames one event in the text/event-stream format.
func writeEvent(w http.ResponseWriter, event stream.Event) error {
	msg := sseMessage{Type: event.Type, Data: event.Data}
	if job, ok := event.Data.(*domain.Job); ok {
		msg.Data = jobToResponse(job)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", event.Offset, payload)
	return err
}

// parseResume reads the resume offset from Last-Event-ID or ?from=. The
// header wins when both are present.
func parseResume(r *http.Request) (StreamQuery, bool, error) {
	raw := r.Header.Get(LastEventIDHeader)
	if raw == "" {
		raw = r.URL.Query().Get("from")
	}
	if raw == "" {
		return StreamQuery{}, false, nil
	}

	from, err := strconv.Atoi(raw)
	if err != nil {
		return StreamQuery{}, false, err
	}
	query := StreamQuery{From: from}
	if err := shared.ValidateRequest(query); err != nil {
		return StreamQuery{}, false, err
	}
	return query, true, nil
}
