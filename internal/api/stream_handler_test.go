package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/docreview-api/internal/domain"
	"github.com/phrazzld/docreview-api/internal/store"
	"github.com/phrazzld/docreview-api/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	ID   int
	Type string
	Data json.RawMessage
}

func parseFrames(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if block == "" {
			continue
		}
		var frame sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "id: "):
				id, err := strconv.Atoi(strings.TrimPrefix(line, "id: "))
				require.NoError(t, err)
				frame.ID = id
			case strings.HasPrefix(line, "data: "):
				var msg struct {
					Type string          `json:"type"`
					Data json.RawMessage `json:"data"`
				}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
				frame.Type, frame.Data = msg.Type, msg.Data
			}
		}
		frames = append(frames, frame)
	}
	return frames
}

type streamFixture struct {
	jobs   *store.MemoryJobStore
	server *httptest.Server
	id     uuid.UUID
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	jobs := store.NewMemoryJobStore(testLogger)
	job, err := jobs.Create(context.Background(), domain.SourceDescriptor{Path: "uploads/a_spec.md", Name: "spec.md"}, "m")
	require.NoError(t, err)

	h := NewStreamHandler(stream.NewPublisher(jobs, 20*time.Millisecond, testLogger), testLogger)
	r := chi.NewRouter()
	r.Get("/api/jobs/{id}/stream", h.StreamJob)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	f := &streamFixture{jobs: jobs, server: server, id: job.ID}
	processing := domain.JobStatusProcessing
	f.update(t, domain.JobUpdate{Status: &processing})
	return f
}

func (f *streamFixture) update(t *testing.T, u domain.JobUpdate) {
	t.Helper()
	_, err := f.jobs.Update(context.Background(), f.id, u)
	require.NoError(t, err)
}

func (f *streamFixture) appendOutput(t *testing.T, chunks ...string) {
	t.Helper()
	f.update(t, domain.JobUpdate{AppendOutput: chunks})
}

func (f *streamFixture) complete(t *testing.T) {
	t.Helper()
	completed := domain.JobStatusCompleted
	progress := 100
	f.update(t, domain.JobUpdate{
		Status:      &completed,
		Progress:    &progress,
		FinalResult: &domain.Result{Status: domain.ResultStatusSuccess, ReviewResult: "final"},
	})
}

func (f *streamFixture) get(t *testing.T, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestStreamHandler_LiveProgress(t *testing.T) {
	f := newStreamFixture(t)
	f.appendOutput(t, "before ")

	resp := f.get(t, "/api/jobs/"+f.id.String()+"/stream", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	f.appendOutput(t, "abc")
	f.appendOutput(t, "def")
	f.complete(t)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	frames := parseFrames(t, string(body))
	require.NotEmpty(t, frames)

	var content strings.Builder
	for _, frame := range frames[:len(frames)-1] {
		require.Equal(t, "content", frame.Type)
		var s string
		require.NoError(t, json.Unmarshal(frame.Data, &s))
		content.WriteString(s)
	}
	assert.Equal(t, "abcdef", content.String(), "only output produced after attaching is sent")

	last := frames[len(frames)-1]
	assert.Equal(t, "status", last.Type)
	assert.Equal(t, len("before abcdef"), last.ID)
	var record JobResponse
	require.NoError(t, json.Unmarshal(last.Data, &record))
	assert.Equal(t, "completed", record.Status)
	assert.Equal(t, 100, record.Progress)
	require.NotNil(t, record.FinalResult)
	assert.Equal(t, "final", record.FinalResult.ReviewResult)
}

func TestStreamHandler_FailedRecordKeepsPartialOutput(t *testing.T) {
	f := newStreamFixture(t)
	f.appendOutput(t, "chunk-0", "chunk-1", "chunk-2")
	failed := domain.JobStatusFailed
	message := "boom"
	f.update(t, domain.JobUpdate{
		Status:      &failed,
		Message:     &message,
		FinalResult: &domain.Result{Status: domain.ResultStatusError, Error: message},
	})

	resp := f.get(t, "/api/jobs/"+f.id.String()+"/stream", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	frames := parseFrames(t, string(body))
	require.Len(t, frames, 1, "late subscriber gets only the terminal record")
	assert.Equal(t, "status", frames[0].Type)
	var record JobResponse
	require.NoError(t, json.Unmarshal(frames[0].Data, &record))
	assert.Equal(t, "failed", record.Status)
	assert.Equal(t, "chunk-0chunk-1chunk-2", record.PartialOutput)
	require.NotNil(t, record.FinalResult)
	assert.Equal(t, "boom", record.FinalResult.Error)
}

func TestStreamHandler_Resume(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header http.Header
		want   string
	}{
		{name: "last event id", path: "", header: http.Header{LastEventIDHeader: []string{"3"}}, want: "defghi"},
		{name: "from query", path: "?from=6", want: "ghi"},
		{name: "header wins over query", path: "?from=0", header: http.Header{LastEventIDHeader: []string{"6"}}, want: "ghi"},
		{name: "offset past the end is clamped", path: "?from=100", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStreamFixture(t)
			f.appendOutput(t, "abc", "def", "ghi")
			f.complete(t)

			resp := f.get(t, "/api/jobs/"+f.id.String()+"/stream"+tt.path, tt.header)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			frames := parseFrames(t, string(body))
			var content strings.Builder
			statusCount := 0
			for _, frame := range frames {
				if frame.Type == "status" {
					statusCount++
					continue
				}
				var s string
				require.NoError(t, json.Unmarshal(frame.Data, &s))
				content.WriteString(s)
			}
			assert.Equal(t, tt.want, content.String())
			assert.Equal(t, 1, statusCount)
		})
	}
}

func TestStreamHandler_Errors(t *testing.T) {
	f := newStreamFixture(t)

	tests := []struct {
		name       string
		path       string
		header     http.Header
		wantStatus int
		wantCode   string
	}{
		{name: "unknown job", path: "/api/jobs/" + uuid.NewString() + "/stream", wantStatus: http.StatusNotFound, wantCode: CodeNotFound},
		{name: "malformed id", path: "/api/jobs/nope/stream", wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest},
		{name: "negative offset", path: "/api/jobs/" + f.id.String() + "/stream?from=-1", wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest},
		{
			name:       "non-numeric last event id",
			path:       "/api/jobs/" + f.id.String() + "/stream",
			header:     http.Header{LastEventIDHeader: []string{"abc"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.get(t, tt.path, tt.header)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			var body struct {
				Code string `json:"code"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestStreamHandler_ClientDisconnect(t *testing.T) {
	f := newStreamFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/api/jobs/"+f.id.String()+"/stream", nil)
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	_ = resp.Body.Close()

	// The job keeps running for everyone else.
	f.appendOutput(t, "still going")
	job, err := f.jobs.Get(context.Background(), f.id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.Equal(t, "still going", job.PartialOutput())
}
