package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/docreview-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelHandler_ListModels(t *testing.T) {
	svc := &MockJobService{
		ModesFn: func() ([]generation.Mode, string) {
			return []generation.Mode{
				{Key: "claude-4-5-sonnet", Name: "Claude 4.5 Sonnet", Provider: "bedrock", Streaming: true},
				{Key: "gemini-flash", Name: "Gemini Flash", Provider: "gemini"},
			}, "claude-4-5-sonnet"
		},
	}
	h := NewModelHandler(svc, testLogger)

	rr := httptest.NewRecorder()
	h.ListModels(rr, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp ModelListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "claude-4-5-sonnet", resp.Default)
	require.Len(t, resp.Models, 2)
	assert.True(t, resp.Models[0].Default)
	assert.True(t, resp.Models[0].Streaming)
	assert.False(t, resp.Models[1].Default)
	assert.Equal(t, "gemini", resp.Models[1].Provider)
}
