package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/docreview-api/internal/api/shared"
	"github.com/phrazzld/docreview-api/internal/generation"
)

// ModeLister lists the selectable operation modes.
type ModeLister interface {
	Modes() ([]generation.Mode, string)
}

// ModelResponse describes one selectable operation mode.
type ModelResponse struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
	Streaming   bool   `json:"streaming"`
	Default     bool   `json:"default"`
}

// ModelListResponse is the body of GET /api/models.
type ModelListResponse struct {
	Default string          `json:"default"`
	Models  []ModelResponse `json:"models"`
}

// ModelHandler serves the operation mode catalog.
type ModelHandler struct {
	modes  ModeLister
	logger *slog.Logger
}

// NewModelHandler creates a new ModelHandler.
func NewModelHandler(modes ModeLister, logger *slog.Logger) *ModelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelHandler{modes: modes, logger: logger.With(slog.String("component", "model_handler"))}
}

// ListModels handles GET /api/models requests.
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	modes, defaultKey := h.modes.Modes()

	resp := ModelListResponse{Default: defaultKey, Models: make([]ModelResponse, 0, len(modes))}
	for _, m := range modes {
		resp.Models = append(resp.Models, ModelResponse{
			Key:         m.Key,
			Name:        m.Name,
			Description: m.Description,
			Provider:    m.Provider,
			Streaming:   m.Streaming,
			Default:     m.Key == defaultKey,
		})
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
