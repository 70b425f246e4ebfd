package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/docreview-api/internal/api"
	apiMiddleware "github.com/phrazzld/docreview-api/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	jobHandler := api.NewJobHandler(app.jobService, app.config.Jobs.MaxUploadBytes, app.logger)
	streamHandler := api.NewStreamHandler(app.publisher, app.logger)
	modelHandler := api.NewModelHandler(app.jobService, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", jobHandler.SubmitJob)
		r.Get("/jobs", jobHandler.ListJobs)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.Delete("/jobs/{id}", jobHandler.CancelJob)
		r.Get("/jobs/{id}/result", jobHandler.GetResult)
		r.Get("/jobs/{id}/download", jobHandler.DownloadReport)
		r.Get("/jobs/{id}/stream", streamHandler.StreamJob)

		r.Get("/models", modelHandler.ListModels)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
