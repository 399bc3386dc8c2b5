package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dconn.dev/sitegen/internal/config"
	"dconn.dev/sitegen/internal/middleware"
)

// SetupRoutes configures the preview server for a built site and returns the
// router. Pages come from the output directory as last built; nothing is
// rendered on request.
func SetupRoutes(cfg *config.Config, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Project index as the generator sees it
	projects := NewProjectHandler(cfg, logger)
	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", projects.ListProjects)
		r.Get("/projects/{slug}", projects.GetProject)
		r.Get("/sections", projects.ListSections)
		r.Get("/years", projects.ListYearGroups)
	})

	// Built site; directories resolve to their index.html
	fileServer := http.FileServer(http.Dir(cfg.OutputPath()))
	if cfg.BasePath == "" {
		r.Handle("/*", fileServer)
		return r
	}

	// Links carry the base path, so serve the site below it
	r.Handle(cfg.BasePath+"/*", http.StripPrefix(cfg.BasePath, fileServer))
	toBase := func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, cfg.BasePath+"/", http.StatusFound)
	}
	r.Get("/", toBase)
	r.Get(cfg.BasePath, toBase)

	return r
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("error encoding JSON", zap.Error(err))
	}
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	respondJSON(w, logger, status, map[string]string{"error": message})
}
