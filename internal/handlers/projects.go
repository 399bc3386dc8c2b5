package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dconn.dev/sitegen/internal/config"
	"dconn.dev/sitegen/internal/services"
)

// ProjectHandler exposes the project index the generator builds from. The
// data files are read on every request, so edits show up without a rebuild.
type ProjectHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewProjectHandler creates a new ProjectHandler
func NewProjectHandler(cfg *config.Config, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{cfg: cfg, logger: logger}
}

// ListProjects handles GET /api/projects. With ?pages=1 only projects that
// get a detail page are listed.
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	index, ok := h.index(w)
	if !ok {
		return
	}
	if r.URL.Query().Get("pages") == "1" {
		respondJSON(w, h.logger, http.StatusOK, index.Publishable())
		return
	}
	respondJSON(w, h.logger, http.StatusOK, index.GetAll())
}

// ListSections handles GET /api/sections
func (h *ProjectHandler) ListSections(w http.ResponseWriter, r *http.Request) {
	index, ok := h.index(w)
	if !ok {
		return
	}
	respondJSON(w, h.logger, http.StatusOK, index.Sections())
}

// ListYearGroups handles GET /api/years
func (h *ProjectHandler) ListYearGroups(w http.ResponseWriter, r *http.Request) {
	index, ok := h.index(w)
	if !ok {
		return
	}
	respondJSON(w, h.logger, http.StatusOK, index.YearGroups())
}

// GetProject handles GET /api/projects/{slug}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	index, ok := h.index(w)
	if !ok {
		return
	}

	project, err := index.GetBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, h.logger, http.StatusNotFound, "Project not found")
		return
	}
	respondJSON(w, h.logger, http.StatusOK, project)
}

func (h *ProjectHandler) index(w http.ResponseWriter) (*services.ProjectService, bool) {
	list, err := config.LoadProjects(h.cfg.ProjectsPath())
	if err != nil {
		h.logger.Warn("failed to load projects", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrMissingData) {
			status = http.StatusNotFound
		}
		respondError(w, h.logger, status, err.Error())
		return nil, false
	}
	return services.NewProjectService(list), true
}
