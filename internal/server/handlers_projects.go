package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/store"
	"github.com/Hamiltonwise/signalsai-sub006/internal/worker"
)

// TriggerResponse is returned when a pipeline trigger is accepted.
type TriggerResponse struct {
	Project *pipeline.ProjectState `json:"project"`
	Job     *worker.Job            `json:"job,omitempty"`
}

// handleHealth godoc
// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Failure 503 {object} ErrorResponse
// @Router /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateProject godoc
// @Summary Create a project
// @Tags projects
// @Accept json
// @Produce json
// @Param body body CreateProjectRequest true "Project"
// @Success 201 {object} pipeline.ProjectState
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /projects [post]
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body CreateProjectRequest
	if err := decodeOptionalBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.store.CreateProject(r.Context(), body.GeneratedHostname)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleListProjects godoc
// @Summary List projects, newest first
// @Tags projects
// @Produce json
// @Success 200 {array} pipeline.ProjectState
// @Router /projects [get]
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ps == nil {
		ps = []*pipeline.ProjectState{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// handleGetProject godoc
// @Summary Fetch a project's status
// @Tags projects
// @Produce json
// @Param projectID path string true "Project ID"
// @Success 200 {object} pipeline.ProjectState
// @Failure 404 {object} ErrorResponse
// @Router /projects/{projectID} [get]
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.runner.FetchProjectStatus(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeleteProject godoc
// @Summary Delete a project and its pages
// @Tags projects
// @Param projectID path string true "Project ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /projects/{projectID} [delete]
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	if job := s.runner.ActiveJob(worker.JobPipeline, id); job != nil {
		s.runner.CancelJob(job.ID)
	}
	if err := s.store.DeleteProject(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSaveConfig godoc
// @Summary Save the project configuration
// @Description Replaceable while the project is CREATED; afterwards only an identical repeat is accepted.
// @Tags projects
// @Accept json
// @Param projectID path string true "Project ID"
// @Param body body pipeline.Config true "Configuration"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /projects/{projectID}/config [put]
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg pipeline.Config
	if err := decodeBody(r, &cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.runner.SaveConfiguration(r.Context(), chi.URLParam(r, "projectID"), cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTriggerPipeline godoc
// @Summary Start the generation pipeline
// @Description Idempotent. A body configuration is saved first when the project has none.
// @Tags projects
// @Accept json
// @Produce json
// @Param projectID path string true "Project ID"
// @Param body body pipeline.Config false "Configuration"
// @Success 202 {object} TriggerResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /projects/{projectID}/pipeline [post]
func (s *Server) handleTriggerPipeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	var cfg pipeline.Config
	if err := decodeOptionalBody(r, &cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.runner.TriggerPipelineStart(r.Context(), id, cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.runner.FetchProjectStatus(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{Project: p, Job: s.runner.ActiveJob(worker.JobPipeline, id)})
}

// handleCreateTemplate godoc
// @Summary Create a template
// @Tags templates
// @Accept json
// @Produce json
// @Param body body CreateTemplateRequest true "Template"
// @Success 201 {object} store.Template
// @Failure 400 {object} ErrorResponse
// @Router /templates [post]
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body CreateTemplateRequest
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.store.CreateTemplate(r.Context(), body.Name, body.Pages)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// handleListTemplates godoc
// @Summary List templates
// @Tags templates
// @Produce json
// @Success 200 {array} store.Template
// @Router /templates [get]
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := s.store.ListTemplates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ts == nil {
		ts = []*store.Template{}
	}
	writeJSON(w, http.StatusOK, ts)
}

// handleTemplatePages godoc
// @Summary List the pages of a template
// @Tags templates
// @Produce json
// @Param templateID path string true "Template ID"
// @Success 200 {array} pipeline.TemplatePage
// @Failure 404 {object} ErrorResponse
// @Router /templates/{templateID}/pages [get]
func (s *Server) handleTemplatePages(w http.ResponseWriter, r *http.Request) {
	tp, err := s.store.TemplatePages(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tp)
}
