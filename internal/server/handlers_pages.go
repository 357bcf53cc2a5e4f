package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/worker"
)

// SkillResponse is returned when a skill job is accepted.
type SkillResponse struct {
	Skill *skills.Skill `json:"skill"`
	Job   *worker.Job   `json:"job,omitempty"`
}

func pathParam(r *http.Request) (string, error) {
	p := strings.TrimSpace(r.URL.Query().Get("path"))
	if p == "" {
		return "", fmt.Errorf("%w: path query parameter is required", errBadRequest)
	}
	return p, nil
}

// handleListPaths godoc
// @Summary List the paths of a project
// @Tags pages
// @Produce json
// @Param projectID path string true "Project ID"
// @Success 200 {array} string
// @Router /projects/{projectID}/paths [get]
func (s *Server) handleListPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := s.store.ListPaths(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, paths)
}

// handleListVersions godoc
// @Summary List every version of a path
// @Tags pages
// @Produce json
// @Param projectID path string true "Project ID"
// @Param path query string true "Page path"
// @Success 200 {array} pages.Page
// @Failure 400 {object} ErrorResponse
// @Router /projects/{projectID}/pages [get]
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	path, err := pathParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	versions, err := s.pages.Versions(r.Context(), chi.URLParam(r, "projectID"), path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if versions == nil {
		versions = []*pages.Page{}
	}
	writeJSON(w, http.StatusOK, versions)
}

// handleCreatePage godoc
// @Summary Create version 1 of a new path as a draft
// @Tags pages
// @Accept json
// @Produce json
// @Param projectID path string true "Project ID"
// @Param body body CreatePageRequest true "Page"
// @Success 201 {object} pages.Page
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /projects/{projectID}/pages [post]
func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var body CreatePageRequest
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(body.Path) == "" {
		s.fail(w, r, fmt.Errorf("%w: path is required", errBadRequest))
		return
	}
	p, err := s.pages.CreatePage(r.Context(), chi.URLParam(r, "projectID"), body.Path, body.Sections)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleDeleteAllVersions godoc
// @Summary Delete every version of a path
// @Tags pages
// @Param projectID path string true "Project ID"
// @Param path query string true "Page path"
// @Success 204
// @Router /projects/{projectID}/pages [delete]
func (s *Server) handleDeleteAllVersions(w http.ResponseWriter, r *http.Request) {
	path, err := pathParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.pages.DeleteAllVersions(r.Context(), chi.URLParam(r, "projectID"), path); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetPage godoc
// @Summary Fetch one page version
// @Tags pages
// @Produce json
// @Param pageID path string true "Page ID"
// @Success 200 {object} pages.Page
// @Failure 404 {object} ErrorResponse
// @Router /pages/{pageID} [get]
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.pages.Get(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSaveDraft godoc
// @Summary Overwrite a draft's content
// @Description Omitting edit_chat_history keeps the stored history.
// @Tags pages
// @Accept json
// @Produce json
// @Param pageID path string true "Page ID"
// @Param body body pages.Content true "Content"
// @Success 200 {object} pages.Page
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /pages/{pageID} [put]
func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var body pages.Content
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.pages.SaveDraft(r.Context(), chi.URLParam(r, "pageID"), body.Sections, body.ChatHistory)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeleteVersion godoc
// @Summary Delete one non-published version
// @Tags pages
// @Param pageID path string true "Page ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /pages/{pageID} [delete]
func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	if err := s.pages.DeleteVersion(r.Context(), chi.URLParam(r, "pageID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateDraft godoc
// @Summary Open a draft of the page's path
// @Description Returns the open draft when one exists, otherwise copies the published version.
// @Tags pages
// @Produce json
// @Param pageID path string true "Any version of the path"
// @Success 200 {object} pages.Page
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /pages/{pageID}/draft [post]
func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	p, err := s.pages.Get(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.pages.CreateDraftFromPublished(r.Context(), p.ProjectID, p.Path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handlePublish godoc
// @Summary Publish a draft
// @Tags pages
// @Produce json
// @Param pageID path string true "Draft ID"
// @Success 200 {object} pages.Page
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /pages/{pageID}/publish [post]
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	p, err := s.pages.Publish(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRestore godoc
// @Summary Copy an inactive version into a new draft
// @Tags pages
// @Produce json
// @Param pageID path string true "Inactive version ID"
// @Success 201 {object} pages.Page
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /pages/{pageID}/restore [post]
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	d, err := s.pages.Restore(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleDiff godoc
// @Summary Diff two versions section by section
// @Tags pages
// @Produce json
// @Param pageID path string true "Head version ID"
// @Param base query string true "Base version ID"
// @Success 200 {object} pages.VersionDiff
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /pages/{pageID}/diff [get]
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	if base == "" {
		s.fail(w, r, fmt.Errorf("%w: base query parameter is required", errBadRequest))
		return
	}
	d, err := s.pages.Diff(r.Context(), base, chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleEdit godoc
// @Summary Ask the editor to rewrite one element of a draft
// @Description The draft is not modified; the caller applies the result and saves.
// @Tags pages
// @Accept json
// @Produce json
// @Param pageID path string true "Draft ID"
// @Param body body editsession.EditRequest true "Edit request"
// @Success 200 {object} editsession.EditResult
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /pages/{pageID}/edit [post]
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editsession.EditRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		s.fail(w, r, fmt.Errorf("%w: instruction is required", errBadRequest))
		return
	}
	d, err := s.pages.OpenDraft(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.editor.EditElement(r.Context(), d.ID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleStartSkill godoc
// @Summary Start skill generation for a resource
// @Description Idempotent while a job for the resource is running.
// @Tags skills
// @Accept json
// @Produce json
// @Param resourceID path string true "Resource ID"
// @Param body body StartSkillRequest true "Prompt"
// @Success 202 {object} SkillResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /skills/{resourceID} [post]
func (s *Server) handleStartSkill(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "resourceID")
	var body StartSkillRequest
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.runner.StartSkillGeneration(r.Context(), rid, body.Prompt); err != nil {
		s.fail(w, r, err)
		return
	}
	sk, err := s.runner.FetchSkillStatus(r.Context(), rid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SkillResponse{Skill: sk, Job: s.runner.ActiveJob(worker.JobSkill, rid)})
}

// handleGetSkill godoc
// @Summary Fetch the status of a skill job
// @Tags skills
// @Produce json
// @Param resourceID path string true "Resource ID"
// @Success 200 {object} skills.Skill
// @Failure 404 {object} ErrorResponse
// @Router /skills/{resourceID} [get]
func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	sk, err := s.runner.FetchSkillStatus(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

// handleGetJob godoc
// @Summary Fetch a background job
// @Tags jobs
// @Produce json
// @Param jobID path string true "Job ID"
// @Success 200 {object} worker.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.runner.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		writeError(w, http.StatusNotFound, CodeJobNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob godoc
// @Summary Cancel a background job
// @Tags jobs
// @Param jobID path string true "Job ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if s.runner.GetJob(id) == nil {
		writeError(w, http.StatusNotFound, CodeJobNotFound, "job not found")
		return
	}
	s.runner.CancelJob(id)
	w.WriteHeader(http.StatusNoContent)
}
