// Package server is the HTTP API of the site builder dev backend. It serves
// projects, templates, page versions, element edits and skill jobs over the
// SQLite store and the background runner.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	_ "github.com/Hamiltonwise/signalsai-sub006/internal/server/docs" // registers the swagger spec
	"github.com/Hamiltonwise/signalsai-sub006/internal/store"
	"github.com/Hamiltonwise/signalsai-sub006/internal/worker"
)

const requestIDHeader = "X-Request-ID"

// maxBodyBytes bounds request bodies; page sections are the largest payload.
const maxBodyBytes = 4 << 20

// Server is the HTTP API surface.
type Server struct {
	cfg    Config
	store  *store.Store
	runner *worker.Runner
	pages  *pages.Manager
	editor editsession.Editor
	router chi.Router
	logger logging.Logger
}

// New builds a Server. The runner must be built over the same store.
func New(cfg Config, st *store.Store, runner *worker.Runner, editor editsession.Editor) (*Server, error) {
	if st == nil || runner == nil || editor == nil {
		return nil, errors.New("server: store, runner and editor are required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		runner: runner,
		pages:  pages.NewManager(st, logger),
		editor: editor,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	// Projects
	r.Post("/projects", s.handleCreateProject)
	r.Get("/projects", s.handleListProjects)
	r.Get("/projects/{projectID}", s.handleGetProject)
	r.Delete("/projects/{projectID}", s.handleDeleteProject)
	r.Put("/projects/{projectID}/config", s.handleSaveConfig)
	r.Post("/projects/{projectID}/pipeline", s.handleTriggerPipeline)

	// Pages of a project
	r.Get("/projects/{projectID}/paths", s.handleListPaths)
	r.Get("/projects/{projectID}/pages", s.handleListVersions)
	r.Post("/projects/{projectID}/pages", s.handleCreatePage)
	r.Delete("/projects/{projectID}/pages", s.handleDeleteAllVersions)

	// Templates
	r.Post("/templates", s.handleCreateTemplate)
	r.Get("/templates", s.handleListTemplates)
	r.Get("/templates/{templateID}/pages", s.handleTemplatePages)

	// Page versions
	r.Get("/pages/{pageID}", s.handleGetPage)
	r.Put("/pages/{pageID}", s.handleSaveDraft)
	r.Delete("/pages/{pageID}", s.handleDeleteVersion)
	r.Post("/pages/{pageID}/draft", s.handleCreateDraft)
	r.Post("/pages/{pageID}/publish", s.handlePublish)
	r.Post("/pages/{pageID}/restore", s.handleRestore)
	r.Get("/pages/{pageID}/diff", s.handleDiff)
	r.Post("/pages/{pageID}/edit", s.handleEdit)

	// Skills
	r.Post("/skills/{resourceID}", s.handleStartSkill)
	r.Get("/skills/{resourceID}", s.handleGetSkill)

	// Jobs
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

// requestID echoes a caller supplied X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		if bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes)); err == nil {
			s.logger.Debug("http_request_body", logging.Field{Key: "bytes", Value: len(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// edit calls wait on the LLM
		WriteTimeout: 2 * time.Minute,
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// fail writes err with the status its class maps to. Server faults are
// logged; caller faults are not.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "request_id", Value: r.Header.Get(requestIDHeader)},
			logging.Field{Key: "error", Value: err.Error()})
	}
	writeError(w, status, code, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
	}
	return nil
}

// decodeOptionalBody is decodeBody that accepts an empty body.
func decodeOptionalBody(r *http.Request, v any) error {
	err := decodeBody(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
