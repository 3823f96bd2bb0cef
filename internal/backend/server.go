// Package backend is a development implementation of the agent HTTP
// contract: task sessions streamed over SSE, workspace browsing and a
// WebSocket chat backed by SQLite.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/agentweb/internal/api"
	"github.com/codefionn/agentweb/internal/catalog"
	"github.com/codefionn/agentweb/internal/logger"
	"github.com/codefionn/agentweb/internal/secretdetect"
)

// Options configures a Server.
type Options struct {
	WorkspaceRoot  string
	DatabasePath   string
	AllowedOrigins []string
	// Runner executes tasks. Defaults to a SimulatedRunner with StepDelay.
	Runner    Runner
	StepDelay time.Duration
	// KeepAlive is the SSE comment interval. Defaults to 15s.
	KeepAlive time.Duration
	Logger    *logger.Logger
}

// Server serves the agent API.
type Server struct {
	opts       Options
	router     *httprouter.Router
	tasks      *taskRegistry
	workspaces *Workspaces
	chat       *ChatStore
	metrics    *Metrics
	upgrader   websocket.Upgrader
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the chat store and workspace root and wires the routes.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Component("backend")
	}
	if opts.Runner == nil {
		opts.Runner = SimulatedRunner{StepDelay: opts.StepDelay}
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	if opts.DatabasePath == "" {
		opts.DatabasePath = ":memory:"
	}

	workspaces, err := NewWorkspaces(opts.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	chat, err := OpenChatStore(opts.DatabasePath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:       opts,
		router:     httprouter.New(),
		tasks:      newTaskRegistry(),
		workspaces: workspaces,
		chat:       chat,
		metrics:    NewMetrics(),
		log:        opts.Logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.opts.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET(api.PathHealth, s.handleHealth)
	s.router.POST(api.PathValidateConfig, s.handleValidateConfig)
	s.router.POST(api.PathExecuteTask, s.handleExecuteTask)
	s.router.GET("/api/session/:id/stream", s.handleStream)
	s.router.GET("/api/workspace/:id/files", s.handleFiles)
	s.router.GET("/api/workspace/:id/file/*path", s.handleFile)
	s.router.POST(api.PathNewChatSession, s.handleNewChatSession)
	s.router.GET("/ws/:id", s.handleChat)
	s.router.Handler(http.MethodGet, api.PathMetrics, s.metrics.Handler())

	// file paths are confined by Workspaces.Read, not rewritten by the router
	s.router.RedirectTrailingSlash = false
	s.router.RedirectFixedPath = false
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return withCORS(s.opts.AllowedOrigins, s.log, s.router)
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLogger(s.log, slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	s.log.Info("Listening on %s", l.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// streams only end when their request context is cancelled
	s.cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops running tasks and closes the chat store.
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.chat.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, api.Health{Status: "healthy", Message: "Agent API is running"})
}

func (s *Server) handleValidateConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req api.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.log.Info("Validating config for provider: %s, model: %s", req.Provider, req.Model)
	writeJSON(w, http.StatusOK, validate(req))
}

// validate applies the basic checks: a known provider/model pairing, the
// step bound and a plausible key length.
func validate(req api.ValidateRequest) api.Validation {
	if err := catalog.CheckModel(req.Provider, req.Model); err != nil {
		return api.Validation{Valid: false, Message: "Validation failed: " + err.Error()}
	}
	if err := catalog.CheckSteps(req.MaxSteps); err != nil {
		return api.Validation{Valid: false, Message: "Validation failed: " + err.Error()}
	}
	if len(strings.TrimSpace(req.APIKey)) <= 10 {
		return api.Validation{Valid: false, Message: "API key appears too short"}
	}
	return api.Validation{Valid: true, Message: "Configuration appears valid (basic validation)"}
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req api.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}
	if req.MaxSteps == 0 {
		req.MaxSteps = catalog.DefaultMaxSteps
	}
	if err := catalog.CheckSteps(req.MaxSteps); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.NewString()
	dir, err := s.workspaces.Create(id)
	if err != nil {
		s.log.Error("Error starting task: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create workspace")
		return
	}

	session := newTaskSession(id, req.Task, dir)
	s.tasks.add(session)
	s.metrics.sessionsActive.Inc()

	task := Task{
		SessionID: id,
		Task:      req.Task,
		Provider:  req.Provider,
		Model:     req.Model,
		MaxSteps:  req.MaxSteps,
		Workspace: dir,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(session, task)
	}()

	s.log.Info("Started session %s: %s", id, secretdetect.Preview(task.Task, 80))
	writeJSON(w, http.StatusOK, api.ExecuteResponse{SessionID: id, Status: "started"})
}

// run drives one task to a terminal status.
func (s *Server) run(session *TaskSession, task Task) {
	session.SetStatus(StatusRunning)

	status, err := s.opts.Runner.Run(s.ctx, task, session)
	if err != nil {
		s.log.Error("Task execution error in session %s: %v", session.ID, err)
		_ = session.Emit(map[string]string{"type": "error", "content": "Error: " + err.Error()})
		status = StatusError
	} else if !terminal(status) {
		status = StatusCompleted
	}

	s.metrics.sessionsActive.Dec()
	s.metrics.sessionsTotal.WithLabelValues(status).Inc()
	session.SetStatus(status)
	s.log.Info("Session %s finished: %s", session.ID, status)
}

func (s *Server) handleNewChatSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, err := s.chat.CreateSession(r.Context())
	if err != nil {
		s.log.Error("%v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, api.NewChatSessionResponse{SessionID: id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
