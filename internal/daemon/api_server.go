package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"shotdiff/internal/api"
	"shotdiff/internal/batch"
	"shotdiff/internal/config"
	"shotdiff/internal/logging"
	"shotdiff/internal/services"
)

// maxUploadBytes bounds a single screenshot upload.
const maxUploadBytes = 64 << 20

// maxJSONBytes bounds JSON request bodies.
const maxJSONBytes = 4 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	service *api.Service

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:    strings.TrimSpace(cfg.Paths.APIBind),
		logger:  logging.NewComponentLogger(logger, "api-server"),
		daemon:  d,
		service: d.service,
	}
	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.Paths.APIToken, srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/assets", s.handleUpload)
	mux.HandleFunc("POST /api/builds", s.handleSubmit)
	mux.HandleFunc("GET /api/builds", s.handleListBuilds)
	mux.HandleFunc("GET /api/builds/{id}", s.handleBuild)
	mux.HandleFunc("GET /api/builds/{id}/diffs", s.handleDiffs)
	mux.HandleFunc("GET /api/repositories/{repo}/builds/{number}", s.handleBuildByNumber)
	mux.HandleFunc("POST /api/builds/{id}/abort", s.handleAbort)
	mux.HandleFunc("POST /api/diffs/{id}/validation", s.handleValidation)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	writeJSON(s.logger, w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		AssetDir:     status.AssetDir,
		ExpiryMode:   status.ExpiryMode,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	resp, err := s.service.UploadAsset(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, resp)
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmissionRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.service.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, resp)
}

func (s *apiServer) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var repositoryID int64
	if value := strings.TrimSpace(query.Get("repository")); value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(s.logger, w, http.StatusBadRequest, "invalid repository id")
			return
		}
		repositoryID = parsed
	}
	limit := 50
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			writeError(s.logger, w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	builds, err := s.service.ListBuilds(r.Context(), repositoryID, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, api.BuildListResponse{Builds: builds})
}

func (s *apiServer) handleBuild(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	build, err := s.service.DescribeBuild(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, api.BuildResponse{Build: *build})
}

func (s *apiServer) handleBuildByNumber(w http.ResponseWriter, r *http.Request) {
	repo, errRepo := strconv.ParseInt(r.PathValue("repo"), 10, 64)
	number, errNumber := strconv.ParseInt(r.PathValue("number"), 10, 64)
	if errRepo != nil || errNumber != nil || repo <= 0 || number < 0 {
		writeError(s.logger, w, http.StatusBadRequest, "invalid repository or build number")
		return
	}
	build, err := s.service.DescribeBuildByNumber(r.Context(), repo, number)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, api.BuildResponse{Build: *build})
}

func (s *apiServer) handleDiffs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	diffs, err := s.service.ListDiffs(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, api.DiffListResponse{Diffs: diffs})
}

func (s *apiServer) handleAbort(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	build, err := s.service.Abort(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, api.BuildResponse{Build: *build})
}

func (s *apiServer) handleValidation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req api.ValidationRequest
	if !s.decode(w, r, &req) {
		return
	}
	build, err := s.service.SetValidation(r.Context(), id, req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, api.BuildResponse{Build: *build})
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(s.logger, w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeServiceError maps error markers to HTTP status codes.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classifyError(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(s.logger, "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	writeError(s.logger, w, status, message)
}

func classifyError(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, batch.ErrInconsistentParallelTotal):
		return http.StatusBadRequest, batch.ErrInconsistentParallelTotal.Error()
	case errors.Is(err, batch.ErrBatchCountExceeded):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func writeError(logger *slog.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(logger, w, status, api.ErrorResponse{Error: message})
}
