package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/recap/devmon/internal/logbuffer"
	"github.com/recap/devmon/internal/monitor"
	"github.com/recap/devmon/internal/report"
	"github.com/recap/devmon/internal/types"
	"github.com/rs/zerolog"
)

// PassRunner runs evaluation passes on demand
type PassRunner interface {
	RunPass(ctx context.Context, opts monitor.PassOptions) (*types.Summary, error)
	Last() *types.Summary
}

// Server provides the trigger endpoint and status API
type Server struct {
	runner     PassRunner
	triggerKey string
	logger     zerolog.Logger
	logBuffer  *logbuffer.Buffer
	startTime  time.Time
	version    string
	commit     string
	buildDate  string
	versionMu  sync.RWMutex
}

// NewServer creates a new API server. An empty trigger key rejects every trigger request.
func NewServer(runner PassRunner, triggerKey string, logger zerolog.Logger) *Server {
	return &Server{
		runner:     runner,
		triggerKey: triggerKey,
		logger:     logger.With().Str("component", "api").Logger(),
		startTime:  time.Now(),
	}
}

// SetLogBuffer sets the buffer served by /api/logs
func (s *Server) SetLogBuffer(lb *logbuffer.Buffer) {
	s.logBuffer = lb
}

// SetVersion sets the version information
func (s *Server) SetVersion(version, commit, buildDate string) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	s.version = version
	s.commit = commit
	s.buildDate = buildDate
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/logs", s.handleLogsAPI)
	mux.HandleFunc("/api/alerts/check", s.handleCheck)
	return mux
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("API server shutdown failed")
		}
	}()

	s.logger.Info().Str("address", addr).Msg("Starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type checkResponse struct {
	OK bool `json:"ok"`
	*types.Summary
	OfflineDevices []string `json:"offline_devices"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// handleCheck authorizes the caller, runs one pass and returns its summary
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	if !s.authorized(r) {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("Rejected unauthorized check request")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	opts := monitor.PassOptions{DeviceKey: strings.TrimSpace(r.URL.Query().Get("device"))}
	// A caller that hangs up must not cut the pass short; stage timeouts bound it.
	summary, err := s.runner.RunPass(context.WithoutCancel(r.Context()), opts)
	if err != nil {
		if errors.Is(err, monitor.ErrPassInProgress) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error().Err(err).Msg("Check pass failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Render(*summary)))
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		OK:             true,
		Summary:        summary,
		OfflineDevices: report.OfflineDevices(*summary),
	})
}

// authorized accepts the shared secret from the key query parameter or a bearer token
func (s *Server) authorized(r *http.Request) bool {
	if s.triggerKey == "" {
		return false
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.triggerKey)) == 1
}

// handleHealth returns service health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns the last pass summary and build information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.versionMu.RLock()
	version := s.version
	commit := s.commit
	buildDate := s.buildDate
	s.versionMu.RUnlock()

	status := map[string]interface{}{
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime":     time.Since(s.startTime).String(),
		"version":    version,
		"commit":     commit,
		"build_date": buildDate,
	}
	if last := s.runner.Last(); last != nil {
		status["last_pass"] = checkResponse{
			OK:             true,
			Summary:        last,
			OfflineDevices: report.OfflineDevices(*last),
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// handleLogsAPI returns recent log entries, optionally for one device
func (s *Server) handleLogsAPI(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries := []logbuffer.Entry{}
	if s.logBuffer != nil {
		entries = s.logBuffer.Recent(limit, r.URL.Query().Get("device"))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
