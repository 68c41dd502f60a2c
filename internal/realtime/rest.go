package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"code-sandbox/internal/executor"
	"code-sandbox/internal/runner"
	"code-sandbox/internal/session"
	"code-sandbox/internal/watcher"
)

const defaultExecutionLimit = 50

type executeResponse struct {
	SessionID string `json:"sessionId"`
	Output    string `json:"output"`
	Error     string `json:"error"`
	ExitCode  int    `json:"exitCode"`
	ElapsedMs int64  `json:"elapsedMs"`
	TimedOut  bool   `json:"timedOut,omitempty"`
	SavedPath string `json:"savedPath,omitempty"`
}

type filesResponse struct {
	SessionID string `json:"sessionId"`
	FileCount int    `json:"fileCount"`
	Tree      any    `json:"tree"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps executor errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case executor.IsUnsupported(err), errors.Is(err, session.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleExecute runs a submission. With ?stream=true the response is
// newline-delimited JSON events, flushed as they happen.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "language and code are required")
		return
	}

	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		s.streamExecute(w, r, req)
		return
	}

	res, err := s.exec.RunStreaming(r.Context(), req, nil)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	id := sessionIDOrDefault(req.SessionID)
	s.broadcastSessionUpdate(id)

	writeJSON(w, http.StatusOK, executeResponse{
		SessionID: id,
		Output:    res.Stdout,
		Error:     res.Stderr,
		ExitCode:  res.ExitCode,
		ElapsedMs: res.Elapsed.Milliseconds(),
		TimedOut:  res.TimedOut(),
		SavedPath: res.SavedPath,
	})
}

func (s *Server) streamExecute(w http.ResponseWriter, r *http.Request, req executor.Request) {
	// Reject unknown languages before committing to a 200.
	if !s.exec.Runner().Languages().Supports(req.Language) {
		writeError(w, http.StatusBadRequest, (&runner.UnsupportedLanguageError{Language: req.Language}).Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	_, err := s.exec.RunStreaming(r.Context(), req, func(ev runner.Event) {
		enc.Encode(ev)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		enc.Encode(map[string]string{"error": err.Error()})
		return
	}
	s.broadcastSessionUpdate(sessionIDOrDefault(req.SessionID))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req executor.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "language and code are required")
		return
	}

	v, err := s.exec.Validate(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exec.Runner().Languages().All())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.execLog == nil {
		writeError(w, http.StatusNotImplemented, "execution log is disabled")
		return
	}
	stats, err := s.execLog.LanguageStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleDeleteSession removes a session. ?purge=true also drops its
// execution log entries.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if !s.exec.Reset(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if purge, _ := strconv.ParseBool(r.URL.Query().Get("purge")); purge && s.execLog != nil {
		if _, err := s.execLog.DeleteSession(r.Context(), id); err != nil {
			s.logger.Printf("purge execution log for session %s: %v", id, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleSessionFiles(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{
		SessionID: sess.ID,
		FileCount: watcher.CountFiles(sess.Dir),
		Tree:      watcher.BuildFileTree(sess.Dir, watcher.DefaultTreeDepth),
	})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.Events(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleSessionExecutions lists logged executions, newest first. The log
// outlives sessions, so unknown ids return an empty list.
func (s *Server) handleSessionExecutions(w http.ResponseWriter, r *http.Request) {
	if s.execLog == nil {
		writeError(w, http.StatusNotImplemented, "execution log is disabled")
		return
	}

	limit := defaultExecutionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := s.execLog.ListExecutions(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}
