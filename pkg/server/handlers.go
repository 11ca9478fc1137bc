package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/authhandle"
	"github.com/ssdt/authscan/pkg/jsonutil"
	"github.com/ssdt/authscan/pkg/orchestrator"
	"github.com/ssdt/authscan/pkg/session"
)

type createHandleRequest struct {
	Cookies  []authctx.Cookie `json:"cookies"`
	LoginURL string           `json:"loginUrl,omitempty"`
}

type createHandleResponse struct {
	Handle           string `json:"handle"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

type startRequest struct {
	TargetURL string `json:"targetUrl"`
	LoginURL  string `json:"loginUrl,omitempty"`
	Handle    string `json:"handle"`
	ScanID    string `json:"scanId,omitempty"`
}

type listResponse struct {
	Scans []*session.Session `json:"scans"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateHandle(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.owner(w, r); !ok {
		return
	}
	if s.handles == nil {
		writeError(w, http.StatusNotImplemented, "auth handles are not enabled")
		return
	}
	var req createHandleRequest
	if !s.decode(w, r, &req) {
		return
	}
	h, err := s.handles.Create(r.Context(), authhandle.Credentials{Cookies: req.Cookies, LoginURL: req.LoginURL})
	if errors.Is(err, authhandle.ErrNoCookies) {
		writeError(w, http.StatusBadRequest, "at least one named cookie is required")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createHandleResponse{
		Handle:           h,
		ExpiresInSeconds: int(s.handleTTL.Seconds()),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req startRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Handle == "" {
		writeError(w, http.StatusBadRequest, "handle is required")
		return
	}
	res, err := s.scans.Start(r.Context(), orchestrator.StartRequest{
		TargetURL: req.TargetURL,
		LoginURL:  req.LoginURL,
		Handle:    req.Handle,
		ScanID:    req.ScanID,
		OwnerID:   ownerID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if res.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	list, err := s.scans.List(r.Context(), ownerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, listResponse{Scans: list})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	sess, err := s.scans.Status(r.Context(), r.PathValue("id"), ownerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	res, err := s.scans.Stop(r.Context(), r.PathValue("id"), ownerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	res, err := s.health.Check(r.Context())
	if err != nil {
		s.logger.Warn("health check failed", slog.String("error", err.Error()))
		res.Message = "engine unreachable"
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// owner reads the caller identity or writes 401.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(s.ownerHeader))
	if id == "" {
		writeError(w, http.StatusUnauthorized, fmt.Sprintf("missing %s header", s.ownerHeader))
		return "", false
	}
	return id, true
}

// decode reads a bounded JSON body into v or writes 400/413.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "could not read request body")
		return false
	}
	if err := jsonutil.Unmarshal(data, v); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return false
	}
	return true
}

// fail maps orchestrator errors to status codes. Anything unexpected is
// logged and answered with a generic 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, invalidMessage(err))
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, "scan not found")
	case errors.Is(err, orchestrator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	default:
		s.internal(w, r, err)
	}
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// invalidMessage keeps the validation detail but drops package prefixes.
func invalidMessage(err error) string {
	if errors.Is(err, authhandle.ErrHandleNotFound) {
		return "handle not found or expired"
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, "invalid request: "); i >= 0 {
		return msg[i+len("invalid request: "):]
	}
	return "invalid request"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonutil.MarshalWrite(w, v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
