// Package enginetest provides an in-process fake of the engine control API
// for tests. Progress sequences are scripted per endpoint; every call is
// recorded so tests can assert on what the orchestrator sent.
package enginetest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/ssdt/authscan/pkg/engine"
	"github.com/ssdt/authscan/pkg/jsonutil"
)

// Call is one recorded request.
type Call struct {
	Endpoint string // component.name, e.g. "ascan.status"
	Params   url.Values
}

// Script controls the fake's answers. Sequences are consumed one value per
// call; the last value repeats once exhausted.
type Script struct {
	SpiderProgress []int
	SpiderURLs     []string
	AjaxStatuses   []string
	AjaxResults    int
	RecordsToScan  []int
	AscanProgress  []int
	AlertCounts    []int
	Alerts         []engine.Alert
	Report         []byte
	Version        string

	// Failures maps an endpoint to the number of leading calls answered
	// with FailStatus before it starts succeeding. Negative fails forever.
	Failures   map[string]int
	FailStatus int

	// Hang makes an endpoint close the connection without a response for
	// the number of leading calls given (simulates a socket hang-up).
	Hang map[string]int
}

// Server is a fake engine. Use New, then point engine.Options.BaseURL at
// Server.URL.
type Server struct {
	*httptest.Server

	APIKey string

	mu       sync.Mutex
	script   Script
	calls    []Call
	counters map[string]int
	contexts map[string]*fakeContext
	rules    map[string]engine.ReplacerRule
	nextCtx  int
	onCall   func(endpoint string)
}

type fakeContext struct {
	id      string
	include []string
	exclude []string
	inScope bool
}

// New starts a fake engine with the given script.
func New(script Script) *Server {
	if script.FailStatus == 0 {
		script.FailStatus = http.StatusInternalServerError
	}
	if script.Version == "" {
		script.Version = "2.15.0"
	}
	s := &Server{
		script:   script,
		counters: make(map[string]int),
		contexts: make(map[string]*fakeContext),
		rules:    make(map[string]engine.ReplacerRule),
		nextCtx:  1,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// OnCall registers a hook run (outside the lock) before each call is
// answered.
func (s *Server) OnCall(fn func(endpoint string)) {
	s.mu.Lock()
	s.onCall = fn
	s.mu.Unlock()
}

// Calls returns a copy of every recorded call.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count returns how many times endpoint was called.
func (s *Server) Count(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[endpoint]
}

// Endpoints returns the recorded endpoint names in call order.
func (s *Server) Endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Endpoint)
	}
	return out
}

// Context reports the include/exclude lists and scope of a named context.
func (s *Server) Context(name string) (include, exclude []string, inScope, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[name]
	if !ok {
		return nil, nil, false, false
	}
	return append([]string(nil), c.include...), append([]string(nil), c.exclude...), c.inScope, true
}

// Rule returns the installed replacer rule with the given description.
func (s *Server) Rule(description string) (engine.ReplacerRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[description]
	return r, ok
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 {
		writeError(w, http.StatusNotFound, "no_implementor", "bad path")
		return
	}
	endpoint := parts[1] + "." + parts[3]
	params := r.URL.Query()

	s.mu.Lock()
	s.calls = append(s.calls, Call{Endpoint: endpoint, Params: params})
	n := s.counters[endpoint]
	s.counters[endpoint] = n + 1
	hook := s.onCall
	s.mu.Unlock()

	if hook != nil {
		hook(endpoint)
	}

	if s.APIKey != "" && r.Header.Get("X-ZAP-API-Key") != s.APIKey {
		writeError(w, http.StatusBadRequest, "bad_api_key", "missing or invalid API key")
		return
	}
	if hangs := s.script.Hang[endpoint]; n < hangs {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
	}
	if fails, ok := s.script.Failures[endpoint]; ok && (fails < 0 || n < fails) {
		writeError(w, s.script.FailStatus, "internal_error", "scripted failure")
		return
	}

	s.mu.Lock()
	body, status := s.answer(endpoint, n, params)
	s.mu.Unlock()

	if parts[0] == "OTHER" {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		_, _ = w.Write(s.script.Report)
		return
	}
	writeJSON(w, status, body)
}

// answer builds the response for endpoint. Called with s.mu held.
func (s *Server) answer(endpoint string, n int, p url.Values) (any, int) {
	ok := map[string]string{"Result": "OK"}
	switch endpoint {
	case "core.version":
		return map[string]string{"version": s.script.Version}, http.StatusOK
	case "core.accessUrl":
		return []any{}, http.StatusOK
	case "core.alerts":
		start, _ := strconv.Atoi(p.Get("start"))
		count, _ := strconv.Atoi(p.Get("count"))
		alerts := s.script.Alerts
		if start > len(alerts) {
			start = len(alerts)
		}
		end := len(alerts)
		if count > 0 && start+count < end {
			end = start + count
		}
		return map[string]any{"alerts": alerts[start:end]}, http.StatusOK
	case "core.numberOfAlerts":
		return map[string]string{"numberOfAlerts": strconv.Itoa(pick(s.script.AlertCounts, n))}, http.StatusOK
	case "core.htmlreport":
		return nil, http.StatusOK

	case "context.newContext":
		name := p.Get("contextName")
		if _, exists := s.contexts[name]; exists {
			return apiError("already_exists", "context already exists"), http.StatusBadRequest
		}
		id := strconv.Itoa(s.nextCtx)
		s.nextCtx++
		s.contexts[name] = &fakeContext{id: id}
		return map[string]string{"contextId": id}, http.StatusOK
	case "context.includeInContext", "context.excludeFromContext", "context.setContextInScope":
		c, exists := s.contexts[p.Get("contextName")]
		if !exists {
			return apiError("context_not_found", "context not found"), http.StatusBadRequest
		}
		switch endpoint {
		case "context.includeInContext":
			c.include = append(c.include, p.Get("regex"))
		case "context.excludeFromContext":
			c.exclude = append(c.exclude, p.Get("regex"))
		default:
			c.inScope = p.Get("booleanInScope") == "true"
		}
		return ok, http.StatusOK
	case "context.removeContext":
		name := p.Get("contextName")
		if _, exists := s.contexts[name]; !exists {
			return apiError("context_not_found", "context not found"), http.StatusBadRequest
		}
		delete(s.contexts, name)
		return ok, http.StatusOK
	case "context.context":
		c, exists := s.contexts[p.Get("contextName")]
		if !exists {
			return apiError("context_not_found", "context not found"), http.StatusBadRequest
		}
		return map[string]any{"context": map[string]string{
			"id": c.id, "name": p.Get("contextName"), "inScope": strconv.FormatBool(c.inScope),
		}}, http.StatusOK

	case "replacer.addRule":
		d := p.Get("description")
		if _, exists := s.rules[d]; exists {
			return apiError("already_exists", "rule already exists"), http.StatusBadRequest
		}
		s.rules[d] = engine.ReplacerRule{
			Description: d,
			Enabled:     p.Get("enabled") == "true",
			MatchType:   p.Get("matchType"),
			MatchString: p.Get("matchString"),
			MatchRegex:  p.Get("matchRegex") == "true",
			Replacement: p.Get("replacement"),
		}
		return ok, http.StatusOK
	case "replacer.removeRule":
		d := p.Get("description")
		if _, exists := s.rules[d]; !exists {
			return apiError("does_not_exist", "rule does not exist"), http.StatusBadRequest
		}
		delete(s.rules, d)
		return ok, http.StatusOK
	case "replacer.rules":
		rules := make([]map[string]string, 0, len(s.rules))
		for _, r := range s.rules {
			rules = append(rules, map[string]string{
				"description": r.Description,
				"enabled":     strconv.FormatBool(r.Enabled),
				"matchType":   r.MatchType,
				"matchString": r.MatchString,
				"matchRegex":  strconv.FormatBool(r.MatchRegex),
				"replacement": r.Replacement,
			})
		}
		return map[string]any{"rules": rules}, http.StatusOK

	case "spider.scan":
		return map[string]string{"scan": "0"}, http.StatusOK
	case "spider.status":
		return map[string]string{"status": strconv.Itoa(pick(s.script.SpiderProgress, n))}, http.StatusOK
	case "spider.results":
		return map[string]any{"results": append([]string{}, s.script.SpiderURLs...)}, http.StatusOK

	case "ajaxSpider.status":
		status := engine.AjaxStatusStopped
		if len(s.script.AjaxStatuses) > 0 {
			status = pickString(s.script.AjaxStatuses, n)
		}
		return map[string]string{"status": status}, http.StatusOK
	case "ajaxSpider.numberOfResults":
		return map[string]string{"numberOfResults": strconv.Itoa(s.script.AjaxResults)}, http.StatusOK

	case "pscan.recordsToScan":
		return map[string]string{"recordsToScan": strconv.Itoa(pick(s.script.RecordsToScan, n))}, http.StatusOK

	case "ascan.scan":
		return map[string]string{"scan": "1"}, http.StatusOK
	case "ascan.status":
		return map[string]string{"status": strconv.Itoa(pick(s.script.AscanProgress, n))}, http.StatusOK
	}

	if strings.HasPrefix(strings.SplitN(endpoint, ".", 2)[1], "setOption") ||
		strings.HasSuffix(endpoint, ".stop") || strings.HasSuffix(endpoint, ".stopAllScans") ||
		endpoint == "ajaxSpider.scan" {
		return ok, http.StatusOK
	}
	return apiError("no_implementor", "unknown endpoint "+endpoint), http.StatusNotFound
}

func pick(seq []int, n int) int {
	if len(seq) == 0 {
		return 100
	}
	if n >= len(seq) {
		return seq[len(seq)-1]
	}
	return seq[n]
}

func pickString(seq []string, n int) string {
	if n >= len(seq) {
		return seq[len(seq)-1]
	}
	return seq[n]
}

func apiError(code, msg string) map[string]string {
	return map[string]string{"code": code, "message": msg}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError(code, msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonutil.MarshalWrite(w, v)
}
