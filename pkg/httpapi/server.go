// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi exposes registered agents over HTTP+JSON.
//
// Routes:
//
//	GET  /healthz          component health report
//	GET  /agents           registered agent summaries
//	GET  /agents/{id}      one agent summary
//	POST /agents/{id}      interpret the agent with {input, props}
//	POST {metadata.route}  same as POST /agents/{id} for agents declaring a route
//	*    /mcp              optional MCP endpoint
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/core"
	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/interpreter"
)

// RunIDHeader carries the run id in requests and responses.
const RunIDHeader = "X-Run-ID"

const maxBodyBytes = 4 << 20

// Agents is the registry view the server needs.
// *registry.Registry implements it.
type Agents interface {
	interpreter.Resolver
	List() []agentdef.Summary
}

// Server routes HTTP requests to the interpreter.
type Server struct {
	interp *interpreter.Interpreter
	agents Agents
	health *core.HealthProvider
	mcp    http.Handler
	logger *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithHealth sets the provider behind /healthz.
func WithHealth(p *core.HealthProvider) Option {
	return func(s *Server) { s.health = p }
}

// WithMCPHandler mounts an MCP endpoint under /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new HTTP server wrapper.
func New(interp *interpreter.Interpreter, agents Agents, opts ...Option) *Server {
	s := &Server{
		interp: interp,
		agents: agents,
		health: core.NewHealthProvider(0),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunRequest is the body of POST /agents/{id}.
type RunRequest struct {
	Input any            `json:"input"`
	Props map[string]any `json:"props,omitempty"`
}

// RunResponse is returned for a successful interpretation.
type RunResponse struct {
	RunID      string   `json:"run_id"`
	Output     any      `json:"output"`
	Logs       []string `json:"logs"`
	DurationMS int64    `json:"duration_ms"`
}

// ErrorResponse is returned for every failure.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Code   string         `json:"code,omitempty"`
	Phase  string         `json:"phase,omitempty"`
	Issues []errors.Issue `json:"issues,omitempty"`
	RunID  string         `json:"run_id,omitempty"`
	Logs   []string       `json:"logs,omitempty"`
}

// ServeHTTP routes requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := normalizePath(r.URL.Path)
	if len(segments) == 0 {
		http.NotFound(w, r)
		return
	}
	switch segments[0] {
	case "healthz":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleHealth(w, r)
		return
	case "mcp":
		if s.mcp != nil {
			s.mcp.ServeHTTP(w, r)
			return
		}
	case "agents":
		s.handleAgents(w, r, segments)
		return
	}

	if id, ok := s.routeFor(r.URL.Path); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.handleRun(w, r, id)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request, segments []string) {
	switch len(segments) {
	case 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agents": s.agents.List()})
	case 2:
		switch r.Method {
		case http.MethodGet:
			s.handleDescribe(w, r, segments[1])
		case http.MethodPost:
			s.handleRun(w, r, segments[1])
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request, id string) {
	for _, summary := range s.agents.List() {
		if summary.ID == id {
			writeJSON(w, http.StatusOK, summary)
			return
		}
	}
	raw, err := s.agents.Resolve(r.Context(), id)
	if err != nil {
		writeError(w, err, "", nil)
		return
	}
	def, err := agentdef.Parse(raw)
	if err != nil {
		writeError(w, err, "", nil)
		return
	}
	writeJSON(w, http.StatusOK, def.Summary())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, id string) {
	req, err := decodeRunRequest(r)
	if err != nil {
		writeError(w, err, "", nil)
		return
	}

	ctx := core.WithAgentID(r.Context(), id)
	if runID := r.Header.Get(RunIDHeader); runID != "" {
		ctx = core.WithRunID(ctx, runID)
	}
	ctx, runID := core.EnsureRunID(ctx)
	w.Header().Set(RunIDHeader, runID)

	exec := core.NewExecution(core.WithExecutionID(runID), core.WithExecutionLogger(s.logger))
	out, err := s.interp.InterpretAgent(ctx, s.agents, id, interpreter.Request{
		Input: req.Input,
		Props: req.Props,
		Exec:  exec,
	})
	if err != nil {
		s.logger.InfoContext(ctx, "agent run failed",
			slog.String("agent", id),
			slog.String("run_id", runID),
			slog.Int("status", errors.StatusCode(err)),
			slog.String("error", err.Error()),
		)
		writeError(w, err, runID, exec.Logs())
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{
		RunID:      runID,
		Output:     out,
		Logs:       nonNil(exec.Logs()),
		DurationMS: exec.Duration().Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.CheckAll(r.Context())
	status := http.StatusOK
	if report.Status == core.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// routeFor maps a declared metadata.route to its agent id.
func (s *Server) routeFor(path string) (string, bool) {
	path = "/" + strings.Trim(path, "/")
	for _, summary := range s.agents.List() {
		if summary.Route != "" && "/"+strings.Trim(summary.Route, "/") == path {
			return summary.ID, true
		}
	}
	return "", false
}

func decodeRunRequest(r *http.Request) (RunRequest, error) {
	var req RunRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return req, errors.New(errors.CodeInvalidInput, "failed to read request body", err)
	}
	if len(body) > maxBodyBytes {
		return req, errors.Newf(errors.CodeInvalidInput, "request body exceeds %d bytes", maxBodyBytes)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errors.New(errors.CodeInvalidInput, "invalid JSON body", err)
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, runID string, logs []string) {
	resp := ErrorResponse{Error: err.Error(), RunID: runID, Logs: logs}
	var ve *errors.ValidationError
	var e *errors.Error
	switch {
	case errors.As(err, &ve):
		resp.Code = string(ve.Code())
		resp.Phase = string(ve.Phase)
		resp.Issues = ve.Issues
	case errors.As(err, &e):
		resp.Code = string(e.Code)
	}
	writeJSON(w, errors.StatusCode(err), resp)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error: fmt.Sprintf("method not allowed, use %s", strings.Join(allowed, " or ")),
	})
}

func normalizePath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func nonNil(logs []string) []string {
	if logs == nil {
		return []string{}
	}
	return logs
}

// NewHTTPServer wraps h in an http.Server bound to addr.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
