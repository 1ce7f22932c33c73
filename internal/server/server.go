// Package server exposes the benchmark runners over HTTP.
package server

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/kernelbench/internal/benchmark"
)

const maxBodyBytes = 1 << 20

//go:embed run_request.schema.json
var runRequestSchema []byte

var runRequestLoader = gojsonschema.NewBytesLoader(runRequestSchema)

// Backends is the execution context the server switches between runs.
type Backends interface {
	benchmark.ExecutionContext
	Backends() []string
}

// ErrResp is the body of every non-2xx response.
type ErrResp struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// RunAccepted is returned for runs started without waiting.
type RunAccepted struct {
	RunID    string `json:"runId"`
	Workload string `json:"workload"`
}

// WorkloadStatus is one entry of GET /workloads.
type WorkloadStatus struct {
	Name      string  `json:"name"`
	State     string  `json:"state"`
	NeedsInit bool    `json:"needsInit"`
	LastAvgMs float64 `json:"lastAverageMs,omitempty"`
}

type backendRequest struct {
	Name string `json:"name"`
}

type backendResponse struct {
	Backend   string   `json:"backend"`
	Available []string `json:"available"`
}

// Server routes HTTP requests to per-workload runners.
type Server struct {
	exec     Backends
	runners  map[string]*benchmark.Runner
	names    []string
	defaults benchmark.Config
	timeout  time.Duration
	metrics  http.Handler

	// serializes run starts and backend switches; the runners share one engine
	mu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithTimeout bounds how long wait=true requests block.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New builds a server for runners. defaults fills rounds a request leaves out.
func New(exec Backends, runners []*benchmark.Runner, defaults benchmark.Config, opts ...Option) *Server {
	s := &Server{
		exec:     exec,
		runners:  make(map[string]*benchmark.Runner, len(runners)),
		defaults: defaults,
		timeout:  10 * time.Minute,
	}
	for _, r := range runners {
		s.runners[r.Workload()] = r
		s.names = append(s.names, r.Workload())
	}
	sort.Strings(s.names)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /workloads", s.handleWorkloads)
	mux.HandleFunc("POST /runs", s.handleRun)
	mux.HandleFunc("GET /runs/{workload}", s.handleLastReport)
	mux.HandleFunc("POST /workloads/{name}/initialize", s.handleInitialize)
	mux.HandleFunc("GET /backend", s.handleGetBackend)
	mux.HandleFunc("PUT /backend", s.handleSwitchBackend)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves Handler on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (workloads=%s backend=%s)", addr, strings.Join(s.names, ","), s.exec.Backend())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleWorkloads(w http.ResponseWriter, _ *http.Request) {
	out := make([]WorkloadStatus, 0, len(s.names))
	for _, name := range s.names {
		r := s.runners[name]
		st := WorkloadStatus{Name: name, State: r.State().String(), NeedsInit: r.NeedsInit()}
		if last := r.Last(); last != nil {
			st.LastAvgMs = last.AverageDurationMs
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	log.Printf("run request from %s", r.RemoteAddr)

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrResp{Error: err.Error(), Kind: "configuration"})
		return
	}
	if err := validateRunRequest(body); err != nil {
		log.Printf("run validation error: %v", err)
		writeJSON(w, http.StatusBadRequest, ErrResp{Error: err.Error(), Kind: "configuration"})
		return
	}
	var req benchmark.RemoteRequest
	if err := decodeJSON(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrResp{Error: "invalid JSON: " + err.Error(), Kind: "configuration"})
		return
	}

	runner, ok := s.runners[strings.ToLower(strings.TrimSpace(req.Workload))]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrResp{Error: fmt.Sprintf("unknown workload %q", req.Workload), Kind: "not_found"})
		return
	}

	cfg := s.defaults
	if req.WarmupRounds != nil {
		cfg.WarmupRounds = *req.WarmupRounds
	}
	if req.EpochRounds != nil {
		cfg.MeasuredRounds = *req.EpochRounds
	}

	s.mu.Lock()
	h, err := s.claim(func() (*benchmark.RunHandle, error) { return runner.StartRun(r.Context(), cfg) })
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}

	if !req.Wait {
		writeJSON(w, http.StatusAccepted, RunAccepted{RunID: h.ID, Workload: h.Workload})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	outcome, err := h.Wait(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome.Report)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	runner, ok := s.runners[strings.ToLower(r.PathValue("name"))]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrResp{Error: fmt.Sprintf("unknown workload %q", r.PathValue("name")), Kind: "not_found"})
		return
	}

	s.mu.Lock()
	h, err := s.claim(func() (*benchmark.RunHandle, error) { return runner.Initialize(r.Context()) })
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	outcome, err := h.Wait(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome.Init)
}

func (s *Server) handleLastReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("workload")
	runner, ok := s.runners[strings.ToLower(name)]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrResp{Error: fmt.Sprintf("unknown workload %q", name), Kind: "not_found"})
		return
	}
	last := runner.Last()
	if last == nil {
		writeJSON(w, http.StatusNotFound, ErrResp{Error: "no completed run for " + name, Kind: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleGetBackend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, backendResponse{Backend: s.exec.Backend(), Available: s.exec.Backends()})
}

func (s *Server) handleSwitchBackend(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrResp{Error: err.Error(), Kind: "configuration"})
		return
	}
	var req backendRequest
	if err := decodeJSON(body, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, ErrResp{Error: "body must be {\"name\": \"<backend>\"}", Kind: "configuration"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.busy(); err != nil {
		writeJSON(w, http.StatusConflict, ErrResp{Error: "cannot switch backend: " + err.Error(), Kind: "busy"})
		return
	}
	if err := s.exec.SwitchBackend(r.Context(), strings.ToLower(strings.TrimSpace(req.Name))); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrResp{Error: err.Error(), Kind: "configuration"})
		return
	}
	log.Printf("backend switched to %s", s.exec.Backend())
	writeJSON(w, http.StatusOK, backendResponse{Backend: s.exec.Backend(), Available: s.exec.Backends()})
}

// busy reports the first runner that is not idle. Callers hold s.mu.
func (s *Server) busy() error {
	for _, name := range s.names {
		if st := s.runners[name].State(); st != benchmark.StateIdle {
			return &benchmark.ConfigurationError{Field: "state", Reason: fmt.Sprintf("%s is %s", name, st), Err: benchmark.ErrBusy}
		}
	}
	return nil
}

// claim starts work only while every runner is idle. Callers hold s.mu.
func (s *Server) claim(start func() (*benchmark.RunHandle, error)) (*benchmark.RunHandle, error) {
	if err := s.busy(); err != nil {
		return nil, err
	}
	return start()
}

func validateRunRequest(body []byte) error {
	result, err := gojsonschema.Validate(runRequestLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("run request failed validation: %s", strings.Join(details, "; "))
}

// writeError maps harness errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, benchmark.ErrBusy):
		writeJSON(w, http.StatusConflict, ErrResp{Error: err.Error(), Kind: "busy"})
	case benchmark.IsConfigurationError(err):
		writeJSON(w, http.StatusBadRequest, ErrResp{Error: err.Error(), Kind: "configuration"})
	case benchmark.IsInvocationError(err):
		writeJSON(w, http.StatusInternalServerError, ErrResp{Error: err.Error(), Kind: "workload_invocation"})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrResp{Error: "timed out waiting for run: " + err.Error(), Kind: "timeout"})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrResp{Error: err.Error()})
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errors.New("empty body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty body")
	}
	return body, nil
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
