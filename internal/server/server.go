package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/simplex/internal/config"
	apperrors "github.com/copyleftdev/simplex/internal/errors"
	"github.com/copyleftdev/simplex/internal/logging"
	"github.com/copyleftdev/simplex/internal/metrics"
	"github.com/copyleftdev/simplex/internal/optimization"
	"github.com/copyleftdev/simplex/internal/optimization/neldermead"
	"github.com/copyleftdev/simplex/internal/problem"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

var (
	// ErrNotFound is returned for unknown optimization IDs.
	ErrNotFound = apperrors.New("optimization not found")
	// ErrFinished is returned when cancelling a job that already ended.
	ErrFinished = apperrors.New("optimization already finished")
)

// Status is the lifecycle state of an optimization job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Solution is a point and its objective value. Value is null when the
// output is not finite.
type Solution struct {
	Parameters []float64 `json:"parameters"`
	Value      *float64  `json:"value"`
}

func newSolution(x []float64, value float64) *Solution {
	s := &Solution{Parameters: slices.Clone(x)}
	if !math.IsNaN(value) && !math.IsInf(value, 0) {
		s.Value = &value
	}
	return s
}

// Progress describes the latest completed iteration of a running job.
type Progress struct {
	Iteration  int               `json:"iteration"`
	LastAction neldermead.Action `json:"last_action"`
	Diameter   *float64          `json:"diameter,omitempty"`
}

// Result is the outcome of a finished solve.
type Result struct {
	BestSolution Solution                     `json:"best_solution"`
	Iterations   int                          `json:"iterations"`
	Elapsed      string                       `json:"elapsed"`
	Reason       neldermead.TerminationReason `json:"termination_reason"`
	Direction    optimization.Direction       `json:"direction"`
}

// OptimizationState represents the state of an optimization job.
// Fields are guarded by the owning server's optimizationsMu.
type OptimizationState struct {
	ID          string
	Name        string
	Status      Status
	Direction   optimization.Direction
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Progress    *Progress
	CurrentBest *Solution
	Result      *Result
	Error       string
	CancelFunc  context.CancelFunc
}

// StatusResponse is the public view of a job.
type StatusResponse struct {
	ID          string                 `json:"optimization_id"`
	Name        string                 `json:"name,omitempty"`
	Status      Status                 `json:"status"`
	Direction   optimization.Direction `json:"direction"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
	LastUpdate  time.Time              `json:"last_update"`
	Progress    *Progress              `json:"progress,omitempty"`
	CurrentBest *Solution              `json:"current_best,omitempty"`
	Result      *Result                `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func (st *OptimizationState) snapshot() StatusResponse {
	return StatusResponse{
		ID:          st.ID,
		Name:        st.Name,
		Status:      st.Status,
		Direction:   st.Direction,
		StartTime:   st.StartTime,
		EndTime:     st.EndTime,
		LastUpdate:  st.LastUpdated,
		Progress:    st.Progress,
		CurrentBest: st.CurrentBest,
		Result:      st.Result,
		Error:       st.Error,
	}
}

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It manages optimization jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *metrics.Metrics

	// workers bounds the number of concurrently running solves
	workers chan struct{}
	wg      sync.WaitGroup

	optimizations   map[string]*OptimizationState
	optimizationsMu sync.RWMutex // Protects the optimizations map and every state in it
}

// NewServer creates a new server instance. A nil m registers metrics with a
// private registry.
func NewServer(cfg *config.Config, logger Logger, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	workers := cfg.Optimization.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &Server{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		workers:       make(chan struct{}, workers),
		optimizations: make(map[string]*OptimizationState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/optimizations", s.handleList)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// startOptimization validates p, registers a pending job and runs it in
// the background.
func (s *Server) startOptimization(p *problem.Problem) (StatusResponse, error) {
	p = p.Clone()
	p.ApplyDefaults(s.cfg.Solver)
	if err := s.limitUnbounded(p); err != nil {
		return StatusResponse{}, err
	}

	id := uuid.NewString()
	now := time.Now()
	state := &OptimizationState{
		ID:          id,
		Name:        p.Name,
		Status:      StatusPending,
		Direction:   p.Direction,
		StartTime:   now,
		LastUpdated: now,
	}

	jobLogger := s.logger.WithFields(map[string]interface{}{"optimization_id": id})
	solver, direction, err := p.Build(logging.NewZapLogger(jobLogger), s.progressObserver(state), s.metrics.Observer())
	if err != nil {
		return StatusResponse{}, apperrors.Wrap(err, "invalid problem").
			WithOperation("optimization.start").WithComponent("server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	state.CancelFunc = cancel

	s.optimizationsMu.Lock()
	s.optimizations[id] = state
	snapshot := state.snapshot()
	s.optimizationsMu.Unlock()

	s.logger.Info("Optimization accepted", map[string]interface{}{
		"optimization_id": id,
		"direction":       direction.String(),
		"dimensions":      p.Dim(),
	})

	s.wg.Add(1)
	go s.runOptimization(ctx, state, solver, direction, jobLogger)

	return snapshot, nil
}

// limitUnbounded caps a problem that names no stopping criterion at the
// configured maximum duration, so no job holds a worker forever.
func (s *Server) limitUnbounded(p *problem.Problem) error {
	if p.TerminationConfig().HasCriterion() {
		return nil
	}
	limit := s.cfg.Solver.MaxDuration
	if limit <= 0 {
		err := optimization.NewConfigError("problem names no stopping criterion").
			WithOperation("optimization.start").WithComponent("server")
		return apperrors.Wrap(err, "invalid problem")
	}
	if p.Termination == nil {
		p.Termination = &problem.Termination{}
	}
	p.Termination.MaxDuration = problem.Duration(limit)
	s.logger.Warn("Problem has no stopping criterion, capping duration", map[string]interface{}{
		"name":         p.Name,
		"max_duration": limit.String(),
	})
	return nil
}

// progressObserver records each completed iteration on the job state.
func (s *Server) progressObserver(state *OptimizationState) neldermead.Observer[float64] {
	return neldermead.ObserverFunc[float64](func(it neldermead.Iteration[float64]) {
		best := it.Simplex.Best()
		diameter := it.Simplex.Diameter()

		s.optimizationsMu.Lock()
		defer s.optimizationsMu.Unlock()
		progress := &Progress{Iteration: it.Index, LastAction: it.Action}
		if !math.IsInf(diameter, 0) && !math.IsNaN(diameter) {
			progress.Diameter = &diameter
		}
		state.Progress = progress
		state.CurrentBest = newSolution(best.Inputs, best.Output)
		state.LastUpdated = time.Now()
	})
}

// runOptimization executes the optimization process in a goroutine
func (s *Server) runOptimization(ctx context.Context, state *OptimizationState, solver *neldermead.Solver[float64], direction optimization.Direction, logger *logging.Logger) {
	defer s.wg.Done()
	defer state.CancelFunc()

	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-ctx.Done():
		// Cancelled while waiting for a worker; the cancel handler already
		// moved the job to its terminal state.
		return
	}

	s.optimizationsMu.Lock()
	if state.Status != StatusPending {
		s.optimizationsMu.Unlock()
		return
	}
	state.Status = StatusRunning
	state.LastUpdated = time.Now()
	s.optimizationsMu.Unlock()

	logger.Debug("Optimization running")
	done := s.metrics.SolveStarted(direction)
	result, err := solver.Solve(ctx, direction)

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	now := time.Now()
	state.LastUpdated = now
	if state.EndTime == nil {
		state.EndTime = &now
	}

	if err != nil {
		done("error")
		wrapped := apperrors.Wrap(err, "optimization failed").WithOperation("solve").WithComponent("server")
		logger.Error("Optimization failed", wrapped.Fields())
		state.Status = StatusFailed
		state.Error = err.Error()
		return
	}

	done(result.Reason.String())
	state.Result = &Result{
		BestSolution: *newSolution(result.Inputs, result.Output),
		Iterations:   result.Iterations,
		Elapsed:      result.Elapsed.String(),
		Reason:       result.Reason,
		Direction:    result.Direction,
	}
	if result.Reason == neldermead.Canceled || state.Status == StatusCancelled {
		state.Status = StatusCancelled
	} else {
		state.Status = StatusCompleted
	}
	logger.Info("Optimization finished", map[string]interface{}{
		"status":     string(state.Status),
		"reason":     result.Reason.String(),
		"iterations": result.Iterations,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
}

func (s *Server) optimizationStatus(id string) (StatusResponse, error) {
	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	state, exists := s.optimizations[id]
	if !exists {
		return StatusResponse{}, apperrors.Wrapf(ErrNotFound, "optimization %s", id).WithComponent("server")
	}
	return state.snapshot(), nil
}

func (s *Server) listOptimizations() []StatusResponse {
	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	out := make([]StatusResponse, 0, len(s.optimizations))
	for _, state := range s.optimizations {
		out = append(out, state.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// cancelOptimization marks a job cancelled and cancels its context. A
// running solve notices at its next iteration and records its final
// simplex as the result.
func (s *Server) cancelOptimization(id string) (StatusResponse, error) {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state, exists := s.optimizations[id]
	if !exists {
		return StatusResponse{}, apperrors.Wrapf(ErrNotFound, "optimization %s", id).WithComponent("server")
	}
	if state.Status.Terminal() {
		return StatusResponse{}, apperrors.Wrapf(ErrFinished, "cannot cancel optimization with status %s", state.Status).WithComponent("server")
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}
	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})

	return state.snapshot(), nil
}

// Close cancels every job and waits for running solves to return.
func (s *Server) Close() error {
	s.optimizationsMu.Lock()
	for _, opt := range s.optimizations {
		if opt.CancelFunc != nil {
			opt.CancelFunc()
		}
	}
	s.optimizationsMu.Unlock()

	s.wg.Wait()
	return nil
}

// httpStatus maps a service error to a response code.
func httpStatus(err error) int {
	switch {
	case optimization.IsConfigError(err):
		return http.StatusBadRequest
	case apperrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, ErrFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), map[string]interface{}{
		"error": err.Error(),
	})
}

// handleOptimize handles the HTTP POST /optimize endpoint for starting a new optimization
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	p, err := problem.ParseJSON(body)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.startOptimization(p)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles the HTTP GET /status/{id} endpoint for checking optimization status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.optimizationStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listOptimizations())
}

// handleCancel handles the HTTP DELETE /optimization/{id} endpoint for canceling an optimization
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	result, err := s.cancelOptimization(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
