package benchmark

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/kernelbench/internal/logging"
)

// State is the runner's position in the run lifecycle.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateWarmingUp
	StateMeasuring
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateWarmingUp:
		return "warming_up"
	case StateMeasuring:
		return "measuring"
	case StateReporting:
		return "reporting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Workload is an opaque task the harness can invoke.
type Workload interface {
	Name() string
	Invoke(ctx context.Context) (any, error)
}

// Initializer is implemented by workloads with a one-time setup step. Runs are
// rejected until Initialize has succeeded.
type Initializer interface {
	Initialize(ctx context.Context) error
	Initialized() bool
}

// Preparer is implemented by workloads that allocate inputs before a run and free
// them afterwards. Prepare is not timed; Release runs on every exit path.
type Preparer interface {
	Prepare(ctx context.Context) error
	Release()
}

// ExecutionContext is the shared engine the workloads run on.
type ExecutionContext interface {
	Backend() string
	SwitchBackend(ctx context.Context, name string) error
}

// Observer receives lifecycle notifications from a Runner.
type Observer interface {
	OnState(workload string, state State)
	OnIteration(workload string, iteration, total int, durationMs float64)
	OnRunComplete(workload string, report *Report, err error)
	OnInitComplete(workload string, report *InitReport, err error)
}

// NopObserver implements Observer with no-ops, for embedding.
type NopObserver struct{}

func (NopObserver) OnState(string, State)                     {}
func (NopObserver) OnIteration(string, int, int, float64)     {}
func (NopObserver) OnRunComplete(string, *Report, error)      {}
func (NopObserver) OnInitComplete(string, *InitReport, error) {}

// RunKind distinguishes benchmark runs from initialization timings.
type RunKind string

const (
	KindRun        RunKind = "run"
	KindInitialize RunKind = "initialize"
)

// RunHandle tracks a run started by a Runner.
type RunHandle struct {
	ID       string
	Workload string
	Kind     RunKind

	done    chan struct{}
	outcome Outcome
}

func newHandle(id, workload string, kind RunKind) *RunHandle {
	return &RunHandle{ID: id, Workload: workload, Kind: kind, done: make(chan struct{})}
}

// Done is closed when the run has finished.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes or ctx is done. The returned error is the
// run's own error, or ctx's error if ctx ended first.
func (h *RunHandle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.outcome.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (h *RunHandle) finish(o Outcome) {
	h.outcome = o
	close(h.done)
}

// Runner drives one workload through the run lifecycle. A Runner accepts one run
// at a time; requests made while it is not idle fail with ErrBusy.
type Runner struct {
	workload  Workload
	exec      ExecutionContext
	profiler  Profiler
	observers []Observer
	newID     func() string
	now       func() time.Time

	state atomic.Int32

	mu       sync.RWMutex
	last     *Report
	lastInit *InitReport
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithObserver adds an observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(fn func() string) RunnerOption {
	return func(r *Runner) { r.newID = fn }
}

// NewRunner creates an idle runner.
func NewRunner(w Workload, exec ExecutionContext, p Profiler, opts ...RunnerOption) *Runner {
	r := &Runner{
		workload: w,
		exec:     exec,
		profiler: p,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Workload returns the name of the runner's workload.
func (r *Runner) Workload() string { return r.workload.Name() }

// State returns the current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

// Last returns the most recent successful report, or nil.
func (r *Runner) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// LastInit returns the most recent initialization timing, or nil.
func (r *Runner) LastInit() *InitReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastInit
}

// NeedsInit reports whether the workload must be initialized before it can run.
func (r *Runner) NeedsInit() bool {
	initer, ok := r.workload.(Initializer)
	return ok && !initer.Initialized()
}

// StartRun validates cfg, claims the runner and runs warmup, measurement and
// reporting in the background. ctx only carries values; canceling it does not stop
// the run.
func (r *Runner) StartRun(ctx context.Context, cfg Config) (*RunHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r.NeedsInit() {
		return nil, &ConfigurationError{Field: "workload", Reason: r.workload.Name(), Err: ErrNotInitialized}
	}
	if err := r.acquire(StateWarmingUp); err != nil {
		return nil, err
	}

	h := newHandle(r.newID(), r.workload.Name(), KindRun)
	go r.run(context.WithoutCancel(ctx), h, cfg)
	return h, nil
}

// Initialize times the workload's one-time setup in the background.
func (r *Runner) Initialize(ctx context.Context) (*RunHandle, error) {
	initer, ok := r.workload.(Initializer)
	if !ok {
		return nil, &ConfigurationError{Field: "workload", Reason: r.workload.Name() + " has no initialization step"}
	}
	if err := r.acquire(StateInitializing); err != nil {
		return nil, err
	}

	h := newHandle(r.newID(), r.workload.Name(), KindInitialize)
	go r.initialize(context.WithoutCancel(ctx), h, initer)
	return h, nil
}

func (r *Runner) acquire(next State) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(next)) {
		return &ConfigurationError{Field: "state", Reason: "runner is " + r.State().String(), Err: ErrBusy}
	}
	r.notifyState(next)
	return nil
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
	r.notifyState(s)
}

func (r *Runner) run(ctx context.Context, h *RunHandle, cfg Config) {
	report, err := r.execute(ctx, h.ID, cfg)
	if err != nil {
		logging.LogPhase("FAILED", r.workload.Name(), r.exec.Backend(), err)
	} else {
		r.mu.Lock()
		r.last = report
		r.mu.Unlock()
	}
	r.setState(StateIdle)
	for _, o := range r.observers {
		o.OnRunComplete(r.workload.Name(), report, err)
	}
	h.finish(Outcome{Report: report, Err: err})
}

func (r *Runner) execute(ctx context.Context, runID string, cfg Config) (report *Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			report = nil
			err = &WorkloadInvocationError{Phase: phaseOf(r.State()), Err: panicError(rec)}
		}
	}()

	name := r.workload.Name()
	backend := r.exec.Backend()
	started := r.now()

	if p, ok := r.workload.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return nil, &WorkloadInvocationError{Phase: PhasePrepare, Err: err}
		}
		defer p.Release()
	}

	logging.LogPhase("WARMUP", name, backend, fmt.Sprintf("rounds=%d", cfg.WarmupRounds))
	if err := RunWarmup(ctx, r.workload.Invoke, cfg.WarmupRounds); err != nil {
		return nil, err
	}

	r.setState(StateMeasuring)
	logging.LogPhase("MEASURE", name, backend, fmt.Sprintf("rounds=%d", cfg.MeasuredRounds))
	hook := func(iteration, total int, ms float64) {
		logging.LogDebug("iteration %d of %d for %s: %.3fms", iteration, total, name, ms)
		for _, o := range r.observers {
			o.OnIteration(name, iteration, total, ms)
		}
	}
	samples, profile, err := RunTimedWithHook(ctx, Profiled(r.profiler, r.workload.Invoke), cfg.MeasuredRounds, hook)
	if err != nil {
		return nil, err
	}

	r.setState(StateReporting)
	avg, err := Average(samples)
	if err != nil {
		return nil, err
	}
	report = &Report{
		RunID:             runID,
		Workload:          name,
		Backend:           backend,
		Config:            cfg,
		Kernels:           Aggregate(ParseKernelEvents(profile.Kernels)),
		Memory:            SummarizeMemory(profile),
		AverageDurationMs: avg,
		Iterations:        samples,
		Output:            profile.Result,
		StartedAt:         started,
		FinishedAt:        r.now(),
		Profile:           profile,
	}
	logging.LogPhase("REPORT", name, backend, fmt.Sprintf("avg=%.3fms total=%.3fms", avg, report.Kernels.TotalTimeMs))
	return report, nil
}

func (r *Runner) initialize(ctx context.Context, h *RunHandle, initer Initializer) {
	name := r.workload.Name()
	backend := r.exec.Backend()
	logging.LogPhase("INIT", name, backend, nil)

	start := r.now()
	err := safeInit(ctx, initer)
	elapsed := durationMs(r.now().Sub(start))

	var report *InitReport
	if err != nil {
		err = &WorkloadInvocationError{Phase: PhaseInitialize, Err: err}
		logging.LogPhase("FAILED", name, backend, err)
	} else {
		report = &InitReport{RunID: h.ID, Workload: name, Backend: backend, ElapsedMs: elapsed, FinishedAt: r.now()}
		r.mu.Lock()
		r.lastInit = report
		r.mu.Unlock()
	}
	r.setState(StateIdle)
	for _, o := range r.observers {
		o.OnInitComplete(name, report, err)
	}
	h.finish(Outcome{Init: report, Err: err})
}

func safeInit(ctx context.Context, initer Initializer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
		}
	}()
	return initer.Initialize(ctx)
}

func phaseOf(s State) Phase {
	switch s {
	case StateMeasuring, StateReporting:
		return PhaseMeasure
	case StateInitializing:
		return PhaseInitialize
	default:
		return PhaseWarmup
	}
}

func (r *Runner) notifyState(s State) {
	for _, o := range r.observers {
		o.OnState(r.workload.Name(), s)
	}
}
