package benchmark

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeExec struct{ backend string }

func (f *fakeExec) Backend() string { return f.backend }

func (f *fakeExec) SwitchBackend(_ context.Context, name string) error {
	f.backend = name
	return nil
}

type fakeWorkload struct {
	name     string
	gate     chan struct{}
	failAt   int32
	panicAt  int32
	calls    atomic.Int32
	prepared atomic.Int32
	released atomic.Int32
}

func (w *fakeWorkload) Name() string { return w.name }

func (w *fakeWorkload) Invoke(context.Context) (any, error) {
	n := w.calls.Add(1)
	if w.gate != nil {
		<-w.gate
	}
	if n == w.panicAt {
		panic("kernel exploded")
	}
	if n == w.failAt {
		return nil, fmt.Errorf("call %d failed", n)
	}
	return "out", nil
}

func (w *fakeWorkload) Prepare(context.Context) error {
	w.prepared.Add(1)
	return nil
}

func (w *fakeWorkload) Release() { w.released.Add(1) }

type initWorkload struct {
	fakeWorkload
	initialized atomic.Bool
	initErr     error
}

func (w *initWorkload) Initialize(context.Context) error {
	if w.initErr != nil {
		return w.initErr
	}
	w.initialized.Store(true)
	return nil
}

func (w *initWorkload) Initialized() bool { return w.initialized.Load() }

var stubProfiler = ProfilerFunc(func(ctx context.Context, inv Invocation) (*ResourceProfile, error) {
	res, err := inv(ctx)
	if err != nil {
		return nil, err
	}
	return &ResourceProfile{
		PeakBytes: 2097152,
		NewBytes:  1048576,
		Kernels:   []KernelEvent{{Name: "MatMul", ExtraInfo: "MatMul: 1.5, Add: 0.5"}},
		Result:    res,
	}, nil
})

type recorder struct {
	NopObserver
	mu         sync.Mutex
	states     []State
	iterations int
	completed  int
}

func (r *recorder) OnState(_ string, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) OnIteration(string, int, int, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations++
}

func (r *recorder) OnRunComplete(string, *Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func waitOutcome(t *testing.T, h *RunHandle) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run %s did not finish", h.ID)
	}
	return out, err
}

func TestRunnerCompletesRun(t *testing.T) {
	w := &fakeWorkload{name: "matmul"}
	rec := &recorder{}
	r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler,
		WithObserver(rec),
		WithIDGenerator(func() string { return "run-1" }))

	h, err := r.StartRun(context.Background(), Config{WarmupRounds: 2, MeasuredRounds: 3})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if h.ID != "run-1" || h.Kind != KindRun || h.Workload != "matmul" {
		t.Fatalf("unexpected handle %+v", h)
	}
	out, err := waitOutcome(t, h)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	report := out.Report
	if len(report.Iterations) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(report.Iterations))
	}
	if w.calls.Load() != 5 {
		t.Fatalf("expected 5 invocations, got %d", w.calls.Load())
	}
	wantRows := []KernelRow{{TotalRow, 2}, {"MatMul", 1.5}, {"Add", 0.5}}
	if !reflect.DeepEqual(report.Kernels.Rows, wantRows) {
		t.Fatalf("rows = %+v", report.Kernels.Rows)
	}
	if report.Memory != (MemoryReport{PeakMB: 2, NewMB: 1}) {
		t.Fatalf("memory = %+v", report.Memory)
	}
	if report.Output != "out" || report.Backend != "cpu" || report.RunID != "run-1" {
		t.Fatalf("unexpected report %+v", report)
	}
	if w.prepared.Load() != 1 || w.released.Load() != 1 {
		t.Fatalf("prepare/release = %d/%d", w.prepared.Load(), w.released.Load())
	}
	if r.State() != StateIdle || r.Last() != report {
		t.Fatalf("runner not idle with published report")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	wantStates := []State{StateWarmingUp, StateMeasuring, StateReporting, StateIdle}
	if !reflect.DeepEqual(rec.states, wantStates) {
		t.Fatalf("states = %v, want %v", rec.states, wantStates)
	}
	if rec.iterations != 3 || rec.completed != 1 {
		t.Fatalf("observer saw %d iterations, %d completions", rec.iterations, rec.completed)
	}
}

func TestRunnerRejectsWhileBusy(t *testing.T) {
	w := &fakeWorkload{name: "add", gate: make(chan struct{})}
	r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler)

	h, err := r.StartRun(context.Background(), Config{MeasuredRounds: 1})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := r.StartRun(context.Background(), Config{MeasuredRounds: 1}); !errors.Is(err, ErrBusy) || !IsConfigurationError(err) {
		t.Fatalf("expected busy configuration error, got %v", err)
	}
	if _, err := r.Initialize(context.Background()); !IsConfigurationError(err) {
		t.Fatalf("expected configuration error for initialize, got %v", err)
	}

	close(w.gate)
	if _, err := waitOutcome(t, h); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	h, err = r.StartRun(context.Background(), Config{MeasuredRounds: 1})
	if err != nil {
		t.Fatalf("StartRun after idle: %v", err)
	}
	if _, err := waitOutcome(t, h); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
}

func TestRunnerInvalidConfig(t *testing.T) {
	w := &fakeWorkload{name: "add"}
	r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler)
	for _, cfg := range []Config{{MeasuredRounds: 0}, {WarmupRounds: -1, MeasuredRounds: 3}} {
		if _, err := r.StartRun(context.Background(), cfg); !IsConfigurationError(err) {
			t.Fatalf("StartRun(%+v) = %v, want configuration error", cfg, err)
		}
	}
	if w.calls.Load() != 0 || r.State() != StateIdle {
		t.Fatalf("invalid config touched the workload")
	}
}

func TestRunnerFailureReturnsToIdle(t *testing.T) {
	w := &fakeWorkload{name: "softmax", failAt: 3}
	r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler)

	h, err := r.StartRun(context.Background(), Config{WarmupRounds: 1, MeasuredRounds: 4})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	out, err := waitOutcome(t, h)
	var invErr *WorkloadInvocationError
	if !errors.As(err, &invErr) || invErr.Phase != PhaseMeasure || invErr.Completed != 1 {
		t.Fatalf("expected measure failure after 1 completed iteration, got %v", err)
	}
	if out.Report != nil || r.Last() != nil {
		t.Fatalf("failed run published a report")
	}
	if r.State() != StateIdle || w.released.Load() != 1 {
		t.Fatalf("state=%v released=%d", r.State(), w.released.Load())
	}
}

func TestRunnerWarmupPanicIsInvocationError(t *testing.T) {
	w := &fakeWorkload{name: "sigmoid", panicAt: 1}
	r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler)
	h, err := r.StartRun(context.Background(), Config{WarmupRounds: 1, MeasuredRounds: 1})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	_, err = waitOutcome(t, h)
	var invErr *WorkloadInvocationError
	if !errors.As(err, &invErr) || invErr.Phase != PhaseWarmup {
		t.Fatalf("expected warmup invocation error, got %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("runner stuck in %v", r.State())
	}
}

func TestRunnerRequiresInitialization(t *testing.T) {
	w := &initWorkload{fakeWorkload: fakeWorkload{name: "classify"}}
	r := NewRunner(w, &fakeExec{backend: "parallel"}, stubProfiler)

	if _, err := r.StartRun(context.Background(), Config{MeasuredRounds: 1}); !errors.Is(err, ErrNotInitialized) || !IsConfigurationError(err) {
		t.Fatalf("expected not-initialized configuration error, got %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("rejected run left runner in %v", r.State())
	}

	h, err := r.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	out, err := waitOutcome(t, h)
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if out.Init == nil || out.Init.ElapsedMs < 0 || out.Init.Backend != "parallel" || r.LastInit() != out.Init {
		t.Fatalf("unexpected init report %+v", out.Init)
	}

	report, err := RunAndWait(context.Background(), r, Config{MeasuredRounds: 2})
	if err != nil {
		t.Fatalf("RunAndWait: %v", err)
	}
	if len(report.Iterations) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(report.Iterations))
	}
}

func TestRunnerInitializeFailure(t *testing.T) {
	w := &initWorkload{fakeWorkload: fakeWorkload{name: "qna"}, initErr: errors.New("no passage")}
	r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler)
	_, err := InitializeAndWait(context.Background(), r)
	var invErr *WorkloadInvocationError
	if !errors.As(err, &invErr) || invErr.Phase != PhaseInitialize {
		t.Fatalf("expected initialize invocation error, got %v", err)
	}
	if r.State() != StateIdle || r.LastInit() != nil {
		t.Fatalf("failed initialization left state behind")
	}
}

func TestRunnerInitializeUnsupported(t *testing.T) {
	r := NewRunner(&fakeWorkload{name: "add"}, &fakeExec{backend: "cpu"}, stubProfiler)
	if _, err := r.Initialize(context.Background()); !IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunnerIterationCountIgnoresWarmup(t *testing.T) {
	for _, warmup := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("warmup=%d", warmup), func(t *testing.T) {
			w := &fakeWorkload{name: "add"}
			r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler)
			h, err := r.StartRun(context.Background(), Config{WarmupRounds: warmup, MeasuredRounds: 3})
			if err != nil {
				t.Fatalf("StartRun: %v", err)
			}
			out, err := waitOutcome(t, h)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if got := len(out.Report.Iterations); got != 3 {
				t.Fatalf("expected 3 iterations, got %d", got)
			}
			if got := w.calls.Load(); got != int32(warmup+3) {
				t.Fatalf("expected %d invocations, got %d", warmup+3, got)
			}
		})
	}
}

func TestRunnerRejectedRunDoesNotChangeState(t *testing.T) {
	rec := &recorder{}
	w := &initWorkload{fakeWorkload: fakeWorkload{name: "generate"}}
	r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler, WithObserver(rec))

	if _, err := r.StartRun(context.Background(), Config{MeasuredRounds: 1}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.states) != 0 {
		t.Fatalf("rejected run notified states %v", rec.states)
	}
}

func TestRunnerMeasurePanicReportsIteration(t *testing.T) {
	w := &fakeWorkload{name: "softmax", panicAt: 2}
	r := NewRunner(w, &fakeExec{backend: "cpu"}, stubProfiler)
	h, err := r.StartRun(context.Background(), Config{MeasuredRounds: 3})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	_, err = waitOutcome(t, h)
	var invErr *WorkloadInvocationError
	if !errors.As(err, &invErr) || invErr.Phase != PhaseMeasure || invErr.Iteration != 2 || invErr.Completed != 1 {
		t.Fatalf("expected measure iteration 2 failure, got %v", err)
	}
	if w.released.Load() != 1 || r.State() != StateIdle {
		t.Fatalf("released=%d state=%v", w.released.Load(), r.State())
	}
}

func TestInvocationErrorWithoutIteration(t *testing.T) {
	err := &WorkloadInvocationError{Phase: PhasePrepare, Err: errors.New("no inputs")}
	if got := err.Error(); got != "prepare failed: no inputs" {
		t.Fatalf("Error() = %q", got)
	}
}
