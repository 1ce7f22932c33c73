// internal/metrics/metrics.go
// Package metrics exports benchmark run results as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mwiater/kernelbench/internal/benchmark"
)

const (
	namespace = "kernelbench"
	subsystem = "benchmark"
)

// Recorder is a benchmark.Observer that keeps Prometheus collectors in sync with
// the runs it observes. Each Recorder owns its registry.
type Recorder struct {
	registry *prometheus.Registry
	backend  func() string

	// runs counts finished runs. Labels: workload, backend, status (ok, configuration, invocation, error)
	runs *prometheus.CounterVec
	// iterationDuration is the distribution of measured iteration durations.
	iterationDuration *prometheus.HistogramVec
	// averageDuration is the average iteration duration of the last run.
	averageDuration *prometheus.GaugeVec
	// kernelTime is the per-kernel time of the last run's retained profile.
	kernelTime *prometheus.GaugeVec
	peakMemory *prometheus.GaugeVec
	newMemory  *prometheus.GaugeVec
	initTime   *prometheus.GaugeVec
	// state is the runner state as its numeric value (0 idle ... 4 reporting).
	state *prometheus.GaugeVec
}

// NewRecorder creates a Recorder. backend reports the active engine backend and is
// read whenever a sample is recorded.
func NewRecorder(backend func() string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	r := &Recorder{registry: reg, backend: backend}

	r.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "runs_total",
		Help:      "Finished benchmark runs by outcome",
	}, []string{"workload", "backend", "status"})

	r.iterationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "iteration_duration_ms",
		Help:      "Wall-clock duration of measured iterations in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"workload", "backend"})

	r.averageDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "average_duration_ms",
		Help:      "Average iteration duration of the latest run in milliseconds",
	}, []string{"workload", "backend"})

	r.kernelTime = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "kernel_time_ms",
		Help:      "Per-kernel time of the latest run's final iteration in milliseconds",
	}, []string{"workload", "backend", "kernel"})

	r.peakMemory = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "peak_memory_mb",
		Help:      "Peak engine memory during the latest run's final iteration",
	}, []string{"workload", "backend"})

	r.newMemory = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "new_memory_mb",
		Help:      "Engine memory retained after the latest run's final iteration",
	}, []string{"workload", "backend"})

	r.initTime = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "initialization_ms",
		Help:      "Duration of the latest workload initialization in milliseconds",
	}, []string{"workload", "backend"})

	r.state = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "runner_state",
		Help:      "Current runner state (0=idle, 1=initializing, 2=warming_up, 3=measuring, 4=reporting)",
	}, []string{"workload"})

	return r
}

// Registry exposes the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) OnState(workload string, state benchmark.State) {
	r.state.WithLabelValues(workload).Set(float64(state))
}

func (r *Recorder) OnIteration(workload string, _, _ int, durationMs float64) {
	r.iterationDuration.WithLabelValues(workload, r.backend()).Observe(durationMs)
}

func (r *Recorder) OnRunComplete(workload string, report *benchmark.Report, err error) {
	backend := r.backend()
	if report != nil {
		backend = report.Backend
	}
	r.runs.WithLabelValues(workload, backend, statusOf(err)).Inc()
	if err != nil || report == nil {
		return
	}

	r.averageDuration.WithLabelValues(workload, backend).Set(report.AverageDurationMs)
	r.peakMemory.WithLabelValues(workload, backend).Set(report.Memory.PeakMB)
	r.newMemory.WithLabelValues(workload, backend).Set(report.Memory.NewMB)

	r.kernelTime.DeletePartialMatch(prometheus.Labels{"workload": workload})
	for _, row := range report.Kernels.Rows {
		r.kernelTime.WithLabelValues(workload, backend, row.Kernel).Set(row.TimeMs)
	}
}

func (r *Recorder) OnInitComplete(workload string, report *benchmark.InitReport, err error) {
	if err != nil || report == nil {
		return
	}
	r.initTime.WithLabelValues(workload, report.Backend).Set(report.ElapsedMs)
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, benchmark.ErrBusy), benchmark.IsConfigurationError(err):
		return "configuration"
	case benchmark.IsInvocationError(err):
		return "invocation"
	default:
		return "error"
	}
}
