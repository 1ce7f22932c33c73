package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/kernelbench/internal/benchmark"
)

func sampleReport() *benchmark.Report {
	return &benchmark.Report{
		Workload:          "matmul",
		Backend:           "cpu",
		AverageDurationMs: 12.5,
		Memory:            benchmark.MemoryReport{PeakMB: 2, NewMB: 1},
		Kernels: benchmark.AggregatedReport{
			Rows:        []benchmark.KernelRow{{Kernel: "Total", TimeMs: 3}, {Kernel: "BatchMatMul", TimeMs: 3}},
			TotalTimeMs: 3,
		},
	}
}

func TestRecorderRunComplete(t *testing.T) {
	r := NewRecorder(func() string { return "cpu" })

	r.OnIteration("matmul", 1, 2, 4)
	r.OnIteration("matmul", 2, 2, 6)
	r.OnRunComplete("matmul", sampleReport(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("matmul", "cpu", "ok")))
	assert.Equal(t, 12.5, testutil.ToFloat64(r.averageDuration.WithLabelValues("matmul", "cpu")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.peakMemory.WithLabelValues("matmul", "cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.newMemory.WithLabelValues("matmul", "cpu")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.kernelTime.WithLabelValues("matmul", "cpu", "BatchMatMul")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.iterationDuration))
}

func TestRecorderReplacesKernelRows(t *testing.T) {
	r := NewRecorder(func() string { return "cpu" })
	r.OnRunComplete("matmul", sampleReport(), nil)

	next := sampleReport()
	next.Kernels.Rows = []benchmark.KernelRow{{Kernel: "Total", TimeMs: 1}, {Kernel: "Add", TimeMs: 1}}
	r.OnRunComplete("matmul", next, nil)

	assert.Equal(t, 2, testutil.CollectAndCount(r.kernelTime))
}

func TestRecorderFailures(t *testing.T) {
	r := NewRecorder(func() string { return "parallel" })
	r.OnRunComplete("add", nil, &benchmark.WorkloadInvocationError{Phase: benchmark.PhaseMeasure, Err: errors.New("boom")})
	r.OnRunComplete("add", nil, &benchmark.ConfigurationError{Field: "state", Err: benchmark.ErrBusy})
	r.OnRunComplete("add", nil, errors.New("other"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("add", "parallel", "invocation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("add", "parallel", "configuration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("add", "parallel", "error")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.averageDuration))
}

func TestRecorderStateAndInit(t *testing.T) {
	r := NewRecorder(func() string { return "cpu" })
	r.OnState("classify", benchmark.StateMeasuring)
	assert.Equal(t, 3.0, testutil.ToFloat64(r.state.WithLabelValues("classify")))

	r.OnInitComplete("classify", &benchmark.InitReport{Workload: "classify", Backend: "cpu", ElapsedMs: 42}, nil)
	assert.Equal(t, 42.0, testutil.ToFloat64(r.initTime.WithLabelValues("classify", "cpu")))
}

func TestRecorderHandler(t *testing.T) {
	r := NewRecorder(func() string { return "cpu" })
	r.OnRunComplete("matmul", sampleReport(), nil)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "kernelbench_benchmark_average_duration_ms"))
}
