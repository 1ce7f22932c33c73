package benchmark

import (
	"fmt"
	"time"
)

// Config controls a single benchmark run.
type Config struct {
	WarmupRounds   int `json:"warmupRounds"`
	MeasuredRounds int `json:"epochRounds"`
}

// Validate rejects negative warmup counts and fewer than one measured round.
func (c Config) Validate() error {
	if c.WarmupRounds < 0 {
		return &ConfigurationError{Field: "warmupRounds", Reason: fmt.Sprintf("must be >= 0, got %d", c.WarmupRounds)}
	}
	if c.MeasuredRounds < 1 {
		return &ConfigurationError{Field: "epochRounds", Reason: fmt.Sprintf("must be >= 1, got %d", c.MeasuredRounds)}
	}
	return nil
}

// IterationSample is the wall-clock duration of one measured iteration.
type IterationSample struct {
	DurationMs float64 `json:"durationMs"`
}

// KernelEvent is one kernel recorded by the profiler. ExtraInfo is a loosely
// formatted "name: time, name: time" diagnostic string.
type KernelEvent struct {
	Name         string  `json:"name"`
	ExtraInfo    string  `json:"extraInfo"`
	BytesAdded   int64   `json:"bytesAdded"`
	KernelTimeMs float64 `json:"kernelTimeMs"`
	InputShapes  [][]int `json:"inputShapes,omitempty"`
	OutputShapes [][]int `json:"outputShapes,omitempty"`
}

// ResourceProfile is what the profiler captured for one invocation.
type ResourceProfile struct {
	NewBytes   int64         `json:"newBytes"`
	PeakBytes  int64         `json:"peakBytes"`
	NewTensors int           `json:"newTensors"`
	Kernels    []KernelEvent `json:"kernels"`
	Result     any           `json:"-"`
}

// ParsedKernelSample is a single name/time pair decoded from ExtraInfo.
type ParsedKernelSample struct {
	Kernel string  `json:"kernel"`
	TimeMs float64 `json:"timeMs"`
}

// KernelRow is one line of the kernel breakdown.
type KernelRow struct {
	Kernel string  `json:"kernel"`
	TimeMs float64 `json:"timeMs"`
}

// AggregatedReport holds a "Total" row followed by per-kernel sums, slowest first.
type AggregatedReport struct {
	Rows        []KernelRow `json:"rows"`
	TotalTimeMs float64     `json:"totalTimeMs"`
}

// MemoryReport is a ResourceProfile's byte counters in megabytes.
type MemoryReport struct {
	PeakMB float64 `json:"peakMB"`
	NewMB  float64 `json:"newMB"`
}

// Report is the published result of a completed run.
type Report struct {
	RunID             string            `json:"runId"`
	Workload          string            `json:"workload"`
	Backend           string            `json:"backend"`
	Config            Config            `json:"config"`
	Kernels           AggregatedReport  `json:"kernels"`
	Memory            MemoryReport      `json:"memory"`
	AverageDurationMs float64           `json:"averageDurationMs"`
	Iterations        []IterationSample `json:"iterations"`
	Output            any               `json:"output,omitempty"`
	StartedAt         time.Time         `json:"startedAt"`
	FinishedAt        time.Time         `json:"finishedAt"`

	// Profile is the retained last-iteration profile. It is not exported.
	Profile *ResourceProfile `json:"-"`
}

// InitReport is the result of a one-time initialization timing.
type InitReport struct {
	RunID      string    `json:"runId"`
	Workload   string    `json:"workload"`
	Backend    string    `json:"backend"`
	ElapsedMs  float64   `json:"elapsedMs"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Outcome is delivered when a RunHandle completes. Exactly one of Report, Init and
// Err is set.
type Outcome struct {
	Report *Report     `json:"report,omitempty"`
	Init   *InitReport `json:"init,omitempty"`
	Err    error       `json:"-"`
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
