// internal/engine/engine.go
// Package engine is a small forward-only tensor engine with byte accounting and a
// profiling primitive. It is the computation runtime the benchmark harness drives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultBackend = "cpu"

// ErrNestedProfile is returned when Profile is called while another profile is open.
var ErrNestedProfile = errors.New("engine: profile already in progress")

// MemoryInfo is a snapshot of the engine's live allocations.
type MemoryInfo struct {
	NumTensors int   `json:"numTensors"`
	NumBytes   int64 `json:"numBytes"`
	PeakBytes  int64 `json:"peakBytes"`
}

// KernelRecord describes one kernel executed inside a profile scope.
type KernelRecord struct {
	Name         string  `json:"name"`
	ExtraInfo    string  `json:"extraInfo"`
	BytesAdded   int64   `json:"bytesAdded"`
	TotalBytes   int64   `json:"totalBytesSnapshot"`
	KernelTimeMs float64 `json:"kernelTimeMs"`
	InputShapes  [][]int `json:"inputShapes"`
	OutputShapes [][]int `json:"outputShapes"`
}

// ProfileInfo is the result of a Profile call.
type ProfileInfo struct {
	NewBytes   int64          `json:"newBytes"`
	NewTensors int            `json:"newTensors"`
	PeakBytes  int64          `json:"peakBytes"`
	Kernels    []KernelRecord `json:"kernels"`
	Result     any            `json:"-"`
}

type profileScope struct {
	startBytes   int64
	startTensors int
	peakBytes    int64
	kernels      []KernelRecord
}

type tidyScope struct {
	tensors []*Tensor
}

// Context owns the active backend and all tensor bookkeeping. One Context is shared
// by every workload in the process.
type Context struct {
	mu         sync.Mutex
	backends   map[string]Backend
	active     Backend
	rng        *rand.Rand
	numTensors int
	numBytes   int64
	peakBytes  int64
	profile    *profileScope
	scopes     []*tidyScope
}

// Option configures a Context.
type Option func(*Context)

// WithSeed seeds the random generator used by RandomNormal.
func WithSeed(seed int64) Option {
	return func(c *Context) {
		c.rng = rand.New(rand.NewSource(seed))
	}
}

// WithBackends registers additional backends.
func WithBackends(backends ...Backend) Option {
	return func(c *Context) {
		for _, b := range backends {
			c.backends[strings.ToLower(b.Name())] = b
		}
	}
}

// New creates a Context with the cpu and parallel backends registered and cpu active.
func New(opts ...Option) *Context {
	c := &Context{
		backends: map[string]Backend{
			"cpu":      cpuBackend{},
			"parallel": &parallelBackend{},
		},
		rng: rand.New(rand.NewSource(42)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.active = c.backends[defaultBackend]
	return c
}

// Backends lists the registered backend names in sorted order.
func (c *Context) Backends() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.backends))
	for name := range c.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend returns the name of the active backend.
func (c *Context) Backend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.Name()
}

// SwitchBackend makes name the active backend once its Setup has completed.
func (c *Context) SwitchBackend(ctx context.Context, name string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	c.mu.Lock()
	b, ok := c.backends[key]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown backend %q (available: %s)", name, strings.Join(c.Backends(), ", "))
	}
	if err := b.Setup(ctx); err != nil {
		return fmt.Errorf("setup backend %s: %w", b.Name(), err)
	}
	c.mu.Lock()
	c.active = b
	c.mu.Unlock()
	return nil
}

// Memory reports live tensor counts and bytes.
func (c *Context) Memory() MemoryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MemoryInfo{NumTensors: c.numTensors, NumBytes: c.numBytes, PeakBytes: c.peakBytes}
}

// Profile runs fn and records every kernel it executes. NewBytes is the net number of
// bytes still allocated when fn returns; PeakBytes is the highest live byte count seen
// while fn ran.
func (c *Context) Profile(ctx context.Context, fn func(context.Context) (any, error)) (*ProfileInfo, error) {
	c.mu.Lock()
	if c.profile != nil {
		c.mu.Unlock()
		return nil, ErrNestedProfile
	}
	scope := &profileScope{
		startBytes:   c.numBytes,
		startTensors: c.numTensors,
		peakBytes:    c.numBytes,
	}
	c.profile = scope
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.profile = nil
		c.mu.Unlock()
	}()

	result, err := fn(ctx)
	if err != nil {
		disposeResult(result)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return &ProfileInfo{
		NewBytes:   c.numBytes - scope.startBytes,
		NewTensors: c.numTensors - scope.startTensors,
		PeakBytes:  scope.peakBytes,
		Kernels:    scope.kernels,
		Result:     result,
	}, nil
}

type disposer interface{ Dispose() }

func disposeResult(v any) {
	switch r := v.(type) {
	case disposer:
		r.Dispose()
	case []*Tensor:
		for _, t := range r {
			t.Dispose()
		}
	}
}

// Tidy disposes every tensor allocated inside fn except the one it returns.
// If fn panics, everything allocated inside it is disposed and the scope is
// closed before the panic continues.
func (c *Context) Tidy(fn func() (*Tensor, error)) (*Tensor, error) {
	scope := &tidyScope{}
	c.mu.Lock()
	c.scopes = append(c.scopes, scope)
	depth := len(c.scopes)
	c.mu.Unlock()

	returned := false
	defer func() {
		if returned {
			return
		}
		c.popScope(depth)
		for _, t := range scope.tensors {
			t.Dispose()
		}
	}()

	out, err := fn()
	returned = true
	parent := c.popScope(depth)

	for _, t := range scope.tensors {
		if t != out {
			t.Dispose()
		}
	}
	if err != nil {
		out.Dispose()
		return nil, err
	}
	if out != nil && parent != nil {
		c.mu.Lock()
		parent.tensors = append(parent.tensors, out)
		c.mu.Unlock()
	}
	return out, nil
}

// popScope closes the tidy scope at depth and any left open above it, and
// returns the enclosing scope.
func (c *Context) popScope(depth int) *tidyScope {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.scopes) >= depth {
		c.scopes = c.scopes[:depth-1]
	}
	if n := len(c.scopes); n > 0 {
		return c.scopes[n-1]
	}
	return nil
}

func (c *Context) backend() Backend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Context) alloc(shape []int) *Tensor {
	t := &Tensor{
		ctx:   c,
		shape: append([]int(nil), shape...),
		data:  make([]float32, numElements(shape)),
	}
	c.track(t)
	return t
}

func (c *Context) track(t *Tensor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numTensors++
	c.numBytes += t.Bytes()
	if c.numBytes > c.peakBytes {
		c.peakBytes = c.numBytes
	}
	if c.profile != nil && c.numBytes > c.profile.peakBytes {
		c.profile.peakBytes = c.numBytes
	}
	if n := len(c.scopes); n > 0 {
		c.scopes[n-1].tensors = append(c.scopes[n-1].tensors, t)
	}
}

func (c *Context) release(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numTensors--
	c.numBytes -= bytes
}

// stage is a named sub-step of a kernel, reported in the kernel's ExtraInfo.
type stage struct {
	name string
	ms   float64
}

type stageTimer struct {
	stages []stage
	last   time.Time
}

func newStageTimer() *stageTimer {
	return &stageTimer{last: time.Now()}
}

func (s *stageTimer) mark(name string) {
	now := time.Now()
	s.stages = append(s.stages, stage{name: name, ms: float64(now.Sub(s.last)) / float64(time.Millisecond)})
	s.last = now
}

// runKernel executes compute on the active backend and, when a profile is open,
// records a KernelRecord for it.
func (c *Context) runKernel(name string, inputs []*Tensor, compute func(b Backend, st *stageTimer) (*Tensor, error)) (*Tensor, error) {
	for _, in := range inputs {
		if in == nil || in.Disposed() {
			return nil, fmt.Errorf("%s: input tensor is disposed", name)
		}
	}
	before := c.Memory().NumBytes
	st := newStageTimer()
	start := st.last
	out, err := compute(c.backend(), st)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile == nil {
		return out, nil
	}
	rec := KernelRecord{
		Name:         name,
		ExtraInfo:    formatExtraInfo(name, elapsed, st.stages),
		BytesAdded:   c.numBytes - before,
		TotalBytes:   c.numBytes,
		KernelTimeMs: elapsed,
		OutputShapes: [][]int{out.Shape()},
	}
	for _, in := range inputs {
		rec.InputShapes = append(rec.InputShapes, in.Shape())
	}
	c.profile.kernels = append(c.profile.kernels, rec)
	return out, nil
}

// formatExtraInfo renders "Name: 1.2345" or, for staged kernels,
// "Stage1: 0.1000, Stage2: 0.2000".
func formatExtraInfo(name string, elapsed float64, stages []stage) string {
	if len(stages) == 0 {
		return fmt.Sprintf("%s: %.4f", name, elapsed)
	}
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, fmt.Sprintf("%s: %.4f", s.name, s.ms))
	}
	return strings.Join(parts, ", ")
}
