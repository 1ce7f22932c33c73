// Package workloads holds the tasks kernelbench can measure: raw tensor operations
// and three small models (image classifier, character generator, passage QnA).
package workloads

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mwiater/kernelbench/internal/appconfig"
	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/engine"
)

//go:embed assets/passage.txt
var defaultPassage string

const (
	defaultImage    = "dog"
	defaultSeedText = "the quick brown fox jumps over"
	defaultQuestion = "what is discarded before measurement begins?"
)

// DefaultTensorShape is the input shape used by the operation workloads.
var DefaultTensorShape = []int{2, 256, 256}

// Settings are the inputs handed to workload constructors.
type Settings struct {
	Seed        int64
	TensorShape []int
	Image       string
	SeedText    string
	Question    string
	Passage     string
}

// DefaultSettings returns the built-in workload inputs.
func DefaultSettings() Settings {
	return Settings{
		Seed:        appconfig.DefaultSeed,
		TensorShape: append([]int(nil), DefaultTensorShape...),
		Image:       defaultImage,
		SeedText:    defaultSeedText,
		Question:    defaultQuestion,
		Passage:     defaultPassage,
	}
}

// SettingsFromConfig overlays configured workload inputs on the defaults. A
// configured passage file replaces the embedded passage.
func SettingsFromConfig(cfg appconfig.Config) (Settings, error) {
	s := DefaultSettings()
	s.Seed = cfg.Seed
	w := cfg.Workloads
	if len(w.TensorShape) > 0 {
		s.TensorShape = append([]int(nil), w.TensorShape...)
	}
	if w.Image != "" {
		s.Image = w.Image
	}
	if w.SeedText != "" {
		s.SeedText = w.SeedText
	}
	if w.Question != "" {
		s.Question = w.Question
	}
	if path := strings.TrimSpace(w.PassageFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read passage file: %w", err)
		}
		s.Passage = string(data)
	}
	return s, nil
}

// Constructor builds a workload bound to an engine.
type Constructor func(e *engine.Context, s Settings) (benchmark.Workload, error)

// Registry maps workload names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Default returns a registry with every built-in workload registered.
func Default() *Registry {
	r := NewRegistry()
	for name, op := range operations {
		r.mustRegister(name, newOperationConstructor(name, op))
	}
	r.mustRegister(ClassifierName, NewClassifier)
	r.mustRegister(GeneratorName, NewGenerator)
	r.mustRegister(QnAName, NewQnA)
	return r
}

// Register adds a constructor under name.
func (r *Registry) Register(name string, c Constructor) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("workload name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctors[name]; ok {
		return fmt.Errorf("workload %q already registered", name)
	}
	r.ctors[name] = c
	return nil
}

func (r *Registry) mustRegister(name string, c Constructor) {
	if err := r.Register(name, c); err != nil {
		panic(err)
	}
}

// Names lists registered workloads in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the named workload.
func (r *Registry) New(name string, e *engine.Context, s Settings) (benchmark.Workload, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	c, ok := r.ctors[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown workload %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return c(e, s)
}
