package kernelbench

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwiater/kernelbench/internal/appconfig"
	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/engine"
	"github.com/mwiater/kernelbench/internal/metrics"
	"github.com/mwiater/kernelbench/internal/workloads"
)

// newRegistry is swapped in tests.
var newRegistry = workloads.Default

// app is the engine, workloads and runners shared by every command.
type app struct {
	cfg      appconfig.Config
	engine   *engine.Context
	registry *workloads.Registry
	recorder *metrics.Recorder
	runners  []*benchmark.Runner
	byName   map[string]*benchmark.Runner
}

// newApp builds runners for names (every registered workload when empty) on an
// engine switched to the configured backend.
func newApp(ctx context.Context, cfg appconfig.Config, names []string, observers ...benchmark.Observer) (*app, error) {
	e := engine.New(
		engine.WithSeed(cfg.Seed),
		engine.WithBackends(engine.NewParallelBackend(cfg.ParallelWorkers)),
	)
	if err := e.SwitchBackend(ctx, cfg.BackendName()); err != nil {
		return nil, err
	}
	settings, err := workloads.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		engine:   e,
		registry: newRegistry(),
		recorder: metrics.NewRecorder(e.Backend),
		byName:   make(map[string]*benchmark.Runner),
	}
	if len(names) == 0 {
		names = a.registry.Names()
	}

	opts := []benchmark.RunnerOption{benchmark.WithObserver(a.recorder)}
	for _, o := range observers {
		opts = append(opts, benchmark.WithObserver(o))
	}
	for _, name := range names {
		w, err := a.registry.New(name, e, settings)
		if err != nil {
			return nil, err
		}
		r := benchmark.NewRunner(w, e, benchmark.EngineProfiler(e), opts...)
		a.runners = append(a.runners, r)
		a.byName[r.Workload()] = r
	}
	return a, nil
}

func (a *app) runner(name string) (*benchmark.Runner, error) {
	r, ok := a.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("workload %q is not loaded", name)
	}
	return r, nil
}

// runConfig maps the app config onto a harness config.
func runConfig(cfg appconfig.Config) benchmark.Config {
	return benchmark.Config{WarmupRounds: cfg.WarmupRounds, MeasuredRounds: cfg.EpochRounds}
}
