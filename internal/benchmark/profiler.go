package benchmark

import (
	"context"

	"github.com/mwiater/kernelbench/internal/engine"
)

// Invocation is one call into a workload.
type Invocation func(ctx context.Context) (any, error)

// Disposable is a result that holds engine resources until released.
type Disposable interface {
	Dispose()
}

// Release disposes v if it is Disposable, or each element of a []Disposable.
// Anything else is ignored.
func Release(v any) {
	switch r := v.(type) {
	case nil:
	case Disposable:
		r.Dispose()
	case []Disposable:
		for _, d := range r {
			if d != nil {
				d.Dispose()
			}
		}
	}
}

// Profiler turns one invocation into a ResourceProfile.
type Profiler interface {
	Profile(ctx context.Context, inv Invocation) (*ResourceProfile, error)
}

// ProfilerFunc adapts a function to Profiler.
type ProfilerFunc func(ctx context.Context, inv Invocation) (*ResourceProfile, error)

func (f ProfilerFunc) Profile(ctx context.Context, inv Invocation) (*ResourceProfile, error) {
	return f(ctx, inv)
}

type engineProfiler struct {
	engine *engine.Context
}

// EngineProfiler profiles invocations with the engine's Profile primitive.
func EngineProfiler(e *engine.Context) Profiler {
	return &engineProfiler{engine: e}
}

func (p *engineProfiler) Profile(ctx context.Context, inv Invocation) (*ResourceProfile, error) {
	info, err := p.engine.Profile(ctx, func(ctx context.Context) (any, error) {
		res, err := inv(ctx)
		if err != nil {
			Release(res)
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	profile := &ResourceProfile{
		NewBytes:   info.NewBytes,
		PeakBytes:  info.PeakBytes,
		NewTensors: info.NewTensors,
		Kernels:    make([]KernelEvent, 0, len(info.Kernels)),
		Result:     info.Result,
	}
	for _, k := range info.Kernels {
		profile.Kernels = append(profile.Kernels, KernelEvent{
			Name:         k.Name,
			ExtraInfo:    k.ExtraInfo,
			BytesAdded:   k.BytesAdded,
			KernelTimeMs: k.KernelTimeMs,
			InputShapes:  k.InputShapes,
			OutputShapes: k.OutputShapes,
		})
	}
	return profile, nil
}

// Profiled builds a timed-loop task that runs inv under p.
func Profiled(p Profiler, inv Invocation) TimedTask {
	return func(ctx context.Context) (*ResourceProfile, error) {
		return p.Profile(ctx, inv)
	}
}
