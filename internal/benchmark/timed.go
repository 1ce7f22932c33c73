package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errNoProfile = errors.New("profiler returned no profile")

// TimedTask performs one profiled workload invocation.
type TimedTask func(ctx context.Context) (*ResourceProfile, error)

// IterationHook is called after each measured iteration completes.
type IterationHook func(iteration, total int, durationMs float64)

// RunTimed runs task rounds times, one after another, and returns one sample per
// iteration plus the profile of the last iteration. Disposable results are released
// after every iteration, including the last, so the returned profile never holds one.
func RunTimed(ctx context.Context, task TimedTask, rounds int) ([]IterationSample, *ResourceProfile, error) {
	return RunTimedWithHook(ctx, task, rounds, nil)
}

// RunTimedWithHook is RunTimed with a progress callback.
func RunTimedWithHook(ctx context.Context, task TimedTask, rounds int, hook IterationHook) ([]IterationSample, *ResourceProfile, error) {
	if rounds < 1 {
		return nil, nil, &ConfigurationError{Field: "epochRounds", Reason: fmt.Sprintf("must be >= 1, got %d", rounds)}
	}

	samples := make([]IterationSample, 0, rounds)
	var retained *ResourceProfile
	for i := 0; i < rounds; i++ {
		profile, elapsed, err := timedOnce(ctx, task)
		if err != nil {
			return nil, nil, &WorkloadInvocationError{Phase: PhaseMeasure, Iteration: i + 1, Completed: len(samples), Err: err}
		}
		samples = append(samples, IterationSample{DurationMs: elapsed})
		if i == rounds-1 {
			retained = profile
		}
		if hook != nil {
			hook(i+1, rounds, elapsed)
		}
	}
	return samples, retained, nil
}

func timedOnce(ctx context.Context, task TimedTask) (*ResourceProfile, float64, error) {
	var profile *ResourceProfile
	defer func() {
		if profile != nil {
			releaseResult(profile)
		}
	}()

	start := time.Now()
	profile, err := callTimed(ctx, task)
	elapsed := durationMs(time.Since(start))
	if err != nil {
		return nil, 0, err
	}
	if profile == nil {
		return nil, 0, errNoProfile
	}
	return profile, elapsed, nil
}

func callTimed(ctx context.Context, task TimedTask) (profile *ResourceProfile, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			profile, err = nil, panicError(rec)
		}
	}()
	return task(ctx)
}

// releaseResult disposes a disposable result and drops it from the profile.
// Plain values stay so they can be reported as the run's output.
func releaseResult(p *ResourceProfile) {
	switch p.Result.(type) {
	case Disposable, []Disposable:
		Release(p.Result)
		p.Result = nil
	}
}
