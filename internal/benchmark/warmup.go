package benchmark

import (
	"context"
	"fmt"
)

// RunWarmup invokes task rounds times without timing it, releasing every result
// as soon as it returns. Zero rounds is a no-op. The first failure aborts warmup.
func RunWarmup(ctx context.Context, task Invocation, rounds int) error {
	if rounds < 0 {
		return &ConfigurationError{Field: "warmupRounds", Reason: fmt.Sprintf("must be >= 0, got %d", rounds)}
	}
	for i := 0; i < rounds; i++ {
		if err := warmupOnce(ctx, task); err != nil {
			return &WorkloadInvocationError{Phase: PhaseWarmup, Iteration: i + 1, Completed: i, Err: err}
		}
	}
	return nil
}

func warmupOnce(ctx context.Context, task Invocation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
		}
	}()
	result, err := task(ctx)
	Release(result)
	return err
}
