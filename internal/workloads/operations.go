package workloads

import (
	"context"
	"fmt"
	"sync"

	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/engine"
)

var (
	conv2dInputShape  = []int{1, 128, 128, 3}
	conv2dFilterShape = []int{7, 7, 3, 16}
)

type opSpec struct {
	// inputs derives the input shapes from the configured tensor shape.
	inputs func(shape []int) ([][]int, error)
	apply  func(e *engine.Context, in []*engine.Tensor) (*engine.Tensor, error)
}

var operations = map[string]opSpec{
	"matmul": {
		inputs: func(shape []int) ([][]int, error) {
			if len(shape) != 2 && len(shape) != 3 {
				return nil, fmt.Errorf("matmul needs a rank 2 or 3 tensor shape, got %v", shape)
			}
			other := append([]int(nil), shape...)
			n := len(other)
			other[n-2], other[n-1] = other[n-1], other[n-2]
			return [][]int{shape, other}, nil
		},
		apply: func(e *engine.Context, in []*engine.Tensor) (*engine.Tensor, error) {
			return e.MatMul(in[0], in[1])
		},
	},
	"add": {
		inputs: func(shape []int) ([][]int, error) { return [][]int{shape, shape}, nil },
		apply: func(e *engine.Context, in []*engine.Tensor) (*engine.Tensor, error) {
			return e.Add(in[0], in[1])
		},
	},
	"softmax": {
		inputs: func(shape []int) ([][]int, error) { return [][]int{shape}, nil },
		apply: func(e *engine.Context, in []*engine.Tensor) (*engine.Tensor, error) {
			return e.Softmax(in[0])
		},
	},
	"sigmoid": {
		inputs: func(shape []int) ([][]int, error) { return [][]int{shape}, nil },
		apply: func(e *engine.Context, in []*engine.Tensor) (*engine.Tensor, error) {
			return e.Sigmoid(in[0])
		},
	},
	"conv2d": {
		inputs: func([]int) ([][]int, error) {
			return [][]int{conv2dInputShape, conv2dFilterShape}, nil
		},
		apply: func(e *engine.Context, in []*engine.Tensor) (*engine.Tensor, error) {
			return e.Conv2D(in[0], in[1], 1, engine.PaddingSame)
		},
	},
}

// Operation benchmarks a single engine kernel on random inputs allocated per run.
type Operation struct {
	name   string
	engine *engine.Context
	shapes [][]int
	apply  func(e *engine.Context, in []*engine.Tensor) (*engine.Tensor, error)

	mu     sync.Mutex
	inputs []*engine.Tensor
}

func newOperationConstructor(name string, op opSpec) Constructor {
	return func(e *engine.Context, s Settings) (benchmark.Workload, error) {
		shape := s.TensorShape
		if len(shape) == 0 {
			shape = DefaultTensorShape
		}
		for _, d := range shape {
			if d <= 0 {
				return nil, fmt.Errorf("%s: invalid tensor shape %v", name, shape)
			}
		}
		shapes, err := op.inputs(shape)
		if err != nil {
			return nil, err
		}
		return &Operation{name: name, engine: e, shapes: shapes, apply: op.apply}, nil
	}
}

func (o *Operation) Name() string { return o.name }

// InputShapes returns the shapes Prepare allocates.
func (o *Operation) InputShapes() [][]int { return o.shapes }

// Prepare allocates fresh random-normal inputs.
func (o *Operation) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseLocked()
	for _, shape := range o.shapes {
		t, err := o.engine.RandomNormal(shape)
		if err != nil {
			o.releaseLocked()
			return err
		}
		o.inputs = append(o.inputs, t)
	}
	return nil
}

// Invoke runs the kernel once. The returned tensor is owned by the caller.
func (o *Operation) Invoke(context.Context) (any, error) {
	o.mu.Lock()
	inputs := o.inputs
	o.mu.Unlock()
	if len(inputs) != len(o.shapes) {
		return nil, fmt.Errorf("%s: inputs not prepared", o.name)
	}
	return o.apply(o.engine, inputs)
}

// Release disposes the inputs allocated by Prepare.
func (o *Operation) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releaseLocked()
}

func (o *Operation) releaseLocked() {
	for _, t := range o.inputs {
		t.Dispose()
	}
	o.inputs = nil
}
