package engine

import (
	"fmt"
	"sync/atomic"
)

// Tensor is a dense float32 array owned by a Context.
type Tensor struct {
	ctx      *Context
	shape    []int
	data     []float32
	disposed atomic.Bool
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Size is the number of elements.
func (t *Tensor) Size() int {
	return len(t.data)
}

// Bytes is the storage size of the tensor.
func (t *Tensor) Bytes() int64 {
	return int64(len(t.data)) * 4
}

// Data returns a copy of the tensor's data.
func (t *Tensor) Data() []float32 {
	return append([]float32(nil), t.data...)
}

// Disposed reports whether Dispose has been called.
func (t *Tensor) Disposed() bool {
	return t.disposed.Load()
}

// Dispose frees the tensor. Calling it more than once is a no-op.
func (t *Tensor) Dispose() {
	if t == nil || !t.disposed.CompareAndSwap(false, true) {
		return
	}
	t.ctx.release(t.Bytes())
	t.data = nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func validShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("empty shape")
	}
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("invalid dimension %d in shape %v", d, shape)
		}
	}
	return nil
}
