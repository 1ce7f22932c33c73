package engine

import (
	"fmt"
	"math"
)

// Zeros allocates a zero-filled tensor.
func (c *Context) Zeros(shape []int) (*Tensor, error) {
	if err := validShape(shape); err != nil {
		return nil, fmt.Errorf("Fill: %w", err)
	}
	return c.runKernel("Fill", nil, func(_ Backend, _ *stageTimer) (*Tensor, error) {
		return c.alloc(shape), nil
	})
}

// FromValues copies values into a new tensor of the given shape.
func (c *Context) FromValues(shape []int, values []float32) (*Tensor, error) {
	if err := validShape(shape); err != nil {
		return nil, err
	}
	if numElements(shape) != len(values) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, numElements(shape), len(values))
	}
	t := c.alloc(shape)
	copy(t.data, values)
	return t, nil
}

// RandomNormal fills a tensor with samples from N(0, 1).
func (c *Context) RandomNormal(shape []int) (*Tensor, error) {
	if err := validShape(shape); err != nil {
		return nil, fmt.Errorf("RandomStandardNormal: %w", err)
	}
	return c.runKernel("RandomStandardNormal", nil, func(_ Backend, _ *stageTimer) (*Tensor, error) {
		out := c.alloc(shape)
		c.mu.Lock()
		for i := range out.data {
			out.data[i] = float32(c.rng.NormFloat64())
		}
		c.mu.Unlock()
		return out, nil
	})
}

// MatMul multiplies [m,k]x[k,n], [B,m,k]x[B,k,n] or [B,m,k]x[k,n].
func (c *Context) MatMul(a, b *Tensor) (*Tensor, error) {
	return c.runKernel("BatchMatMul", []*Tensor{a, b}, func(be Backend, _ *stageTimer) (*Tensor, error) {
		batch, m, k, err := matDims(a.shape)
		if err != nil {
			return nil, err
		}
		bBatch, k2, n, err := matDims(b.shape)
		if err != nil {
			return nil, err
		}
		if k != k2 {
			return nil, fmt.Errorf("inner dimensions differ: %v x %v", a.shape, b.shape)
		}
		if bBatch != 1 && bBatch != batch {
			return nil, fmt.Errorf("batch dimensions differ: %v x %v", a.shape, b.shape)
		}
		outShape := []int{m, n}
		if len(a.shape) == 3 || len(b.shape) == 3 {
			outShape = []int{batch, m, n}
		}
		out := c.alloc(outShape)
		matmulInto(be, out.data, a.data, b.data, batch, m, k, n, bBatch != 1)
		return out, nil
	})
}

func matDims(shape []int) (batch, rows, cols int, err error) {
	switch len(shape) {
	case 2:
		return 1, shape[0], shape[1], nil
	case 3:
		return shape[0], shape[1], shape[2], nil
	default:
		return 0, 0, 0, fmt.Errorf("matmul needs rank 2 or 3, got shape %v", shape)
	}
}

func matmulInto(be Backend, out, a, b []float32, batch, m, k, n int, batchedB bool) {
	be.For(batch*m, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			bi := r / m
			bBase := 0
			if batchedB {
				bBase = bi * k * n
			}
			arow := a[r*k : r*k+k]
			orow := out[r*n : r*n+n]
			for p, av := range arow {
				if av == 0 {
					continue
				}
				brow := b[bBase+p*n : bBase+p*n+n]
				for j, bv := range brow {
					orow[j] += av * bv
				}
			}
		}
	})
}

// Add is element-wise addition. b may match a's shape, be a suffix of it, or be a scalar.
func (c *Context) Add(a, b *Tensor) (*Tensor, error) {
	return c.binary("Add", a, b, func(x, y float32) float32 { return x + y })
}

// Mul is element-wise multiplication with the same broadcasting rules as Add.
func (c *Context) Mul(a, b *Tensor) (*Tensor, error) {
	return c.binary("Multiply", a, b, func(x, y float32) float32 { return x * y })
}

func (c *Context) binary(name string, a, b *Tensor, op func(x, y float32) float32) (*Tensor, error) {
	return c.runKernel(name, []*Tensor{a, b}, func(be Backend, _ *stageTimer) (*Tensor, error) {
		if !broadcastable(a.shape, b.shape) {
			return nil, fmt.Errorf("cannot broadcast %v with %v", a.shape, b.shape)
		}
		out := c.alloc(a.shape)
		bn := len(b.data)
		be.For(len(out.data), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				out.data[i] = op(a.data[i], b.data[i%bn])
			}
		})
		return out, nil
	})
}

func broadcastable(a, b []int) bool {
	if numElements(b) == 1 {
		return true
	}
	if len(b) > len(a) {
		return false
	}
	return sameShape(a[len(a)-len(b):], b)
}

// Sigmoid applies 1/(1+e^-x).
func (c *Context) Sigmoid(x *Tensor) (*Tensor, error) {
	return c.unary("Sigmoid", x, func(v float32) float32 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	})
}

// Relu applies max(0, x).
func (c *Context) Relu(x *Tensor) (*Tensor, error) {
	return c.unary("Relu", x, func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	})
}

// Tanh applies the hyperbolic tangent.
func (c *Context) Tanh(x *Tensor) (*Tensor, error) {
	return c.unary("Tanh", x, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

func (c *Context) unary(name string, x *Tensor, op func(float32) float32) (*Tensor, error) {
	return c.runKernel(name, []*Tensor{x}, func(be Backend, _ *stageTimer) (*Tensor, error) {
		out := c.alloc(x.shape)
		be.For(len(out.data), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				out.data[i] = op(x.data[i])
			}
		})
		return out, nil
	})
}

// Softmax normalizes over the last axis. Its kernel record breaks the work into
// Max, Sub, Exp, Sum and Div stages.
func (c *Context) Softmax(x *Tensor) (*Tensor, error) {
	return c.runKernel("Softmax", []*Tensor{x}, func(be Backend, st *stageTimer) (*Tensor, error) {
		width := x.shape[len(x.shape)-1]
		rows := len(x.data) / width
		out := c.alloc(x.shape)
		maxes := make([]float32, rows)
		sums := make([]float64, rows)

		be.For(rows, func(lo, hi int) {
			for r := lo; r < hi; r++ {
				row := x.data[r*width : r*width+width]
				m := row[0]
				for _, v := range row[1:] {
					if v > m {
						m = v
					}
				}
				maxes[r] = m
			}
		})
		st.mark("Max")
		be.For(rows, func(lo, hi int) {
			for r := lo; r < hi; r++ {
				for j := r * width; j < r*width+width; j++ {
					out.data[j] = x.data[j] - maxes[r]
				}
			}
		})
		st.mark("Sub")
		be.For(len(out.data), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				out.data[i] = float32(math.Exp(float64(out.data[i])))
			}
		})
		st.mark("Exp")
		be.For(rows, func(lo, hi int) {
			for r := lo; r < hi; r++ {
				var s float64
				for _, v := range out.data[r*width : r*width+width] {
					s += float64(v)
				}
				sums[r] = s
			}
		})
		st.mark("Sum")
		be.For(rows, func(lo, hi int) {
			for r := lo; r < hi; r++ {
				for j := r * width; j < r*width+width; j++ {
					out.data[j] = float32(float64(out.data[j]) / sums[r])
				}
			}
		})
		st.mark("Div")
		return out, nil
	})
}

// Padding selects the Conv2D output size rule.
type Padding string

const (
	PaddingValid Padding = "valid"
	PaddingSame  Padding = "same"
)

// Conv2D convolves x [N,H,W,C] with filter [KH,KW,C,O]. The kernel record reports
// separate Im2Col and MatMul stages.
func (c *Context) Conv2D(x, filter *Tensor, stride int, padding Padding) (*Tensor, error) {
	return c.runKernel("Conv2D", []*Tensor{x, filter}, func(be Backend, st *stageTimer) (*Tensor, error) {
		if len(x.shape) != 4 || len(filter.shape) != 4 {
			return nil, fmt.Errorf("conv2d needs rank 4 input and filter, got %v and %v", x.shape, filter.shape)
		}
		if stride <= 0 {
			return nil, fmt.Errorf("stride must be positive, got %d", stride)
		}
		n, h, w, ch := x.shape[0], x.shape[1], x.shape[2], x.shape[3]
		kh, kw, fc, oc := filter.shape[0], filter.shape[1], filter.shape[2], filter.shape[3]
		if fc != ch {
			return nil, fmt.Errorf("filter expects %d channels, input has %d", fc, ch)
		}
		oh, padTop := convOut(h, kh, stride, padding)
		ow, padLeft := convOut(w, kw, stride, padding)
		if oh <= 0 || ow <= 0 {
			return nil, fmt.Errorf("filter %v larger than input %v", filter.shape, x.shape)
		}

		patch := kh * kw * ch
		cols := c.alloc([]int{n * oh * ow, patch})
		defer cols.Dispose()
		be.For(n*oh*ow, func(lo, hi int) {
			for r := lo; r < hi; r++ {
				b := r / (oh * ow)
				oy := (r / ow) % oh
				ox := r % ow
				dst := cols.data[r*patch : r*patch+patch]
				idx := 0
				for ky := 0; ky < kh; ky++ {
					iy := oy*stride + ky - padTop
					for kx := 0; kx < kw; kx++ {
						ix := ox*stride + kx - padLeft
						if iy < 0 || iy >= h || ix < 0 || ix >= w {
							for ci := 0; ci < ch; ci++ {
								dst[idx] = 0
								idx++
							}
							continue
						}
						base := ((b*h+iy)*w + ix) * ch
						idx += copy(dst[idx:idx+ch], x.data[base:base+ch])
					}
				}
			}
		})
		st.mark("Im2Col")

		out := c.alloc([]int{n, oh, ow, oc})
		matmulInto(be, out.data, cols.data, filter.data, 1, n*oh*ow, patch, oc, false)
		st.mark("MatMul")
		return out, nil
	})
}

func convOut(in, k, stride int, padding Padding) (out, padBefore int) {
	if padding == PaddingSame {
		out = (in + stride - 1) / stride
		total := max((out-1)*stride+k-in, 0)
		return out, total / 2
	}
	return (in-k)/stride + 1, 0
}

// AvgPool averages each channel over the spatial dimensions: [N,H,W,C] -> [N,C].
func (c *Context) AvgPool(x *Tensor) (*Tensor, error) {
	return c.runKernel("Mean", []*Tensor{x}, func(be Backend, _ *stageTimer) (*Tensor, error) {
		if len(x.shape) != 4 {
			return nil, fmt.Errorf("avgpool needs rank 4 input, got %v", x.shape)
		}
		n, h, w, ch := x.shape[0], x.shape[1], x.shape[2], x.shape[3]
		out := c.alloc([]int{n, ch})
		area := float32(h * w)
		be.For(n, func(lo, hi int) {
			for b := lo; b < hi; b++ {
				acc := out.data[b*ch : b*ch+ch]
				for p := 0; p < h*w; p++ {
					px := x.data[(b*h*w+p)*ch : (b*h*w+p)*ch+ch]
					for ci, v := range px {
						acc[ci] += v
					}
				}
				for ci := range acc {
					acc[ci] /= area
				}
			}
		})
		return out, nil
	})
}

// Gather selects rows of a [V,D] table: the result is [len(indices), D].
func (c *Context) Gather(table *Tensor, indices []int) (*Tensor, error) {
	return c.runKernel("GatherV2", []*Tensor{table}, func(_ Backend, _ *stageTimer) (*Tensor, error) {
		if len(table.shape) != 2 {
			return nil, fmt.Errorf("gather needs a rank 2 table, got %v", table.shape)
		}
		if len(indices) == 0 {
			return nil, fmt.Errorf("no indices")
		}
		v, d := table.shape[0], table.shape[1]
		for _, idx := range indices {
			if idx < 0 || idx >= v {
				return nil, fmt.Errorf("index %d out of range [0,%d)", idx, v)
			}
		}
		out := c.alloc([]int{len(indices), d})
		for i, idx := range indices {
			copy(out.data[i*d:i*d+d], table.data[idx*d:idx*d+d])
		}
		return out, nil
	})
}

// Row slices row i of a rank 2 tensor as a [1,D] tensor.
func (c *Context) Row(x *Tensor, i int) (*Tensor, error) {
	return c.runKernel("Slice", []*Tensor{x}, func(_ Backend, _ *stageTimer) (*Tensor, error) {
		if len(x.shape) != 2 {
			return nil, fmt.Errorf("row needs a rank 2 tensor, got %v", x.shape)
		}
		if i < 0 || i >= x.shape[0] {
			return nil, fmt.Errorf("row %d out of range [0,%d)", i, x.shape[0])
		}
		d := x.shape[1]
		out := c.alloc([]int{1, d})
		copy(out.data, x.data[i*d:i*d+d])
		return out, nil
	})
}

// Transpose swaps the two axes of a rank 2 tensor.
func (c *Context) Transpose(x *Tensor) (*Tensor, error) {
	return c.runKernel("Transpose", []*Tensor{x}, func(be Backend, _ *stageTimer) (*Tensor, error) {
		if len(x.shape) != 2 {
			return nil, fmt.Errorf("transpose needs a rank 2 tensor, got %v", x.shape)
		}
		rows, cols := x.shape[0], x.shape[1]
		out := c.alloc([]int{cols, rows})
		be.For(rows, func(lo, hi int) {
			for r := lo; r < hi; r++ {
				for j := 0; j < cols; j++ {
					out.data[j*rows+r] = x.data[r*cols+j]
				}
			}
		})
		return out, nil
	})
}
