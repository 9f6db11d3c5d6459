package cpu

import (
	"fmt"

	"github.com/born-ml/saliency/internal/tensor"
)

// SumAll sums every element into a scalar tensor.
func (cpu *CPUBackend) SumAll(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(tensor.Shape{}, cpu.device)
	var sum float64
	for _, v := range x.Data() {
		sum += float64(v)
	}
	result.Data()[0] = float32(sum)
	return result
}

// MaxDim takes the maximum along dim and removes that axis.
//
// Example: [1, 7, 7, 2048] with dim=-1 -> [1, 7, 7].
func (cpu *CPUBackend) MaxDim(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	r := newReduction("maxdim", x.Shape(), dim)
	result := tensor.MustNewRaw(r.outShape, cpu.device)
	src, dst := x.Data(), result.Data()

	for o := 0; o < r.outer; o++ {
		for i := 0; i < r.inner; i++ {
			best := src[o*r.size*r.inner+i]
			for d := 1; d < r.size; d++ {
				if v := src[(o*r.size+d)*r.inner+i]; v > best {
					best = v
				}
			}
			dst[o*r.inner+i] = best
		}
	}
	return result
}

// MaxDimBackward splits each output gradient evenly across the maximal
// elements along dim, as TensorFlow's reduce_max gradient does.
func (cpu *CPUBackend) MaxDimBackward(x, outputGrad *tensor.RawTensor, dim int) *tensor.RawTensor {
	r := newReduction("maxdim backward", x.Shape(), dim)
	if outputGrad.NumElements() != r.outer*r.inner {
		panic(fmt.Sprintf("maxdim backward: output gradient shape %v, expected %v", outputGrad.Shape(), r.outShape))
	}
	inputGrad := tensor.MustNewRaw(x.Shape(), cpu.device)
	src, dy, dx := x.Data(), outputGrad.Data(), inputGrad.Data()

	for o := 0; o < r.outer; o++ {
		for i := 0; i < r.inner; i++ {
			base := o*r.size*r.inner + i
			best, ties := src[base], 1
			for d := 1; d < r.size; d++ {
				switch v := src[base+d*r.inner]; {
				case v > best:
					best, ties = v, 1
				case v == best:
					ties++
				}
			}
			share := dy[o*r.inner+i] / float32(ties)
			for d := 0; d < r.size; d++ {
				if idx := base + d*r.inner; src[idx] == best {
					dx[idx] = share
				}
			}
		}
	}
	return inputGrad
}

// reduction splits a shape into outer × size × inner around one axis.
type reduction struct {
	outer, size, inner int
	outShape           tensor.Shape
}

func newReduction(op string, shape tensor.Shape, dim int) reduction {
	axis := shape.Axis(dim)
	if axis < 0 {
		panic(fmt.Sprintf("%s: dimension %d out of range for shape %v", op, dim, shape))
	}
	r := reduction{outer: 1, size: shape[axis], inner: 1}
	for i, d := range shape {
		switch {
		case i < axis:
			r.outer *= d
		case i > axis:
			r.inner *= d
		}
		if i != axis {
			r.outShape = append(r.outShape, d)
		}
	}
	if r.outShape == nil {
		r.outShape = tensor.Shape{}
	}
	return r
}
