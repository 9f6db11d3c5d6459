package cpu

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/saliency/internal/tensor"
)

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), cpu.device)
	dst := result.Data()
	for i, v := range x.Data() {
		if v > 0 {
			dst[i] = v
		}
	}
	return result
}

// Softmax normalizes along the last axis.
// Softmax(x_i) = exp(x_i - max) / sum(exp(x_j - max)).
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 {
		panic("softmax: scalar input")
	}
	width := shape[len(shape)-1]
	result := tensor.MustNewRaw(shape, cpu.device)
	src, dst := x.Data(), result.Data()

	for row := 0; row < len(src)/width; row++ {
		in := src[row*width:][:width]
		out := dst[row*width:][:width]

		maxVal := math32.Inf(-1)
		for _, v := range in {
			maxVal = math32.Max(maxVal, v)
		}
		var sum float32
		for i, v := range in {
			e := math32.Exp(v - maxVal)
			out[i] = e
			sum += e
		}
		for i := range out {
			out[i] /= sum
		}
	}
	return result
}
