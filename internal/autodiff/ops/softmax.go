package ops

import (
	"github.com/born-ml/saliency/internal/tensor"
)

// SoftmaxOp represents the softmax operation along the last dimension.
//
// Backward:
//
//	∂L/∂x_j = softmax_j * (∂L/∂softmax_j - Σ_i (∂L/∂softmax_i * softmax_i))
//
// The output is cached for the backward pass.
type SoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSoftmaxOp creates a new softmax operation.
func NewSoftmaxOp(input, output *tensor.RawTensor) *SoftmaxOp {
	return &SoftmaxOp{
		input:  input,
		output: output,
	}
}

// Inputs returns the input tensors.
func (op *SoftmaxOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SoftmaxOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the gradient with respect to input, row by row over
// the last axis.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	classes := shape[len(shape)-1]
	rows := shape.NumElements() / classes

	inputGrad := ZerosLike(op.input)
	y, g, dx := op.output.Data(), outputGrad.Data(), inputGrad.Data()

	for r := 0; r < rows; r++ {
		base := r * classes
		var dot float32
		for j := 0; j < classes; j++ {
			dot += g[base+j] * y[base+j]
		}
		for j := 0; j < classes; j++ {
			dx[base+j] = y[base+j] * (g[base+j] - dot)
		}
	}

	return []*tensor.RawTensor{inputGrad}
}
