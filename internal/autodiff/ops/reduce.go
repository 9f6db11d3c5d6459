package ops

import (
	"github.com/born-ml/saliency/internal/tensor"
)

// SumAllOp records the sum of every element into a scalar.
//
// Backward: ∂L/∂x_i = ∂L/∂sum for every i.
type SumAllOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumAllOp creates a new SumAllOp.
func NewSumAllOp(input, output *tensor.RawTensor) *SumAllOp {
	return &SumAllOp{input: input, output: output}
}

// Inputs returns the input tensors.
func (op *SumAllOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the scalar output.
func (op *SumAllOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumAllOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	inputGrad := ZerosLike(op.input)
	g := outputGrad.Item()
	data := inputGrad.Data()
	for i := range data {
		data[i] = g
	}
	return []*tensor.RawTensor{inputGrad}
}

// MaxDimOp records the max along one dimension, with that dimension removed.
//
// Backward routes the gradient to the first maximum along the dimension.
type MaxDimOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewMaxDimOp creates a new MaxDimOp.
func NewMaxDimOp(input, output *tensor.RawTensor, dim int) *MaxDimOp {
	return &MaxDimOp{input: input, output: output, dim: dim}
}

// Inputs returns the input tensors.
func (op *MaxDimOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *MaxDimOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient.
func (op *MaxDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MaxDimBackward(op.input, outputGrad, op.dim)}
}
