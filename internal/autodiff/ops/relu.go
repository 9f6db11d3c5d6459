package ops

import (
	"github.com/born-ml/saliency/internal/tensor"
)

// ReLUGradient computes the input gradient of a rectifier.
//
// Implementations replace the standard derivative when a model is built with
// a gradient override. They must not modify outputGrad or input.
type ReLUGradient interface {
	ReLUBackward(outputGrad, input *tensor.RawTensor) *tensor.RawTensor
}

// StandardReLU is the usual derivative: g · [x > 0].
type StandardReLU struct{}

// ReLUBackward implements ReLUGradient.
func (StandardReLU) ReLUBackward(outputGrad, input *tensor.RawTensor) *tensor.RawTensor {
	result := ZerosLike(input)
	x, g, out := input.Data(), outputGrad.Data(), result.Data()
	for i, v := range x {
		if v > 0 {
			out[i] = g[i]
		}
	}
	return result
}

// ReLUOp represents a ReLU (Rectified Linear Unit) activation: output = max(0, x).
//
// Backward pass uses the op's gradient rule, StandardReLU unless the
// activation was built with an override.
type ReLUOp struct {
	input  *tensor.RawTensor // x
	output *tensor.RawTensor // max(0, x)
	rule   ReLUGradient
}

// NewReLUOp creates a new ReLUOp. A nil rule selects StandardReLU.
func NewReLUOp(input, output *tensor.RawTensor, rule ReLUGradient) *ReLUOp {
	if rule == nil {
		rule = StandardReLU{}
	}
	return &ReLUOp{
		input:  input,
		output: output,
		rule:   rule,
	}
}

// Backward computes input gradient for ReLU.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	if !outputGrad.Shape().Equal(op.input.Shape()) {
		panic("relu backward: gradient shape " + outputGrad.Shape().String() + " != input shape " + op.input.Shape().String())
	}
	return []*tensor.RawTensor{op.rule.ReLUBackward(outputGrad, op.input)}
}

// Inputs returns the input tensor [x].
func (op *ReLUOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor max(0, x).
func (op *ReLUOp) Output() *tensor.RawTensor {
	return op.output
}

// Rule returns the gradient rule in use.
func (op *ReLUOp) Rule() ReLUGradient {
	return op.rule
}
