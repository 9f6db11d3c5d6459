package ops

import (
	"github.com/born-ml/saliency/internal/tensor"
)

// Conv2DOp records a 2D convolution operation for autodiff.
//
// Forward: output = Conv2D(input, kernel, window)
//
// Backward:
//   - d_input: transposed convolution of d_output with the kernel
//   - d_kernel: not computed (weights are frozen)
type Conv2DOp struct {
	input  *tensor.RawTensor
	kernel *tensor.RawTensor
	output *tensor.RawTensor
	win    tensor.Window
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, win tensor.Window) *Conv2DOp {
	return &Conv2DOp{
		input:  input,
		kernel: kernel,
		output: output,
		win:    win,
	}
}

// Inputs returns the input tensors.
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward delegates the input gradient to the backend.
//
//	outputGrad: ∂L/∂output [N, H_out, W_out, C_out]
//	returns:    [∂L/∂input [N, H, W, C_in], nil]
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.win)
	return []*tensor.RawTensor{inputGrad, nil}
}

// DepthwiseConv2DOp records a depthwise convolution (depth multiplier 1).
type DepthwiseConv2DOp struct {
	input  *tensor.RawTensor
	kernel *tensor.RawTensor
	output *tensor.RawTensor
	win    tensor.Window
}

// NewDepthwiseConv2DOp creates a new depthwise convolution operation.
func NewDepthwiseConv2DOp(input, kernel, output *tensor.RawTensor, win tensor.Window) *DepthwiseConv2DOp {
	return &DepthwiseConv2DOp{
		input:  input,
		kernel: kernel,
		output: output,
		win:    win,
	}
}

// Inputs returns the input tensors.
func (op *DepthwiseConv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *DepthwiseConv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward delegates the input gradient to the backend.
func (op *DepthwiseConv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.DepthwiseConv2DInputBackward(op.input, op.kernel, outputGrad, op.win)
	return []*tensor.RawTensor{inputGrad, nil}
}
