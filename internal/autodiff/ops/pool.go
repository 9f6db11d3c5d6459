package ops

import (
	"github.com/born-ml/saliency/internal/tensor"
)

// MaxPool2DOp records a 2D max pooling operation.
//
// Backward routes each output gradient to the position that won the
// forward max; every other position gets zero.
type MaxPool2DOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	win    tensor.Window
}

// NewMaxPool2DOp creates a new MaxPool2D operation.
func NewMaxPool2DOp(input, output *tensor.RawTensor, win tensor.Window) *MaxPool2DOp {
	return &MaxPool2DOp{
		input:  input,
		output: output,
		win:    win,
	}
}

// Inputs returns the input tensors.
func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *MaxPool2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MaxPool2DBackward(op.input, outputGrad, op.win)}
}

// GlobalAvgPool2DOp records [N,H,W,C] -> [N,C] spatial averaging.
//
// Backward spreads each channel gradient evenly: ∂L/∂x[n,h,w,c] = g[n,c] / (H·W).
type GlobalAvgPool2DOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewGlobalAvgPool2DOp creates a new GlobalAvgPool2DOp.
func NewGlobalAvgPool2DOp(input, output *tensor.RawTensor) *GlobalAvgPool2DOp {
	return &GlobalAvgPool2DOp{input: input, output: output}
}

// Inputs returns the input tensors.
func (op *GlobalAvgPool2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *GlobalAvgPool2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient.
func (op *GlobalAvgPool2DOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	n, h, w, c := op.input.Shape().NHWC()
	inputGrad := ZerosLike(op.input)
	g, dx := outputGrad.Data(), inputGrad.Data()
	inv := 1 / float32(h*w)

	for b := 0; b < n; b++ {
		for p := 0; p < h*w; p++ {
			base := (b*h*w + p) * c
			for ch := 0; ch < c; ch++ {
				dx[base+ch] = g[b*c+ch] * inv
			}
		}
	}
	return []*tensor.RawTensor{inputGrad}
}
