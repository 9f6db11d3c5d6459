package ops

import "github.com/born-ml/saliency/internal/tensor"

// ChannelAffineOp records y = x*scale[c] + shift[c], the inference form of
// batch normalization and of convolution bias.
//
// Backward: ∂L/∂x = ∂L/∂y * scale[c]. The shift does not affect ∂L/∂x.
type ChannelAffineOp struct {
	input  *tensor.RawTensor
	scale  *tensor.RawTensor // may be nil
	output *tensor.RawTensor
}

// NewChannelAffineOp creates a new ChannelAffineOp.
func NewChannelAffineOp(input, scale, output *tensor.RawTensor) *ChannelAffineOp {
	return &ChannelAffineOp{
		input:  input,
		scale:  scale,
		output: output,
	}
}

// Inputs returns the input tensor [x].
func (op *ChannelAffineOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ChannelAffineOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient.
func (op *ChannelAffineOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if op.scale == nil {
		return []*tensor.RawTensor{outputGrad.Clone()}
	}
	return []*tensor.RawTensor{backend.ChannelAffine(outputGrad, op.scale, nil)}
}
