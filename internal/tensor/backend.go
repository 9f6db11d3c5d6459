package tensor

import "fmt"

// Padding selects how convolution and pooling windows treat borders.
type Padding int

// Supported padding modes. They follow the Keras/TensorFlow conventions so
// that exported weights line up with the same output sizes.
const (
	PaddingValid Padding = iota // no padding, windows stay inside the input
	PaddingSame                 // pad so that out = ceil(in / stride)
)

// String returns the Keras spelling of the padding mode.
func (p Padding) String() string {
	switch p {
	case PaddingValid:
		return "valid"
	case PaddingSame:
		return "same"
	default:
		return "unknown"
	}
}

// ParsePadding parses "valid" or "same".
func ParsePadding(s string) (Padding, error) {
	switch s {
	case "", "valid":
		return PaddingValid, nil
	case "same":
		return PaddingSame, nil
	default:
		return 0, fmt.Errorf("unknown padding %q (expected valid or same)", s)
	}
}

// Window describes a sliding window over the spatial axes of an NHWC tensor.
// It is shared by convolution and pooling kernels.
type Window struct {
	Size    [2]int // kernel height, width
	Stride  int
	Padding Padding
}

// Geometry is the resolved layout of a Window applied to an input size.
type Geometry struct {
	OutH, OutW      int
	PadTop, PadLeft int
}

// Resolve computes output size and leading padding for an input of h×w.
//
//	valid: out = (in - k) / s + 1
//	same:  out = ceil(in / s), pad_total = max((out-1)*s + k - in, 0), pad_before = pad_total / 2
func (w Window) Resolve(h, wd int) (Geometry, error) {
	if w.Stride <= 0 {
		return Geometry{}, fmt.Errorf("invalid stride %d", w.Stride)
	}
	kh, kw := w.Size[0], w.Size[1]
	if kh <= 0 || kw <= 0 {
		return Geometry{}, fmt.Errorf("invalid window %dx%d", kh, kw)
	}

	var g Geometry
	switch w.Padding {
	case PaddingValid:
		g.OutH = (h-kh)/w.Stride + 1
		g.OutW = (wd-kw)/w.Stride + 1
	case PaddingSame:
		g.OutH = (h + w.Stride - 1) / w.Stride
		g.OutW = (wd + w.Stride - 1) / w.Stride
		g.PadTop = max((g.OutH-1)*w.Stride+kh-h, 0) / 2
		g.PadLeft = max((g.OutW-1)*w.Stride+kw-wd, 0) / 2
	default:
		return Geometry{}, fmt.Errorf("unknown padding %d", w.Padding)
	}
	if g.OutH <= 0 || g.OutW <= 0 {
		return Geometry{}, fmt.Errorf("window %dx%d stride %d does not fit input %dx%d", kh, kw, w.Stride, h, wd)
	}
	return g, nil
}

// Backend defines the interface that compute backends implement.
//
// Forward kernels allocate their result and never write to their operands.
// The *Backward kernels return the gradient with respect to the input of the
// matching forward kernel; parameter gradients are not computed because
// nothing in this module trains.
//
// All image-like tensors are NHWC. Convolution kernels are laid out
// [KH, KW, C_in, C_out] and depthwise kernels [KH, KW, C].
type Backend interface {
	// Element-wise binary operations (identical shapes)
	Add(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Convolutional operations
	Conv2D(input, kernel *RawTensor, win Window) *RawTensor
	Conv2DInputBackward(input, kernel, outputGrad *RawTensor, win Window) *RawTensor
	DepthwiseConv2D(input, kernel *RawTensor, win Window) *RawTensor
	DepthwiseConv2DInputBackward(input, kernel, outputGrad *RawTensor, win Window) *RawTensor

	// ChannelAffine computes x*scale[c] + shift[c] over the last axis.
	// Either scale or shift may be nil.
	ChannelAffine(x, scale, shift *RawTensor) *RawTensor

	// Pooling
	MaxPool2D(input *RawTensor, win Window) *RawTensor
	MaxPool2DBackward(input, outputGrad *RawTensor, win Window) *RawTensor
	GlobalAvgPool2D(input *RawTensor) *RawTensor

	// Matrix operations: [M, K] @ [K, N] -> [M, N]
	MatMul(a, b *RawTensor) *RawTensor
	Transpose(x *RawTensor) *RawTensor

	// Activation functions
	ReLU(x *RawTensor) *RawTensor
	Softmax(x *RawTensor) *RawTensor // along the last axis

	// Reductions
	SumAll(x *RawTensor) *RawTensor          // scalar result
	MaxDim(x *RawTensor, dim int) *RawTensor // max along dim, dim removed
	MaxDimBackward(x, outputGrad *RawTensor, dim int) *RawTensor

	// Shape operations
	Reshape(x *RawTensor, shape Shape) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
