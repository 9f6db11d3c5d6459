// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient tracking
// through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its backward pass
//   - Registry: named rectifier gradient rules (e.g. guided backpropagation)
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y := backend.ReLU(x)
//	loss := backend.SumAll(y)
//	grads, err := autodiff.Gradients(backend, loss, x)
package autodiff

import (
	"github.com/born-ml/saliency/internal/autodiff/ops"
	"github.com/born-ml/saliency/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner    B             // Wrapped backend
	tape     *GradientTape // Records operations for backpropagation
	registry *Registry     // Rectifier gradient rules, may be nil
}

// Option configures an AutodiffBackend.
type Option func(*options)

type options struct {
	registry *Registry
}

// WithRegistry makes the named gradient rules of reg available to
// ReLUWithGradient.
func WithRegistry(reg *Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B, opts ...Option) *AutodiffBackend[B] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &AutodiffBackend[B]{
		inner:    backend,
		tape:     NewGradientTape(),
		registry: o.registry,
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Registry returns the gradient rule registry, or nil.
func (b *AutodiffBackend[B]) Registry() *Registry {
	return b.registry
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.tape.Record(ops.NewAddOp(a, c, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(a, c)
	b.tape.Record(ops.NewMulOp(a, c, result))
	return result
}

// Conv2D performs a 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, win)
	b.tape.Record(ops.NewConv2DOp(input, kernel, result, win))
	return result
}

// Conv2DInputBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, outputGrad *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, outputGrad, win)
}

// DepthwiseConv2D performs a depthwise convolution and records the operation.
func (b *AutodiffBackend[B]) DepthwiseConv2D(input, kernel *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	result := b.inner.DepthwiseConv2D(input, kernel, win)
	b.tape.Record(ops.NewDepthwiseConv2DOp(input, kernel, result, win))
	return result
}

// DepthwiseConv2DInputBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) DepthwiseConv2DInputBackward(input, kernel, outputGrad *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	return b.inner.DepthwiseConv2DInputBackward(input, kernel, outputGrad, win)
}

// ChannelAffine applies a per-channel scale and shift and records the operation.
func (b *AutodiffBackend[B]) ChannelAffine(x, scale, shift *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ChannelAffine(x, scale, shift)
	b.tape.Record(ops.NewChannelAffineOp(x, scale, result))
	return result
}

// MaxPool2D performs max pooling and records the operation.
func (b *AutodiffBackend[B]) MaxPool2D(input *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	result := b.inner.MaxPool2D(input, win)
	b.tape.Record(ops.NewMaxPool2DOp(input, result, win))
	return result
}

// MaxPool2DBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) MaxPool2DBackward(input, outputGrad *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	return b.inner.MaxPool2DBackward(input, outputGrad, win)
}

// GlobalAvgPool2D averages over the spatial axes and records the operation.
func (b *AutodiffBackend[B]) GlobalAvgPool2D(input *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.GlobalAvgPool2D(input)
	b.tape.Record(ops.NewGlobalAvgPool2DOp(input, result))
	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(a, c)
	b.tape.Record(ops.NewMatMulOp(a, c, result))
	return result
}

// Transpose transposes a matrix and records the operation.
func (b *AutodiffBackend[B]) Transpose(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Transpose(x)
	b.tape.Record(ops.NewTransposeOp(x, result))
	return result
}

// ReLU applies the rectifier with the standard gradient and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result, nil))
	return result
}

// ReLUWithGradient applies the rectifier and records it with the gradient
// rule registered under ruleName. An empty ruleName means the standard rule.
//
// Returns a *GradientRegistrationError if the rule is not registered or the
// backend has no registry.
func (b *AutodiffBackend[B]) ReLUWithGradient(x *tensor.RawTensor, ruleName string) (*tensor.RawTensor, error) {
	if ruleName == "" {
		return b.ReLU(x), nil
	}
	if b.registry == nil {
		return nil, &GradientRegistrationError{Name: ruleName, Reason: "backend has no gradient registry"}
	}
	rule, err := b.registry.Lookup(ruleName)
	if err != nil {
		return nil, err
	}

	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result, rule))
	return result, nil
}

// Softmax applies softmax along the last axis and records the operation.
func (b *AutodiffBackend[B]) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Softmax(x)
	b.tape.Record(ops.NewSoftmaxOp(x, result))
	return result
}

// SumAll reduces to a scalar and records the operation.
func (b *AutodiffBackend[B]) SumAll(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.SumAll(x)
	b.tape.Record(ops.NewSumAllOp(x, result))
	return result
}

// MaxDim takes the max along dim and records the operation.
func (b *AutodiffBackend[B]) MaxDim(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.MaxDim(x, dim)
	b.tape.Record(ops.NewMaxDimOp(x, result, dim))
	return result
}

// MaxDimBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) MaxDimBackward(x, outputGrad *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.inner.MaxDimBackward(x, outputGrad, dim)
}

// Reshape reshapes a tensor and records the operation.
//
// The result is a view, which is a distinct *RawTensor, so without a
// ReshapeOp gradients would stop at the view.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	b.tape.Record(ops.NewReshapeOp(t, result))
	return result
}
