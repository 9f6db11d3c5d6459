// Package nn implements the layer graph used to run image classifiers.
//
// This package provides building blocks for constructing convolutional networks:
//   - Layer interface: base interface for all graph nodes
//   - Parameter: named weight tensor with its initializer
//   - Conv2D, SeparableConv2D, BatchNorm, Dense: parameterised layers
//   - Activation, MaxPool2D, GlobalAvgPool2D, Add, Dropout: parameter-free layers
//   - Model: a named DAG of layers with intermediate output capture
//   - Architecture: the YAML-serializable description a Model is built from
//
// Layers are backend-agnostic: the backend is passed to Forward, so the same
// Model runs for plain inference on a CPU backend and for gradient recording
// on an autodiff backend. All image tensors are NHWC.
package nn

import (
	"github.com/born-ml/saliency/internal/tensor"
)

// Layer is the base interface for all graph nodes.
//
// Every layer must implement:
//   - Build: validate input shapes, allocate parameters, report output shape
//   - Forward: compute output from inputs
//   - Parameters: return all learned parameters
type Layer interface {
	// Name returns the unique layer name within its model.
	Name() string

	// Type returns the layer kind as spelled in an Architecture.
	Type() string

	// Build checks the input shapes (batch axis excluded) and allocates
	// parameters. It returns the output shape, batch axis excluded.
	Build(inputs []tensor.Shape) (tensor.Shape, error)

	// Forward computes the output of the layer on b.
	Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error)

	// Parameters returns all learned parameters of this layer.
	// Returns nil for parameter-free layers.
	Parameters() []*Parameter
}

// reluOverrider is implemented by layers that apply a rectifier and can
// record it with a named gradient rule.
type reluOverrider interface {
	// withReLUGradient returns a shallow copy that shares parameters.
	// ok is false when the layer applies no rectifier.
	withReLUGradient(rule string) (layer Layer, ok bool)
}

// expectInputs checks the number of inputs a layer received.
func expectInputs(layer Layer, inputs []tensor.Shape, n int) error {
	if len(inputs) != n {
		return &BuildError{Layer: layer.Name(), Reason: pluralInputs(n, len(inputs))}
	}
	return nil
}
