// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/tensor"
)

// Layer is the base interface for all graph nodes.
//
// Every layer must implement:
//   - Build: validate input shapes, allocate parameters, report output shape
//   - Forward: compute output from inputs on the given backend
//   - Parameters: return all learned parameters
type Layer = nn.Layer

// Model is a named DAG of layers that keeps every intermediate output.
type Model = nn.Model

// Activations holds the output of every layer of one forward pass.
type Activations = nn.Activations

// Input is the graph entry node.
type Input = nn.Input

// ActivationFunc names an activation: linear, relu or softmax.
type ActivationFunc = nn.ActivationFunc

// Supported activations.
const (
	Linear  ActivationFunc = nn.Linear
	ReLU    ActivationFunc = nn.ReLU
	Softmax ActivationFunc = nn.Softmax
)

// Conv2DConfig configures Conv2D and SeparableConv2D.
type Conv2DConfig = nn.Conv2DConfig

// NewModel creates an empty model fed by input.
func NewModel(name string, input *Input) (*Model, error) {
	return nn.NewModel(name, input)
}

// NewInput creates the entry node. shape excludes the batch axis.
func NewInput(name string, shape tensor.Shape) *Input {
	return nn.NewInput(name, shape)
}

// NewConv2D creates a 2D convolution layer.
func NewConv2D(name string, cfg Conv2DConfig) *nn.Conv2D {
	return nn.NewConv2D(name, cfg)
}

// NewSeparableConv2D creates a depthwise-then-pointwise convolution layer.
func NewSeparableConv2D(name string, cfg Conv2DConfig) *nn.SeparableConv2D {
	return nn.NewSeparableConv2D(name, cfg)
}

// NewBatchNorm creates an inference-mode batch normalization layer.
func NewBatchNorm(name string, epsilon float32) *nn.BatchNorm {
	return nn.NewBatchNorm(name, epsilon)
}

// NewDense creates a fully connected layer with an optional fused activation.
func NewDense(name string, units int, activation ActivationFunc) *nn.Dense {
	return nn.NewDense(name, units, activation)
}

// NewActivation creates a standalone activation layer.
func NewActivation(name string, fn ActivationFunc) *nn.Activation {
	return nn.NewActivation(name, fn)
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(name string, size [2]int, stride int, padding tensor.Padding) *nn.MaxPool2D {
	return nn.NewMaxPool2D(name, size, stride, padding)
}

// NewGlobalAvgPool2D creates a global average pooling layer.
func NewGlobalAvgPool2D(name string) *nn.GlobalAvgPool2D {
	return nn.NewGlobalAvgPool2D(name)
}

// NewAdd creates an element-wise sum of two inputs.
func NewAdd(name string) *nn.Add {
	return nn.NewAdd(name)
}

// NewDropout creates a dropout layer. It is the identity at inference.
func NewDropout(name string, rate float64) *nn.Dropout {
	return nn.NewDropout(name, rate)
}
