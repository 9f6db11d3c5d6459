// Package guided implements guided backpropagation: a saliency map taken
// through rectifiers that pass only positive gradients of positive inputs.
package guided

import (
	"fmt"

	"github.com/born-ml/saliency/internal/autodiff"
	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/internal/tensor"
)

// RuleName is the registry name of the guided rectifier gradient.
const RuleName = "GuidedBackProp"

// Rule is the guided backpropagation gradient of a rectifier:
//
//	dx = g · [g > 0] · [x > 0]
type Rule struct{}

// ReLUBackward implements autodiff.Rule.
func (Rule) ReLUBackward(outputGrad, input *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(input.Shape(), input.Device())
	x, g, out := input.Data(), outputGrad.Data(), result.Data()
	for i, v := range x {
		if v > 0 && g[i] > 0 {
			out[i] = g[i]
		}
	}
	return result
}

// Register adds Rule to reg under RuleName. It is idempotent.
func Register(reg *autodiff.Registry) error {
	return reg.Register(RuleName, Rule{})
}

// Engine computes guided backpropagation saliency maps.
type Engine struct {
	backend  tensor.Backend
	registry *autodiff.Registry
}

// New creates an Engine evaluating on backend. The guided rule is
// registered in reg, which may already hold it.
func New(backend tensor.Backend, reg *autodiff.Registry) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("guided: nil gradient registry")
	}
	if err := Register(reg); err != nil {
		return nil, err
	}
	return &Engine{backend: backend, registry: reg}, nil
}

// Model returns a copy of model whose rectifiers use the guided gradient.
// Weights are shared with model.
func (e *Engine) Model(model *nn.Model) (*nn.Model, error) {
	return model.WithGradientOverride(string(nn.ReLU), RuleName)
}

// ComputeSaliency returns the gradient of the summed channel-wise maximum of
// layer's output with respect to input, taken through the guided copy of
// model. The result has the shape of input.
func (e *Engine) ComputeSaliency(model *nn.Model, input *tensor.RawTensor, layer string) (*tensor.RawTensor, error) {
	if err := model.CheckInput(input); err != nil {
		return nil, err
	}
	shape, err := model.OutputShape(layer)
	if err != nil {
		return nil, err
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("guided: layer %s has a scalar output", layer)
	}

	guidedModel, err := e.Model(model)
	if err != nil {
		return nil, err
	}

	ad := autodiff.New(e.backend, autodiff.WithRegistry(e.registry))
	ad.Tape().StartRecording()
	acts, err := guidedModel.Run(ad, input)
	if err != nil {
		return nil, fmt.Errorf("guided forward: %w", err)
	}
	act, err := acts.Get(layer)
	if err != nil {
		return nil, err
	}

	loss := ad.SumAll(ad.MaxDim(act, len(act.Shape())-1))
	grads, err := autodiff.Gradients(ad, loss, input)
	if err != nil {
		return nil, fmt.Errorf("guided backward: %w", err)
	}
	return grads[0], nil
}
