package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/saliency/internal/tensor"
)

// Parameter represents a learned tensor of a layer.
//
// Parameters are shared by pointer between a model and the copies made by
// Model.WithGradientOverride, so loading weights into one updates both.
//
// Example:
//
//	kernel := nn.NewParameter("kernel", tensor.Shape{3, 3, 3, 32}, nn.GlorotUniform(27, 288))
//	raw := kernel.Tensor()
type Parameter struct {
	name   string            // Parameter name (e.g., "kernel", "moving_mean")
	tensor *tensor.RawTensor // The parameter tensor
	init   Initializer
}

// NewParameter creates a zero-filled parameter with the given initializer.
// Panics on an invalid shape; callers validate shapes in Build.
func NewParameter(name string, shape tensor.Shape, init Initializer) *Parameter {
	return &Parameter{
		name:   name,
		tensor: tensor.MustNewRaw(shape, tensor.CPU),
		init:   init,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Initialize overwrites the parameter with values from its initializer.
func (p *Parameter) Initialize(rng *rand.Rand) {
	if p.init != nil {
		p.init(rng, p.tensor)
	}
}

// Load copies src into the parameter. Shapes must match exactly.
func (p *Parameter) Load(src *tensor.RawTensor) error {
	if !src.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("parameter %s: shape %v, want %v", p.name, src.Shape(), p.tensor.Shape())
	}
	copy(p.tensor.Data(), src.Data())
	return nil
}
