package nn

import (
	"fmt"

	"github.com/born-ml/saliency/internal/tensor"
)

// Input is the entry node of a Model. Its shape excludes the batch axis.
type Input struct {
	name  string
	shape tensor.Shape
}

// NewInput creates a new input layer, e.g. shape [224 224 3].
func NewInput(name string, shape tensor.Shape) *Input {
	return &Input{name: name, shape: shape.Clone()}
}

// Name returns the layer name.
func (in *Input) Name() string { return in.name }

// Type returns "input".
func (in *Input) Type() string { return "input" }

// Shape returns the expected input shape without the batch axis.
func (in *Input) Shape() tensor.Shape { return in.shape }

// Build implements Layer. The input node takes no inputs.
func (in *Input) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(in, inputs, 0); err != nil {
		return nil, err
	}
	if len(in.shape) == 0 {
		return nil, &BuildError{Layer: in.name, Reason: "empty input shape"}
	}
	if err := in.shape.Validate(); err != nil {
		return nil, &BuildError{Layer: in.name, Reason: err.Error()}
	}
	return in.shape.Clone(), nil
}

// Forward returns the model input unchanged.
func (in *Input) Forward(_ tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return inputs[0], nil
}

// Parameters returns nil.
func (in *Input) Parameters() []*Parameter {
	return nil
}

// Add sums two tensors of identical shape (residual connection).
type Add struct {
	name string
}

// NewAdd creates a new element-wise addition layer.
func NewAdd(name string) *Add {
	return &Add{name: name}
}

// Name returns the layer name.
func (a *Add) Name() string { return a.name }

// Type returns "add".
func (a *Add) Type() string { return "add" }

// Build implements Layer.
func (a *Add) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(a, inputs, 2); err != nil {
		return nil, err
	}
	if !inputs[0].Equal(inputs[1]) {
		return nil, &BuildError{Layer: a.name, Reason: fmt.Sprintf("shape mismatch %v vs %v", inputs[0], inputs[1])}
	}
	return inputs[0].Clone(), nil
}

// Forward implements Layer.
func (a *Add) Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return b.Add(inputs[0], inputs[1]), nil
}

// Parameters returns nil.
func (a *Add) Parameters() []*Parameter {
	return nil
}

// Dropout is the identity at inference time. The rate is kept so that
// architectures round-trip.
type Dropout struct {
	name string
	rate float64
}

// NewDropout creates a new dropout layer.
func NewDropout(name string, rate float64) *Dropout {
	return &Dropout{name: name, rate: rate}
}

// Name returns the layer name.
func (d *Dropout) Name() string { return d.name }

// Type returns "dropout".
func (d *Dropout) Type() string { return "dropout" }

// Rate returns the training-time drop rate.
func (d *Dropout) Rate() float64 { return d.rate }

// Build implements Layer.
func (d *Dropout) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(d, inputs, 1); err != nil {
		return nil, err
	}
	if d.rate < 0 || d.rate >= 1 {
		return nil, &BuildError{Layer: d.name, Reason: fmt.Sprintf("invalid rate %g", d.rate)}
	}
	return inputs[0].Clone(), nil
}

// Forward returns its input unchanged.
func (d *Dropout) Forward(_ tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return inputs[0], nil
}

// Parameters returns nil.
func (d *Dropout) Parameters() []*Parameter {
	return nil
}
