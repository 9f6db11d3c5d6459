package nn

import (
	"fmt"

	"github.com/born-ml/saliency/internal/tensor"
)

// Dense is a fully connected layer: y = activation(x @ kernel + bias).
//
// Input shape:  [batch, in_features]
// Kernel shape: [in_features, units]
// Bias shape:   [units]
// Output shape: [batch, units]
type Dense struct {
	name       string
	units      int
	activation ActivationFunc

	kernel *Parameter
	bias   *Parameter

	gradient string
}

// NewDense creates a new fully connected layer with bias.
func NewDense(name string, units int, activation ActivationFunc) *Dense {
	if activation == "" {
		activation = Linear
	}
	return &Dense{name: name, units: units, activation: activation}
}

// Name returns the layer name.
func (d *Dense) Name() string { return d.name }

// Type returns "dense".
func (d *Dense) Type() string { return "dense" }

// Units returns the number of output features.
func (d *Dense) Units() int { return d.units }

// Activation returns the fused activation.
func (d *Dense) Activation() ActivationFunc { return d.activation }

// Build implements Layer.
func (d *Dense) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(d, inputs, 1); err != nil {
		return nil, err
	}
	if d.units <= 0 {
		return nil, &BuildError{Layer: d.name, Reason: fmt.Sprintf("invalid units %d", d.units)}
	}
	if _, err := ParseActivation(string(d.activation)); err != nil {
		return nil, &BuildError{Layer: d.name, Reason: err.Error()}
	}
	in := inputs[0]
	if len(in) != 1 {
		return nil, &BuildError{Layer: d.name, Reason: fmt.Sprintf("expects [features] input, got %v", in)}
	}
	d.kernel = NewParameter("kernel", tensor.Shape{in[0], d.units}, GlorotUniform(in[0], d.units))
	d.bias = NewParameter("bias", tensor.Shape{d.units}, Zeros)
	return tensor.Shape{d.units}, nil
}

// Forward implements Layer.
func (d *Dense) Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	out := b.MatMul(inputs[0], d.kernel.Tensor())
	out = b.ChannelAffine(out, nil, d.bias.Tensor())
	return activate(b, out, d.activation, d.gradient)
}

// Parameters returns [kernel, bias].
func (d *Dense) Parameters() []*Parameter {
	return []*Parameter{d.kernel, d.bias}
}

func (d *Dense) withReLUGradient(rule string) (Layer, bool) {
	if d.activation != ReLU {
		return d, false
	}
	cp := *d
	cp.gradient = rule
	return &cp, true
}
