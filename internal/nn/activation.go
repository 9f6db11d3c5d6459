package nn

import (
	"fmt"

	"github.com/born-ml/saliency/internal/tensor"
)

// ActivationFunc names an element-wise or last-axis activation.
type ActivationFunc string

// Supported activations.
const (
	Linear  ActivationFunc = "linear"
	ReLU    ActivationFunc = "relu"
	Softmax ActivationFunc = "softmax"
)

// ParseActivation parses an activation name; "" means linear.
func ParseActivation(s string) (ActivationFunc, error) {
	switch ActivationFunc(s) {
	case "", Linear:
		return Linear, nil
	case ReLU:
		return ReLU, nil
	case Softmax:
		return Softmax, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedActivation, s)
	}
}

// GradientReLUBackend is implemented by backends that can record a
// rectifier with a named gradient rule (autodiff.AutodiffBackend).
type GradientReLUBackend interface {
	ReLUWithGradient(x *tensor.RawTensor, rule string) (*tensor.RawTensor, error)
}

// activate applies fn to x. When gradient names a rule and the backend can
// record it, the rectifier uses that rule; a backend without gradient
// support runs the plain rectifier since no backward pass will follow.
func activate(b tensor.Backend, x *tensor.RawTensor, fn ActivationFunc, gradient string) (*tensor.RawTensor, error) {
	switch fn {
	case Linear:
		return x, nil
	case ReLU:
		if gradient != "" {
			if gb, ok := b.(GradientReLUBackend); ok {
				return gb.ReLUWithGradient(x, gradient)
			}
		}
		return b.ReLU(x), nil
	case Softmax:
		return b.Softmax(x), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedActivation, fn)
	}
}

// Activation is a standalone activation layer.
//
// Example:
//
//	act := nn.NewActivation("block14_sepconv2_act", nn.ReLU)
type Activation struct {
	name     string
	fn       ActivationFunc
	gradient string // rectifier gradient rule, "" for standard
}

// NewActivation creates a new activation layer.
func NewActivation(name string, fn ActivationFunc) *Activation {
	return &Activation{name: name, fn: fn}
}

// Name returns the layer name.
func (a *Activation) Name() string { return a.name }

// Type returns "activation".
func (a *Activation) Type() string { return "activation" }

// Func returns the activation function.
func (a *Activation) Func() ActivationFunc { return a.fn }

// Gradient returns the rectifier gradient rule, "" if standard.
func (a *Activation) Gradient() string { return a.gradient }

// Build implements Layer.
func (a *Activation) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(a, inputs, 1); err != nil {
		return nil, err
	}
	if _, err := ParseActivation(string(a.fn)); err != nil {
		return nil, &BuildError{Layer: a.name, Reason: err.Error()}
	}
	return inputs[0].Clone(), nil
}

// Forward implements Layer.
func (a *Activation) Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	return activate(b, inputs[0], a.fn, a.gradient)
}

// Parameters returns nil (activations have no parameters).
func (a *Activation) Parameters() []*Parameter {
	return nil
}

func (a *Activation) withReLUGradient(rule string) (Layer, bool) {
	if a.fn != ReLU {
		return a, false
	}
	c := *a
	c.gradient = rule
	return &c, true
}
