package nn

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/saliency/internal/tensor"
)

// DefaultBatchNormEpsilon matches the Keras applications Xception.
const DefaultBatchNormEpsilon = 1e-3

// BatchNorm is batch normalization in inference mode over the channel axis:
//
//	y = gamma * (x - moving_mean) / sqrt(moving_variance + epsilon) + beta
//
// It is evaluated as one per-channel affine transform.
type BatchNorm struct {
	name    string
	epsilon float32

	gamma    *Parameter
	beta     *Parameter
	mean     *Parameter
	variance *Parameter
}

// NewBatchNorm creates a new batch normalization layer. A non-positive
// epsilon selects DefaultBatchNormEpsilon.
func NewBatchNorm(name string, epsilon float32) *BatchNorm {
	if epsilon <= 0 {
		epsilon = DefaultBatchNormEpsilon
	}
	return &BatchNorm{name: name, epsilon: epsilon}
}

// Name returns the layer name.
func (bn *BatchNorm) Name() string { return bn.name }

// Type returns "batch_norm".
func (bn *BatchNorm) Type() string { return "batch_norm" }

// Epsilon returns the variance epsilon.
func (bn *BatchNorm) Epsilon() float32 { return bn.epsilon }

// Build implements Layer.
func (bn *BatchNorm) Build(inputs []tensor.Shape) (tensor.Shape, error) {
	if err := expectInputs(bn, inputs, 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	if len(in) == 0 {
		return nil, &BuildError{Layer: bn.name, Reason: "scalar input"}
	}
	c := in[len(in)-1]
	bn.gamma = NewParameter("gamma", tensor.Shape{c}, Ones)
	bn.beta = NewParameter("beta", tensor.Shape{c}, Zeros)
	bn.mean = NewParameter("moving_mean", tensor.Shape{c}, Zeros)
	bn.variance = NewParameter("moving_variance", tensor.Shape{c}, Ones)
	return in.Clone(), nil
}

// Forward implements Layer.
func (bn *BatchNorm) Forward(b tensor.Backend, inputs []*tensor.RawTensor) (*tensor.RawTensor, error) {
	scale, shift, err := bn.affine()
	if err != nil {
		return nil, err
	}
	return b.ChannelAffine(inputs[0], scale, shift), nil
}

// affine folds the four statistics into scale and shift.
func (bn *BatchNorm) affine() (scale, shift *tensor.RawTensor, err error) {
	c := bn.gamma.Tensor().NumElements()
	scale = tensor.MustNewRaw(tensor.Shape{c}, tensor.CPU)
	shift = tensor.MustNewRaw(tensor.Shape{c}, tensor.CPU)

	gamma, beta := bn.gamma.Tensor().Data(), bn.beta.Tensor().Data()
	mean, variance := bn.mean.Tensor().Data(), bn.variance.Tensor().Data()
	s, t := scale.Data(), shift.Data()
	for i := 0; i < c; i++ {
		if variance[i]+bn.epsilon <= 0 {
			return nil, nil, fmt.Errorf("batch norm %s: non-positive variance %g in channel %d", bn.name, variance[i], i)
		}
		s[i] = gamma[i] / math32.Sqrt(variance[i]+bn.epsilon)
		t[i] = beta[i] - mean[i]*s[i]
	}
	return scale, shift, nil
}

// Parameters returns [gamma, beta, moving_mean, moving_variance].
func (bn *BatchNorm) Parameters() []*Parameter {
	return []*Parameter{bn.gamma, bn.beta, bn.mean, bn.variance}
}
