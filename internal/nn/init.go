package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/saliency/internal/tensor"
)

// Initializer fills a tensor in place.
type Initializer func(rng *rand.Rand, t *tensor.RawTensor)

// GlorotUniform is Xavier (Glorot) initialization, the Keras default for
// convolution and dense kernels.
//
// Values are drawn from U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))).
func GlorotUniform(fanIn, fanOut int) Initializer {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return func(rng *rand.Rand, t *tensor.RawTensor) {
		data := t.Data()
		for i := range data {
			data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
		}
	}
}

// Constant fills the tensor with v.
func Constant(v float32) Initializer {
	return func(_ *rand.Rand, t *tensor.RawTensor) {
		data := t.Data()
		for i := range data {
			data[i] = v
		}
	}
}

// Zeros is the bias initializer.
var Zeros = Constant(0)

// Ones is the batch-norm gamma and variance initializer.
var Ones = Constant(1)

// convFans computes Keras fan sizes for a kernel laid out [KH, KW, in, out].
func convFans(kh, kw, in, out int) (fanIn, fanOut int) {
	return kh * kw * in, kh * kw * out
}
