package cpu

import (
	"fmt"

	"github.com/born-ml/saliency/internal/tensor"
)

// ChannelAffine computes x*scale[c] + shift[c] where c indexes the last axis.
// Used for bias addition and inference-mode batch normalization.
func (cpu *CPUBackend) ChannelAffine(x, scale, shift *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 {
		panic("channel_affine: scalar input")
	}
	c := shape[len(shape)-1]
	for _, p := range []*tensor.RawTensor{scale, shift} {
		if p != nil && p.NumElements() != c {
			panic(fmt.Sprintf("channel_affine: parameter shape %v does not match %d channels", p.Shape(), c))
		}
	}

	result := tensor.MustNewRaw(shape, cpu.device)
	src, dst := x.Data(), result.Data()
	copy(dst, src)
	if scale != nil {
		s := scale.Data()
		for i := range dst {
			dst[i] *= s[i%c]
		}
	}
	if shift != nil {
		b := shift.Data()
		for i := range dst {
			dst[i] += b[i%c]
		}
	}
	return result
}
