package ops

import (
	"github.com/born-ml/saliency/internal/tensor"
)

// ZerosLike allocates a zero tensor with the shape and device of t.
func ZerosLike(t *tensor.RawTensor) *tensor.RawTensor {
	return tensor.MustNewRaw(t.Shape(), t.Device())
}
