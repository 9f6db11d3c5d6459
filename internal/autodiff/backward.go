package autodiff

import (
	"errors"
	"fmt"

	"github.com/born-ml/saliency/internal/autodiff/ops"
	"github.com/born-ml/saliency/internal/tensor"
)

// ErrNoOperations is returned when gradients are requested from an empty tape.
var ErrNoOperations = errors.New("no operations recorded (did you forget to call Tape().StartRecording()?)")

// ErrNotScalar is returned when the loss has more than one element.
var ErrNotScalar = errors.New("loss must be a single-element tensor")

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
	// InnerBackend returns the backend used for backward kernels.
	InnerBackend() tensor.Backend
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// InnerBackend returns the wrapped backend as a tensor.Backend.
func (b *AutodiffBackend[B]) InnerBackend() tensor.Backend {
	return b.inner
}

// Gradients computes d(loss)/d(x) for each x in wrt.
//
// The loss must be a single-element tensor produced on the backend's tape.
// Tensors the loss does not depend on get a zero gradient of their own
// shape. Every returned tensor is owned by the caller.
func Gradients(backend BackwardCapable, loss *tensor.RawTensor, wrt ...*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		return nil, fmt.Errorf("gradients: %w", ErrNoOperations)
	}
	if loss.NumElements() != 1 {
		return nil, fmt.Errorf("gradients: %w, got shape %v", ErrNotScalar, loss.Shape())
	}

	seed, err := tensor.Full(loss.Shape(), 1, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("gradients: seed: %w", err)
	}

	grads := tape.BackwardFrom(loss, seed, backend.InnerBackend())

	out := make([]*tensor.RawTensor, len(wrt))
	for i, x := range wrt {
		if g, ok := grads[x]; ok {
			out[i] = g.Clone()
			continue
		}
		out[i] = ops.ZerosLike(x)
	}
	return out, nil
}
