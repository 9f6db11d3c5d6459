package autodiff

import (
	"github.com/born-ml/saliency/internal/autodiff/ops"
	"github.com/born-ml/saliency/internal/tensor"
)

// GradientTape records the operations of one forward pass in execution
// order. Tensors are identified by pointer, so any recorded tensor, not just
// the model output, can serve as the start of a backward walk or as a
// gradient target.
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... forward pass ...
//	grads := tape.BackwardFrom(loss, ones, backend)
type GradientTape struct {
	ops       []ops.Operation
	recording bool
}

// NewGradientTape creates an idle tape. Xception records a few hundred
// operations per pass.
func NewGradientTape() *GradientTape {
	return &GradientTape{ops: make([]ops.Operation, 0, 256)}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// IsRecording reports whether Record appends.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record appends op while the tape is recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.ops = append(t.ops, op)
	}
}

// Clear drops every recorded operation but keeps the recording state.
func (t *GradientTape) Clear() {
	clear(t.ops)
	t.ops = t.ops[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.ops)
}

// BackwardFrom seeds target with outputGrad and applies the chain rule to
// every operation at or before the one that produced target, newest first.
// Gradients of a tensor consumed by several operations are summed.
//
// The result maps each tensor target depends on to its gradient; other
// tensors are absent. Nothing is recorded during the walk.
func (t *GradientTape) BackwardFrom(target, outputGrad *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	wasRecording := t.recording
	t.recording = false
	defer func() { t.recording = wasRecording }()

	grads := map[*tensor.RawTensor]*tensor.RawTensor{target: outputGrad}

	for i := t.producer(target); i >= 0; i-- {
		op := t.ops[i]
		g, ok := grads[op.Output()]
		if !ok {
			continue
		}
		inputs := op.Inputs()
		for j, ig := range op.Backward(g, backend) {
			if ig == nil || j >= len(inputs) {
				continue
			}
			if prev, seen := grads[inputs[j]]; seen {
				ig = backend.Add(prev, ig)
			}
			grads[inputs[j]] = ig
		}
	}
	return grads
}

// producer returns the index of the last operation whose output is target,
// or -1 when target was not recorded.
func (t *GradientTape) producer(target *tensor.RawTensor) int {
	for i := len(t.ops) - 1; i >= 0; i-- {
		if t.ops[i].Output() == target {
			return i
		}
	}
	return -1
}
