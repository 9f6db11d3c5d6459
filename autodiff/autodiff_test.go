// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package autodiff_test

import (
	"errors"
	"testing"

	"github.com/born-ml/saliency/autodiff"
	"github.com/born-ml/saliency/backend/cpu"
	"github.com/born-ml/saliency/tensor"
)

type identityRule struct{}

func (identityRule) ReLUBackward(outputGrad, _ *tensor.RawTensor) *tensor.RawTensor {
	return outputGrad.Clone()
}

// TestGradientsThroughPublicAPI differentiates sum(relu(x)).
func TestGradientsThroughPublicAPI(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float32{-1, 2, 3}, tensor.Shape{3}, tensor.CPU)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	loss := backend.SumAll(backend.ReLU(x))
	grads, err := autodiff.Gradients(backend, loss, x)
	if err != nil {
		t.Fatalf("Gradients failed: %v", err)
	}
	want := []float32{0, 1, 1}
	for i, g := range grads[0].Data() {
		if g != want[i] {
			t.Errorf("grad[%d] = %v, want %v", i, g, want[i])
		}
	}
}

// TestRegistry checks rule lookup through the public aliases.
func TestRegistry(t *testing.T) {
	reg := autodiff.NewRegistry()
	if err := reg.Register("Identity", identityRule{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	backend := autodiff.New(cpu.New(), autodiff.WithRegistry(reg))
	backend.Tape().StartRecording()
	x, _ := tensor.FromSlice([]float32{-1, 2}, tensor.Shape{2}, tensor.CPU)
	y, err := backend.ReLUWithGradient(x, "Identity")
	if err != nil {
		t.Fatalf("ReLUWithGradient failed: %v", err)
	}
	grads, err := autodiff.Gradients(backend, backend.SumAll(y), x)
	if err != nil {
		t.Fatalf("Gradients failed: %v", err)
	}
	if grads[0].Data()[0] != 1 {
		t.Errorf("identity rule should pass the gradient of a negative input, got %v", grads[0].Data()[0])
	}

	_, err = backend.ReLUWithGradient(x, "Missing")
	var regErr *autodiff.GradientRegistrationError
	if !errors.As(err, &regErr) {
		t.Errorf("expected GradientRegistrationError, got %v", err)
	}
}
