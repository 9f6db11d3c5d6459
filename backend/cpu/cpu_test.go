// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu_test

import (
	"testing"

	"github.com/born-ml/saliency/backend/cpu"
	"github.com/born-ml/saliency/tensor"
)

// TestWorkersDoNotChangeResults runs the same convolution sequentially and
// in parallel.
func TestWorkersDoNotChangeResults(t *testing.T) {
	x, err := tensor.NewRaw(tensor.Shape{1, 9, 9, 2}, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	for i := range x.Data() {
		x.Data()[i] = float32(i%7) - 3
	}
	k, err := tensor.Full(tensor.Shape{3, 3, 2, 4}, 0.25, tensor.CPU)
	if err != nil {
		t.Fatalf("Full failed: %v", err)
	}
	win := tensor.Window{Size: [2]int{3, 3}, Stride: 2, Padding: tensor.PaddingSame}

	seq := cpu.NewWithWorkers(1).Conv2D(x, k, win)
	par := cpu.NewWithWorkers(4).Conv2D(x, k, win)
	if !seq.Shape().Equal(tensor.Shape{1, 5, 5, 4}) {
		t.Fatalf("Conv2D shape = %v, want [1 5 5 4]", seq.Shape())
	}
	for i := range seq.Data() {
		if seq.Data()[i] != par.Data()[i] {
			t.Fatalf("element %d differs: %v vs %v", i, seq.Data()[i], par.Data()[i])
		}
	}
	if cpu.New().Name() != "CPU" {
		t.Errorf("Name() = %q", cpu.New().Name())
	}
}
