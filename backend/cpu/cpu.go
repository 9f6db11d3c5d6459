// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/saliency/internal/backend/cpu"
	"github.com/born-ml/saliency/internal/parallel"
	"github.com/born-ml/saliency/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend using every core.
//
// Example:
//
//	backend := cpu.New()
//	y := backend.ReLU(x)
func New() *Backend {
	return internalcpu.New()
}

// NewWithWorkers creates a CPU backend limited to n goroutines per kernel.
// n <= 1 runs every kernel on the calling goroutine.
func NewWithWorkers(n int) *Backend {
	if n <= 1 {
		return internalcpu.NewWithConfig(parallel.Sequential())
	}
	cfg := parallel.DefaultConfig()
	cfg.Enabled = true
	cfg.NumWorkers = n
	return internalcpu.NewWithConfig(cfg)
}
