// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation using a
// gradient tape. It wraps any backend and records every forward kernel, so
// gradients can be taken with respect to any intermediate tensor. Named
// rectifier gradient rules, such as guided backpropagation, live in an
// explicit Registry.
//
// Example:
//
//	import (
//	    "github.com/born-ml/saliency/autodiff"
//	    "github.com/born-ml/saliency/backend/cpu"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//	    backend.Tape().StartRecording()
//
//	    y := backend.ReLU(x)
//	    loss := backend.SumAll(y)
//	    grads, err := autodiff.Gradients(backend, loss, x)
//	}
package autodiff

import (
	"github.com/born-ml/saliency/internal/autodiff"
	"github.com/born-ml/saliency/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// Option configures a Backend.
type Option = autodiff.Option

// New creates a new autodiff backend wrapping the given backend.
//
// Example:
//
//	base := cpu.New()
//	backend := autodiff.New(base, autodiff.WithRegistry(reg))
func New[B tensor.Backend](backend B, opts ...Option) *Backend[B] {
	return autodiff.New(backend, opts...)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// BackwardCapable interface for backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Gradients computes d(loss)/d(x) for each x in wrt. Tensors the loss does
// not depend on get zeros.
func Gradients(backend BackwardCapable, loss *tensor.RawTensor, wrt ...*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	return autodiff.Gradients(backend, loss, wrt...)
}

// Rule replaces the backward pass of a rectifier.
type Rule = autodiff.Rule

// Registry maps rule names to gradient rules.
type Registry = autodiff.Registry

// GradientRegistrationError reports a conflicting or missing rule.
type GradientRegistrationError = autodiff.GradientRegistrationError

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return autodiff.NewRegistry()
}

// WithRegistry makes the rules of reg available to the backend.
func WithRegistry(reg *Registry) Option {
	return autodiff.WithRegistry(reg)
}
