// Package cpu implements the NHWC float32 reference backend.
package cpu

import (
	"fmt"

	"github.com/born-ml/saliency/internal/parallel"
	"github.com/born-ml/saliency/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// Kernels parallelize over output rows with internal/parallel. Each output
// element is produced by exactly one goroutine in a fixed summation order,
// so results are bit-identical regardless of worker count.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend using all available cores.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition of two tensors of identical shape.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireSameShape("add", a, b)
	result := tensor.MustNewRaw(a.Shape(), cpu.device)
	dst, x, y := result.Data(), a.Data(), b.Data()
	for i := range dst {
		dst[i] = x[i] + y[i]
	}
	return result
}

// Mul performs element-wise multiplication of two tensors of identical shape.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireSameShape("mul", a, b)
	result := tensor.MustNewRaw(a.Shape(), cpu.device)
	dst, x, y := result.Data(), a.Data(), b.Data()
	for i := range dst {
		dst[i] = x[i] * y[i]
	}
	return result
}

// Reshape returns a view of x with a new shape. The buffer is shared.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	view, err := x.View(shape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

func requireSameShape(op string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}

func requireRank(op string, x *tensor.RawTensor, rank int) {
	if len(x.Shape()) != rank {
		panic(fmt.Sprintf("%s: expected %dD tensor, got shape %v", op, rank, x.Shape()))
	}
}

func mustResolve(op string, win tensor.Window, h, w int) tensor.Geometry {
	g, err := win.Resolve(h, w)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	return g
}
