package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/saliency/internal/tensor"
)

// MatMul computes a @ b for 2D tensors: [M, K] @ [K, N] -> [M, N].
//
// The product is delegated to gonum in float64 and rounded back, which keeps
// the dense head of a classifier exact enough for gradient checks.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireRank("matmul", a, 2)
	requireRank("matmul", b, 2)
	m, k := a.Shape()[0], a.Shape()[1]
	k2, n := b.Shape()[0], b.Shape()[1]
	if k != k2 {
		panic(fmt.Sprintf("matmul: inner dimensions differ: %v @ %v", a.Shape(), b.Shape()))
	}

	var prod mat.Dense
	prod.Mul(toDense(a, m, k), toDense(b, k, n))

	result := tensor.MustNewRaw(tensor.Shape{m, n}, cpu.device)
	dst := result.Data()
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			dst[i*n+j] = float32(prod.At(i, j))
		}
	}
	return result
}

// Transpose swaps the two axes of a 2D tensor.
func (cpu *CPUBackend) Transpose(x *tensor.RawTensor) *tensor.RawTensor {
	requireRank("transpose", x, 2)
	rows, cols := x.Shape()[0], x.Shape()[1]
	result := tensor.MustNewRaw(tensor.Shape{cols, rows}, cpu.device)
	src, dst := x.Data(), result.Data()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return result
}

func toDense(t *tensor.RawTensor, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i, v := range t.Data() {
		data[i] = float64(v)
	}
	return mat.NewDense(rows, cols, data)
}
