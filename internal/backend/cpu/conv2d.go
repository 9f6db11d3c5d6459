package cpu

import (
	"fmt"

	"github.com/born-ml/saliency/internal/parallel"
	"github.com/born-ml/saliency/internal/tensor"
)

// Conv2D performs a direct 2D convolution.
//
// Input shape:  [N, H, W, C_in]
// Kernel shape: [K_h, K_w, C_in, C_out]
// Output shape: [N, H_out, W_out, C_out]
//
// The window size is taken from the kernel; win supplies stride and padding.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	c := newConvGeometry("conv2d", input, kernel, win)
	output := tensor.MustNewRaw(tensor.Shape{c.n, c.g.OutH, c.g.OutW, c.cout}, cpu.device)

	x, k, y := input.Data(), kernel.Data(), output.Data()
	parallel.Range(c.n*c.g.OutH, cpu.par, func(lo, hi int) {
		for row := lo; row < hi; row++ {
			b, oy := row/c.g.OutH, row%c.g.OutH
			for ox := 0; ox < c.g.OutW; ox++ {
				dst := y[((b*c.g.OutH+oy)*c.g.OutW+ox)*c.cout:][:c.cout]
				for ky := 0; ky < c.kh; ky++ {
					iy := oy*c.stride + ky - c.g.PadTop
					if iy < 0 || iy >= c.h {
						continue
					}
					for kx := 0; kx < c.kw; kx++ {
						ix := ox*c.stride + kx - c.g.PadLeft
						if ix < 0 || ix >= c.w {
							continue
						}
						src := x[((b*c.h+iy)*c.w+ix)*c.cin:][:c.cin]
						kbase := (ky*c.kw + kx) * c.cin * c.cout
						for ci, v := range src {
							if v == 0 {
								continue
							}
							krow := k[kbase+ci*c.cout:][:c.cout]
							for co, kv := range krow {
								dst[co] += v * kv
							}
						}
					}
				}
			}
		}
	})

	return output
}

// Conv2DInputBackward computes ∂L/∂input for Conv2D.
//
// Formulated as a gather over input pixels: every input position collects
// the output positions whose window covered it. This keeps each write owned
// by a single goroutine.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, outputGrad *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	c := newConvGeometry("conv2d backward", input, kernel, win)
	wantGrad := tensor.Shape{c.n, c.g.OutH, c.g.OutW, c.cout}
	if !outputGrad.Shape().Equal(wantGrad) {
		panic(fmt.Sprintf("conv2d backward: output gradient shape %v, expected %v", outputGrad.Shape(), wantGrad))
	}
	inputGrad := tensor.MustNewRaw(input.Shape(), cpu.device)

	k, dy, dx := kernel.Data(), outputGrad.Data(), inputGrad.Data()
	parallel.Range(c.n*c.h, cpu.par, func(lo, hi int) {
		for row := lo; row < hi; row++ {
			b, iy := row/c.h, row%c.h
			for ix := 0; ix < c.w; ix++ {
				dst := dx[((b*c.h+iy)*c.w+ix)*c.cin:][:c.cin]
				for ky := 0; ky < c.kh; ky++ {
					oy, ok := c.outIndex(iy, ky, c.g.PadTop, c.g.OutH)
					if !ok {
						continue
					}
					for kx := 0; kx < c.kw; kx++ {
						ox, ok := c.outIndex(ix, kx, c.g.PadLeft, c.g.OutW)
						if !ok {
							continue
						}
						grad := dy[((b*c.g.OutH+oy)*c.g.OutW+ox)*c.cout:][:c.cout]
						kbase := (ky*c.kw + kx) * c.cin * c.cout
						for ci := range dst {
							krow := k[kbase+ci*c.cout:][:c.cout]
							var acc float32
							for co, g := range grad {
								acc += g * krow[co]
							}
							dst[ci] += acc
						}
					}
				}
			}
		}
	})

	return inputGrad
}

// convGeometry bundles the dimensions shared by forward and backward kernels.
type convGeometry struct {
	n, h, w, cin int
	kh, kw, cout int
	stride       int
	g            tensor.Geometry
}

func newConvGeometry(op string, input, kernel *tensor.RawTensor, win tensor.Window) convGeometry {
	requireRank(op, input, 4)
	requireRank(op, kernel, 4)
	n, h, w, cin := input.Shape().NHWC()
	ks := kernel.Shape()
	if ks[2] != cin {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, cin, ks[2]))
	}
	win.Size = [2]int{ks[0], ks[1]}
	return convGeometry{
		n: n, h: h, w: w, cin: cin,
		kh: ks[0], kw: ks[1], cout: ks[3],
		stride: win.Stride,
		g:      mustResolve(op, win, h, w),
	}
}

// outIndex maps an input coordinate and kernel tap back to the output
// coordinate whose window placed that tap on the input, if any.
func (c convGeometry) outIndex(in, tap, pad, outSize int) (int, bool) {
	t := in + pad - tap
	if t < 0 || t%c.stride != 0 {
		return 0, false
	}
	o := t / c.stride
	return o, o < outSize
}
