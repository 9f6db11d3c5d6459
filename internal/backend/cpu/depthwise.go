package cpu

import (
	"fmt"

	"github.com/born-ml/saliency/internal/parallel"
	"github.com/born-ml/saliency/internal/tensor"
)

// DepthwiseConv2D convolves every channel with its own filter (depth
// multiplier 1). It is the first half of a separable convolution.
//
// Input shape:  [N, H, W, C]
// Kernel shape: [K_h, K_w, C]
// Output shape: [N, H_out, W_out, C]
func (cpu *CPUBackend) DepthwiseConv2D(input, kernel *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	d := newDepthwiseGeometry("depthwise_conv2d", input, kernel, win)
	output := tensor.MustNewRaw(tensor.Shape{d.n, d.g.OutH, d.g.OutW, d.c}, cpu.device)

	x, k, y := input.Data(), kernel.Data(), output.Data()
	parallel.Range(d.n*d.g.OutH, cpu.par, func(lo, hi int) {
		for row := lo; row < hi; row++ {
			b, oy := row/d.g.OutH, row%d.g.OutH
			for ox := 0; ox < d.g.OutW; ox++ {
				dst := y[((b*d.g.OutH+oy)*d.g.OutW+ox)*d.c:][:d.c]
				for ky := 0; ky < d.kh; ky++ {
					iy := oy*d.stride + ky - d.g.PadTop
					if iy < 0 || iy >= d.h {
						continue
					}
					for kx := 0; kx < d.kw; kx++ {
						ix := ox*d.stride + kx - d.g.PadLeft
						if ix < 0 || ix >= d.w {
							continue
						}
						src := x[((b*d.h+iy)*d.w+ix)*d.c:][:d.c]
						krow := k[(ky*d.kw+kx)*d.c:][:d.c]
						for ch, v := range src {
							dst[ch] += v * krow[ch]
						}
					}
				}
			}
		}
	})

	return output
}

// DepthwiseConv2DInputBackward computes ∂L/∂input for DepthwiseConv2D.
func (cpu *CPUBackend) DepthwiseConv2DInputBackward(input, kernel, outputGrad *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	d := newDepthwiseGeometry("depthwise_conv2d backward", input, kernel, win)
	wantGrad := tensor.Shape{d.n, d.g.OutH, d.g.OutW, d.c}
	if !outputGrad.Shape().Equal(wantGrad) {
		panic(fmt.Sprintf("depthwise_conv2d backward: output gradient shape %v, expected %v", outputGrad.Shape(), wantGrad))
	}
	inputGrad := tensor.MustNewRaw(input.Shape(), cpu.device)

	k, dy, dx := kernel.Data(), outputGrad.Data(), inputGrad.Data()
	parallel.Range(d.n*d.h, cpu.par, func(lo, hi int) {
		for row := lo; row < hi; row++ {
			b, iy := row/d.h, row%d.h
			for ix := 0; ix < d.w; ix++ {
				dst := dx[((b*d.h+iy)*d.w+ix)*d.c:][:d.c]
				for ky := 0; ky < d.kh; ky++ {
					oy, ok := d.outIndex(iy, ky, d.g.PadTop, d.g.OutH)
					if !ok {
						continue
					}
					for kx := 0; kx < d.kw; kx++ {
						ox, ok := d.outIndex(ix, kx, d.g.PadLeft, d.g.OutW)
						if !ok {
							continue
						}
						grad := dy[((b*d.g.OutH+oy)*d.g.OutW+ox)*d.c:][:d.c]
						krow := k[(ky*d.kw+kx)*d.c:][:d.c]
						for ch, g := range grad {
							dst[ch] += g * krow[ch]
						}
					}
				}
			}
		}
	})

	return inputGrad
}

type depthwiseGeometry struct {
	convGeometry
	c int
}

func newDepthwiseGeometry(op string, input, kernel *tensor.RawTensor, win tensor.Window) depthwiseGeometry {
	requireRank(op, input, 4)
	requireRank(op, kernel, 3)
	n, h, w, c := input.Shape().NHWC()
	ks := kernel.Shape()
	if ks[2] != c {
		panic(fmt.Sprintf("%s: input channels %d != kernel channels %d", op, c, ks[2]))
	}
	win.Size = [2]int{ks[0], ks[1]}
	return depthwiseGeometry{
		convGeometry: convGeometry{
			n: n, h: h, w: w, cin: c,
			kh: ks[0], kw: ks[1], cout: c,
			stride: win.Stride,
			g:      mustResolve(op, win, h, w),
		},
		c: c,
	}
}
