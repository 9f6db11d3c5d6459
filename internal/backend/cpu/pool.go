package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/saliency/internal/parallel"
	"github.com/born-ml/saliency/internal/tensor"
)

// MaxPool2D takes the maximum over each window of every channel.
//
// Positions that fall into "same" padding are ignored rather than treated as
// zeros, matching TensorFlow.
//
// Input shape:  [N, H, W, C]
// Output shape: [N, H_out, W_out, C]
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	requireRank("maxpool2d", input, 4)
	n, h, w, c := input.Shape().NHWC()
	g := mustResolve("maxpool2d", win, h, w)
	output := tensor.MustNewRaw(tensor.Shape{n, g.OutH, g.OutW, c}, cpu.device)

	x, y := input.Data(), output.Data()
	parallel.Range(n*g.OutH, cpu.par, func(lo, hi int) {
		for row := lo; row < hi; row++ {
			b, oy := row/g.OutH, row%g.OutH
			for ox := 0; ox < g.OutW; ox++ {
				dst := y[((b*g.OutH+oy)*g.OutW+ox)*c:][:c]
				for ch := range dst {
					dst[ch] = math32.Inf(-1)
				}
				forWindow(win, g, h, w, oy, ox, func(iy, ix int) {
					src := x[((b*h+iy)*w+ix)*c:][:c]
					for ch, v := range src {
						if v > dst[ch] {
							dst[ch] = v
						}
					}
				})
			}
		}
	})

	return output
}

// MaxPool2DBackward routes each output gradient to the first maximal input
// position of its window. Overlapping windows accumulate.
func (cpu *CPUBackend) MaxPool2DBackward(input, outputGrad *tensor.RawTensor, win tensor.Window) *tensor.RawTensor {
	requireRank("maxpool2d backward", input, 4)
	n, h, w, c := input.Shape().NHWC()
	g := mustResolve("maxpool2d backward", win, h, w)
	wantGrad := tensor.Shape{n, g.OutH, g.OutW, c}
	if !outputGrad.Shape().Equal(wantGrad) {
		panic(fmt.Sprintf("maxpool2d backward: output gradient shape %v, expected %v", outputGrad.Shape(), wantGrad))
	}
	inputGrad := tensor.MustNewRaw(input.Shape(), cpu.device)

	x, dy, dx := input.Data(), outputGrad.Data(), inputGrad.Data()
	// Windows overlap across rows, so work is split per image only.
	parallel.For(n, cpu.par, func(b int) {
		best := make([]int, c)
		bestVal := make([]float32, c)
		for oy := 0; oy < g.OutH; oy++ {
			for ox := 0; ox < g.OutW; ox++ {
				for ch := range best {
					best[ch] = -1
					bestVal[ch] = math32.Inf(-1)
				}
				forWindow(win, g, h, w, oy, ox, func(iy, ix int) {
					base := ((b*h+iy)*w + ix) * c
					for ch := 0; ch < c; ch++ {
						if v := x[base+ch]; best[ch] < 0 || v > bestVal[ch] {
							best[ch] = base + ch
							bestVal[ch] = v
						}
					}
				})
				grad := dy[((b*g.OutH+oy)*g.OutW+ox)*c:][:c]
				for ch, gv := range grad {
					if best[ch] >= 0 {
						dx[best[ch]] += gv
					}
				}
			}
		}
	})

	return inputGrad
}

// GlobalAvgPool2D averages every channel over the spatial axes.
//
// Input shape:  [N, H, W, C]
// Output shape: [N, C]
func (cpu *CPUBackend) GlobalAvgPool2D(input *tensor.RawTensor) *tensor.RawTensor {
	requireRank("global_avg_pool2d", input, 4)
	n, h, w, c := input.Shape().NHWC()
	output := tensor.MustNewRaw(tensor.Shape{n, c}, cpu.device)

	x, y := input.Data(), output.Data()
	area := float32(h * w)
	for b := 0; b < n; b++ {
		dst := y[b*c:][:c]
		for p := 0; p < h*w; p++ {
			src := x[(b*h*w+p)*c:][:c]
			for ch, v := range src {
				dst[ch] += v
			}
		}
		for ch := range dst {
			dst[ch] /= area
		}
	}

	return output
}

// forWindow calls f for every in-bounds input position of output (oy, ox).
func forWindow(win tensor.Window, g tensor.Geometry, h, w, oy, ox int, f func(iy, ix int)) {
	for ky := 0; ky < win.Size[0]; ky++ {
		iy := oy*win.Stride + ky - g.PadTop
		if iy < 0 || iy >= h {
			continue
		}
		for kx := 0; kx < win.Size[1]; kx++ {
			ix := ox*win.Stride + kx - g.PadLeft
			if ix < 0 || ix >= w {
				continue
			}
			f(iy, ix)
		}
	}
}
