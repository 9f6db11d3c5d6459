package gradcam

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/saliency/internal/tensor"
)

// NormalizeGradients scales g by the inverse of its root mean square:
//
//	g / (sqrt(mean(g²)) + eps)
func NormalizeGradients(g *tensor.RawTensor, eps float32) *tensor.RawTensor {
	src := g.Data()
	var sum float64
	for _, v := range src {
		sum += float64(v) * float64(v)
	}
	rms := math32.Sqrt(float32(sum / float64(len(src))))

	out := g.Clone()
	dst := out.Data()
	scale := rms + eps
	for i, v := range src {
		dst[i] = v / scale
	}
	return out
}

// ChannelWeights averages an [1, H, W, C] gradient over its spatial axes.
// The result has shape [C].
func ChannelWeights(grads *tensor.RawTensor) *tensor.RawTensor {
	_, h, w, c := grads.Shape().NHWC()
	sums := make([]float64, c)
	data := grads.Data()
	for p := 0; p < h*w; p++ {
		for ch := 0; ch < c; ch++ {
			sums[ch] += float64(data[p*c+ch])
		}
	}

	out := tensor.MustNewRaw(tensor.Shape{c}, grads.Device())
	dst := out.Data()
	n := float64(h * w)
	for ch, s := range sums {
		dst[ch] = float32(s / n)
	}
	return out
}

// RawCAM computes the class activation map of an [1, H, W, C] activation:
//
//	cam[y, x] = 1 + Σ_c weights[c] · A[0, y, x, c]
//
// The map starts at ones rather than zeros, so vanishing gradients give a
// uniform map instead of an error.
func RawCAM(activation, weights *tensor.RawTensor) (*tensor.RawTensor, error) {
	_, h, w, c := activation.Shape().NHWC()
	if weights.NumElements() != c {
		return nil, fmt.Errorf("raw cam: %d weights for %d channels", weights.NumElements(), c)
	}

	out, err := tensor.Full(tensor.Shape{h, w}, 1, activation.Device())
	if err != nil {
		return nil, err
	}
	a, wt, dst := activation.Data(), weights.Data(), out.Data()
	for p := range dst {
		acc := dst[p]
		row := a[p*c : (p+1)*c]
		for ch, v := range row {
			acc += wt[ch] * v
		}
		dst[p] = acc
	}
	return out, nil
}

// Resize bilinearly resamples an [H, W] map to [height, width] with pixel
// centers at half-integer coordinates, as OpenCV's INTER_LINEAR does.
// Source coordinates outside the map clamp to the border.
func Resize(m *tensor.RawTensor, height, width int) (*tensor.RawTensor, error) {
	if len(m.Shape()) != 2 {
		return nil, fmt.Errorf("resize: expected [H W] map, got %v", m.Shape())
	}
	out, err := tensor.NewRaw(tensor.Shape{height, width}, m.Device())
	if err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	srcH, srcW := m.Shape()[0], m.Shape()[1]
	ys := axisSamples(srcH, height)
	xs := axisSamples(srcW, width)

	src, dst := m.Data(), out.Data()
	for y, sy := range ys {
		top := src[sy.lo*srcW : (sy.lo+1)*srcW]
		bottom := src[sy.hi*srcW : (sy.hi+1)*srcW]
		for x, sx := range xs {
			t := top[sx.lo]*(1-sx.frac) + top[sx.hi]*sx.frac
			b := bottom[sx.lo]*(1-sx.frac) + bottom[sx.hi]*sx.frac
			dst[y*width+x] = t*(1-sy.frac) + b*sy.frac
		}
	}
	return out, nil
}

type sample struct {
	lo, hi int
	frac   float32
}

func axisSamples(src, dst int) []sample {
	scale := float32(src) / float32(dst)
	out := make([]sample, dst)
	for d := range out {
		pos := (float32(d)+0.5)*scale - 0.5
		lo := int(math32.Floor(pos))
		frac := pos - float32(lo)
		if lo < 0 {
			lo, frac = 0, 0
		}
		if lo >= src-1 {
			lo, frac = src-1, 0
		}
		out[d] = sample{lo: lo, hi: min(lo+1, src-1), frac: frac}
	}
	return out
}

// Normalize clips negative values to zero and divides by the maximum, so
// the result lies in [0, 1]. It returns a *DegenerateHeatmapError when no
// value is positive or any value is NaN.
func Normalize(m *tensor.RawTensor) (*tensor.RawTensor, error) {
	out := m.Clone()
	data := out.Data()
	var peak float32
	for i, v := range data {
		if math32.IsNaN(v) {
			return nil, &DegenerateHeatmapError{Max: math32.NaN()}
		}
		if v < 0 {
			data[i] = 0
			continue
		}
		peak = math32.Max(peak, v)
	}
	if peak <= 0 || math32.IsInf(peak, 1) {
		return nil, &DegenerateHeatmapError{Max: peak}
	}
	for i := range data {
		data[i] /= peak
	}
	return out, nil
}
