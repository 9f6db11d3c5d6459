// Package compositor turns heatmaps and saliency gradients into images.
//
// Tensors are NHWC with batch 1 and RGB (or single-channel) order; a
// single channel is rendered as gray.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/saliency/internal/tensor"
)

// ErrShapeMismatch is returned when a heatmap does not cover the image.
var ErrShapeMismatch = errors.New("heatmap and image sizes differ")

// DeprocessEpsilon is added to the standard deviation in Deprocess.
const DeprocessEpsilon = 1e-5

// Overlay multiplies saliency by heatmap, broadcast across channels, and
// renders the product with Deprocess. This is the guided Grad-CAM image.
func Overlay(heatmap, saliency *tensor.RawTensor) (*image.RGBA, error) {
	h, w, c, err := checkPair(heatmap, saliency)
	if err != nil {
		return nil, err
	}
	product := saliency.Clone()
	dst, hm := product.Data(), heatmap.Data()
	for p := 0; p < h*w; p++ {
		for ch := 0; ch < c; ch++ {
			dst[p*c+ch] *= hm[p]
		}
	}
	return Deprocess(product)
}

// Deprocess standardizes x to zero mean and unit population variance, then
// maps it to pixels:
//
//	pixel = clip((x - mean) / (std + 1e-5) * 0.1 + 0.5, 0, 1) * 255
func Deprocess(x *tensor.RawTensor) (*image.RGBA, error) {
	_, h, w, c, err := imageDims(x)
	if err != nil {
		return nil, err
	}
	values := toFloat64(x.Data())
	mean, variance := stat.PopMeanVariance(values, nil)
	scale := 0.1 / (math.Sqrt(variance) + DeprocessEpsilon)
	for i, v := range values {
		v = (v-mean)*scale + 0.5
		values[i] = min(max(v, 0), 1) * 255
	}
	return render(values, h, w, c), nil
}

// Colorize blends the jet-colored heatmap with an image in [-1, 1]:
//
//	cam = jet(uint8(255 * heatmap)) + (image * 127.5 + 127.5)
//	out = 255 * cam / max(cam)
func Colorize(heatmap, img *tensor.RawTensor) (*image.RGBA, error) {
	h, w, c, err := checkPair(heatmap, img)
	if err != nil {
		return nil, err
	}
	cam := make([]float64, h*w*3)
	hm, src := heatmap.Data(), img.Data()
	for p := 0; p < h*w; p++ {
		jet := JetIndex(uint8(min(max(hm[p], 0), 1) * 255))
		rgb := [3]uint8{jet.R, jet.G, jet.B}
		for ch := 0; ch < 3; ch++ {
			v := src[p*c+min(ch, c-1)]
			cam[p*3+ch] = float64(rgb[ch]) + float64(v)*127.5 + 127.5
		}
	}

	peak := floats.Max(cam)
	if peak <= 0 || math.IsNaN(peak) {
		return nil, fmt.Errorf("colorize: non-positive maximum %v", peak)
	}
	for i, v := range cam {
		cam[i] = 255 * v / peak
	}
	return render(cam, h, w, 3), nil
}

// Image renders a model input in [-1, 1] as pixels: x*127.5 + 127.5.
func Image(x *tensor.RawTensor) (*image.RGBA, error) {
	_, h, w, c, err := imageDims(x)
	if err != nil {
		return nil, err
	}
	values := toFloat64(x.Data())
	for i, v := range values {
		values[i] = v*127.5 + 127.5
	}
	return render(values, h, w, c), nil
}

func checkPair(heatmap, img *tensor.RawTensor) (h, w, c int, err error) {
	_, h, w, c, err = imageDims(img)
	if err != nil {
		return 0, 0, 0, err
	}
	if want := (tensor.Shape{h, w}); !heatmap.Shape().Equal(want) {
		return 0, 0, 0, fmt.Errorf("%w: heatmap %v, image %v", ErrShapeMismatch, heatmap.Shape(), img.Shape())
	}
	return h, w, c, nil
}

func imageDims(x *tensor.RawTensor) (n, h, w, c int, err error) {
	s := x.Shape()
	if len(s) != 4 || s[0] != 1 || (s[3] != 1 && s[3] != 3) {
		return 0, 0, 0, 0, fmt.Errorf("expected [1 H W 1|3] image tensor, got %v", s)
	}
	n, h, w, c = s.NHWC()
	return n, h, w, c, nil
}

func toFloat64(src []float32) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

// render converts values already in [0, 255] to pixels, truncating toward
// zero as a uint8 cast does.
func render(values []float64, h, w, c int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := (y*w + x) * c
			px := color.RGBA{A: 255}
			if c == 1 {
				v := toByte(values[base])
				px.R, px.G, px.B = v, v, v
			} else {
				px.R, px.G, px.B = toByte(values[base]), toByte(values[base+1]), toByte(values[base+2])
			}
			img.SetRGBA(x, y, px)
		}
	}
	return img
}

func toByte(v float64) uint8 {
	return uint8(min(max(v, 0), 255))
}
