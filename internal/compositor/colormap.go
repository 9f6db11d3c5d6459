package compositor

import (
	"image/color"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

// jetStops are the control points of the "jet" colormap: dark blue, blue,
// cyan, yellow, red, dark red.
var jetStops = []struct {
	at float64
	c  colorful.Color
}{
	{0, colorful.Color{R: 0, G: 0, B: 0.5}},
	{0.125, colorful.Color{R: 0, G: 0, B: 1}},
	{0.375, colorful.Color{R: 0, G: 1, B: 1}},
	{0.625, colorful.Color{R: 1, G: 1, B: 0}},
	{0.875, colorful.Color{R: 1, G: 0, B: 0}},
	{1, colorful.Color{R: 0.5, G: 0, B: 0}},
}

// Jet maps v in [0, 1] to the jet colormap. Values outside the range are
// clamped.
func Jet(v float64) color.RGBA {
	v = min(max(v, 0), 1)
	c := jetStops[len(jetStops)-1].c
	for i := 1; i < len(jetStops); i++ {
		lo, hi := jetStops[i-1], jetStops[i]
		if v <= hi.at {
			c = lo.c.BlendRgb(hi.c, (v-lo.at)/(hi.at-lo.at))
			break
		}
	}
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

var jetTable = sync.OnceValue(func() [256]color.RGBA {
	var lut [256]color.RGBA
	for i := range lut {
		lut[i] = Jet(float64(i) / 255)
	}
	return lut
})

// JetIndex returns the jet color of an 8-bit intensity.
func JetIndex(i uint8) color.RGBA {
	return jetTable()[i]
}
