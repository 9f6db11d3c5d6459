package compositor

import (
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// BannerHeight is the height in pixels of the label strip added by Annotate.
const BannerHeight = 20

// PanelGap is the spacing between images in a Panel.
const PanelGap = 4

// Annotate returns a copy of img with label drawn on a dark banner above it.
func Annotate(img image.Image, label string) *image.RGBA {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy()+BannerHeight)
	dc.SetRGB(0.1, 0.1, 0.1)
	dc.Clear()
	dc.DrawImage(img, 0, BannerHeight)

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(label, float64(b.Dx())/2, BannerHeight/2, 0.5, 0.35)
	return toRGBA(dc.Image())
}

// Panel lays images out left to right on a white background, top aligned.
func Panel(images ...image.Image) *image.RGBA {
	width, height := 0, 0
	for i, img := range images {
		b := img.Bounds()
		if i > 0 {
			width += PanelGap
		}
		width += b.Dx()
		height = max(height, b.Dy())
	}
	if width == 0 || height == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	x := 0
	for _, img := range images {
		dc.DrawImage(img, x, 0)
		x += img.Bounds().Dx() + PanelGap
	}
	return toRGBA(dc.Image())
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}
