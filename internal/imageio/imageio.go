// Package imageio loads images into normalized NHWC tensors and writes
// rendered results back to disk.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/born-ml/saliency/internal/tensor"
)

// ErrUnsupportedFormat is returned when no registered decoder recognises a file.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ColorMode selects the channel layout of a loaded image.
type ColorMode string

// Supported color modes.
const (
	Grayscale ColorMode = "grayscale" // one channel
	RGB       ColorMode = "rgb"
	BGR       ColorMode = "bgr" // RGB with the channel axis reversed
)

// ParseColorMode parses grayscale, rgb or bgr (case-insensitive).
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(s)); m {
	case Grayscale, RGB, BGR:
		return m, nil
	default:
		return "", fmt.Errorf("unknown color mode %q (expected grayscale, rgb or bgr)", s)
	}
}

// Channels returns the number of channels the mode produces.
func (m ColorMode) Channels() int {
	if m == Grayscale {
		return 1
	}
	return 3
}

// Resample selects the interpolation used to resize images on load.
type Resample string

// Supported resampling filters.
const (
	Nearest  Resample = "nearest" // what Keras load_img uses by default
	Bilinear Resample = "bilinear"
	Lanczos3 Resample = "lanczos3"
)

// ParseResample parses a resampling filter name; "" means nearest.
func ParseResample(s string) (Resample, error) {
	switch r := Resample(strings.ToLower(s)); r {
	case "", Nearest:
		return Nearest, nil
	case Bilinear, Lanczos3:
		return r, nil
	default:
		return "", fmt.Errorf("unknown resample filter %q (expected nearest, bilinear or lanczos3)", s)
	}
}

func (r Resample) filter() resize.InterpolationFunction {
	switch r {
	case Bilinear:
		return resize.Bilinear
	case Lanczos3:
		return resize.Lanczos3
	default:
		return resize.NearestNeighbor
	}
}

// Options controls how an image becomes a model input.
type Options struct {
	Width, Height int
	ColorMode     ColorMode
	Resample      Resample
	FlipVertical  bool // reverse the height axis after loading
}

// DefaultOptions returns 224x224 RGB with nearest resampling and a
// vertical flip.
func DefaultOptions() Options {
	return Options{
		Width:        224,
		Height:       224,
		ColorMode:    RGB,
		Resample:     Nearest,
		FlipVertical: true,
	}
}

// Load decodes the image at path and converts it with FromImage.
func Load(path string, opts Options) (*tensor.RawTensor, error) {
	//nolint:gosec // G304: path is the user-supplied input image
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return FromImage(img, opts)
}

// Decode decodes PNG, JPEG, GIF, BMP, TIFF or WebP data.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if errors.Is(err, image.ErrFormat) {
		return nil, "", ErrUnsupportedFormat
	}
	return img, format, err
}

// FromImage resizes img to opts.Width x opts.Height and returns a
// [1, H, W, C] tensor with values in [-1, 1]:
//
//	x = (pixel/255 - 0.5) * 2
func FromImage(img image.Image, opts Options) (*tensor.RawTensor, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", opts.Width, opts.Height)
	}
	mode := opts.ColorMode
	if mode == "" {
		mode = RGB
	}
	if _, err := ParseColorMode(string(mode)); err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() != opts.Width || b.Dy() != opts.Height {
		//nolint:gosec // G115: sizes validated positive above
		img = resize.Resize(uint(opts.Width), uint(opts.Height), img, opts.Resample.filter())
		b = img.Bounds()
	}

	c := mode.Channels()
	out, err := tensor.NewRaw(tensor.Shape{1, opts.Height, opts.Width, c}, tensor.CPU)
	if err != nil {
		return nil, err
	}
	data := out.Data()
	for y := 0; y < opts.Height; y++ {
		for x := 0; x < opts.Width; x++ {
			px := img.At(b.Min.X+x, b.Min.Y+y)
			base := (y*opts.Width + x) * c
			if mode == Grayscale {
				g := color.GrayModel.Convert(px).(color.Gray)
				data[base] = normalize(g.Y)
				continue
			}
			r, gr, bl, _ := px.RGBA()
			rgb := [3]float32{normalize(uint8(r >> 8)), normalize(uint8(gr >> 8)), normalize(uint8(bl >> 8))}
			if mode == BGR {
				rgb[0], rgb[2] = rgb[2], rgb[0]
			}
			copy(data[base:base+3], rgb[:])
		}
	}

	if opts.FlipVertical {
		out = FlipVertical(out)
	}
	return out, nil
}

func normalize(v uint8) float32 {
	return (float32(v)/255 - 0.5) * 2
}

// FlipVertical returns a copy of an NHWC tensor with the height axis reversed.
func FlipVertical(t *tensor.RawTensor) *tensor.RawTensor {
	n, h, w, c := t.Shape().NHWC()
	out := tensor.MustNewRaw(t.Shape(), t.Device())
	src, dst := t.Data(), out.Data()
	row := w * c
	for b := 0; b < n; b++ {
		for y := 0; y < h; y++ {
			from := (b*h + y) * row
			to := (b*h + h - 1 - y) * row
			copy(dst[to:to+row], src[from:from+row])
		}
	}
	return out
}

// ToRGB reorders an NHWC tensor from mode to RGB channel order. Grayscale
// and RGB tensors are returned unchanged.
func ToRGB(t *tensor.RawTensor, mode ColorMode) *tensor.RawTensor {
	if mode != BGR {
		return t
	}
	_, _, _, c := t.Shape().NHWC()
	out := t.Clone()
	data := out.Data()
	for i := 0; i+c <= len(data); i += c {
		data[i], data[i+c-1] = data[i+c-1], data[i]
	}
	return out
}
