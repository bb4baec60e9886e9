package bitmap

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mrjoshuak/go-openexr/exr"
)

// ToRGBA8 expands img to non-premultiplied 8-bit RGBA. Float samples are
// clamped to [0,1] before scaling.
func ToRGBA8(img image.Image) *image.NRGBA {
	b := img.Bounds()
	rect := image.Rect(0, 0, b.Dx(), b.Dy())

	switch m := img.(type) {
	case *image.NRGBA:
		if m.Rect == rect && m.Stride == 4*rect.Dx() {
			return m
		}
	case *exr.RGBAImage:
		dst := image.NewNRGBA(rect)
		for y := 0; y < rect.Dy(); y++ {
			for x := 0; x < rect.Dx(); x++ {
				r, g, bl, a := m.RGBA(b.Min.X+x, b.Min.Y+y)
				i := dst.PixOffset(x, y)
				dst.Pix[i+0] = unitToByte(float64(r))
				dst.Pix[i+1] = unitToByte(float64(g))
				dst.Pix[i+2] = unitToByte(float64(bl))
				dst.Pix[i+3] = unitToByte(float64(a))
			}
		}
		return dst
	case hdr.Image:
		dst := image.NewNRGBA(rect)
		for y := 0; y < rect.Dy(); y++ {
			for x := 0; x < rect.Dx(); x++ {
				r, g, bl, _ := m.HDRAt(b.Min.X+x, b.Min.Y+y).HDRRGBA()
				i := dst.PixOffset(x, y)
				dst.Pix[i+0] = unitToByte(r)
				dst.Pix[i+1] = unitToByte(g)
				dst.Pix[i+2] = unitToByte(bl)
				dst.Pix[i+3] = 0xff
			}
		}
		return dst
	}

	dst := image.NewNRGBA(rect)
	draw.Draw(dst, rect, img, b.Min, draw.Src)
	return dst
}

// ToRGB8 drops alpha and reduces every channel to 8 bits.
func ToRGB8(img image.Image) *RGB {
	if m, ok := img.(*RGB); ok && m.Rect.Min == (image.Point{}) && m.Stride == 3*m.Rect.Dx() {
		return m
	}

	src := ToRGBA8(img)
	dst := NewRGB(src.Rect)
	for i, j := 0, 0; i < len(src.Pix); i, j = i+4, j+3 {
		dst.Pix[j+0] = src.Pix[i+0]
		dst.Pix[j+1] = src.Pix[i+1]
		dst.Pix[j+2] = src.Pix[i+2]
	}
	return dst
}

// ToRGBA32F converts img to linear float RGBA in [0,1] for integer sources;
// float sources keep their unclamped range.
func ToRGBA32F(img image.Image) *exr.RGBAImage {
	b := img.Bounds()
	dst := exr.NewRGBAImage(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch m := img.(type) {
	case *exr.RGBAImage:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				r, g, bl, a := m.RGBA(b.Min.X+x, b.Min.Y+y)
				dst.SetRGBA(x, y, r, g, bl, a)
			}
		}
	case hdr.Image:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				r, g, bl, _ := m.HDRAt(b.Min.X+x, b.Min.Y+y).HDRRGBA()
				dst.SetRGBA(x, y, float32(r), float32(g), float32(bl), 1)
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				dst.SetRGBA(x, y, wordToUnit(c.R), wordToUnit(c.G), wordToUnit(c.B), wordToUnit(c.A))
			}
		}
	}
	return dst
}

// ToRGB32F converts img to float RGB, discarding alpha.
func ToRGB32F(img image.Image) *hdr.RGB {
	b := img.Bounds()
	dst := hdr.NewRGB(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch m := img.(type) {
	case *exr.RGBAImage:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				r, g, bl, _ := m.RGBA(b.Min.X+x, b.Min.Y+y)
				dst.SetRGB(x, y, hdrcolor.RGB{R: float64(r), G: float64(g), B: float64(bl)})
			}
		}
	case hdr.Image:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				r, g, bl, _ := m.HDRAt(b.Min.X+x, b.Min.Y+y).HDRRGBA()
				dst.SetRGB(x, y, hdrcolor.RGB{R: r, G: g, B: bl})
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				dst.SetRGB(x, y, hdrcolor.RGB{
					R: float64(wordToUnit(c.R)),
					G: float64(wordToUnit(c.G)),
					B: float64(wordToUnit(c.B)),
				})
			}
		}
	}
	return dst
}

// Resize scales img to exactly width x height with a Lanczos (a=3) filter,
// ignoring the source aspect ratio.
func Resize(img image.Image, width, height int) *image.NRGBA {
	if ColorOf(img).IsFloat() {
		img = ToRGBA8(img)
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Validate checks that the pixel buffer of img holds exactly
// width x height x bytes-per-pixel samples for the tightly packed buffer types
// produced by this package.
func Validate(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < 0 || b.Dy() < 0 {
		return fmt.Errorf("invalid bounds %v", b)
	}

	var got, stride, rowLen int
	switch m := img.(type) {
	case *image.NRGBA:
		got, stride, rowLen = len(m.Pix), m.Stride, 4*b.Dx()
	case *image.RGBA:
		got, stride, rowLen = len(m.Pix), m.Stride, 4*b.Dx()
	case *image.Gray:
		got, stride, rowLen = len(m.Pix), m.Stride, b.Dx()
	case *RGB:
		got, stride, rowLen = len(m.Pix), m.Stride, 3*b.Dx()
	case *hdr.RGB:
		got, stride, rowLen = len(m.Pix), m.Stride, 3*b.Dx()
	case *exr.RGBAImage:
		got, stride, rowLen = len(m.Pix), 4*b.Dx(), 4*b.Dx()
	default:
		return nil
	}
	if stride != rowLen {
		return fmt.Errorf("%s buffer stride %d does not match row length %d", ColorOf(img), stride, rowLen)
	}
	if want := rowLen * b.Dy(); got != want {
		return fmt.Errorf("%s buffer holds %d samples, %dx%d needs %d", ColorOf(img), got, b.Dx(), b.Dy(), want)
	}
	return nil
}

func unitToByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(math.Round(v * 255))
}

func wordToUnit(v uint16) float32 {
	return float32(v) / 0xffff
}
