package bitmap

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mrjoshuak/go-openexr/exr"
)

func TestColorOfBitsPerPixel(t *testing.T) {
	rect := image.Rect(0, 0, 2, 2)
	cases := []struct {
		img  image.Image
		want ColorType
		bpp  int
	}{
		{image.NewGray(rect), L8, 8},
		{image.NewGray16(rect), L16, 16},
		{image.NewNRGBA(rect), RGBA8, 32},
		{image.NewRGBA64(rect), RGBA16, 64},
		{image.NewYCbCr(rect, image.YCbCrSubsampleRatio420), RGB8, 24},
		{NewRGB(rect), RGB8, 24},
		{hdr.NewRGB(rect), RGB32F, 96},
		{exr.NewRGBAImage(rect), RGBA32F, 128},
		{image.NewPaletted(rect, color.Palette{color.Black, color.White}), RGB8, 24},
		{image.NewPaletted(rect, color.Palette{color.Transparent, color.White}), RGBA8, 32},
		{opaque(image.NewRGBA(rect)), RGB8, 24},
		{opaque(image.NewNRGBA(rect)), RGB8, 24},
		{opaque(image.NewRGBA64(rect)), RGB16, 48},
	}
	for _, tc := range cases {
		got := ColorOf(tc.img)
		if got != tc.want {
			t.Fatalf("ColorOf(%T) = %s, want %s", tc.img, got, tc.want)
		}
		if got.BitsPerPixel() != tc.bpp {
			t.Fatalf("%s bits per pixel = %d, want %d", got, got.BitsPerPixel(), tc.bpp)
		}
	}
}

func opaque(img draw.Image) draw.Image {
	b := img.Bounds()
	draw.Draw(img, b, image.NewUniform(color.RGBA{R: 10, G: 20, B: 30, A: 255}), image.Point{}, draw.Src)
	return img
}

func TestToRGBA8ClampsHDR(t *testing.T) {
	src := hdr.NewRGB(image.Rect(0, 0, 2, 1))
	src.SetRGB(0, 0, hdrcolor.RGB{R: 4.5, G: 0.5, B: -1})
	src.SetRGB(1, 0, hdrcolor.RGB{R: 1, G: 0, B: 0.25})

	out := ToRGBA8(src)
	if err := Validate(out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	got := out.NRGBAAt(0, 0)
	if got != (color.NRGBA{R: 255, G: 128, B: 0, A: 255}) {
		t.Fatalf("unexpected clamped pixel %+v", got)
	}
	if got := out.NRGBAAt(1, 0); got.B != 64 || got.A != 255 {
		t.Fatalf("unexpected pixel %+v", got)
	}
}

func TestToRGB8DropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 40})

	out := ToRGB8(src)
	if err := Validate(out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(out.Pix) != 3*2*3 {
		t.Fatalf("expected 18 bytes, got %d", len(out.Pix))
	}
	if got := out.RGBAAt(1, 1); got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Fatalf("unexpected pixel %+v", got)
	}
	if ColorOf(out) != RGB8 {
		t.Fatalf("expected RGB8, got %s", ColorOf(out))
	}
}

func TestFloatConversions(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	rgba := ToRGBA32F(src)
	if err := Validate(rgba); err != nil {
		t.Fatalf("validate rgba32f: %v", err)
	}
	if r, _, _, a := rgba.RGBA(3, 2); r != 1 || a != 1 {
		t.Fatalf("expected white opaque, got r=%v a=%v", r, a)
	}

	rgb := ToRGB32F(src)
	if err := Validate(rgb); err != nil {
		t.Fatalf("validate rgb32f: %v", err)
	}
	if len(rgb.Pix) != 4*3*3 {
		t.Fatalf("expected 36 samples, got %d", len(rgb.Pix))
	}

	back := ToRGBA8(rgb)
	if back.NRGBAAt(2, 2) != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("unexpected round trip pixel %+v", back.NRGBAAt(2, 2))
	}
}

func TestResizeExactDimensions(t *testing.T) {
	for _, size := range []image.Point{{1, 1}, {640, 32}, {17, 900}} {
		out := Resize(image.NewNRGBA(image.Rect(0, 0, size.X, size.Y)), 256, 256)
		if out.Bounds().Dx() != 256 || out.Bounds().Dy() != 256 {
			t.Fatalf("resize %v: got %v", size, out.Bounds())
		}
	}
}

func TestValidateRejectsShortBuffer(t *testing.T) {
	img := NewRGB(image.Rect(0, 0, 4, 4))
	img.Pix = img.Pix[:len(img.Pix)-1]
	if err := Validate(img); err == nil {
		t.Fatal("expected buffer length mismatch")
	}
}
