package bitmap

import (
	"image"
	"image/color"

	"github.com/mdouchement/hdr"
	"github.com/mrjoshuak/go-openexr/exr"
	"github.com/spakin/netpbm"
)

// ColorType describes the channel layout and sample representation of a
// decoded image.
type ColorType int

const (
	L8 ColorType = iota + 1
	LA8
	RGB8
	RGBA8
	L16
	LA16
	RGB16
	RGBA16
	RGB32F
	RGBA32F
)

var colorTypeInfo = map[ColorType]struct {
	name     string
	channels int
	bytes    int
}{
	L8:      {"L8", 1, 1},
	LA8:     {"LA8", 2, 1},
	RGB8:    {"RGB8", 3, 1},
	RGBA8:   {"RGBA8", 4, 1},
	L16:     {"L16", 1, 2},
	LA16:    {"LA16", 2, 2},
	RGB16:   {"RGB16", 3, 2},
	RGBA16:  {"RGBA16", 4, 2},
	RGB32F:  {"RGB32F", 3, 4},
	RGBA32F: {"RGBA32F", 4, 4},
}

func (c ColorType) String() string {
	if meta, ok := colorTypeInfo[c]; ok {
		return meta.name
	}
	return "unknown"
}

func (c ColorType) Channels() int {
	return colorTypeInfo[c].channels
}

func (c ColorType) BytesPerPixel() int {
	meta := colorTypeInfo[c]
	return meta.channels * meta.bytes
}

func (c ColorType) BitsPerPixel() int {
	return c.BytesPerPixel() * 8
}

func (c ColorType) HasAlpha() bool {
	switch c {
	case LA8, RGBA8, LA16, RGBA16, RGBA32F:
		return true
	default:
		return false
	}
}

func (c ColorType) IsFloat() bool {
	return c == RGB32F || c == RGBA32F
}

// ColorOf classifies img by its concrete buffer type, falling back to its
// color model for types it does not know. The standard decoders return RGBA
// buffers for truecolor sources without alpha, so fully opaque RGBA buffers
// are reported as RGB.
func ColorOf(img image.Image) ColorType {
	switch m := img.(type) {
	case *RGB:
		return RGB8
	case *image.Gray:
		return L8
	case *image.Gray16:
		return L16
	case *image.RGBA, *image.NRGBA:
		if m.(opaquer).Opaque() {
			return RGB8
		}
		return RGBA8
	case *image.NYCbCrA:
		return RGBA8
	case *image.RGBA64, *image.NRGBA64:
		if m.(opaquer).Opaque() {
			return RGB16
		}
		return RGBA16
	case *image.YCbCr, *image.CMYK:
		return RGB8
	case *image.Paletted:
		return palettedColor(m.Palette)
	case *exr.RGBAImage:
		return RGBA32F
	case hdr.Image:
		return RGB32F
	case *netpbm.BW, *netpbm.GrayM:
		return L8
	case *netpbm.GrayM32:
		return L16
	case *netpbm.RGBM:
		return RGB8
	case *netpbm.RGBM64:
		return RGB16
	case *netpbm.GrayAM:
		return LA8
	case *netpbm.GrayAM48:
		return LA16
	case *netpbm.RGBAM:
		return RGBA8
	case *netpbm.RGBAM64:
		return RGBA16
	}

	switch img.ColorModel() {
	case color.GrayModel:
		return L8
	case color.Gray16Model:
		return L16
	case color.RGBA64Model, color.NRGBA64Model:
		return RGBA16
	default:
		return RGBA8
	}
}

type opaquer interface {
	Opaque() bool
}

func palettedColor(p color.Palette) ColorType {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return RGBA8
		}
	}
	return RGB8
}
