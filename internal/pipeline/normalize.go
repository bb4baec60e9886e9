package pipeline

import (
	"image"

	"github.com/dunamismax/pixelshift/internal/bitmap"
	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/format"
)

const icoSize = 256

// Normalize reshapes img into a pixel layout the target encoder accepts.
// Radiance sources are reduced to 8-bit RGBA before the target conversion,
// and float buffers never reach an 8-bit encoder.
func Normalize(img image.Image, src format.Format, target format.Format) image.Image {
	if src == format.HDR {
		img = bitmap.ToRGBA8(img)
	}
	if bitmap.ColorOf(img).IsFloat() && target != format.OpenEXR && target != format.HDR {
		img = bitmap.ToRGBA8(img)
	}

	switch target {
	case format.JPEG, format.QOI, format.Farbfeld, format.PNM, format.TGA:
		return bitmap.ToRGB8(img)
	case format.ICO:
		return resample(img, icoSize, icoSize)
	case format.OpenEXR:
		return bitmap.ToRGBA32F(img)
	case format.HDR:
		return bitmap.ToRGB32F(img)
	default:
		return img
	}
}

// Encode writes img in target, or PNG when the target was not recognised.
func Encode(img image.Image, target format.Format, known bool) ([]byte, error) {
	if !known {
		target = format.PNG
	}
	return codec.EncodeBytes(target, img)
}
