package codec

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/HugoSmits86/nativewebp"
	ico "github.com/biessek/golang-ico"
	"github.com/dunamismax/pixelshift/internal/bitmap"
	"github.com/dunamismax/pixelshift/internal/format"
	"github.com/ftrvxmtrx/tga"
	"github.com/gen2brain/avif"
	farbfeld "github.com/hullerob/go.farbfeld"
	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/spakin/netpbm"
	"github.com/xfmoulet/qoi"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

const jpegQuality = 75

var registry = map[format.Format]Codec{
	format.PNG: {
		Decode:       png.Decode,
		DecodeConfig: png.DecodeConfig,
		Encode: func(w io.Writer, img image.Image) error {
			encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
			return encoder.Encode(w, img)
		},
	},
	format.JPEG: {
		Decode:       jpeg.Decode,
		DecodeConfig: jpeg.DecodeConfig,
		Encode: func(w io.Writer, img image.Image) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
		},
	},
	format.GIF: {
		Decode:       gif.Decode,
		DecodeConfig: gif.DecodeConfig,
		Encode: func(w io.Writer, img image.Image) error {
			return gif.Encode(w, img, nil)
		},
	},
	format.WebP: {
		Decode:       webp.Decode,
		DecodeConfig: webp.DecodeConfig,
		Encode: func(w io.Writer, img image.Image) error {
			return nativewebp.Encode(w, img, nil)
		},
	},
	format.BMP: {
		Decode:       bmp.Decode,
		DecodeConfig: bmp.DecodeConfig,
		Encode:       bmp.Encode,
	},
	format.TIFF: {
		Decode:       tiff.Decode,
		DecodeConfig: tiff.DecodeConfig,
		Encode: func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		},
	},
	format.ICO: {
		Decode:       ico.Decode,
		DecodeConfig: ico.DecodeConfig,
		Encode:       ico.Encode,
	},
	format.AVIF: {
		Decode:       avif.Decode,
		DecodeConfig: avif.DecodeConfig,
		Encode: func(w io.Writer, img image.Image) error {
			return avif.Encode(w, img, avif.Options{Quality: avif.DefaultQuality, QualityAlpha: avif.DefaultQuality, Speed: avif.DefaultSpeed})
		},
	},
	format.Farbfeld: {
		Decode: func(r io.Reader) (image.Image, error) {
			r, err := checkFarbfeldMagic(r)
			if err != nil {
				return nil, err
			}
			return farbfeld.Decode(r)
		},
		DecodeConfig: func(r io.Reader) (image.Config, error) {
			r, err := checkFarbfeldMagic(r)
			if err != nil {
				return image.Config{}, err
			}
			return farbfeld.DecodeConfig(r)
		},
		Encode: farbfeld.Encode,
	},
	format.HDR: {
		Decode:       rgbe.Decode,
		DecodeConfig: rgbe.DecodeConfig,
		Encode: func(w io.Writer, img image.Image) error {
			m, ok := img.(hdr.Image)
			if !ok {
				m = bitmap.ToRGB32F(img)
			}
			return rgbe.Encode(w, m)
		},
	},
	format.OpenEXR: {
		Decode:       decodeEXR,
		DecodeConfig: decodeEXRConfig,
		Encode:       encodeEXR,
	},
	format.QOI: {
		Decode:       qoi.Decode,
		DecodeConfig: qoi.DecodeConfig,
		Encode:       qoi.Encode,
	},
	format.TGA: {
		Decode:       tga.Decode,
		DecodeConfig: tga.DecodeConfig,
		Encode:       tga.Encode,
	},
	format.PNM: {
		Decode: func(r io.Reader) (image.Image, error) {
			return netpbm.Decode(r, nil)
		},
		DecodeConfig: netpbm.DecodeConfig,
		Encode: func(w io.Writer, img image.Image) error {
			return netpbm.Encode(w, img, nil)
		},
	},
}

var errFarbfeldMagic = errors.New("farbfeld: missing magic")

func checkFarbfeldMagic(r io.Reader) (io.Reader, error) {
	head := make([]byte, len("farbfeld"))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if string(head) != "farbfeld" {
		return nil, errFarbfeldMagic
	}
	return io.MultiReader(bytes.NewReader(head), r), nil
}
