package metadata

import (
	"errors"
	"fmt"

	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/format"
)

var ErrNoDecoder = errors.New("no streaming decoder for format")

// DecoderError reports a streaming decoder that could not be created.
type DecoderError struct {
	Format format.Format
	Err    error
}

func (e *DecoderError) Error() string {
	return fmt.Sprintf("decoder error: could not create %s decoder: %v", e.Format, e.Err)
}

func (e *DecoderError) Unwrap() error {
	return e.Err
}

// Decoder reads image structure from the header without decoding pixels.
type Decoder interface {
	Dimensions() (int, int)
	// RawEXIF returns the embedded EXIF blob, or nil when the format carries
	// none.
	RawEXIF() ([]byte, error)
}

type DecoderFunc func(data []byte) (Decoder, error)

var decoders = map[format.Format]DecoderFunc{
	format.AVIF:     headerDecoder(format.AVIF),
	format.BMP:      headerDecoder(format.BMP),
	format.Farbfeld: headerDecoder(format.Farbfeld),
	format.GIF:      headerDecoder(format.GIF),
	format.HDR:      headerDecoder(format.HDR),
	format.ICO:      headerDecoder(format.ICO),
	format.JPEG:     headerDecoder(format.JPEG),
	format.OpenEXR:  headerDecoder(format.OpenEXR),
	format.PNG:      headerDecoder(format.PNG),
	format.QOI:      headerDecoder(format.QOI),
	format.TGA:      headerDecoder(format.TGA),
	format.TIFF:     headerDecoder(format.TIFF),
	format.WebP:     headerDecoder(format.WebP),
}

func newDecoder(f format.Format, data []byte) (Decoder, error) {
	fn, ok := decoders[f]
	if !ok {
		return nil, &DecoderError{Format: f, Err: ErrNoDecoder}
	}
	dec, err := fn(data)
	if err != nil {
		return nil, &DecoderError{Format: f, Err: err}
	}
	return dec, nil
}

type configDecoder struct {
	width  int
	height int
}

func (d configDecoder) Dimensions() (int, int) { return d.width, d.height }

func (configDecoder) RawEXIF() ([]byte, error) { return nil, nil }

func headerDecoder(f format.Format) DecoderFunc {
	return func(data []byte) (Decoder, error) {
		cfg, err := codec.DecodeConfig(data, f)
		if err != nil {
			return nil, err
		}
		return configDecoder{width: cfg.Width, height: cfg.Height}, nil
	}
}
