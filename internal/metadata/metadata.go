package metadata

import (
	"errors"

	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/source"
)

type Metadata struct {
	Width  int               `json:"width"`
	Height int               `json:"height"`
	Other  map[string]string `json:"other,omitempty"`
	Errors []string          `json:"errors,omitempty"`
}

// Extract reads dimensions and EXIF fields from raw without decoding pixels
// where the format allows it. Malformed EXIF never fails the call; it is
// reported in Errors instead.
func Extract(raw *source.Raw) (*Metadata, error) {
	if raw.IsVector() {
		width, height, err := source.SVGSize(raw.Data)
		if err != nil {
			return nil, err
		}
		return &Metadata{Width: width, Height: height}, nil
	}

	dec, err := newDecoder(raw.Format, raw.Data)
	if errors.Is(err, ErrNoDecoder) {
		img, err := codec.Decode(raw.Data, raw.Format)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		return &Metadata{Width: b.Dx(), Height: b.Dy()}, nil
	}
	if err != nil {
		return nil, err
	}

	width, height := dec.Dimensions()
	md := &Metadata{Width: width, Height: height}

	res := readEXIF(raw.Format, raw.Data, dec)
	if len(res.diagnostics) > 0 {
		md.Errors = res.diagnostics
	} else if len(res.fields) > 0 {
		md.Other = res.fields
	}
	return md, nil
}
