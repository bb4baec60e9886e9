package source

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/net/html/charset"
)

var errNoSVGRoot = errors.New("document has no svg root element")

// SVGError reports a vector document that could not be parsed or rendered.
type SVGError struct {
	Err error
}

func (e *SVGError) Error() string {
	return "svg error: " + e.Err.Error()
}

func (e *SVGError) Unwrap() error {
	return e.Err
}

// Rasterize returns the raster image of s. Raster sources come back as is;
// vector sources are rendered at the settings' size.
func (s *Source) Rasterize(settings *domain.Settings) (image.Image, error) {
	if s.kind != Vector {
		return s.image, nil
	}

	if err := settings.Validate(); err != nil {
		return nil, &SVGError{Err: err}
	}
	width, height := settings.SVGDimensions()
	return renderSVG(s.svg, width, height)
}

// SVGSize reports the intrinsic size of an SVG document, truncated to whole
// pixels. Missing dimensions fall back to the default raster size.
func SVGSize(data []byte) (int, int, error) {
	icon, err := parseSVG(data)
	if err != nil {
		return 0, 0, err
	}
	width, height := int(icon.ViewBox.W), int(icon.ViewBox.H)
	if width <= 0 {
		width = domain.DefaultSVGWidth
	}
	if height <= 0 {
		height = domain.DefaultSVGHeight
	}
	return width, height, nil
}

func parseSVG(data []byte) (*oksvg.SvgIcon, error) {
	if err := checkSVGRoot(data); err != nil {
		return nil, &SVGError{Err: err}
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, &SVGError{Err: err}
	}
	return icon, nil
}

func checkSVGRoot(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return errNoSVGRoot
		}
		if err != nil {
			return err
		}
		if se, ok := tok.(xml.StartElement); ok {
			if se.Name.Local != "svg" {
				return fmt.Errorf("root element is <%s>, want <svg>", se.Name.Local)
			}
			return nil
		}
	}
}

func renderSVG(data []byte, width, height int) (image.Image, error) {
	icon, err := parseSVG(data)
	if err != nil {
		return nil, err
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(width)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(height)
	}

	icon.SetTarget(0, 0, float64(width), float64(height))
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)

	// Rendered output is re-read through the PNG codec.
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, &SVGError{Err: err}
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, &SVGError{Err: err}
	}
	return img, nil
}
