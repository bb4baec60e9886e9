package pipeline

import (
	"github.com/dunamismax/pixelshift/internal/bitmap"
	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/dunamismax/pixelshift/internal/format"
	"github.com/dunamismax/pixelshift/internal/metadata"
	"github.com/dunamismax/pixelshift/internal/source"
)

// ProgressFunc receives coarse progress updates. It is called synchronously;
// a panic inside it is swallowed and does not affect the operation.
type ProgressFunc func(percent float64, message string)

func (fn ProgressFunc) report(percent float64, message string) {
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn(percent, message)
}

type PixelData struct {
	Width       int
	Height      int
	AspectRatio float64
	ColorDepth  int
	Pixels      []byte
}

// Convert decodes data as sourceType (sniffing when unrecognised), normalizes
// it for targetType and encodes it. An unrecognised targetType encodes PNG.
func Convert(data []byte, sourceType, targetType string, settings *domain.Settings, progress ProgressFunc) ([]byte, error) {
	progress.report(10, "Starting conversion")

	srcFormat, srcKnown := format.Resolve(sourceType)
	target, targetKnown := format.Resolve(targetType)

	progress.report(35, "Loading image")
	src, err := source.Load(data, srcFormat, srcKnown)
	if err != nil {
		return nil, err
	}

	progress.report(50, "Processing image")
	img, err := src.Rasterize(settings)
	if err != nil {
		return nil, err
	}
	img = Normalize(img, src.Format(), target)

	progress.report(70, "Converting image")
	out, err := Encode(img, target, targetKnown)
	if err != nil {
		return nil, err
	}

	progress.report(100, "Conversion complete")
	return out, nil
}

// Metadata extracts dimensions and EXIF fields without a full decode where
// the format allows it.
func Metadata(data []byte, sourceType string, progress ProgressFunc) (*metadata.Metadata, error) {
	progress.report(10, "Starting metadata extraction")

	f, known := format.Resolve(sourceType)

	progress.report(35, "Loading image")
	raw, err := source.LoadRaw(data, f, known)
	if err != nil {
		return nil, err
	}

	progress.report(65, "Extracting metadata")
	md, err := metadata.Extract(raw)
	if err != nil {
		return nil, err
	}

	progress.report(100, "Metadata extraction complete")
	return md, nil
}

// Pixels decodes data to a tightly packed 8-bit RGBA buffer. SVG input is
// rendered at the default size. ColorDepth reports the bits per pixel of the
// decoded source, not of the exported buffer.
func Pixels(data []byte, sourceType string) (*PixelData, error) {
	f, known := format.Resolve(sourceType)
	src, err := source.Load(data, f, known)
	if err != nil {
		return nil, err
	}

	img, err := src.Rasterize(nil)
	if err != nil {
		return nil, err
	}

	depth := 32
	if !src.IsVector() {
		depth = bitmap.ColorOf(img).BitsPerPixel()
	}

	rgba := bitmap.ToRGBA8(img)
	width, height := rgba.Rect.Dx(), rgba.Rect.Dy()
	return &PixelData{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		ColorDepth:  depth,
		Pixels:      rgba.Pix,
	}, nil
}
