//go:build govips && cgo

package pipeline

import (
	"bytes"
	"image"
	"image/png"
	"log"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelshift/internal/bitmap"
)

// resample scales with libvips (Lanczos3) and falls back to the pure-Go
// resampler if libvips rejects the input.
func resample(img image.Image, width, height int) image.Image {
	out, err := resampleVips(img, width, height)
	if err != nil {
		log.Printf("vips resample failed, using fallback: %v", err)
		return bitmap.Resize(img, width, height)
	}
	return out
}

func resampleVips(img image.Image, width, height int) (image.Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, bitmap.ToRGBA8(img)); err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	if err := ref.ThumbnailWithSize(width, height, vips.InterestingNone, vips.SizeForce); err != nil {
		return nil, err
	}
	data, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(data))
}
