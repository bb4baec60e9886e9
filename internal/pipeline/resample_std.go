//go:build !govips || !cgo

package pipeline

import (
	"image"

	"github.com/dunamismax/pixelshift/internal/bitmap"
)

func resample(img image.Image, width, height int) image.Image {
	return bitmap.Resize(img, width, height)
}
