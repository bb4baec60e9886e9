package pipeline

import (
	"errors"

	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/dunamismax/pixelshift/internal/metadata"
	"github.com/dunamismax/pixelshift/internal/source"
)

// Permanent reports whether err is determined by the job input, so running
// the same job again cannot succeed.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, source.ErrUnknownFileType) ||
		errors.Is(err, ErrUnsupportedOperation) ||
		errors.Is(err, ErrUnsupportedSourceType) ||
		errors.Is(err, ErrPathOutsideRoot) {
		return true
	}

	var (
		codecErr   *codec.Error
		parseErr   *domain.ParseError
		svgErr     *source.SVGError
		decoderErr *metadata.DecoderError
	)
	return errors.As(err, &codecErr) ||
		errors.As(err, &parseErr) ||
		errors.As(err, &svgErr) ||
		errors.As(err, &decoderErr)
}
